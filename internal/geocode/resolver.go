// Package geocode resolves street addresses to coordinates through the
// Kartverket address API, backed by a persistent cache so repeated runs
// over the same registry export stay cheap.
package geocode

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carpool-pilot/prospect-cli/internal/cache"
	"github.com/carpool-pilot/prospect-cli/internal/resilience"
	"github.com/carpool-pilot/prospect-cli/pkg/geonorge"
)

// Entry is one cached lookup. Nil coordinates mark an address the API could
// not match; keeping those around stops re-runs from querying them again.
type Entry struct {
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Timestamp string   `json:"timestamp"`
}

// Stats counts cache and API activity for the run summary.
type Stats struct {
	Hits   int // answered from cache, including cached no-matches
	Misses int // required an API lookup
	Calls  int // HTTP requests issued, retries included
}

// Resolver answers address lookups from the cache first and falls back to
// the API, retrying transient failures with backoff.
type Resolver struct {
	client geonorge.Client
	store  *cache.File[Entry]
	retry  resilience.RetryConfig
	stats  Stats
}

// Option configures the resolver.
type Option func(*Resolver)

// WithRetry overrides the retry policy for API calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Resolver) {
		r.retry = cfg
	}
}

// NewResolver wraps an address client with the given cache. The cache handle
// stays owned by the caller, who is responsible for flushing it.
func NewResolver(client geonorge.Client, store *cache.File[Entry], opts ...Option) *Resolver {
	cfg := resilience.DefaultRetryConfig()
	cfg.ShouldRetry = retryableSearch
	cfg.OnRetry = resilience.RetryLogger("geonorge", "sok")

	r := &Resolver{
		client: client,
		store:  store,
		retry:  cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the coordinates for an address. Matched is false when the
// address could not be resolved, either from a cached no-match or because
// the API said no (or kept failing after retries); both outcomes are
// negative-cached so reruns skip them. An error is returned only when the
// run is being cancelled, and nothing is cached then, so an aborted run
// cannot poison the cache with false negatives.
func (r *Resolver) Resolve(ctx context.Context, addr geonorge.Address) (geonorge.Result, error) {
	key := CacheKey(addr)
	if entry, ok := r.store.Get(key); ok {
		r.stats.Hits++
		if entry.Lat == nil || entry.Lon == nil {
			return geonorge.Result{Matched: false}, nil
		}
		return geonorge.Result{Latitude: *entry.Lat, Longitude: *entry.Lon, Matched: true}, nil
	}
	r.stats.Misses++

	result, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*geonorge.Result, error) {
		r.stats.Calls++
		return r.client.Search(ctx, addr)
	})

	now := time.Now().Format(time.RFC3339)
	switch {
	case err != nil && ctx.Err() != nil:
		return geonorge.Result{}, eris.Wrap(err, "geocode: resolve")
	case err != nil:
		zap.L().Warn("geocode: lookup failed, caching as unresolved",
			zap.String("address", key),
			zap.Error(err))
		r.store.Put(key, Entry{Timestamp: now})
		return geonorge.Result{Matched: false}, nil
	case !result.Matched:
		r.store.Put(key, Entry{Timestamp: now})
		return geonorge.Result{Matched: false}, nil
	}

	lat, lon := result.Latitude, result.Longitude
	r.store.Put(key, Entry{Lat: &lat, Lon: &lon, Timestamp: now})
	return *result, nil
}

// Stats returns the counters accumulated so far.
func (r *Resolver) Stats() Stats {
	return r.stats
}

// CacheKey builds the cache key "street|postal|city", lowercased and
// trimmed. Keys are stable across runs and registry re-downloads.
func CacheKey(addr geonorge.Address) string {
	key := addr.Street + "|" + addr.PostalCode + "|" + addr.City
	return strings.ToLower(strings.TrimSpace(key))
}

// retryableSearch retries transport failures and throttling or server
// errors. A clean no-match answer is final and never retried.
func retryableSearch(err error) bool {
	var statusErr *geonorge.StatusError
	if errors.As(err, &statusErr) {
		return resilience.IsTransientHTTPStatus(statusErr.Code)
	}
	return resilience.IsTransient(err)
}
