package geocode

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-pilot/prospect-cli/internal/cache"
	"github.com/carpool-pilot/prospect-cli/internal/resilience"
	"github.com/carpool-pilot/prospect-cli/pkg/geonorge"
)

// fakeClient scripts errors first, then answers from a fixed result set.
type fakeClient struct {
	results map[string]*geonorge.Result
	errs    []error
	calls   int
}

func (f *fakeClient) Search(_ context.Context, addr geonorge.Address) (*geonorge.Result, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if r, ok := f.results[addr.Street]; ok {
		return r, nil
	}
	return &geonorge.Result{Matched: false}, nil
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
		JitterFraction: 0.01,
		ShouldRetry:    retryableSearch,
	}
}

func openStore(t *testing.T, path string) *cache.File[Entry] {
	t.Helper()
	store, err := cache.Open[Entry](path)
	require.NoError(t, err)
	return store
}

func TestResolve_CachesPositive(t *testing.T) {
	t.Parallel()

	client := &fakeClient{results: map[string]*geonorge.Result{
		"Rådhusveien 7": {Latitude: 60.0155, Longitude: 10.9377, Matched: true},
	}}
	store := openStore(t, filepath.Join(t.TempDir(), "geocache.json"))
	r := NewResolver(client, store)

	addr := geonorge.Address{Street: "Rådhusveien 7", PostalCode: "1481", City: "Hagan"}

	first, err := r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.True(t, first.Matched)

	second, err := r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.True(t, second.Matched)
	assert.InDelta(t, 60.0155, second.Latitude, 0.0001)
	assert.InDelta(t, 10.9377, second.Longitude, 0.0001)

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Calls: 1}, r.Stats())
}

func TestResolve_NegativeCachedOnce(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	store := openStore(t, filepath.Join(t.TempDir(), "geocache.json"))
	r := NewResolver(client, store)

	addr := geonorge.Address{Street: "Finnesikke gate 99", PostalCode: "0000", City: "Ingensted"}

	for i := 0; i < 3; i++ {
		result, err := r.Resolve(context.Background(), addr)
		require.NoError(t, err)
		assert.False(t, result.Matched)
	}

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 1, store.Len())
}

func TestResolve_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "geocache.json")
	addr := geonorge.Address{Street: "Rådhusveien 7", PostalCode: "1481", City: "Hagan"}

	client := &fakeClient{results: map[string]*geonorge.Result{
		"Rådhusveien 7": {Latitude: 60.0155, Longitude: 10.9377, Matched: true},
	}}
	store := openStore(t, path)
	r := NewResolver(client, store)

	_, err := r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, store.Flush())

	reopened := openStore(t, path)
	fresh := &fakeClient{}
	r2 := NewResolver(fresh, reopened)

	result, err := r2.Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 60.0155, result.Latitude, 0.0001)
	assert.Equal(t, 0, fresh.calls)
}

func TestResolve_FailureNegativeCached(t *testing.T) {
	t.Parallel()

	// A permanent API error is recorded as unresolved so reruns skip it.
	client := &fakeClient{errs: []error{&geonorge.StatusError{Code: http.StatusBadRequest}}}
	store := openStore(t, filepath.Join(t.TempDir(), "geocache.json"))
	r := NewResolver(client, store, WithRetry(fastRetry()))

	addr := geonorge.Address{Street: "Storgata 1", PostalCode: "0150", City: "Oslo"}

	result, err := r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, 1, store.Len())

	result, err = r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, 1, client.calls)
}

func TestResolve_ExhaustedRetriesNegativeCached(t *testing.T) {
	t.Parallel()

	client := &fakeClient{errs: []error{
		&geonorge.StatusError{Code: http.StatusServiceUnavailable},
		&geonorge.StatusError{Code: http.StatusServiceUnavailable},
		&geonorge.StatusError{Code: http.StatusServiceUnavailable},
	}}
	store := openStore(t, filepath.Join(t.TempDir(), "geocache.json"))
	r := NewResolver(client, store, WithRetry(fastRetry()))

	result, err := r.Resolve(context.Background(), geonorge.Address{Street: "Storgata 1"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, 1, store.Len())
}

func TestResolve_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		errs: []error{&geonorge.StatusError{Code: http.StatusServiceUnavailable}},
		results: map[string]*geonorge.Result{
			"Storgata 1": {Latitude: 59.91, Longitude: 10.75, Matched: true},
		},
	}
	store := openStore(t, filepath.Join(t.TempDir(), "geocache.json"))
	r := NewResolver(client, store, WithRetry(fastRetry()))

	result, err := r.Resolve(context.Background(), geonorge.Address{Street: "Storgata 1"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, 2, client.calls)
}

func TestResolve_ContextCanceledNotCached(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{errs: []error{ctx.Err()}}
	store := openStore(t, filepath.Join(t.TempDir(), "geocache.json"))
	r := NewResolver(client, store, WithRetry(fastRetry()))

	_, err := r.Resolve(ctx, geonorge.Address{Street: "Storgata 1"})
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr     geonorge.Address
		expected string
	}{
		{geonorge.Address{Street: "Rådhusveien 7", PostalCode: "1481", City: "Hagan"}, "rådhusveien 7|1481|hagan"},
		{geonorge.Address{Street: "STORGATA 1", PostalCode: "0150", City: "OSLO"}, "storgata 1|0150|oslo"},
		{geonorge.Address{Street: "Storgata 1"}, "storgata 1||"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, CacheKey(tt.addr))
	}
}
