// Package geonorge provides a client for the Kartverket national address
// search API (ws.geonorge.no). The API is open and unauthenticated but
// rate-limited, so the client paces requests and identifies itself with a
// User-Agent header.
package geonorge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production endpoint of the address API.
const DefaultBaseURL = "https://ws.geonorge.no/adresser/v1"

// Address identifies a Norwegian street address to look up.
type Address struct {
	Street       string
	PostalCode   string
	City         string
	Municipality string // four-digit kommunenummer, narrows the search when set
}

// Result holds the coordinates for a matched address. Matched is false when
// the API found nothing; that is not an error.
type Result struct {
	Latitude  float64
	Longitude float64
	Text      string // adressetekst of the hit, useful for logging
	Matched   bool
}

// Client looks up coordinates for street addresses.
type Client interface {
	Search(ctx context.Context, addr Address) (*Result, error)
}

// StatusError reports a non-OK response from the address API. Callers can
// inspect the code to decide whether the request is worth retrying.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geonorge: unexpected status %d", e.Code)
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		c.userAgent = ua
	}
}

// NewClient creates an address search client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchResponse is the JSON envelope of GET /sok.
type searchResponse struct {
	Metadata struct {
		TotalHits int `json:"totaltAntallTreff"`
	} `json:"metadata"`
	Addresses []struct {
		Text  string `json:"adressetekst"`
		Point *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"representasjonspunkt"`
	} `json:"adresser"`
}

// Search queries the address API with a free-text search and returns the
// best hit. Only one result is requested; the API ranks hits itself.
func (c *client) Search(ctx context.Context, addr Address) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geonorge: rate limit")
	}

	params := url.Values{
		"sok":          {formatQuery(addr)},
		"treffPerSide": {"1"},
	}
	if addr.Municipality != "" {
		params.Set("kommunenummer", addr.Municipality)
	}

	reqURL := c.baseURL + "/sok?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geonorge: build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geonorge: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geonorge: read body")
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geonorge: parse response")
	}

	if len(parsed.Addresses) == 0 || parsed.Addresses[0].Point == nil {
		return &Result{Matched: false}, nil
	}

	hit := parsed.Addresses[0]
	return &Result{
		Latitude:  hit.Point.Lat,
		Longitude: hit.Point.Lon,
		Text:      hit.Text,
		Matched:   true,
	}, nil
}

// formatQuery builds the free-text query "street, postal city", dropping
// whichever parts are empty.
func formatQuery(addr Address) string {
	street := strings.TrimSpace(addr.Street)
	locality := strings.TrimSpace(strings.TrimSpace(addr.PostalCode) + " " + strings.TrimSpace(addr.City))
	switch {
	case street == "":
		return locality
	case locality == "":
		return street
	}
	return street + ", " + locality
}
