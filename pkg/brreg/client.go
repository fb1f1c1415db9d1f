// Package brreg provides a client for the Brønnøysund Register Centre
// (Enhetsregisteret) REST API. It covers the detail lookups used for
// contact enrichment: main entities and sub-entities by organisation
// number.
package brreg

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

// DefaultBaseURL is the production endpoint of the register API.
const DefaultBaseURL = "https://data.brreg.no/enhetsregisteret/api"

// Detail holds the contact fields of a register entry. Found is false when
// the organisation number is unknown to the register; that is not an error.
type Detail struct {
	Website string
	Email   string
	Phone   string
	Mobile  string
	Found   bool
}

// Client looks up register entries by organisation number.
type Client interface {
	// LookupEntity fetches the main entity record.
	LookupEntity(ctx context.Context, orgNumber string) (*Detail, error)
	// LookupSubEntity fetches the sub-entity record. Sub-entities often
	// carry the contact details their parent lacks.
	LookupSubEntity(ctx context.Context, orgNumber string) (*Detail, error)
}

// StatusError reports a non-OK response from the register API. Callers can
// inspect the code to decide whether the request is worth retrying.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("brreg: unexpected status %d", e.Code)
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

// WithRateLimit sets the request rate in requests per second. The register
// API throttles aggressive clients, so the default is deliberately low.
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

// NewClient creates a register client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// detailResponse maps the register fields used for enrichment.
type detailResponse struct {
	Website string `json:"hjemmeside"`
	Email   string `json:"epostadresse"`
	Phone   string `json:"telefon"`
	Mobile  string `json:"mobil"`
}

func (c *client) LookupEntity(ctx context.Context, orgNumber string) (*Detail, error) {
	return c.lookup(ctx, "enheter", orgNumber)
}

func (c *client) LookupSubEntity(ctx context.Context, orgNumber string) (*Detail, error) {
	return c.lookup(ctx, "underenheter", orgNumber)
}

func (c *client) lookup(ctx context.Context, resource, orgNumber string) (*Detail, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "brreg: rate limit")
	}

	reqURL := c.baseURL + "/" + resource + "/" + url.PathEscape(orgNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "brreg: build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "brreg: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &Detail{Found: false}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "brreg: read body")
	}

	var parsed detailResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "brreg: parse response")
	}

	return &Detail{
		Website: parsed.Website,
		Email:   parsed.Email,
		Phone:   parsed.Phone,
		Mobile:  parsed.Mobile,
		Found:   true,
	}, nil
}
