package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/carpool-pilot/prospect-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration // response header timeout
	MaxRetries   int
	RateLimiters map[string]*rate.Limiter
}

// StatusError reports a non-success HTTP status from a download host.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: status %d from %s", e.Code, e.URL)
}

// DefaultRateLimiters returns per-host limits for the hosts the tool talks
// to. Unknown hosts share one conservative limiter.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"data.brreg.no":  rate.NewLimiter(2, 2),
		"ws.geonorge.no": rate.NewLimiter(10, 10),
	}
}

// HTTPFetcher downloads snapshot files over HTTP with per-host rate
// limiting and bounded retries. There is no overall client timeout: the
// register exports run to hundreds of megabytes, so only the response
// headers carry a deadline and the body read runs under ctx.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
	retry    resilience.RetryConfig
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 4
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "prospect-cli/1.0"
	}
	limiters := opts.RateLimiters
	if limiters == nil {
		limiters = DefaultRateLimiters()
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries
	retry.ShouldRetry = retryableDownload
	retry.OnRetry = resilience.RetryLogger("fetcher", "download")

	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: opts.Timeout,
			},
		},
		opts:     opts,
		limiters: limiters,
		fallback: rate.NewLimiter(5, 5),
		retry:    retry,
	}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFile(path, body)
}

// DownloadToFileIfChanged fetches the URL to path unless the server reports
// the content unchanged for the given ETag. It returns the bytes written,
// the ETag to remember, and whether the file was rewritten.
func (f *HTTPFetcher) DownloadToFileIfChanged(ctx context.Context, rawURL string, path string, etag string) (int64, string, bool, error) {
	var header http.Header
	if etag != "" {
		header = http.Header{"If-None-Match": []string{etag}}
	}

	resp, err := f.get(ctx, rawURL, header)
	if err != nil {
		return 0, "", false, err
	}
	switch {
	case resp.StatusCode == http.StatusNotModified:
		_ = resp.Body.Close()
		return 0, etag, false, nil
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return 0, "", false, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	defer resp.Body.Close() //nolint:errcheck

	n, err := writeFile(path, resp.Body)
	if err != nil {
		return 0, "", false, err
	}
	return n, resp.Header.Get("ETag"), true, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: build request for %s", rawURL)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*http.Response, error) {
		if err := f.limiterFor(req.URL.Host).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
		}
		return resp, nil
	})
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	return f.fallback
}

func retryableDownload(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return resilience.IsTransientHTTPStatus(status.Code)
	}
	return resilience.IsTransient(err)
}
