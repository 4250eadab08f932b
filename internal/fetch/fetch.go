// Package fetch retrieves raw audio data for track URLs. It defines the
// Fetcher port and implementations for HTTP(S), S3 and local files, plus a
// scheme router that dispatches between them. Audio URLs are otherwise
// opaque to the playback core.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Static errors for fetch operations.
var (
	// ErrUnsupportedScheme is returned for URLs no registered fetcher handles.
	ErrUnsupportedScheme = errors.New("fetch: unsupported url scheme")
	// ErrNotFound is returned when the resource does not exist.
	ErrNotFound = errors.New("fetch: not found")
)

// Fetcher retrieves the raw bytes behind an audio URL. The caller closes
// the returned reader.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// HTTPFetcher fetches http:// and https:// URLs. Requests pass through a
// rate limiter so neighbor-preload fan-outs do not burst the backend.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithRateLimit caps outgoing requests per second. Zero or negative
// disables limiting.
func WithRateLimit(rps float64) HTTPOption {
	return func(f *HTTPFetcher) {
		if rps > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			f.limiter = nil
		}
	}
}

// NewHTTPFetcher creates an HTTP fetcher with a 30s timeout and a default
// limit of 4 requests per second.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(4), 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a GET and returns the response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch: rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// FileFetcher serves file:// URLs and bare paths from local disk, for
// development sessions and tests.
type FileFetcher struct{}

// Fetch opens the referenced file.
func (FileFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	path := strings.TrimPrefix(rawURL, "file://")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("fetch: open %s: %w", path, err)
	}
	return f, nil
}

// Router dispatches fetches by URL scheme. Bare paths fall through to the
// file fetcher when one is registered.
type Router struct {
	bySchemes map[string]Fetcher
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{bySchemes: make(map[string]Fetcher)}
}

// Register binds a fetcher to a scheme ("http", "https", "s3", "file").
func (r *Router) Register(scheme string, f Fetcher) {
	r.bySchemes[strings.ToLower(scheme)] = f
}

// Fetch dispatches to the fetcher registered for the URL's scheme.
func (r *Router) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	scheme := ""
	if u, err := url.Parse(rawURL); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}
	if scheme == "" {
		scheme = "file"
	}
	f, ok := r.bySchemes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return f.Fetch(ctx, rawURL)
}
