// Package fetch provides the HTTP client used to retrieve the master file list and
// event archives. All transfer failures surface as *Error.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "gdelt-extract/1.0"

// Options configures the fetch behavior.
type Options struct {
	// Timeout bounds a whole request including the body read. Zero leaves the
	// transport defaults in place.
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// Limiter paces outgoing requests. Nil disables pacing.
	Limiter *rate.Limiter
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		UserAgent: DefaultUserAgent,
	}
}

// NewLimiter returns a limiter allowing perSecond requests per second, or nil
// when perSecond is not positive.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Response holds what was learned from a completed request.
type Response struct {
	URL           string
	StatusCode    int
	ContentType   string
	ContentLength int64
	Body          []byte
}

// Client issues sequential HTTP requests.
type Client struct {
	http *http.Client
	opts *Options
}

// NewClient creates a client from opts. A nil opts uses DefaultOptions.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
	}
}

// Head issues a metadata-only request. A non-2xx status is an *Error.
func (c *Client) Head(ctx context.Context, urlStr string) (*Response, error) {
	resp, err := c.do(ctx, http.MethodHead, urlStr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return &Response{
		URL:           urlStr,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// Get retrieves urlStr and reads the whole body into memory.
func (c *Client) Get(ctx context.Context, urlStr string) (*Response, error) {
	resp, err := c.do(ctx, http.MethodGet, urlStr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{
			URL:     urlStr,
			Method:  http.MethodGet,
			Message: "failed to read response body",
			Cause:   err,
		}
	}

	return &Response{
		URL:           urlStr,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: int64(len(body)),
		Body:          body,
	}, nil
}

// Stream issues a GET and hands back the open response so large bodies can be
// copied without buffering. The caller must close the body.
func (c *Client) Stream(ctx context.Context, urlStr string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, urlStr)
}

func (c *Client) do(ctx context.Context, method, urlStr string) (*http.Response, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:     urlStr,
			Method:  method,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting to request %s: %w", urlStr, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Method:  method,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	req.Header.Set("User-Agent", c.opts.UserAgent)
	for key, value := range c.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Cancellation is not a transfer failure; the caller is shutting down.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{
			URL:     urlStr,
			Method:  method,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &Error{
			URL:        urlStr,
			Method:     method,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
		}
	}

	return resp, nil
}
