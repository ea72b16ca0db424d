// Package fetch downloads URLs for the generic pipeline.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sitedyno/urlbot/internal/app/urlinfo"
	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultMaxBytes  = 1 << 20
	DefaultUserAgent = "urlbot/1.0"
	maxRedirects     = 10
)

var ErrTooManyRedirects = errors.New("fetch: too many redirects")

type Options struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	// Transport defaults to http.DefaultTransport; it is always wrapped with
	// otelhttp.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// HTTPFetcher is the net/http implementation of urlinfo.Fetcher. Any HTTP
// status is a result; only transport failures are errors.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	logger    *slog.Logger
}

var _ urlinfo.Fetcher = (*HTTPFetcher)(nil)

func New(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(opts.Transport),
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		timeout:   opts.Timeout,
		maxBytes:  opts.MaxBytes,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
}

// Fetch GETs rawURL and reads at most MaxBytes of the body. Elapsed is set on
// every path.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (urlinfo.FetchResult, error) {
	start := time.Now()
	var res urlinfo.FetchResult

	result := func(err error) (urlinfo.FetchResult, error) {
		res.Elapsed = time.Since(start)
		metrics.FetchDurationSeconds.WithLabelValues(metrics.StatusClass(res.Status)).Observe(res.Elapsed.Seconds())
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return result(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return result(err)
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	res.Header = resp.Header
	f.logger.Debug("response started", "url", rawURL, "status", resp.StatusCode, "headers", resp.Header)

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	res.Body = body
	if err != nil {
		return result(fmt.Errorf("read body: %w", err))
	}
	return result(nil)
}
