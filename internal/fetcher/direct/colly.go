// Package direct implements the plain HTTP fetch engine using gocolly.
package direct

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/webreader/internal/reader"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 10
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// browserHeaders make the request look like a desktop Chrome navigation.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Sec-Ch-Ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// DialFunc opens network connections for the transport.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	// DialContext replaces the default dialer. Production wires the guard's dialer here.
	DialContext DialFunc
}

// Fetcher implements reader.Fetcher using the Colly collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	guard     reader.Guard
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchResult collects what the collector callbacks observed.
type fetchResult struct {
	status int
	body   string
	err    error
}

// New builds a Fetcher. guard, when set, re-validates every redirect hop.
func New(cfg Config, guard reader.Guard, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(cfg.DialContext),
		guard:     guard,
		logger:    logger,
	}
}

// Fetch executes a single HTTP GET and returns the body of a 2xx response.
func (f *Fetcher) Fetch(ctx context.Context, request reader.FetchRequest) (string, error) {
	var result fetchResult
	collector := f.buildCollector(request, &result)

	if err := f.runCollector(ctx, collector, request.URL, &result); err != nil {
		return "", err
	}
	if result.status < http.StatusOK || result.status >= http.StatusMultipleChoices {
		return "", &reader.HTTPError{StatusCode: result.status}
	}
	return result.body, nil
}

// buildCollector creates a collector per request. Colly clones share one HTTP
// client, so per-request timeouts cannot be set on a clone safely.
func (f *Fetcher) buildCollector(request reader.FetchRequest, result *fetchResult) *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.UserAgent(f.cfg.UserAgent),
	)
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(f.transport)
	collector.SetRequestTimeout(f.timeout(request.Timeout))
	collector.SetRedirectHandler(f.checkRedirect)

	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, value := range browserHeaders {
			r.Headers.Set(key, value)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = string(r.Body)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= f.cfg.MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", f.cfg.MaxRedirects)
	}
	if f.guard == nil {
		return nil
	}
	if _, err := f.guard.Validate(req.Context(), req.URL.String()); err != nil {
		return err
	}
	return nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *fetchResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", reader.ErrTimeout, ctx.Err())
		}
		return fmt.Errorf("direct fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = result.err
		}
		if err == nil {
			return nil
		}
		if result.status > 0 {
			return &reader.HTTPError{StatusCode: result.status}
		}
		return classifyTransportError(err)
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, reader.ErrBlockedHost), errors.Is(err, reader.ErrInvalidURL):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", reader.ErrTimeout, err)
	default:
		return fmt.Errorf("direct fetch failed: %w", err)
	}
}

func (f *Fetcher) timeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return f.cfg.Timeout
}

func newHTTPTransport(dial DialFunc) *http.Transport {
	if dial == nil {
		dial = (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	return &http.Transport{
		DialContext:           dial,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
