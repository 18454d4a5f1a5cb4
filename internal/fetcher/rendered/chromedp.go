// Package rendered fetches pages through a headless browser so client-side rendered
// content is present in the returned HTML.
package rendered

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/webreader/internal/guard"
	"github.com/JakeFAU/webreader/internal/reader"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultTimeout    = 15 * time.Second
	DefaultSettleWait = 1500 * time.Millisecond
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	selectorWaitCap = 5 * time.Second
	finalSettle     = 500 * time.Millisecond
	viewportWidth   = 1920
	viewportHeight  = 1080
)

// TabOpener hands out isolated browser tabs. *browser.Manager satisfies it.
type TabOpener interface {
	NewTab(ctx context.Context) (context.Context, func(), error)
}

// HostChecker rejects internal hosts. *guard.Guard satisfies it.
type HostChecker interface {
	CheckHostname(host string) error
	Validate(ctx context.Context, rawURL string) (*url.URL, error)
}

// resolvedTypes are request types whose hosts are resolved before the browser
// may contact them. Navigations and redirect hops arrive as Document requests.
var resolvedTypes = map[network.ResourceType]bool{
	network.ResourceTypeDocument:    true,
	network.ResourceTypeXHR:         true,
	network.ResourceTypeFetch:       true,
	network.ResourceTypeEventSource: true,
	network.ResourceTypeWebSocket:   true,
}

// hostVerdicts memoizes resolved-host decisions for one tab.
type hostVerdicts struct {
	mu      sync.Mutex
	blocked map[string]bool
}

func newHostVerdicts() *hostVerdicts {
	return &hostVerdicts{blocked: make(map[string]bool)}
}

// Config controls the behavior of the rendered fetcher.
type Config struct {
	MaxParallel int
	UserAgent   string
	// Timeout bounds navigation when a request has no override.
	Timeout    time.Duration
	SettleWait time.Duration
	// BlockedPatterns lists tracker hosts ("*.suffix" or exact) whose requests are aborted.
	BlockedPatterns []string
}

// Fetcher implements reader.Fetcher using chromedp tabs.
type Fetcher struct {
	cfg     Config
	tabs    TabOpener
	hosts   HostChecker
	blocked *guard.HostPatterns
	limiter chan struct{}
	logger  *zap.Logger
}

// New creates a rendered fetcher.
func New(cfg Config, tabs TabOpener, hosts HostChecker, logger *zap.Logger) (*Fetcher, error) {
	if tabs == nil {
		return nil, errors.New("rendered: tab opener is required")
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SettleWait < 0 {
		cfg.SettleWait = 0
	} else if cfg.SettleWait == 0 {
		cfg.SettleWait = DefaultSettleWait
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:     cfg,
		tabs:    tabs,
		hosts:   hosts,
		blocked: guard.NewHostPatterns(cfg.BlockedPatterns),
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Fetch renders request.URL in a fresh tab and returns the flattened DOM.
func (f *Fetcher) Fetch(ctx context.Context, request reader.FetchRequest) (string, error) {
	if err := f.acquire(ctx); err != nil {
		return "", err
	}
	defer f.release()

	tabCtx, closeTab, err := f.tabs.NewTab(ctx)
	if err != nil {
		return "", fmt.Errorf("open tab: %w", err)
	}
	defer closeTab()

	chromedp.ListenTarget(tabCtx, f.interceptor(tabCtx, newHostVerdicts()))
	if err := chromedp.Run(tabCtx, f.setupAction()); err != nil {
		return "", fmt.Errorf("%w: tab setup: %v", reader.ErrNavigation, err)
	}

	if err := f.navigate(ctx, tabCtx, request.URL, f.navTimeout(request.Timeout)); err != nil {
		return "", err
	}

	if request.WaitForSelector != "" {
		f.waitForSelector(tabCtx, request.WaitForSelector)
	}

	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(f.cfg.SettleWait),
		chromedp.Evaluate(scrollScript, nil, awaitPromise),
		chromedp.Sleep(finalSettle),
	); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("rendered fetch canceled: %w", ctx.Err())
		}
		f.logger.Debug("scroll pass failed", zap.String("url", request.URL), zap.Error(err))
	}

	return f.snapshot(ctx, tabCtx, request.URL)
}

func (f *Fetcher) navigate(ctx, tabCtx context.Context, target string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, _, err := page.Navigate(target).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("%w: %s", reader.ErrNavigation, errorText)
			}
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return classifyNavigationError(ctx, navCtx, err)
}

// classifyNavigationError maps chromedp failures onto the reader error kinds.
func classifyNavigationError(callerCtx, navCtx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reader.ErrNavigation):
		return err
	case callerCtx.Err() != nil && !errors.Is(callerCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("rendered fetch canceled: %w", callerCtx.Err())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(navCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: navigation exceeded deadline", reader.ErrTimeout)
	default:
		return fmt.Errorf("%w: %v", reader.ErrNavigation, err)
	}
}

func (f *Fetcher) waitForSelector(tabCtx context.Context, selector string) {
	waitCtx, cancel := context.WithTimeout(tabCtx, selectorWaitCap)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		f.logger.Debug("wait selector not satisfied", zap.String("selector", selector), zap.Error(err))
	}
}

func (f *Fetcher) snapshot(ctx, tabCtx context.Context, target string) (string, error) {
	var html string
	err := chromedp.Run(tabCtx, chromedp.Evaluate(flattenShadowScript, &html))
	if err == nil && html != "" {
		return html, nil
	}
	f.logger.Debug("shadow flattening failed", zap.String("url", target), zap.Error(err))

	if err := chromedp.Run(tabCtx, chromedp.Evaluate(outerHTMLScript, &html)); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("rendered fetch canceled: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: read document: %v", reader.ErrNavigation, err)
	}
	return html, nil
}

func (f *Fetcher) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := fetch.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable request interception: %w", err)
		}
		if err := security.SetIgnoreCertificateErrors(true).Do(ctx); err != nil {
			return fmt.Errorf("ignore certificate errors: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(viewportWidth, viewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// interceptor answers every paused request. Handlers run in goroutines because
// chromedp listeners must not block.
func (f *Fetcher) interceptor(tabCtx context.Context, verdicts *hostVerdicts) func(ev any) {
	return func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(tabCtx, c.Target)
			var err error
			if f.shouldBlock(tabCtx, verdicts, paused.ResourceType, requestURL(paused)) {
				err = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			} else {
				err = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
			}
			if err != nil && tabCtx.Err() == nil {
				f.logger.Debug("interception reply failed", zap.Error(err))
			}
		}()
	}
}

func requestURL(ev *fetch.EventRequestPaused) string {
	if ev.Request == nil {
		return ""
	}
	return ev.Request.URL
}

// shouldBlock drops heavy resources, tracker hosts and internal hosts. Hosts of
// navigations and script-initiated requests are resolved through the guard.
func (f *Fetcher) shouldBlock(ctx context.Context, verdicts *hostVerdicts, resourceType network.ResourceType, rawURL string) bool {
	switch resourceType {
	case network.ResourceTypeImage, network.ResourceTypeMedia, network.ResourceTypeFont, network.ResourceTypeStylesheet:
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if host == "" {
		return false
	}
	if f.blocked.Matches(host) {
		return true
	}
	if f.hosts == nil {
		return false
	}
	if f.hosts.CheckHostname(host) != nil {
		return true
	}
	if !resolvedTypes[resourceType] {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return false
	}
	return f.resolvesInternal(ctx, verdicts, strings.ToLower(host))
}

func (f *Fetcher) resolvesInternal(ctx context.Context, verdicts *hostVerdicts, host string) bool {
	if verdicts != nil {
		verdicts.mu.Lock()
		defer verdicts.mu.Unlock()
		if blocked, ok := verdicts.blocked[host]; ok {
			return blocked
		}
	}
	_, err := f.hosts.Validate(ctx, "http://"+hostPort(host))
	blocked := errors.Is(err, reader.ErrBlockedHost)
	if blocked {
		f.logger.Debug("request to internal host aborted", zap.String("host", host))
	}
	if verdicts != nil {
		verdicts.blocked[host] = blocked
	}
	return blocked
}

// hostPort brackets IPv6 literals so they survive URL parsing.
func hostPort(host string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

func (f *Fetcher) navTimeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if f.cfg.Timeout > 0 {
		return f.cfg.Timeout
	}
	return DefaultTimeout
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rendered slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
