// Package browser owns the process-wide headless browser used by the rendered engine.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/webreader/internal/metrics"
)

// ErrClosed is returned by Acquire after Shutdown.
var ErrClosed = errors.New("browser manager is shut down")

const startTimeout = 30 * time.Second

// Launcher starts a browser and returns its context. cancel must stop the process.
type Launcher func(ctx context.Context) (browserCtx context.Context, cancel context.CancelFunc, err error)

// Config controls the launched browser.
type Config struct {
	// ExecPath points at a Chrome/Chromium binary. Empty uses chromedp's lookup.
	ExecPath string
}

// Manager lazily launches one browser and hands out isolated tabs on it.
// Concurrent first callers share a single launch.
type Manager struct {
	launch Launcher
	group  singleflight.Group
	logger *zap.Logger

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
	shutdown   bool
}

// NewManager builds a Manager using chromedp's exec allocator.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return NewManagerWithLauncher(ChromeLauncher(cfg), logger)
}

// NewManagerWithLauncher builds a Manager around a custom launcher.
func NewManagerWithLauncher(launch Launcher, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{launch: launch, logger: logger}
}

// ChromeLauncher returns a Launcher that starts headless Chrome with hardened flags.
func ChromeLauncher(cfg Config) Launcher {
	return func(ctx context.Context) (context.Context, context.CancelFunc, error) {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.DisableGPU,
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("disable-background-networking", true),
			chromedp.Flag("disable-default-apps", true),
			chromedp.Flag("disable-sync", true),
			chromedp.Flag("disable-translate", true),
			chromedp.Flag("metrics-recording-only", true),
			chromedp.Flag("mute-audio", true),
			chromedp.NoFirstRun,
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		cancel := func() {
			browserCancel()
			allocCancel()
		}

		// Run with no actions starts the process. It must not inherit ctx's deadline,
		// which would bind the browser's lifetime to the first caller.
		started := make(chan error, 1)
		go func() { started <- chromedp.Run(browserCtx) }()
		select {
		case err := <-started:
			if err != nil {
				cancel()
				return nil, nil, fmt.Errorf("start browser: %w", err)
			}
		case <-ctx.Done():
			cancel()
			return nil, nil, fmt.Errorf("start browser: %w", ctx.Err())
		case <-time.After(startTimeout):
			cancel()
			return nil, nil, fmt.Errorf("start browser: no response after %s", startTimeout)
		}
		return browserCtx, cancel, nil
	}
}

// Acquire returns the live browser context, launching it on first use or after a crash.
func (m *Manager) Acquire(ctx context.Context) (context.Context, error) {
	if browserCtx, ok, err := m.current(); err != nil || ok {
		return browserCtx, err
	}

	ch := m.group.DoChan("browser", func() (any, error) {
		if browserCtx, ok, err := m.current(); err != nil || ok {
			return browserCtx, err
		}
		// Detached so one caller's cancellation does not abort the shared launch.
		browserCtx, cancel, err := m.launch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.shutdown {
			m.mu.Unlock()
			cancel()
			return nil, ErrClosed
		}
		m.browserCtx = browserCtx
		m.cancel = cancel
		m.mu.Unlock()

		metrics.IncBrowserLaunches()
		m.logger.Info("browser launched")
		return browserCtx, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("acquire browser: %w", res.Err)
		}
		browserCtx, _ := res.Val.(context.Context)
		return browserCtx, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire browser: %w", ctx.Err())
	}
}

func (m *Manager) current() (context.Context, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return nil, false, ErrClosed
	}
	if m.browserCtx != nil && m.browserCtx.Err() == nil {
		return m.browserCtx, true, nil
	}
	return nil, false, nil
}

// NewTab opens an isolated browser context with one tab. release must be called
// on every path; cancelling ctx also closes the tab.
func (m *Manager) NewTab(ctx context.Context) (tabCtx context.Context, release func(), err error) {
	browserCtx, err := m.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	stop := context.AfterFunc(ctx, tabCancel)
	release = func() {
		stop()
		tabCancel()
	}
	return tabCtx, release, nil
}

// Close stops the current browser. The next Acquire launches a fresh one.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	m.browserCtx = nil
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		m.logger.Info("browser closed")
	}
}

// Shutdown stops the browser and refuses further launches.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	m.Close()
}
