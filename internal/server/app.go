// Package server builds the reader's dependency graph and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/webreader/internal/api"
	"github.com/JakeFAU/webreader/internal/browser"
	"github.com/JakeFAU/webreader/internal/cache"
	"github.com/JakeFAU/webreader/internal/clock/system"
	"github.com/JakeFAU/webreader/internal/config"
	"github.com/JakeFAU/webreader/internal/extract"
	"github.com/JakeFAU/webreader/internal/fetcher/auto"
	"github.com/JakeFAU/webreader/internal/fetcher/direct"
	"github.com/JakeFAU/webreader/internal/fetcher/rendered"
	"github.com/JakeFAU/webreader/internal/guard"
	"github.com/JakeFAU/webreader/internal/headless/detector"
	"github.com/JakeFAU/webreader/internal/logging"
	"github.com/JakeFAU/webreader/internal/reader"
	"github.com/JakeFAU/webreader/internal/telemetry"
	"github.com/JakeFAU/webreader/internal/tokens"
)

// Version is reported by /health. Overridden at build time with -ldflags.
var Version = "dev"

const (
	readHeaderTimeout      = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	service   *reader.Service
	cache     *cache.Cache
	browser   *browser.Manager
	tokens    *tokens.Estimator
	apiServer *api.Server
	handler   http.Handler
	telemetry *telemetry.Providers
	closeOnce sync.Once
}

// Build creates the logger and every pipeline component from cfg.
func Build(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(cfg, logger)
}

// BuildWithLogger wires the application around an existing logger.
func BuildWithLogger(cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("default_engine", string(cfg.DefaultEngine())),
		zap.Bool("browser", cfg.Browser.Enabled),
		zap.Bool("auth", cfg.Auth.APIKey != ""))

	if cfg.Telemetry.TracingEnabled {
		providers, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Version:      Version,
			GCPProjectID: cfg.Telemetry.GCPProjectID,
			SampleRatio:  cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry init failed: %w", err)
		}
		app.telemetry = providers
	}

	clock := system.New()
	hostGuard := guard.New(guard.Config{BlockedHosts: cfg.Guard.BlockedHosts}, logger.Named("guard"))

	resultCache, err := cache.New(cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
	}, clock)
	if err != nil {
		return nil, fmt.Errorf("cache init failed: %w", err)
	}
	app.cache = resultCache

	var counter extract.TokenCounter
	if cfg.Tokens.Enabled {
		app.tokens = tokens.New(cfg.Tokens.Model, logger.Named("tokens"))
		counter = app.tokens
	}
	extractor := extract.New(extract.Config{MaxContentLength: cfg.Reader.MaxContentLength}, counter, logger.Named("extract"))

	directFetcher := direct.New(direct.Config{
		UserAgent:   cfg.Reader.UserAgent,
		Timeout:     cfg.Reader.DirectTimeout,
		DialContext: hostGuard.DialContext,
	}, hostGuard, logger.Named("direct"))
	fetchers := map[reader.Engine]reader.Fetcher{reader.EngineDirect: directFetcher}
	if cfg.Browser.Enabled {
		app.browser = browser.NewManager(browser.Config{ExecPath: cfg.Browser.ExecPath}, logger.Named("browser"))
		renderedFetcher, err := rendered.New(rendered.Config{
			MaxParallel:     cfg.Browser.MaxParallel,
			UserAgent:       cfg.Reader.UserAgent,
			Timeout:         cfg.Reader.RenderedTimeout,
			SettleWait:      settleWait(cfg.Reader.SettleWait),
			BlockedPatterns: cfg.Browser.BlockedPatterns,
		}, app.browser, hostGuard, logger.Named("rendered"))
		if err != nil {
			return nil, fmt.Errorf("rendered fetcher init failed: %w", err)
		}
		fetchers[reader.EngineRendered] = renderedFetcher

		autoFetcher, err := auto.New(directFetcher, renderedFetcher, detector.NewHeuristic(cfg.Reader.PromoteBelowBytes), logger.Named("auto"))
		if err != nil {
			return nil, fmt.Errorf("auto fetcher init failed: %w", err)
		}
		fetchers[reader.EngineAuto] = autoFetcher
	}

	service, err := reader.NewService(hostGuard, fetchers, extractor, resultCache, clock, reader.Config{
		DefaultEngine: cfg.DefaultEngine(),
		Timeouts: map[reader.Engine]time.Duration{
			reader.EngineDirect:   cfg.Reader.DirectTimeout,
			reader.EngineRendered: cfg.Reader.RenderedTimeout,
		},
	}, logger.Named("reader"))
	if err != nil {
		return nil, fmt.Errorf("reader service init failed: %w", err)
	}
	app.service = service

	app.apiServer = api.NewServer(service, api.Options{
		APIKey:            cfg.Auth.APIKey,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Version:           Version,
		CacheMaxEntries:   resultCache.MaxEntries(),
	}, logger.Named("api"))
	app.handler = app.apiServer.Handler()
	if app.telemetry != nil {
		app.handler = otelhttp.NewHandler(app.handler, cfg.Telemetry.ServiceName,
			otelhttp.WithFilter(traced),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + spanRoute(r.URL.Path)
			}))
	}
	return app, nil
}

// traced skips probe and scrape endpoints.
func traced(r *http.Request) bool {
	return r.URL.Path != "/health" && r.URL.Path != "/metrics"
}

// spanRoute keeps span names low-cardinality; target URLs live in reader span attributes.
func spanRoute(path string) string {
	switch path {
	case "/", "/cache/clear":
		return path
	default:
		return "/*"
	}
}

// settleWait maps a configured zero to "disabled" for the rendered fetcher,
// which treats zero as "use the default".
func settleWait(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

// Service exposes the resolver for one-shot use.
func (a *App) Service() *reader.Service {
	return a.service
}

// Resolve runs one request through the pipeline without the HTTP layer.
func (a *App) Resolve(ctx context.Context, req reader.FetchRequest) (reader.Document, error) {
	doc, err := a.service.Resolve(ctx, req)
	if err != nil {
		return reader.Document{}, fmt.Errorf("resolve %s: %w", req.URL, err)
	}
	return doc, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case err, ok := <-serveErr:
		if ok {
			a.logger.Error("http server error", zap.Error(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.Close()
	return runErr
}

// Close releases the browser and token estimator, then flushes the logger.
// It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if a.browser != nil {
		a.browser.Shutdown()
	}
	if a.tokens != nil {
		a.tokens.Close()
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
