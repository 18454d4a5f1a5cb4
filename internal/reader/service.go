package reader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/webreader/internal/metrics"
)

const tracerName = "github.com/JakeFAU/webreader/internal/reader"

// Config controls Service behavior.
type Config struct {
	// DefaultEngine is used when a request does not name one.
	DefaultEngine Engine
	// Timeouts holds the per-engine fetch timeout applied when a request has no override.
	Timeouts map[Engine]time.Duration
}

// Service resolves a URL into a Document: guard, cache, fetch, extract.
type Service struct {
	guard     Guard
	fetchers  map[Engine]Fetcher
	extractor Extractor
	cache     Cache
	clock     Clock
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService constructs a Service. cache may be nil to disable memoization.
func NewService(
	guard Guard,
	fetchers map[Engine]Fetcher,
	extractor Extractor,
	cache Cache,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) (*Service, error) {
	if guard == nil {
		return nil, errors.New("reader: guard is required")
	}
	if extractor == nil {
		return nil, errors.New("reader: extractor is required")
	}
	if len(fetchers) == 0 {
		return nil, errors.New("reader: at least one fetcher is required")
	}
	if cfg.DefaultEngine == "" {
		cfg.DefaultEngine = EngineDirect
	}
	if _, ok := fetchers[cfg.DefaultEngine]; !ok {
		return nil, fmt.Errorf("reader: no fetcher registered for default engine %q", cfg.DefaultEngine)
	}
	if clock == nil {
		clock = wallClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		guard:     guard,
		fetchers:  fetchers,
		extractor: extractor,
		cache:     cache,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// DefaultEngine reports the engine used when a request leaves it empty.
func (s *Service) DefaultEngine() Engine {
	return s.cfg.DefaultEngine
}

// Resolve runs the full pipeline for req.
func (s *Service) Resolve(ctx context.Context, req FetchRequest) (Document, error) {
	start := s.clock.Now()
	logger := s.logger.With(zap.String("url", req.URL))

	ctx, span := s.tracer.Start(ctx, "reader.Resolve", trace.WithAttributes(
		attribute.String("reader.url", req.URL),
		attribute.Bool("reader.no_cache", req.NoCache),
	))
	defer span.End()

	doc, engine, err := s.resolve(ctx, req, start, logger)
	metrics.ObserveResolve(string(engine), Kind(err))
	span.SetAttributes(attribute.String("reader.engine", string(engine)), attribute.String("reader.outcome", Kind(err)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
		logger.Warn("resolve failed",
			zap.String("engine", string(engine)),
			zap.String("kind", Kind(err)),
			zap.Error(err))
		return Document{}, err
	}
	span.SetAttributes(attribute.Bool("reader.cached", doc.Cached))
	logger.Info("resolve complete",
		zap.String("engine", string(engine)),
		zap.Bool("cached", doc.Cached),
		zap.Int64("processing_ms", doc.ProcessingTimeMs))
	return doc, nil
}

// invalidEngine labels requests whose engine could not be parsed.
const invalidEngine Engine = "invalid"

func (s *Service) resolve(ctx context.Context, req FetchRequest, start time.Time, logger *zap.Logger) (Document, Engine, error) {
	label := s.engineLabel(req.Engine)
	pageURL, err := s.guard.Validate(ctx, req.URL)
	if err != nil {
		return Document{}, label, err
	}

	engine, fetcher, err := s.selectEngine(req.Engine)
	if err != nil {
		return Document{}, label, err
	}
	req.Engine = engine

	key := CacheKey(req)
	if s.cache != nil && !req.NoCache {
		if cached, ok := s.cache.Get(key); ok {
			metrics.ObserveCacheEvent("hit")
			hit := cached.Clone()
			hit.Cached = true
			hit.ProcessingTimeMs = s.elapsedMs(start)
			return hit, engine, nil
		}
		metrics.ObserveCacheEvent("miss")
	}

	if req.Timeout <= 0 {
		req.Timeout = s.cfg.Timeouts[engine]
	}

	html, err := s.fetch(ctx, fetcher, req)
	if err != nil {
		return Document{}, engine, fmt.Errorf("fetch %s: %w", engine, err)
	}
	logger.Debug("page fetched", zap.String("engine", string(engine)), zap.Int("bytes", len(html)))

	_, extractSpan := s.tracer.Start(ctx, "reader.extract")
	doc, err := s.extractor.Extract(html, pageURL, ExtractOptions{
		TargetSelector:  req.TargetSelector,
		RemoveSelectors: req.RemoveSelectors,
		IncludeLinks:    req.IncludeLinks,
		IncludeImages:   req.IncludeImages,
		FullContent:     req.FullContent,
	})
	endSpan(extractSpan, err)
	if err != nil {
		return Document{}, engine, fmt.Errorf("extract: %w", err)
	}
	doc.URL = req.URL
	doc.Engine = engine
	doc.Cached = false
	doc.ProcessingTimeMs = s.elapsedMs(start)

	if s.cache != nil && !req.NoCache {
		s.cache.Set(key, doc.Clone())
		metrics.ObserveCacheEvent("store")
	}
	return doc, engine, nil
}

func (s *Service) fetch(ctx context.Context, fetcher Fetcher, req FetchRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "reader.fetch", trace.WithAttributes(
		attribute.String("reader.engine", string(req.Engine)),
		attribute.Int64("reader.timeout_ms", req.Timeout.Milliseconds()),
	))
	start := s.clock.Now()
	html, err := fetcher.Fetch(ctx, req)
	metrics.ObserveFetch(string(req.Engine), s.clock.Now().Sub(start))
	span.SetAttributes(attribute.Int("reader.bytes", len(html)))
	endSpan(span, err)
	return html, err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
	}
	span.End()
}

// engineLabel maps a requested engine onto the closed set used for metric labels and spans.
func (s *Service) engineLabel(requested Engine) Engine {
	if requested == "" {
		return s.cfg.DefaultEngine
	}
	parsed, err := ParseEngine(string(requested))
	if err != nil {
		return invalidEngine
	}
	return parsed
}

func (s *Service) selectEngine(requested Engine) (Engine, Fetcher, error) {
	engine := s.cfg.DefaultEngine
	if requested != "" {
		parsed, err := ParseEngine(string(requested))
		if err != nil {
			return "", nil, err
		}
		engine = parsed
	}
	fetcher, ok := s.fetchers[engine]
	if !ok || fetcher == nil {
		return "", nil, fmt.Errorf("%w: %q is not enabled", ErrInvalidEngine, engine)
	}
	return engine, fetcher, nil
}

// Engines lists the engines with a registered fetcher, sorted by name.
func (s *Service) Engines() []Engine {
	engines := make([]Engine, 0, len(s.fetchers))
	for engine, fetcher := range s.fetchers {
		if fetcher != nil {
			engines = append(engines, engine)
		}
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
	return engines
}

// ClearCache drops every cached document.
func (s *Service) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// CacheSize reports the number of cached documents.
func (s *Service) CacheSize() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

func (s *Service) elapsedMs(start time.Time) int64 {
	return s.clock.Now().Sub(start).Milliseconds()
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
