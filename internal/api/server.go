package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/webreader/internal/format"
	"github.com/JakeFAU/webreader/internal/hash/sha256"
	"github.com/JakeFAU/webreader/internal/id/uuid"
	"github.com/JakeFAU/webreader/internal/metrics"
	"github.com/JakeFAU/webreader/internal/policy/ratelimit"
	"github.com/JakeFAU/webreader/internal/reader"
)

const (
	serviceName = "webreader"
	maxBodySize = 1 << 20
	// defaultHandlerTimeout bounds a whole request. It sits above the slowest
	// rendered fetch so engine deadlines fire first.
	defaultHandlerTimeout = 60 * time.Second
)

// Resolver is the slice of reader.Service the HTTP layer depends on.
type Resolver interface {
	Resolve(ctx context.Context, req reader.FetchRequest) (reader.Document, error)
	ClearCache()
	CacheSize() int
}

// Options configures the Server.
type Options struct {
	// APIKey enables bearer auth when non-empty.
	APIKey string
	// RequestsPerMinute enables per-client rate limiting when positive.
	RequestsPerMinute int
	Version           string
	CacheMaxEntries   int
	HandlerTimeout    time.Duration
}

// Server wires HTTP handlers to the reader service.
type Server struct {
	router   chi.Router
	resolver Resolver
	opts     Options
	ids      *uuid.Generator
	hasher   *sha256.Hasher
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(resolver Resolver, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = defaultHandlerTimeout
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		resolver: resolver,
		opts:     opts,
		ids:      uuid.New(),
		hasher:   sha256.New(),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if opts.RequestsPerMinute > 0 {
		limiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute})
		r.Use(rateLimitMiddleware(limiter))
	}
	if opts.APIKey != "" {
		r.Use(bearerAuthMiddleware(opts.APIKey))
	}
	r.Use(timeoutMiddleware(opts.HandlerTimeout))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/cache/clear", s.clearCache)
	r.Post("/", s.readPost)
	r.Get("/*", s.readGet)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status  string      `json:"status"`
	Service string      `json:"service"`
	Version string      `json:"version"`
	Cache   cacheStatus `json:"cache"`
}

type cacheStatus struct {
	Size int `json:"size"`
	Max  int `json:"max"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: serviceName,
		Version: s.opts.Version,
		Cache: cacheStatus{
			Size: s.resolver.CacheSize(),
			Max:  s.opts.CacheMaxEntries,
		},
	})
}

func (s *Server) clearCache(w http.ResponseWriter, _ *http.Request) {
	s.resolver.ClearCache()
	s.logger.Info("cache cleared")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cache cleared"})
}

func (s *Server) readGet(w http.ResponseWriter, r *http.Request) {
	req, err := fetchRequestFromQuery(chi.URLParam(r, "*"), r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, r, req, wantsJSON(r))
}

func (s *Server) readPost(w http.ResponseWriter, r *http.Request) {
	var body readBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := body.fetchRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, r, req, true)
}

type readSuccess struct {
	Success bool            `json:"success"`
	Data    reader.Document `json:"data"`
}

type readFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	URL     string `json:"url,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, req reader.FetchRequest, asJSON bool) {
	doc, err := s.resolver.Resolve(r.Context(), req)
	if err != nil {
		status := reader.StatusCode(err)
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			// client went away; nothing useful to write
			return
		}
		if asJSON {
			writeJSON(w, status, readFailure{Error: err.Error(), URL: req.URL})
			return
		}
		writeText(w, status, "Error: "+err.Error())
		return
	}
	etag := s.etag(doc, asJSON)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if asJSON {
		writeJSON(w, http.StatusOK, readSuccess{Success: true, Data: doc})
		return
	}
	writeText(w, http.StatusOK, format.Markdown(doc))
}

// etag is weak: timing and cache flags differ between otherwise identical responses.
func (s *Server) etag(doc reader.Document, asJSON bool) string {
	representation := "text"
	if asJSON {
		representation = "json"
	}
	digest := s.hasher.HashStrings(representation, doc.URL, doc.Title, doc.Content)
	return `W/"` + digest[:32] + `"`
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, readFailure{Error: msg})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		zap.L().Error("write text failed", zap.Error(err))
	}
}
