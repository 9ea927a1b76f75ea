package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/keyword-collector/internal/config"
	"github.com/jonathan/keyword-collector/internal/db"
	"github.com/jonathan/keyword-collector/internal/pipeline"
	"github.com/jonathan/keyword-collector/internal/server/middleware"
	"github.com/jonathan/keyword-collector/internal/server/ratelimit"
	"github.com/jonathan/keyword-collector/internal/storage"
	"github.com/jonathan/keyword-collector/internal/types"
)

// Collector runs one keyword collection. *pipeline.Collector implements it.
type Collector interface {
	Collect(ctx context.Context, req types.CollectionRequest, opts ...pipeline.RunOption) *types.CollectionResult
}

// ArtifactStore reads stored keyword artifacts. *storage.Store implements it.
type ArtifactStore interface {
	Load(name string) (*types.KeywordArtifact, error)
	List() ([]storage.ArtifactInfo, error)
}

// RunStore reads the run log. *db.DB implements it.
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, status string, limit int) ([]db.Run, error)
}

// DefaultMaxConcurrent is the number of collections allowed to drive a browser at once.
const DefaultMaxConcurrent = 1

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	collector   Collector
	artifacts   ArtifactStore
	runs        RunStore
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService

	slots          *semaphore.Weighted
	acquireTimeout time.Duration
	inFlight       atomic.Int64

	log zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port      int
	Collector Collector
	Artifacts ArtifactStore
	// Runs is optional; run endpoints answer 503 without it.
	Runs      RunStore
	JWT       *config.JWTConfig
	RateLimit *ratelimit.Config
	// MaxConcurrent bounds in-flight collections. Defaults to DefaultMaxConcurrent.
	MaxConcurrent int64
	// AcquireTimeout caps the wait for a collection slot. Zero waits until
	// the request context ends.
	AcquireTimeout time.Duration
	// Gatherer backs GET /metrics. Defaults to the default registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Collector == nil:
		return nil, fmt.Errorf("server: collector is required")
	case cfg.Artifacts == nil:
		return nil, fmt.Errorf("server: artifact store is required")
	case cfg.JWT == nil:
		return nil, fmt.Errorf("server: JWT config is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = ratelimit.LoadConfig()
	}

	s := &Server{
		collector:      cfg.Collector,
		artifacts:      cfg.Artifacts,
		runs:           cfg.Runs,
		rateLimiter:    ratelimit.NewLimiter(cfg.RateLimit),
		jwtService:     NewJWTService(cfg.JWT),
		slots:          semaphore.NewWeighted(cfg.MaxConcurrent),
		acquireTimeout: cfg.AcquireTimeout,
		log:            cfg.Logger,
	}

	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.Handle("POST /v1/collections", protected(s.handleCollect))
	mux.Handle("POST /v1/collections/stream", protected(s.handleCollectStream))
	mux.Handle("GET /v1/collections", protected(s.handleListArtifacts))
	mux.Handle("GET /v1/collections/{name}", protected(s.handleGetArtifact))
	mux.Handle("GET /v1/runs", protected(s.handleListRuns))
	mux.Handle("GET /v1/runs/{id}", protected(s.handleGetRun))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // a collection drives a real browser
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		defer s.rateLimiter.Stop()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.log.Info().Msg("server stopped")
		return nil
	})

	return g.Wait()
}

// acquire takes a collection slot. The caller must call the returned release.
func (s *Server) acquire(ctx context.Context) (func(), error) {
	if s.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
		defer cancel()
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, &ErrBusy{InFlight: s.inFlight.Load()}
	}
	s.inFlight.Add(1)
	return func() {
		s.inFlight.Add(-1)
		s.slots.Release(1)
	}, nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, clientID, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"in_flight": s.inFlight.Load(),
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("error encoding JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// errorFrom writes err with the status HTTPStatus assigns to it.
func (s *Server) errorFrom(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, clientID string, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.log.Warn().
		Str("client", clientID).
		Int("limit", info.Limit).
		Time("reset", info.ResetTime).
		Msg("rate limit exceeded")

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
