// Package server exposes the verification pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/pipeline"
)

// Verifier runs verifications
type Verifier interface {
	NewRequest(tenantID, claim string) pipeline.Request
	VerifyClaim(ctx context.Context, req pipeline.Request) (*model.VerificationResult, error)
}

// CacheClearer drops every cached result
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// Server is the HTTP adapter around a Verifier
type Server struct {
	router   *gin.Engine
	verifier Verifier
	cache    CacheClearer
	checks   map[string]llm.Pinger
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithCache enables DELETE /v1/cache
func WithCache(c CacheClearer) Option {
	return func(s *Server) { s.cache = c }
}

// WithReadinessCheck adds a dependency probed by /readyz
func WithReadinessCheck(name string, p llm.Pinger) Option {
	return func(s *Server) { s.checks[name] = p }
}

// WithGatherer serves metrics from g on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the server and its routes
func New(verifier Verifier, opts ...Option) *Server {
	s := &Server{
		verifier: verifier,
		checks:   make(map[string]llm.Pinger),
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	v1 := r.Group("/v1")
	v1.POST("/verify", s.handleVerify)
	v1.DELETE("/cache", s.handleClearCache)

	r.GET("/healthz", s.handleHealth)
	r.GET("/readyz", s.handleReady)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	s.router = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
