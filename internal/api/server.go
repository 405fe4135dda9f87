// Package api serves the read-only operator surface: a health endpoint
// covering the store and the exchange, and the prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
)

// healthTimeout bounds each dependency probe.
const healthTimeout = 5 * time.Second

// DBPinger is the store's liveness probe.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ExchangePinger is the exchange's liveness probe.
type ExchangePinger interface {
	SyncServerTime(ctx context.Context) error
}

// Server is the health/metrics HTTP server.
type Server struct {
	router *gin.Engine
	server *http.Server
	db     DBPinger
	ex     ExchangePinger
	addr   string
	logger zerolog.Logger
}

// NewServer creates the operator server on the configured address.
func NewServer(cfg config.APIConfig, db DBPinger, ex ExchangePinger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		db:     db,
		ex:     ex,
		addr:   cfg.Addr,
		logger: config.NewLogger("api"),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Operator server started")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("operator server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Operator server stopping")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("operator server shutdown: %w", err)
	}
	return nil
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler { return s.router }

// handleHealthz probes the store and the exchange. Any failing dependency
// degrades the whole report to 503.
func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = gin.H{"status": "down", "error": err.Error()}
		healthy = false
	} else {
		checks["database"] = gin.H{"status": "up"}
	}

	if err := s.ex.SyncServerTime(ctx); err != nil {
		checks["exchange"] = gin.H{"status": "down", "error": err.Error()}
		healthy = false
	} else {
		checks["exchange"] = gin.H{"status": "up"}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}

// requestLogger logs each request with latency and status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}
