package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/strengthlab/quartet/internal/orchestrator"
)

// Server is the quartet HTTP server: the thin net/http adapter over the
// orchestrator (§4.10 TransportAdapter).
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler, for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds the dependencies and HTTP settings needed to build a
// Server.
type ServerConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string
	DefaultBlockCount   int
}

// New builds a Server with all §6 Core API routes registered behind the
// request-ID, logging, tracing, recovery, CORS and security-header
// middleware chain.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(cfg.Orchestrator, cfg.MaxRequestBodyBytes, cfg.DefaultBlockCount)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/blocks", http.HandlerFunc(h.HandleCreateBlocks))
	mux.Handle("POST /v1/submit", http.HandlerFunc(h.HandleSubmitResponses))
	mux.Handle("GET /v1/result", http.HandlerFunc(h.HandleGetResult))
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first): request ID → security
	// headers → CORS → tracing → logging → recovery → mux.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
