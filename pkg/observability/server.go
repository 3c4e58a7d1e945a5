package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server exposes the debug endpoints: Prometheus metrics and the health
// probe. Intended for local diagnostics, not public serving.
type Server struct {
	httpServer *http.Server
	checker    *HealthChecker
	port       int
}

// NewServer creates a debug server on the given port.
func NewServer(port int) *Server {
	return &Server{port: port, checker: NewHealthChecker()}
}

// Health returns the server's health checker for registration.
func (s *Server) Health() *HealthChecker {
	return s.checker
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.checker.Handler())
	mux.Handle("/metrics", MetricsHandler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
