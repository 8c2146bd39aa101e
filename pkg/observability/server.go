package observability

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server exposes /metrics and /health for long-running commands.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server listening on addr (e.g. ":9090").
func NewServer(addr string) *Server {
	s := &Server{}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the mux served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler())
	mux.Handle("/metrics", MetricsHandler())
	return mux
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
