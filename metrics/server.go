package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Server provides HTTP endpoints for metrics and health checks.
type Server struct {
	metrics *Metrics
	srv     *http.Server
}

// NewServer creates a new metrics server bound to port.
func NewServer(metrics *Metrics, port int) *Server {
	mux := http.NewServeMux()

	s := &Server{
		metrics: metrics,
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	return s
}

// Start starts the metrics server.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime)

	if uptime < time.Minute {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "System still starting up (uptime: %v)", uptime)
		return
	}

	if active := atomic.LoadInt64(&m.ActiveTasks); active < 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "Negative active task count, scheduler state corrupt")
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Ready")
}
