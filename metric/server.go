package metric

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360/contextrules/component"
	"github.com/c360/contextrules/errors"
)

var _ component.LifecycleComponent = (*Server)(nil)

// Server exposes the registry's Prometheus scrape endpoint as a managed
// lifecycle component.
type Server struct {
	addr     string
	registry *MetricsRegistry
	server   *http.Server
	logger   *slog.Logger

	mu        sync.Mutex
	started   bool
	startTime time.Time
	lastError error
}

// NewServer creates a metrics endpoint server listening on addr.
func NewServer(addr string, registry *MetricsRegistry) *Server {
	return &Server{
		addr:     addr,
		registry: registry,
		logger:   slog.Default().With("component", "metrics-server"),
	}
}

// Meta returns component metadata
func (s *Server) Meta() component.Metadata {
	return component.Metadata{
		Name:        "metrics-server",
		Type:        "http",
		Description: "Prometheus scrape endpoint",
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (s *Server) Health() component.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := component.HealthStatus{
		Healthy:   s.started && s.lastError == nil,
		LastCheck: time.Now(),
	}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}
	if s.started {
		status.Uptime = time.Since(s.startTime)
	}
	return status
}

// DataFlow returns flow metrics; a scrape endpoint has no message flow.
func (s *Server) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}

// Initialize validates the server configuration
func (s *Server) Initialize() error {
	if s.addr == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MetricsServer", "Initialize",
			"listen address is empty")
	}
	if s.registry == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MetricsServer", "Initialize",
			"metrics registry is nil")
	}
	return nil
}

// Start begins serving /metrics. Listen errors after startup surface through
// Health rather than failing the whole process.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "MetricsServer", "Start", "already started")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Metrics endpoint listening", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.mu.Lock()
			s.lastError = err
			s.mu.Unlock()
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()

	s.started = true
	s.startTime = time.Now()
	return nil
}

// Stop shuts the endpoint down gracefully within the timeout
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "MetricsServer", "Stop", "shutdown")
	}
	return nil
}
