// Package api provides the HTTP surface of IsItStolen.
//
// It exposes a health check, Prometheus metrics and, when the Twilio transport is
// selected, the inbound WhatsApp webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Constants for the HTTP server
const (
	// DefaultAddr is the default listen address
	DefaultAddr = ":8080"
	// DefaultHealthTimeout bounds each health check
	DefaultHealthTimeout = 2 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 5 * time.Second
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	HealthChecks  map[string]HealthCheck
	Metrics       http.Handler
	TwilioWebhook http.HandlerFunc
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(o *Opts) {
		if o.HealthChecks == nil {
			o.HealthChecks = make(map[string]HealthCheck)
		}
		o.HealthChecks[name] = check
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *Opts) { o.Metrics = h }
}

// WithTwilioWebhook serves h on /twilio/webhook.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.TwilioWebhook = h }
}

// Server is the HTTP server.
type Server struct {
	addr   string
	checks map[string]HealthCheck
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer builds a server with the configured routes.
func NewServer(opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{addr: o.Addr, checks: o.HealthChecks, mux: http.NewServeMux()}

	s.mux.HandleFunc("/healthz", s.healthHandler)
	if o.Metrics != nil {
		s.mux.Handle("/metrics", o.Metrics)
	}
	if o.TwilioWebhook != nil {
		s.mux.HandleFunc("/twilio/webhook", o.TwilioWebhook)
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	slog.Info("API server stopped")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := Response{Status: StatusOK, Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), DefaultHealthTimeout)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			slog.Warn("Server.healthHandler: dependency unhealthy", "check", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = StatusError
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = StatusOK
	}
	writeJSONResponse(w, code, resp)
}
