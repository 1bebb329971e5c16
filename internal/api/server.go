package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timnaher/ds8r/internal/auth"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	mu             sync.Mutex
	httpServer     *http.Server
	stopped        bool
	orchestrator   OrchestratorPort
	device         DeviceReadPort
	metrics        MetricsPort
	auditLog       AuditReadPort
	authMiddleware *auth.Middleware
	logger         zerolog.Logger
	startTime      time.Time
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

// NewServer creates a new API server without token verification.
func NewServer(orchestrator OrchestratorPort, device DeviceReadPort, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	return NewServerWithAuth(orchestrator, device, auth.NewMiddleware(), readTimeout, writeTimeout, idleTimeout)
}

// NewServerWithAuth creates a new API server with authentication middleware.
func NewServerWithAuth(orchestrator OrchestratorPort, device DeviceReadPort, authMiddleware *auth.Middleware, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware()
	}
	return &Server{
		orchestrator:   orchestrator,
		device:         device,
		authMiddleware: authMiddleware,
		logger:         zerolog.Nop(),
		startTime:      time.Now(),
		readTimeout:    readTimeout,
		writeTimeout:   writeTimeout,
		idleTimeout:    idleTimeout,
	}
}

// SetMetrics exposes m at /api/v1/metrics.
func (s *Server) SetMetrics(m MetricsPort) {
	s.metrics = m
}

// SetAuditLog exposes recent audit entries at /api/v1/audit.
func (s *Server) SetAuditLog(a AuditReadPort) {
	s.auditLog = a
}

// SetLogger sets the request logger.
func (s *Server) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "api").Logger()
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(mux)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Bool("auth", s.authMiddleware.Enabled()).Msg("serving")
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server. A later Serve returns immediately.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.stopped = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}
