// pkg/telemetry/server.go
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-spacerace/pkg/config"
	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/engine"
	"github.com/opd-ai/go-spacerace/pkg/health"
	"github.com/opd-ai/go-spacerace/pkg/logging"
	"github.com/opd-ai/go-spacerace/pkg/validation"
)

// HTTP requests allowed per remote host and minute
const maxRequestsPerMinute = 600

// Server exposes the telemetry hub and read-only session state over HTTP:
//
//	/ws        snapshot and event stream
//	/snapshot  latest snapshot as JSON
//	/course    course document as JSON
//	/health    liveness probe
//	/ready     readiness probe
type Server struct {
	hub      *Hub
	health   *health.Checker
	limiter  *validation.RateLimiter
	logger   *logging.Logger
	course   *course.Course
	snapshot func() engine.Snapshot
	upgrader websocket.Upgrader
	http     *http.Server

	mu       sync.RWMutex
	listener net.Listener
}

// NewServer creates a telemetry server for the session described by c and
// snapshot. Checks are added to the readiness probe next to the server's own
// listener check.
func NewServer(cfg config.TelemetryConfig, c *course.Course, snapshot func() engine.Snapshot, logger *logging.Logger, checks ...health.Check) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &Server{
		hub:      NewHub(cfg, logger),
		health:   health.NewChecker(checks...),
		limiter:  validation.NewRateLimiter(maxRequestsPerMinute, time.Minute),
		logger:   logger.With("component", "telemetry"),
		course:   c,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.health.Add(health.NewListenerCheck("telemetry", s.Addr))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/course", s.handleCourse)
	s.health.Register(mux)

	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.rateLimit(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Hub returns the broadcast hub
func (s *Server) Hub() *Hub { return s.hub }

// Health returns the health checker behind the probes
func (s *Server) Health() *health.Checker { return s.health }

// Handler returns the HTTP handler, for embedding or tests
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Addr returns the listening address, or "" before Listen
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen opens the configured address
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("telemetry: listen on %s: %w", s.http.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Run listens if needed and serves until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Run(ctx context.Context) error {
	if s.Addr() == "" {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()

	s.logger.Info(ctx, "telemetry server listening", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(listener)
	}()

	select {
	case err := <-errCh:
		s.cleanup()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("telemetry: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown disconnects viewers and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.cleanup()
	if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	s.logger.Info(ctx, "telemetry server stopped")
	return nil
}

func (s *Server) cleanup() {
	s.hub.Close()
	s.limiter.Close()
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	v := s.hub.register(conn)

	// Viewers joining mid-session get the current state straight away
	if s.snapshot != nil {
		snap := s.snapshot()
		if data, err := json.Marshal(Message{Type: TypeSnapshot, Tick: snap.Tick, Snapshot: &snap}); err == nil {
			s.hub.sendTo(v, data)
		}
	}

	go s.hub.serve(v)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.snapshot == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.snapshot())
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.course == nil {
		http.Error(w, "no course", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, struct {
		Checksum string `json:"checksum"`
		course.Document
	}{
		Checksum: fmt.Sprintf("%016x", s.course.Checksum()),
		Document: course.NewDocument(s.course.Layout()),
	})
}

// rateLimit rejects clients exceeding maxRequestsPerMinute
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.Allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
