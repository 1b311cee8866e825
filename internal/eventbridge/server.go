package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/scheduler"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

const defaultHistoryLimit = 50

// ErrServerDisabled is returned by Start when the bridge is switched off.
var ErrServerDisabled = errors.New("eventbridge: server disabled")

// Scheduler is the engine surface the bridge exposes over HTTP.
type Scheduler interface {
	SystemStatus() scheduler.SystemStatus
	ReadyRoles() []string
	Roles() []rolestate.RoleRow
	Role(role string) (rolestate.State, error)
	History(n int) []history.Event
	MarkRoleCompleted(role string, success bool, output string) error
	UpdateStatus(role string, status rolestate.Status) error
	Defer(role string, until time.Time) error
	Kickoff() scheduler.TriggerResult
}

// Server wraps the HTTP listener and handlers backing the bridge.
type Server struct {
	settings Settings
	engine   Scheduler
	router   *Router
	logger   *zap.Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithRouter enables the wake long-poll endpoint.
func WithRouter(r *Router) Option {
	return func(s *Server) {
		if r != nil {
			s.router = r
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server in front of engine.
func NewServer(settings Settings, engine Scheduler, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		engine:   engine,
		logger:   zap.NewNop(),
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the HTTP routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /roles", s.handleRoles)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("POST /trigger", s.handleTrigger)
	mux.HandleFunc("POST /roles/{role}/complete", s.handleComplete)
	mux.HandleFunc("POST /roles/{role}/status", s.handleSetStatus)
	mux.HandleFunc("POST /roles/{role}/defer", s.handleDefer)
	mux.HandleFunc("GET /roles/{role}/wake", s.handleWake)
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("eventbridge: server is nil")
	}
	if !s.settings.Enabled {
		return ErrServerDisabled
	}
	if s.engine == nil {
		return fmt.Errorf("eventbridge: scheduler is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("eventbridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge serve error", zap.Error(err))
		}
	}()
	s.logger.Info("bridge listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		RouterReady:   s.router != nil,
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.SystemStatus())
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ReadyResponse{Roles: s.engine.ReadyRoles()})
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Roles())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	events := s.engine.History(limit)
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Events: events})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	result := s.engine.Kickoff()
	s.logger.Info("manual trigger", zap.String("triggered", result.Triggered))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	role := r.PathValue("role")
	var req CompleteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Success == nil {
		writeError(w, http.StatusBadRequest, "success is required")
		return
	}
	if err := s.engine.MarkRoleCompleted(role, *req.Success, req.Output); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeRole(w, role)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	role := r.PathValue("role")
	var req StatusRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	status, err := rolestate.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.UpdateStatus(role, status); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeRole(w, role)
}

func (s *Server) handleDefer(w http.ResponseWriter, r *http.Request) {
	role := r.PathValue("role")
	var req DeferRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	var until time.Time
	if req.For != "" {
		d, err := time.ParseDuration(req.For)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "for must be a non-negative duration")
			return
		}
		if d > 0 {
			until = s.clock().Add(d)
		}
	}
	if err := s.engine.Defer(role, until); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeRole(w, role)
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	role := r.PathValue("role")
	if s.router == nil {
		writeError(w, http.StatusServiceUnavailable, "wake routing disabled")
		return
	}
	if _, err := s.engine.Role(role); err != nil {
		s.writeEngineError(w, err)
		return
	}
	wait := s.settings.defaultWake()
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a non-negative duration")
			return
		}
		wait = d
	}
	if max := s.settings.maxWake(); wait > max {
		wait = max
	}
	sub := s.router.Subscribe(role)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	var (
		event     WakeEvent
		delivered bool
	)
	select {
	case event, delivered = <-sub.Events:
	case <-timer.C:
	case <-r.Context().Done():
		sub.Close()
		return
	}
	// Unread wakes are requeued before the caller sees the response.
	sub.Close()
	if !delivered {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) writeRole(w http.ResponseWriter, role string) {
	state, err := s.engine.Role(role)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rolestate.RoleRow{Name: role, State: state})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rolestate.ErrUnknownRole):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rolestate.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("bridge request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "request failed")
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "unable to read body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
