package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/roles"
	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/snapshot"
)

// ErrUnknownRole mirrors rolestate.ErrUnknownRole for callers of the engine.
var ErrUnknownRole = rolestate.ErrUnknownRole

// ErrOrderLookup reports a role that could not be located in the fixed order
// while scanning for the next trigger.
var ErrOrderLookup = errors.New("role not found in order")

const defaultPersistTimeout = 5 * time.Second

// Engine coordinates the role store, history log, notifier and reporter.
type Engine struct {
	registry *roles.Registry
	store    *rolestate.Store
	history  *history.Log
	notifier Notifier
	reporter Reporter
	logger   *zap.Logger
	clock    func() time.Time

	persistTimeout time.Duration

	mu          sync.Mutex
	skip        map[string]struct{}
	initialized bool
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithNotifier sets the wake-up transport.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithReporter sets where snapshots are persisted.
func WithReporter(r Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPersistTimeout bounds each snapshot write.
func WithPersistTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.persistTimeout = d
		}
	}
}

// New wires an engine to the role registry and state store.
func New(registry *roles.Registry, store *rolestate.Store, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("scheduler: role registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("scheduler: state store is required")
	}
	e := &Engine{
		registry:       registry,
		store:          store,
		history:        store.History(),
		notifier:       nopNotifier{},
		reporter:       nopReporter{},
		logger:         zap.NewNop(),
		clock:          time.Now,
		persistTimeout: defaultPersistTimeout,
		skip:           map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Initialize resets every role to its default state, clears skip markers and
// persists the fresh snapshot.
func (e *Engine) Initialize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.store.Initialize(now)
	e.skip = map[string]struct{}{}
	e.initialized = true
	e.logger.Info("scheduler initialized", zap.Int("roles", e.registry.Len()))
	e.persistLocked()
}

// Restore rebuilds role states, skip markers and history from s. Unknown
// roles in the snapshot are ignored; roles missing from it get defaults.
func (e *Engine) Restore(s snapshot.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	restored := e.store.Restore(s.Roles, now)
	e.history.Replace(s.History)
	e.skip = map[string]struct{}{}
	for _, name := range s.SkipMarkers {
		if e.registry.Contains(name) {
			e.skip[name] = struct{}{}
		}
	}
	e.initialized = true
	e.logger.Info("scheduler restored",
		zap.Int("roles", restored),
		zap.Int("skip_markers", len(e.skip)),
		zap.Int("history", len(s.History)))
}

// MarkRoleCompleted records a finished run. On success the next eligible role
// is triggered. A snapshot is persisted either way.
func (e *Engine) MarkRoleCompleted(role string, success bool, output string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	event, err := e.store.RecordCompletion(role, success, output, now)
	if err != nil {
		return fmt.Errorf("scheduler: mark completed: %w", err)
	}
	e.logger.Info("role finished", zap.String("role", role), zap.String("status", event.Status))
	if success {
		if _, err := e.triggerNextLocked(role, now); err != nil {
			e.logger.Error("trigger scan aborted", zap.String("role", role), zap.Error(err))
		}
	}
	e.persistLocked()
	return nil
}

// TriggerNextRole scans forward from completedRole for the next eligible role
// and triggers at most one. The scan never wraps to earlier roles.
func (e *Engine) TriggerNextRole(completedRole string) (TriggerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.triggerNextLocked(completedRole, e.now())
	if err != nil {
		e.logger.Error("trigger scan aborted", zap.String("role", completedRole), zap.Error(err))
		return result, err
	}
	e.persistLocked()
	return result, nil
}

// Kickoff scans from the head of the order and triggers the first eligible
// role. It is the manual entry point used to start (or restart) a chain.
func (e *Engine) Kickoff() TriggerResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := e.scanLocked(0, e.now())
	e.persistLocked()
	return result
}

// UpdateStatus overrides a role's status directly (for example marking it
// running when it starts work) and persists a snapshot.
func (e *Engine) UpdateStatus(role string, status rolestate.Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.SetStatus(role, status, e.now()); err != nil {
		return fmt.Errorf("scheduler: update status: %w", err)
	}
	e.logger.Info("role status updated", zap.String("role", role), zap.String("status", string(status)))
	e.persistLocked()
	return nil
}

// Defer keeps role ineligible until the given time. A zero time clears it.
func (e *Engine) Defer(role string, until time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.SetSkipUntil(role, until); err != nil {
		return fmt.Errorf("scheduler: defer: %w", err)
	}
	e.logger.Info("role deferred", zap.String("role", role), zap.Time("until", until))
	e.persistLocked()
	return nil
}

// Role returns the current state of a single role.
func (e *Engine) Role(role string) (rolestate.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.store.Get(role)
	if err != nil {
		return rolestate.State{}, fmt.Errorf("scheduler: %w", err)
	}
	return state, nil
}

// Roles returns every role's state in registry order.
func (e *Engine) Roles() []rolestate.RoleRow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Rows()
}

// History returns up to n of the most recent history events.
func (e *Engine) History(n int) []history.Event {
	return e.history.Tail(n)
}

// SkipMarked reports whether role currently carries a skip marker.
func (e *Engine) SkipMarked(role string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.skip[role]
	return ok
}

// Snapshot captures the current state for persistence or reporting.
func (e *Engine) Snapshot() snapshot.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() snapshot.Snapshot {
	return snapshot.Snapshot{
		Version:     snapshot.Version,
		GeneratedAt: e.now(),
		Initialized: e.initialized,
		Roles:       e.store.Rows(),
		SkipMarkers: e.skipMarkersLocked(),
		History:     e.history.All(),
	}
}

// skipMarkersLocked lists markers in registry order so snapshots are stable.
func (e *Engine) skipMarkersLocked() []string {
	if len(e.skip) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.skip))
	for _, name := range e.registry.Names() {
		if _, ok := e.skip[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (e *Engine) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
	defer cancel()
	if err := e.reporter.Persist(ctx, e.snapshotLocked()); err != nil {
		e.logger.Warn("persist snapshot failed", zap.Error(err))
	}
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
