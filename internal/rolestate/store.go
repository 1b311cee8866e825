package rolestate

import (
	"fmt"
	"time"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/roles"
)

// DefaultStagger spaces initial next-run times one minute per registry position.
const DefaultStagger = time.Minute

// Store maps every registered role to exactly one State. It is not safe for
// concurrent use; the scheduler engine serializes access.
type Store struct {
	registry *roles.Registry
	history  *history.Log
	stagger  time.Duration
	states   map[string]*State
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithStagger overrides the per-position offset used by Initialize.
func WithStagger(d time.Duration) StoreOption {
	return func(s *Store) {
		if d >= 0 {
			s.stagger = d
		}
	}
}

// NewStore creates a store for registry. Completion events are appended to log.
// Call Initialize (or Restore) before use.
func NewStore(registry *roles.Registry, log *history.Log, opts ...StoreOption) (*Store, error) {
	if registry == nil {
		return nil, fmt.Errorf("rolestate: registry is required")
	}
	if log == nil {
		log = history.New(nil)
	}
	s := &Store{
		registry: registry,
		history:  log,
		stagger:  DefaultStagger,
		states:   make(map[string]*State, registry.Len()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Initialize(time.Now())
	return s, nil
}

// History exposes the log completions are appended to.
func (s *Store) History() *history.Log {
	return s.history
}

// Initialize resets every role to pending with a staggered next-run time.
func (s *Store) Initialize(now time.Time) {
	for i, role := range s.registry.Roles() {
		s.states[role.Name] = &State{
			Status:  StatusPending,
			NextRun: timePtr(now.Add(time.Duration(i) * s.stagger)),
		}
	}
}

// Restore initializes defaults at now and then overlays rows for known roles.
// Rows naming unregistered roles or carrying invalid statuses are ignored.
// It returns how many rows were applied.
func (s *Store) Restore(rows []RoleRow, now time.Time) int {
	s.Initialize(now)
	restored := 0
	for _, row := range rows {
		if !s.registry.Contains(row.Name) || !row.Status.Valid() {
			continue
		}
		state := row.State.clone()
		if state.ErrorCount < 0 {
			state.ErrorCount = 0
		}
		s.states[row.Name] = &state
		restored++
	}
	return restored
}

// Get returns a copy of the role's state.
func (s *Store) Get(role string) (State, error) {
	state, err := s.lookup(role)
	if err != nil {
		return State{}, err
	}
	return state.clone(), nil
}

// SetStatus overrides a role's status. Entering running stamps LastRun;
// completion time is kept set exactly while the status is completed or failed.
func (s *Store) SetStatus(role string, status Status, now time.Time) error {
	state, err := s.lookup(role)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("rolestate: %w: %q", ErrInvalidStatus, status)
	}
	state.Status = status
	if status == StatusRunning {
		state.LastRun = timePtr(now)
	}
	switch {
	case status.Finished() && state.CompletionTime == nil:
		state.CompletionTime = timePtr(now)
	case !status.Finished():
		state.CompletionTime = nil
	}
	return nil
}

// SetNextRun changes the earliest time the role may be selected.
func (s *Store) SetNextRun(role string, next time.Time) error {
	state, err := s.lookup(role)
	if err != nil {
		return err
	}
	state.NextRun = timePtr(next)
	return nil
}

// SetSkipUntil defers a role until the given time. A zero time clears it.
func (s *Store) SetSkipUntil(role string, until time.Time) error {
	state, err := s.lookup(role)
	if err != nil {
		return err
	}
	if until.IsZero() {
		state.SkipUntil = nil
		return nil
	}
	state.SkipUntil = timePtr(until)
	return nil
}

// RecordCompletion finishes a run: completed on success, failed (with an
// incremented error count) otherwise. A completion event is appended to the
// history log.
func (s *Store) RecordCompletion(role string, success bool, output string, now time.Time) (history.Event, error) {
	state, err := s.lookup(role)
	if err != nil {
		return history.Event{}, err
	}
	state.Status = StatusCompleted
	if !success {
		state.Status = StatusFailed
		state.ErrorCount++
	}
	state.LastRun = timePtr(now)
	state.CompletionTime = timePtr(now)
	event := s.history.Append(history.Event{
		Role:      role,
		Status:    string(state.Status),
		Timestamp: now,
		Output:    output,
	})
	return event, nil
}

// Rows returns every role's state in registry order.
func (s *Store) Rows() []RoleRow {
	names := s.registry.Names()
	rows := make([]RoleRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, RoleRow{Name: name, State: s.states[name].clone()})
	}
	return rows
}

// Count returns how many roles currently hold status.
func (s *Store) Count(status Status) int {
	n := 0
	for _, state := range s.states {
		if state.Status == status {
			n++
		}
	}
	return n
}

func (s *Store) lookup(role string) (*State, error) {
	state, ok := s.states[role]
	if !ok {
		return nil, fmt.Errorf("rolestate: %w: %q", ErrUnknownRole, role)
	}
	return state, nil
}
