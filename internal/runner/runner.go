// Package runner waits for a role's wake events on the bridge, runs a command
// for each wake and reports the outcome back to the scheduler.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/rolechain/internal/eventbridge"
	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/rolestate"
)

const (
	defaultPollTimeout = eventbridge.DefaultWakeTimeout
	defaultRetryDelay  = 5 * time.Second
)

// Bridge is the subset of the bridge client the runner needs.
type Bridge interface {
	WaitForWake(ctx context.Context, role string, timeout time.Duration) (eventbridge.WakeEvent, bool, error)
	SetStatus(ctx context.Context, role string, status rolestate.Status) (rolestate.RoleRow, error)
	Complete(ctx context.Context, role string, success bool, output string) (rolestate.RoleRow, error)
}

// Executor runs the role's work and returns its combined output.
type Executor interface {
	Execute(ctx context.Context, event eventbridge.WakeEvent) (string, error)
}

// ExecutorFunc adapts a function into an Executor.
type ExecutorFunc func(ctx context.Context, event eventbridge.WakeEvent) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, event eventbridge.WakeEvent) (string, error) {
	return f(ctx, event)
}

// Runner drives one role.
type Runner struct {
	role        string
	bridge      Bridge
	exec        Executor
	logger      *zap.Logger
	pollTimeout time.Duration
	retryDelay  time.Duration
	once        bool
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPollTimeout sets the long-poll timeout per wake request.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollTimeout = d
		}
	}
}

// WithRetryDelay sets the pause after a bridge error.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

// Once makes Run return after handling a single wake.
func Once() Option {
	return func(r *Runner) {
		r.once = true
	}
}

// New builds a runner for role.
func New(role string, bridge Bridge, exec Executor, opts ...Option) (*Runner, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, fmt.Errorf("runner: role is required")
	}
	if bridge == nil || exec == nil {
		return nil, fmt.Errorf("runner: bridge and executor are required")
	}
	r := &Runner{
		role:        role,
		bridge:      bridge,
		exec:        exec,
		logger:      zap.NewNop(),
		pollTimeout: defaultPollTimeout,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("role", role))
	return r, nil
}

// Run polls for wakes until ctx is cancelled (or after one wake with Once).
// Bridge errors are logged and retried; unknown roles end the loop.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		event, woke, err := r.bridge.WaitForWake(ctx, r.role, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, eventbridge.ErrNotFound) {
				return fmt.Errorf("runner: %w", err)
			}
			r.logger.Warn("wait for wake failed", zap.Error(err))
			if !sleep(ctx, r.retryDelay) {
				return nil
			}
			continue
		}
		if !woke {
			continue
		}
		if err := r.Handle(ctx, event); err != nil {
			return err
		}
		if r.once {
			return nil
		}
	}
}

// Handle marks the role running, executes it and reports the result.
func (r *Runner) Handle(ctx context.Context, event eventbridge.WakeEvent) error {
	r.logger.Info("woken", zap.String("event_id", event.EventID), zap.Int64("sequence", event.Sequence))
	if _, err := r.bridge.SetStatus(ctx, r.role, rolestate.StatusRunning); err != nil {
		return fmt.Errorf("runner: mark running: %w", err)
	}
	output, execErr := r.exec.Execute(ctx, event)
	success := execErr == nil
	if execErr != nil {
		r.logger.Warn("role run failed", zap.Error(execErr))
		if output == "" {
			output = execErr.Error()
		}
	}
	// Report with a fresh context so a cancelled run is still recorded.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	row, err := r.bridge.Complete(reportCtx, r.role, success, Tail(output, history.MaxOutputLength))
	if err != nil {
		return fmt.Errorf("runner: report completion: %w", err)
	}
	r.logger.Info("reported", zap.String("status", string(row.Status)), zap.Int("error_count", row.ErrorCount))
	return nil
}

// Tail keeps the last limit runes of s, trimmed of surrounding whitespace.
func Tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[len(runes)-limit:])
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
