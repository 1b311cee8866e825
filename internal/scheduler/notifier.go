package scheduler

import (
	"context"

	"github.com/kingrea/rolechain/internal/snapshot"
)

// Notifier wakes a role. Delivery is fire-and-forget: the engine calls Notify
// exactly once per trigger, inside its critical section, so implementations
// must return promptly.
type Notifier interface {
	Notify(role string)
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(role string)

// Notify executes f(role).
func (f NotifierFunc) Notify(role string) {
	if f != nil {
		f(role)
	}
}

// Reporter persists snapshots. Errors are logged by the engine and never
// abort a scheduling decision.
type Reporter interface {
	Persist(ctx context.Context, s snapshot.Snapshot) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

type nopReporter struct{}

func (nopReporter) Persist(context.Context, snapshot.Snapshot) error { return nil }
