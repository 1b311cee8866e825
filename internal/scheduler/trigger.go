package scheduler

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/rolestate"
)

// SkipReasonCode enumerates why the trigger scan passed over a role.
type SkipReasonCode string

const (
	SkipReasonMarker    SkipReasonCode = "skip-marker"
	SkipReasonCompleted SkipReasonCode = "already-completed"
	SkipReasonRunning   SkipReasonCode = "already-running"
	SkipReasonDeferred  SkipReasonCode = "deferred"
)

// SkipReason explains why a role was excluded from a trigger scan.
type SkipReason struct {
	Reason SkipReasonCode `json:"reason"`
	Detail string         `json:"detail,omitempty"`
}

// TriggerResult describes a single scan.
type TriggerResult struct {
	// Triggered names the woken role, or is empty when the chain is exhausted.
	Triggered string                `json:"triggered,omitempty"`
	Skipped   map[string]SkipReason `json:"skipped,omitempty"`
}

func (r *TriggerResult) addSkip(role string, reason SkipReason) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]SkipReason)
	}
	r.Skipped[role] = reason
}

func (e *Engine) triggerNextLocked(completedRole string, now time.Time) (TriggerResult, error) {
	idx, ok := e.registry.Index(completedRole)
	if !ok {
		return TriggerResult{}, fmt.Errorf("scheduler: %w: %q", ErrOrderLookup, completedRole)
	}
	return e.scanLocked(idx+1, now), nil
}

// scanLocked walks the order from start to the end and triggers the first
// role that is not skip-marked, not completed/running and not deferred.
// Skip markers met along the way are consumed.
func (e *Engine) scanLocked(start int, now time.Time) TriggerResult {
	var result TriggerResult
	for i := start; i < e.registry.Len(); i++ {
		name := e.registry.At(i).Name
		if _, marked := e.skip[name]; marked {
			delete(e.skip, name)
			result.addSkip(name, SkipReason{Reason: SkipReasonMarker, Detail: "marker consumed"})
			e.logger.Debug("skip marker consumed", zap.String("role", name))
			continue
		}
		state, err := e.store.Get(name)
		if err != nil {
			e.logger.Error("registry and store disagree", zap.String("role", name), zap.Error(err))
			continue
		}
		switch {
		case state.Status == rolestate.StatusCompleted:
			result.addSkip(name, SkipReason{Reason: SkipReasonCompleted})
			continue
		case state.Status == rolestate.StatusRunning:
			result.addSkip(name, SkipReason{Reason: SkipReasonRunning})
			continue
		case state.Deferred(now):
			result.addSkip(name, SkipReason{Reason: SkipReasonDeferred, Detail: "until " + state.SkipUntil.Format(time.RFC3339)})
			continue
		}
		e.triggerLocked(name, now)
		result.Triggered = name
		return result
	}
	e.logger.Debug("trigger scan exhausted", zap.Int("from", start))
	return result
}

func (e *Engine) triggerLocked(role string, now time.Time) {
	// Both calls only fail for unregistered roles, which the scan never yields.
	_ = e.store.SetStatus(role, rolestate.StatusPending, now)
	_ = e.store.SetNextRun(role, now)
	e.skip[role] = struct{}{}
	e.notifier.Notify(role)
	e.history.Append(history.Event{
		Role:      role,
		Status:    history.StatusWakeupTriggered,
		Timestamp: now,
		Output:    "triggered automatically",
	})
	e.logger.Info("role triggered", zap.String("role", role))
}
