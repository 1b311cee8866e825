package scheduler

import "github.com/kingrea/rolechain/internal/rolestate"

// SystemStatus is the aggregate view exposed to external reporting.
type SystemStatus struct {
	Initialized     bool     `json:"initialized"`
	TotalRoles      int      `json:"total_roles"`
	CompletedRoles  int      `json:"completed_roles"`
	RunningRoles    int      `json:"running_roles"`
	FailedRoles     int      `json:"failed_roles"`
	SkippedRoles    int      `json:"skipped_roles"`
	TotalExecutions int      `json:"total_executions"`
	ReadyRoles      []string `json:"ready_roles"`
}

// ReadyRoles lists, in registry order, roles whose next-run time has elapsed,
// that carry no skip marker, are not deferred, and are pending or failed.
// It does not mutate state.
func (e *Engine) ReadyRoles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readyLocked()
}

func (e *Engine) readyLocked() []string {
	now := e.now()
	ready := []string{}
	for _, row := range e.store.Rows() {
		if _, marked := e.skip[row.Name]; marked {
			continue
		}
		if !row.Due(now) || row.Deferred(now) {
			continue
		}
		if row.Status == rolestate.StatusPending || row.Status == rolestate.StatusFailed {
			ready = append(ready, row.Name)
		}
	}
	return ready
}

// SystemStatus returns aggregate counts plus the current ready set.
func (e *Engine) SystemStatus() SystemStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SystemStatus{
		Initialized:     e.initialized,
		TotalRoles:      e.registry.Len(),
		CompletedRoles:  e.store.Count(rolestate.StatusCompleted),
		RunningRoles:    e.store.Count(rolestate.StatusRunning),
		FailedRoles:     e.store.Count(rolestate.StatusFailed),
		SkippedRoles:    len(e.skip),
		TotalExecutions: e.history.Len(),
		ReadyRoles:      e.readyLocked(),
	}
}
