// Package rolestate owns the canonical role → runtime state mapping. Every
// mutation of a role's lifecycle funnels through Store.
package rolestate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownRole is returned when an operation names a role that is not in
// the registry. State is never modified when it is returned.
var ErrUnknownRole = errors.New("unknown role")

// ErrInvalidStatus is returned for status values outside the lifecycle vocabulary.
var ErrInvalidStatus = errors.New("invalid role status")

// Status enumerates the role lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Valid reports whether s is part of the lifecycle vocabulary.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Finished reports whether s carries a completion time.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus normalizes and validates a user supplied status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
	return status, nil
}

// State is the runtime state of a single role.
type State struct {
	Status         Status     `json:"status"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
	ErrorCount     int        `json:"error_count"`
	SkipUntil      *time.Time `json:"skip_until,omitempty"`
}

// Deferred reports whether SkipUntil keeps the role ineligible at now.
func (s State) Deferred(now time.Time) bool {
	return s.SkipUntil != nil && s.SkipUntil.After(now)
}

// Due reports whether the role's next-eligible time has elapsed.
func (s State) Due(now time.Time) bool {
	return s.NextRun != nil && !s.NextRun.After(now)
}

// RoleRow pairs a role name with its state, in registry order.
type RoleRow struct {
	Name string `json:"name"`
	State
}

func (s State) clone() State {
	s.LastRun = cloneTime(s.LastRun)
	s.NextRun = cloneTime(s.NextRun)
	s.CompletionTime = cloneTime(s.CompletionTime)
	s.SkipUntil = cloneTime(s.SkipUntil)
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
