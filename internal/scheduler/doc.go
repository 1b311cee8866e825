// Package scheduler is the role hand-off state machine. It records
// completions, walks the fixed role order forward to pick the next eligible
// role, guards freshly triggered roles with one-shot skip markers, wakes them
// through a Notifier, and persists a snapshot after every mutation. All
// mutating operations are serialized behind a single lock.
package scheduler
