// Package snapshot persists scheduler state. A Snapshot is a versioned,
// structured record that round-trips exactly through Encode/Decode; the
// Markdown report rendered from it is a one-way projection for humans.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/rolestate"
)

// Version is the snapshot schema version written by this build.
const Version = 1

// DefaultHistoryWindow is how many trailing history entries reports show.
const DefaultHistoryWindow = 10

var (
	// ErrNotFound is returned when no snapshot has been persisted yet.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrUnsupportedVersion is returned for snapshots written by an unknown schema.
	ErrUnsupportedVersion = errors.New("snapshot: unsupported version")
)

// Snapshot captures everything needed to rebuild the scheduler.
type Snapshot struct {
	Version     int                 `json:"version"`
	GeneratedAt time.Time           `json:"generated_at"`
	Initialized bool                `json:"initialized"`
	Roles       []rolestate.RoleRow `json:"roles"`
	SkipMarkers []string            `json:"skip_markers,omitempty"`
	History     []history.Event     `json:"history,omitempty"`
}

// Skipped reports whether role carries a skip marker.
func (s Snapshot) Skipped(role string) bool {
	for _, name := range s.SkipMarkers {
		if name == role {
			return true
		}
	}
	return false
}

// RecentHistory returns up to n trailing history entries.
func (s Snapshot) RecentHistory(n int) []history.Event {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Count returns how many roles hold status.
func (s Snapshot) Count(status rolestate.Status) int {
	n := 0
	for _, row := range s.Roles {
		if row.Status == status {
			n++
		}
	}
	return n
}

// Encode serializes s as indented JSON.
func Encode(s Snapshot) ([]byte, error) {
	if s.Version == 0 {
		s.Version = Version
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if s.Version != Version {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	return s, nil
}
