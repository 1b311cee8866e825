// Package history keeps the append-only log of role completions and wake-up
// triggers. Entries are never rewritten; reporting reads a bounded suffix.
package history

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxOutputLength bounds the excerpt stored with each event (in runes).
	MaxOutputLength = 200
	// StatusWakeupTriggered marks events appended when the scheduler wakes a role.
	StatusWakeupTriggered = "wakeup_triggered"
)

// Event is an immutable completion or trigger record.
type Event struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Output    string    `json:"output,omitempty"`
}

// Sink receives a copy of every appended event. Sinks must not block.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(Event)

// Record executes f(e).
func (f SinkFunc) Record(e Event) {
	if f != nil {
		f(e)
	}
}

// Log is the in-memory history. The zero value is ready to use.
type Log struct {
	mu     sync.RWMutex
	events []Event
	sink   Sink
}

// New returns an empty log that mirrors appends into sink (may be nil).
func New(sink Sink) *Log {
	return &Log{sink: sink}
}

// Append stores e, filling a missing ID or timestamp and truncating the output
// excerpt. The stored copy is returned.
func (l *Log) Append(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Output = Truncate(e.Output, MaxOutputLength)
	l.mu.Lock()
	l.events = append(l.events, e)
	sink := l.sink
	l.mu.Unlock()
	if sink != nil {
		sink.Record(e)
	}
	return e
}

// Len reports the number of stored events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Tail returns up to n of the most recent events, oldest first.
func (l *Log) Tail(n int) []Event {
	if n <= 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if len(l.events) > n {
		start = len(l.events) - n
	}
	return cloneEvents(l.events[start:])
}

// All returns every stored event.
func (l *Log) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneEvents(l.events)
}

// Replace swaps the log contents for restored events without notifying the
// sink. Used only when rebuilding from a snapshot.
func (l *Log) Replace(events []Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = cloneEvents(events)
}

// Truncate shortens s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func cloneEvents(events []Event) []Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
