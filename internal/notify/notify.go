// Package notify provides concrete wake-up transports for the scheduler's
// Notifier boundary.
package notify

import (
	"go.uber.org/zap"
)

// Notifier matches scheduler.Notifier without importing it.
type Notifier interface {
	Notify(role string)
}

// Log records wake-ups in the structured log. It is the default transport
// when nothing else is configured.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a notifier that logs to logger.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Notify logs the wake-up.
func (l *Log) Notify(role string) {
	l.logger.Info("wake role", zap.String("role", role))
}

// Multi fans a wake-up out to several notifiers in order.
type Multi []Notifier

// Notify calls every non-nil notifier.
func (m Multi) Notify(role string) {
	for _, n := range m {
		if n != nil {
			n.Notify(role)
		}
	}
}
