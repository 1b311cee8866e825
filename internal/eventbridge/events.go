package eventbridge

import (
	"time"

	"github.com/kingrea/rolechain/internal/history"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// WakeSchemaVersion is the version stamped on every wake event.
	WakeSchemaVersion = 1
)

// WakeEvent tells a role's runner that it has been triggered.
type WakeEvent struct {
	Version     int       `json:"version"`
	EventID     string    `json:"event_id"`
	Sequence    int64     `json:"sequence"`
	Role        string    `json:"role"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// CompleteRequest is the body of POST /roles/{role}/complete. Success must be
// present; an omitted field is rejected rather than read as a failure.
type CompleteRequest struct {
	Success *bool  `json:"success"`
	Output  string `json:"output,omitempty"`
}

// StatusRequest is the body of POST /roles/{role}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// DeferRequest is the body of POST /roles/{role}/defer. A zero or missing
// duration clears the deferral.
type DeferRequest struct {
	For string `json:"for"`
}

// HistoryResponse wraps GET /history.
type HistoryResponse struct {
	Events []history.Event `json:"events"`
}

// ReadyResponse wraps GET /ready.
type ReadyResponse struct {
	Roles []string `json:"roles"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	RouterReady   bool   `json:"router_ready"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}
