package events

import (
	"time"

	"github.com/seoforge/seoforge/pkg/models"
)

// Envelope is the generic event wrapper delivered to subscribers.
type Envelope struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

// RunStatusPayload is the payload for run.status events.
// Published when a run transitions between lifecycle states.
type RunStatusPayload struct {
	Type      string           `json:"type"` // always EventTypeRunStatus
	RunID     string           `json:"run_id"`
	Status    models.RunStatus `json:"status"`
	Progress  float64          `json:"progress"`  // 0..100
	Timestamp string           `json:"timestamp"` // RFC3339Nano
}

// StageStatusPayload is the payload for stage.status events.
// Single event type for all stage lifecycle transitions.
type StageStatusPayload struct {
	Type      string         `json:"type"` // always EventTypeStageStatus
	RunID     string         `json:"run_id"`
	Stage     models.Stage   `json:"stage"`
	Status    string         `json:"status"` // started, completed, failed, timed_out, cancelled
	Message   string         `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"` // RFC3339Nano
}

// StageProgressPayload is the payload for stage.progress events.
// Progress is the stage-local fraction scaled to 0..100.
type StageProgressPayload struct {
	Type      string         `json:"type"` // always EventTypeStageProgress
	RunID     string         `json:"run_id"`
	Stage     models.Stage   `json:"stage"`
	Progress  float64        `json:"progress"` // 0..100 within the stage
	Overall   float64        `json:"overall"`  // 0..100 across the run
	Message   string         `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"` // RFC3339Nano
}

// WarningPayload is the payload for run.warning events. Every local recovery
// (retry exhaustion, provider fallback, skipped batch, soft quality gate)
// emits one.
type WarningPayload struct {
	Type      string       `json:"type"` // always EventTypeWarning
	RunID     string       `json:"run_id"`
	Stage     models.Stage `json:"stage,omitempty"`
	Kind      string       `json:"kind"` // error taxonomy kind, e.g. "provider_transient"
	Message   string       `json:"message"`
	Timestamp string       `json:"timestamp"` // RFC3339Nano
}

// Now formats the current time the way all payload timestamps are formatted.
func Now() string {
	return time.Now().Format(time.RFC3339Nano)
}
