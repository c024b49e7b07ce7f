// Package events provides the progress bus: typed stage and run progress
// events fanned out in-process to subscribers (API streamers, tests, the
// worker pool). The delivery transport beyond the process boundary is an
// external collaborator; this package owns only the event shapes and the
// local fan-out.
package events

// Event types published on the bus.
const (
	// Run lifecycle.
	EventTypeRunStatus = "run.status"

	// Stage lifecycle and progress. Batch-level progress updates may arrive
	// out of order; consumers must merge progress values as maxima.
	EventTypeStageStatus   = "stage.status"
	EventTypeStageProgress = "stage.progress"

	// Structured warnings (provider fallbacks, quality gates, skipped batches).
	EventTypeWarning = "run.warning"
)

// Stage lifecycle status values (used in StageStatusPayload.Status).
const (
	StageStatusStarted   = "started"
	StageStatusCompleted = "completed"
	StageStatusFailed    = "failed"
	StageStatusTimedOut  = "timed_out"
	StageStatusCancelled = "cancelled"
)

// GlobalRunsChannel carries run-level status events for all runs.
// Run list views subscribe to this channel.
const GlobalRunsChannel = "runs"

// RunChannel returns the channel name for a specific run's events.
// Format: "run:{run_id}"
func RunChannel(runID string) string {
	return "run:" + runID
}
