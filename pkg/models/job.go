package models

import "time"

// JobStatus is the lifecycle state of an orchestration job.
type JobStatus string

// Job statuses. Completed and Cancelled are terminal; Failed may be retried
// up to MaxAttempts via Retrying.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusRetrying  JobStatus = "retrying"
)

// IsTerminal reports whether the job status is a sink state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// Job is the unit of orchestration for one pipeline stage of one run.
type Job struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	Stage        Stage          `json:"stage"`
	Priority     int            `json:"priority"` // 1..10
	Status       JobStatus      `json:"status"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Attempt      int            `json:"attempt"`
	MaxAttempts  int            `json:"max_attempts"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
