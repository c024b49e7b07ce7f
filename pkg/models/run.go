package models

import (
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses. Completed, Failed, and Cancelled are terminal.
const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// IsTerminal reports whether the status is a sink state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// CanTransitionTo reports whether the run state machine permits s → next.
// Terminal states permit no transitions; resumption creates a new run instead.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case RunStatusPending:
		return next == RunStatusProcessing || next == RunStatusCancelled || next == RunStatusFailed
	case RunStatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// MaxSeeds is the maximum number of seed phrases per run.
const MaxSeeds = 5

// RunWarning is a structured, non-fatal issue surfaced on a run.
type RunWarning struct {
	Kind      string    `json:"kind"`
	Stage     Stage     `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RunError is an entry in a run's error log.
type RunError struct {
	Kind      string    `json:"kind"`
	Stage     Stage     `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is one end-to-end pipeline execution. A run exclusively owns its
// keywords, clusters, roadmap items, and jobs.
type Run struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	// LineageID links a resumed run back to the run it was resumed from.
	// Empty for first-generation runs.
	LineageID string `json:"lineage_id,omitempty"`

	Seeds    []string    `json:"seeds"`
	Market   string      `json:"market"`
	Language string      `json:"language"`
	Settings RunSettings `json:"settings"`

	Status          RunStatus `json:"status"`
	CurrentStage    Stage     `json:"current_stage,omitempty"`
	CompletedStages []Stage   `json:"completed_stages,omitempty"`
	Progress        float64   `json:"progress"` // 0..100, monotonically non-decreasing while processing

	APIUsage    APIUsage `json:"api_usage"`
	BudgetLimit float64  `json:"budget_limit"`

	Warnings []RunWarning `json:"warnings,omitempty"`
	ErrorLog []RunError   `json:"error_log,omitempty"`

	// PodID and LastHeartbeatAt support multi-replica claiming and
	// orphan detection.
	PodID           string    `json:"pod_id,omitempty"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StageCompleted reports whether the run has recorded the stage as completed.
func (r *Run) StageCompleted(stage Stage) bool {
	for _, s := range r.CompletedStages {
		if s == stage {
			return true
		}
	}
	return false
}

// CreateRunRequest contains fields for submitting a new run.
type CreateRunRequest struct {
	OwnerID     string            `json:"owner_id"`
	Seeds       []string          `json:"seeds"`
	Market      string            `json:"market,omitempty"`
	Language    string            `json:"language,omitempty"`
	BudgetLimit float64           `json:"budget_limit"`
	Settings    *RunSettingsPatch `json:"settings,omitempty"`
}

// RunFilters contains filtering options for listing runs.
type RunFilters struct {
	OwnerID string    `json:"owner_id,omitempty"`
	Status  RunStatus `json:"status,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// RunListResponse contains a paginated run list.
type RunListResponse struct {
	Runs       []*Run `json:"runs"`
	TotalCount int    `json:"total_count"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}
