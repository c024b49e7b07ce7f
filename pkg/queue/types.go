// Package queue provides run queue management and processing infrastructure:
// a pool of polling workers that claim pending runs from the store, keep
// heartbeats alive, and hand each claimed run to the pipeline executor.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/seoforge/seoforge/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoRunsAvailable indicates no pending runs are in the queue.
	ErrNoRunsAvailable = errors.New("no runs available")

	// ErrAtCapacity indicates the global concurrent run limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// RunExecutor is the interface for run processing.
//
// The executor owns the ENTIRE run lifecycle internally: it executes all
// pipeline stages, writes keywords, clusters, and roadmap items progressively,
// and records the terminal status on the run. The worker only handles
// claiming, heartbeat, cancellation registration, and the run timeout.
type RunExecutor interface {
	Execute(ctx context.Context, run *models.Run) error
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	StoreReachable   bool           `json:"store_reachable"`
	StoreError       string         `json:"store_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveRuns       int            `json:"active_runs"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentRunID  string    `json:"current_run_id,omitempty"`
	RunsProcessed int       `json:"runs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
