// Package store defines the persistence contracts of the pipeline and two
// implementations: an in-memory store used by tests and mock mode, and a
// PostgreSQL store on pgx. A run exclusively owns its keywords, clusters,
// roadmap items, and jobs; embeddings are content-addressed and shared.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/seoforge/seoforge/pkg/models"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when creating a duplicate entity.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrNoPendingRuns is returned by ClaimNextPending when the queue is empty.
	ErrNoPendingRuns = errors.New("no pending runs available")

	// ErrInvalidTransition is returned when a status update violates the
	// run or job state machine.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// RunStore persists run state and progress snapshots.
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, filters models.RunFilters) ([]*models.Run, int, error)

	// ClaimNextPending atomically claims the oldest pending run for podID,
	// marking it processing. Returns ErrNoPendingRuns when none is waiting.
	ClaimNextPending(ctx context.Context, podID string) (*models.Run, error)

	// CountProcessing returns the number of runs currently processing
	// across all pods.
	CountProcessing(ctx context.Context) (int, error)

	// UpdateStatus transitions a run's status, guarded by the run state
	// machine. Terminal transitions set completed_at.
	UpdateStatus(ctx context.Context, id string, status models.RunStatus) error

	// SetCurrentStage records the stage the run is executing.
	SetCurrentStage(ctx context.Context, id string, stage models.Stage) error

	// AddCompletedStage appends a stage to the run's completed set
	// (idempotent; the set grows monotonically).
	AddCompletedStage(ctx context.Context, id string, stage models.Stage) error

	// UpdateProgress persists an overall progress snapshot. Writes are
	// merged as maxima so out-of-order updates never regress progress.
	UpdateProgress(ctx context.Context, id string, progress float64) error

	// MergeUsage folds provider usage into the run's accounting.
	MergeUsage(ctx context.Context, id string, usage models.APIUsage) error

	AppendWarning(ctx context.Context, id string, warning models.RunWarning) error
	AppendError(ctx context.Context, id string, runErr models.RunError) error

	// Heartbeat refreshes the claim on a processing run.
	Heartbeat(ctx context.Context, id string, at time.Time) error

	// FailStaleProcessing fails processing runs whose heartbeat is older
	// than threshold. Returns the number of runs recovered.
	FailStaleProcessing(ctx context.Context, threshold time.Duration) (int, error)
}

// KeywordStore persists the keyword universe of a run.
type KeywordStore interface {
	// UpsertBatch inserts or updates keywords keyed by (run_id, phrase).
	UpsertBatch(ctx context.Context, keywords []*models.Keyword) error
	ListByRun(ctx context.Context, runID string) ([]*models.Keyword, error)
	CountByRun(ctx context.Context, runID string) (int, error)
	DeleteByRun(ctx context.Context, runID string) error
}

// ClusterStore persists semantic clusters.
type ClusterStore interface {
	InsertBatch(ctx context.Context, clusters []*models.Cluster) error
	ListByRun(ctx context.Context, runID string) ([]*models.Cluster, error)
	DeleteByRun(ctx context.Context, runID string) error
}

// RoadmapStore persists roadmap items.
type RoadmapStore interface {
	InsertBatch(ctx context.Context, items []*models.RoadmapItem) error
	ListByRun(ctx context.Context, runID string) ([]*models.RoadmapItem, error)
	DeleteByRun(ctx context.Context, runID string) error
}

// JobStore persists orchestration jobs.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	ListByRun(ctx context.Context, runID string) ([]*models.Job, error)
}

// EmbeddingStore is the durable layer of the embedding cache, keyed by the
// SHA-256 of the normalized phrase. Entries have no TTL.
type EmbeddingStore interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key string, vector []float32) error
}

// FileStore receives exported artifacts. The byte layout of artifacts is the
// caller's concern; the store only persists named blobs.
type FileStore interface {
	Write(ctx context.Context, runID, name string, data []byte) error
}

// Store aggregates all persistence contracts.
type Store interface {
	Runs() RunStore
	Keywords() KeywordStore
	Clusters() ClusterStore
	Roadmap() RoadmapStore
	Jobs() JobStore
	Embeddings() EmbeddingStore
	Close() error
}
