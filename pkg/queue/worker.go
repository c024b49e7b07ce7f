package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/store"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that polls for and processes runs.
type Worker struct {
	id       string
	podID    string
	store    store.Store
	config   *config.QueueConfig
	executor RunExecutor
	pool     RunRegistry
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  string
	runsProcessed int
	lastActivity  time.Time
}

// RunRegistry is the subset of WorkerPool used by Worker for run registration.
type RunRegistry interface {
	RegisterRun(runID string, cancel context.CancelFunc)
	UnregisterRun(runID string)
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, st store.Store, cfg *config.QueueConfig, executor RunExecutor, pool RunRegistry, logger *slog.Logger) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		store:        st,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		logger:       logger.With("worker_id", id),
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentRunID:  w.currentRunID,
		RunsProcessed: w.runsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Info("worker started", "pod_id", w.podID)

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoRunsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				w.logger.Error("error processing run", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims a run, and processes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// 1. Check global capacity (best-effort; racy with concurrent workers but
	//    bounded by WorkerCount and mitigated by poll jitter).
	activeCount, err := w.store.Runs().CountProcessing(ctx)
	if err != nil {
		return fmt.Errorf("checking active runs: %w", err)
	}
	if activeCount >= w.config.MaxConcurrentRuns {
		return ErrAtCapacity
	}

	// 2. Claim next run
	run, err := w.store.Runs().ClaimNextPending(ctx, w.podID)
	if err != nil {
		if errors.Is(err, store.ErrNoPendingRuns) {
			return ErrNoRunsAvailable
		}
		return fmt.Errorf("claiming run: %w", err)
	}

	log := w.logger.With("run_id", run.ID)
	log.Info("run claimed", "seeds", run.Seeds)

	w.setStatus(WorkerStatusWorking, run.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	// 3. Create run context with the end-to-end timeout
	runCtx, cancelRun := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancelRun()

	// 4. Register cancel function for API-triggered cancellation
	w.pool.RegisterRun(run.ID, cancelRun)
	defer w.pool.UnregisterRun(run.ID)

	// 5. Start heartbeat
	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	go w.runHeartbeat(heartbeatCtx, run.ID)

	// 6. Execute the run. The executor records the terminal status, error
	// log, and events itself; the worker only reports the outcome.
	execErr := w.executor.Execute(runCtx, run)

	cancelHeartbeat()

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()

	switch {
	case execErr == nil:
		log.Info("run processing complete", "status", models.RunStatusCompleted)
	case errors.Is(execErr, context.Canceled):
		log.Info("run processing cancelled")
	default:
		log.Warn("run processing failed", "error", execErr)
	}
	return nil
}

// runHeartbeat periodically refreshes the run's claim for orphan detection.
func (w *Worker) runHeartbeat(ctx context.Context, runID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Runs().Heartbeat(ctx, runID, time.Now()); err != nil {
				w.logger.Warn("heartbeat update failed", "run_id", runID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
