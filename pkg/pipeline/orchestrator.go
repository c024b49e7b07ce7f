// Package pipeline drives one run through the fixed stage DAG:
// expansion → universe → clustering → scoring → roadmap → export → cleanup.
// Each stage is one orchestrator-visible job with its own retry budget and
// soft timeout; progress is the weighted sum of stage fractions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/embedding"
	"github.com/seoforge/seoforge/pkg/events"
	"github.com/seoforge/seoforge/pkg/expansion"
	"github.com/seoforge/seoforge/pkg/llm"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/provider"
	"github.com/seoforge/seoforge/pkg/store"
)

// ErrBudgetExceeded fails a run before the next stage dispatches once
// accumulated cost reaches the budget limit.
var ErrBudgetExceeded = errors.New("budget limit exceeded")

// stageTimeoutError marks a blown stage soft-timeout. Per-call timeouts
// inside a stage stay retryable; exhausting the stage budget is terminal
// for the run.
type stageTimeoutError struct {
	stage models.Stage
	cause error
}

func (e *stageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out: %v", e.stage, e.cause)
}

func (e *stageTimeoutError) Unwrap() error { return e.cause }

// Orchestrator executes claimed runs.
type Orchestrator struct {
	store      store.Store
	files      store.FileStore
	llm        llm.Client
	providers  *provider.Registry
	embeddings *embedding.Cache
	bus        events.Publisher
	cfg        *config.PipelineConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator wires an orchestrator over its collaborators.
func NewOrchestrator(st store.Store, files store.FileStore, llmClient llm.Client,
	providers *provider.Registry, embeddings *embedding.Cache, bus events.Publisher,
	cfg *config.PipelineConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      st,
		files:      files,
		llm:        llmClient,
		providers:  providers,
		embeddings: embeddings,
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With("component", "pipeline"),
		now:        time.Now,
	}
}

// WithClock injects the time source for deterministic scheduling and
// seasonal windows.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Execute drives a claimed run to a terminal state. It always records the
// outcome on the run; the returned error reports the failure to the worker.
func (o *Orchestrator) Execute(ctx context.Context, run *models.Run) error {
	logger := o.logger.With("run_id", run.ID)
	logger.Info("executing run", "seeds", run.Seeds, "resumed_from", run.LineageID)

	tracker := &progressTracker{
		runs:        o.store.Runs(),
		bus:         o.bus,
		runID:       run.ID,
		persistStep: o.cfg.ProgressPersistStep,
	}

	for _, stage := range models.StageOrder {
		weight := models.StageWeights[stage]
		if run.StageCompleted(stage) {
			tracker.completeStage(weight)
			continue
		}
		if err := o.checkBudget(ctx, run.ID); err != nil {
			return o.failRun(ctx, run, stage, err, logger)
		}
		if err := ctx.Err(); err != nil {
			return o.cancelRun(ctx, run, stage, logger)
		}

		if err := o.store.Runs().SetCurrentStage(ctx, run.ID, stage); err != nil {
			logger.Warn("failed to record current stage", "stage", stage, "error", err)
		}
		o.publishStageStatus(run.ID, stage, events.StageStatusStarted, "")

		tracker.beginStage(stage, weight)
		err := o.runStageWithRetry(ctx, run, stage, tracker, logger)
		if err != nil {
			if stage == models.StageCleanup {
				// Cleanup is best-effort and never blocks completion.
				logger.Warn("cleanup failed, ignoring", "error", err)
				o.publishStageStatus(run.ID, stage, events.StageStatusFailed, err.Error())
				break
			}
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				return o.cancelRun(ctx, run, stage, logger)
			}
			return o.failRun(ctx, run, stage, err, logger)
		}

		tracker.completeStage(weight)
		if err := o.store.Runs().AddCompletedStage(ctx, run.ID, stage); err != nil {
			logger.Warn("failed to record completed stage", "stage", stage, "error", err)
		}
		o.publishStageStatus(run.ID, stage, events.StageStatusCompleted, "")

		if gateErr := o.applyQualityGate(ctx, run, stage, logger); gateErr != nil {
			return o.failRun(ctx, run, stage, gateErr, logger)
		}
	}

	if err := o.store.Runs().UpdateProgress(ctx, run.ID, 100); err != nil {
		logger.Warn("failed to persist final progress", "error", err)
	}
	if err := o.store.Runs().UpdateStatus(ctx, run.ID, models.RunStatusCompleted); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	o.publishRunStatus(run.ID, models.RunStatusCompleted, 100)
	logger.Info("run completed")
	return nil
}

// runStageWithRetry executes one stage as a job with attempts and
// exponential delays between retries.
func (o *Orchestrator) runStageWithRetry(ctx context.Context, run *models.Run,
	stage models.Stage, tracker *progressTracker, logger *slog.Logger) error {

	maxAttempts := o.cfg.MaxJobRetries + 1
	job := &models.Job{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		Stage:       stage,
		Priority:    5,
		Status:      models.JobStatusQueued,
		MaxAttempts: maxAttempts,
		CreatedAt:   o.now(),
	}
	if err := o.store.Jobs().Create(ctx, job); err != nil {
		logger.Warn("failed to create stage job", "stage", stage, "error", err)
	}

	delay := backoff.NewExponentialBackOff()
	delay.InitialInterval = 2 * time.Second
	delay.RandomizationFactor = 0.2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job.Attempt = attempt
		job.Status = models.JobStatusRunning
		started := o.now()
		job.StartedAt = &started
		o.updateJob(ctx, job, logger)

		lastErr = o.runStage(ctx, run, stage, tracker)
		if lastErr == nil {
			completed := o.now()
			job.Status = models.JobStatusCompleted
			job.CompletedAt = &completed
			o.updateJob(ctx, job, logger)
			return nil
		}
		if ctx.Err() != nil || !isRetryable(lastErr) {
			break
		}

		job.Status = models.JobStatusRetrying
		job.Error = lastErr.Error()
		o.updateJob(ctx, job, logger)
		logger.Warn("stage attempt failed, retrying",
			"stage", stage, "attempt", attempt, "error", lastErr)
		o.appendWarning(ctx, run.ID, models.RunWarning{
			Kind:      "stage_retry",
			Stage:     stage,
			Message:   fmt.Sprintf("attempt %d failed: %v", attempt, lastErr),
			Timestamp: o.now(),
		})

		if attempt < maxAttempts {
			select {
			case <-time.After(delay.NextBackOff()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	job.Status = models.JobStatusFailed
	job.Error = lastErr.Error()
	o.updateJob(ctx, job, logger)
	return lastErr
}

// runStage dispatches to the stage implementation under the stage's soft
// timeout.
func (o *Orchestrator) runStage(parent context.Context, run *models.Run, stage models.Stage, tracker *progressTracker) error {
	ctx := parent
	if timeout, ok := o.cfg.StageTimeouts[string(stage)]; ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	var err error
	switch stage {
	case models.StageInitialization:
		err = o.stageInitialization(ctx, run)
	case models.StageExpansion:
		err = o.stageExpansion(ctx, run, tracker)
	case models.StageUniverse:
		err = o.stageUniverse(ctx, run, tracker)
	case models.StageClustering:
		err = o.stageClustering(ctx, run, tracker)
	case models.StageScoring:
		err = o.stageScoring(ctx, run, tracker)
	case models.StageRoadmap:
		err = o.stageRoadmap(ctx, run, tracker)
	case models.StageExport:
		err = o.stageExport(ctx, run)
	case models.StageCleanup:
		err = o.stageCleanup(ctx, run)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}
	// Only the stage's own deadline turns into a stage timeout; a dead
	// parent (run timeout, cancellation) is reported as-is.
	if err != nil && errors.Is(err, context.DeadlineExceeded) &&
		ctx.Err() != nil && parent.Err() == nil {
		return &stageTimeoutError{stage: stage, cause: err}
	}
	return err
}

// checkBudget fails the run when accumulated cost has reached the limit.
// The check runs before each stage dispatch, never mid-stage.
func (o *Orchestrator) checkBudget(ctx context.Context, runID string) error {
	current, err := o.store.Runs().Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run for budget check: %w", err)
	}
	if current.BudgetLimit > 0 && current.APIUsage.TotalCost >= current.BudgetLimit {
		return fmt.Errorf("%w: spent %.2f of %.2f",
			ErrBudgetExceeded, current.APIUsage.TotalCost, current.BudgetLimit)
	}
	return nil
}

// mergeUsage folds provider and LLM consumption into the run accounting.
func (o *Orchestrator) mergeUsage(ctx context.Context, runID string, llmUsage llm.Usage, logger *slog.Logger) {
	usage := o.providers.TakeUsage()
	if llmUsage.Tokens() > 0 || llmUsage.Cost > 0 {
		usage.Record("llm", 0, llmUsage.Tokens(), llmUsage.Cost, false)
	}
	if len(usage.Providers) == 0 && usage.TotalCost == 0 {
		return
	}
	if err := o.store.Runs().MergeUsage(ctx, runID, usage); err != nil {
		logger.Warn("failed to merge usage", "error", err)
	}
}

func (o *Orchestrator) failRun(ctx context.Context, run *models.Run, stage models.Stage, cause error, logger *slog.Logger) error {
	logger.Error("run failed", "stage", stage, "error", cause)
	o.appendError(ctx, run.ID, models.RunError{
		Kind:      errorKind(cause),
		Stage:     stage,
		Message:   cause.Error(),
		Timestamp: o.now(),
	})
	status := events.StageStatusFailed
	var st *stageTimeoutError
	if errors.As(cause, &st) {
		status = events.StageStatusTimedOut
	}
	o.publishStageStatus(run.ID, stage, status, cause.Error())
	if err := o.store.Runs().UpdateStatus(ctx, run.ID, models.RunStatusFailed); err != nil {
		logger.Warn("failed to mark run failed", "error", err)
	}
	o.publishRunStatus(run.ID, models.RunStatusFailed, 0)
	return cause
}

func (o *Orchestrator) cancelRun(ctx context.Context, run *models.Run, stage models.Stage, logger *slog.Logger) error {
	logger.Info("run cancelled", "stage", stage)
	// The inbound context is dead; state updates use a short detached one.
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	o.publishStageStatus(run.ID, stage, events.StageStatusCancelled, "")
	if err := o.store.Runs().UpdateStatus(detached, run.ID, models.RunStatusCancelled); err != nil {
		logger.Warn("failed to mark run cancelled", "error", err)
	}
	o.publishRunStatus(run.ID, models.RunStatusCancelled, 0)
	return context.Canceled
}

// applyQualityGate checks stage-boundary gates. Gate findings surface as
// warnings; strict mode promotes them to failures.
func (o *Orchestrator) applyQualityGate(ctx context.Context, run *models.Run, stage models.Stage, logger *slog.Logger) error {
	gates := o.cfg.QualityGates
	if !gates.Enabled {
		return nil
	}

	var finding string
	switch stage {
	case models.StageExpansion:
		count, err := o.countByTier(ctx, run.ID, models.TierDream100)
		if err != nil {
			return nil
		}
		if count < gates.MinDream100 {
			finding = fmt.Sprintf("dream100 count %d below gate %d", count, gates.MinDream100)
		}
	case models.StageClustering:
		clusters, err := o.store.Clusters().ListByRun(ctx, run.ID)
		if err != nil {
			return nil
		}
		if len(clusters) < gates.MinClusters {
			finding = fmt.Sprintf("cluster count %d below gate %d", len(clusters), gates.MinClusters)
		}
	case models.StageScoring:
		keywords, err := o.store.Keywords().ListByRun(ctx, run.ID)
		if err != nil || len(keywords) == 0 {
			return nil
		}
		quickWins := 0
		for _, kw := range keywords {
			if kw.QuickWin {
				quickWins++
			}
		}
		ratio := float64(quickWins) / float64(len(keywords))
		if ratio > gates.MaxQuickWinRatio {
			finding = fmt.Sprintf("quick-win ratio %.2f above sanity ceiling %.2f", ratio, gates.MaxQuickWinRatio)
		}
	default:
		return nil
	}
	if finding == "" {
		return nil
	}

	logger.Warn("quality gate finding", "stage", stage, "finding", finding)
	o.appendWarning(ctx, run.ID, models.RunWarning{
		Kind:      "quality_gate",
		Stage:     stage,
		Message:   finding,
		Timestamp: o.now(),
	})
	o.bus.Publish(events.RunChannel(run.ID), events.WarningPayload{
		Type:      events.EventTypeWarning,
		RunID:     run.ID,
		Stage:     stage,
		Kind:      "quality_gate",
		Message:   finding,
		Timestamp: events.Now(),
	})
	if gates.Strict {
		return fmt.Errorf("quality gate failed after %s: %s", stage, finding)
	}
	return nil
}

func (o *Orchestrator) countByTier(ctx context.Context, runID string, tier models.Tier) (int, error) {
	keywords, err := o.store.Keywords().ListByRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, kw := range keywords {
		if kw.Tier == tier {
			count++
		}
	}
	return count, nil
}

func (o *Orchestrator) updateJob(ctx context.Context, job *models.Job, logger *slog.Logger) {
	if err := o.store.Jobs().Update(ctx, job); err != nil {
		logger.Warn("failed to update job", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) appendWarning(ctx context.Context, runID string, warning models.RunWarning) {
	if err := o.store.Runs().AppendWarning(ctx, runID, warning); err != nil {
		o.logger.Warn("failed to append warning", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) appendError(ctx context.Context, runID string, runErr models.RunError) {
	// A dead context must not lose the error record.
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.Runs().AppendError(detached, runID, runErr); err != nil {
		o.logger.Warn("failed to append error", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) publishRunStatus(runID string, status models.RunStatus, progress float64) {
	payload := events.RunStatusPayload{
		Type:      events.EventTypeRunStatus,
		RunID:     runID,
		Status:    status,
		Progress:  progress,
		Timestamp: events.Now(),
	}
	o.bus.Publish(events.RunChannel(runID), payload)
	o.bus.Publish(events.GlobalRunsChannel, payload)
}

func (o *Orchestrator) publishStageStatus(runID string, stage models.Stage, status, message string) {
	o.bus.Publish(events.RunChannel(runID), events.StageStatusPayload{
		Type:      events.EventTypeStageStatus,
		RunID:     runID,
		Stage:     stage,
		Status:    status,
		Message:   message,
		Timestamp: events.Now(),
	})
}

// isRetryable classifies a stage failure. Validation problems, budget
// exhaustion, cancellation, blown stage timeouts, and clustering contention
// never retry.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrBudgetExceeded),
		errors.Is(err, ErrInvalidRun):
		return false
	}
	var st *stageTimeoutError
	if errors.As(err, &st) {
		return false
	}
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, ErrInvalidRun):
		return "validation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "stage_failure"
	}
}

// expansionEngine builds a per-call engine so progress callbacks bind to the
// right tracker.
func (o *Orchestrator) expansionEngine(tracker *progressTracker) *expansion.Engine {
	return expansion.NewEngine(o.llm, o.providers, o.logger).
		WithClock(o.now).
		WithProgress(tracker.stageProgress)
}
