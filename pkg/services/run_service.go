package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"

	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/store"
)

// Canceller cancels a processing run on the local pod. Implemented by the
// queue's worker pool.
type Canceller interface {
	CancelRun(runID string) bool
}

// RunService manages run lifecycle: submission, inspection, cancellation,
// and resumption.
type RunService struct {
	store     store.Store
	defaults  models.RunSettings
	canceller Canceller
	logger    *slog.Logger
}

// NewRunService creates a RunService. canceller may be nil (cancellation of
// processing runs disabled, pending runs still cancel).
func NewRunService(st store.Store, defaults models.RunSettings, canceller Canceller, logger *slog.Logger) *RunService {
	return &RunService{
		store:     st,
		defaults:  defaults,
		canceller: canceller,
		logger:    logger.With("component", "run_service"),
	}
}

// CreateRun validates the request, merges settings under the configured
// defaults, and enqueues a pending run.
func (s *RunService) CreateRun(httpCtx context.Context, req models.CreateRunRequest) (*models.Run, error) {
	if len(req.Seeds) == 0 {
		return nil, NewValidationError("seeds", "at least one seed is required")
	}
	if len(req.Seeds) > models.MaxSeeds {
		return nil, NewValidationError("seeds", fmt.Sprintf("at most %d seeds allowed", models.MaxSeeds))
	}
	seeds := make([]string, 0, len(req.Seeds))
	seen := make(map[string]bool, len(req.Seeds))
	for _, seed := range req.Seeds {
		normalized := models.NormalizePhrase(seed)
		if normalized == "" {
			return nil, NewValidationError("seeds", "blank seed phrase")
		}
		if !seen[normalized] {
			seen[normalized] = true
			seeds = append(seeds, normalized)
		}
	}
	if req.BudgetLimit < 0 {
		return nil, NewValidationError("budget_limit", "must not be negative")
	}

	settings, err := s.mergeSettings(req.Settings)
	if err != nil {
		return nil, err
	}
	if req.Market != "" {
		settings.Market = req.Market
	}
	if req.Language != "" {
		settings.Language = req.Language
	}
	if err := config.ValidateRunSettings(settings); err != nil {
		return nil, NewValidationError("settings", err.Error())
	}

	budget := req.BudgetLimit
	if budget == 0 {
		budget = settings.BudgetLimit
	}

	run := &models.Run{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		Seeds:       seeds,
		Market:      settings.Market,
		Language:    settings.Language,
		Settings:    settings,
		Status:      models.RunStatusPending,
		BudgetLimit: budget,
		CreatedAt:   time.Now(),
	}

	// Use background context with timeout for the critical write.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Runs().Create(ctx, run); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Info("run created", "run_id", run.ID, "seeds", run.Seeds, "owner", run.OwnerID)
	return run, nil
}

// mergeSettings fills the zero fields of the submitted settings from the
// configured defaults. mergo cannot tell a submitted false from an omitted
// field, so the boolean knobs arrive as pointers and merge by hand.
func (s *RunService) mergeSettings(submitted *models.RunSettingsPatch) (models.RunSettings, error) {
	if submitted == nil {
		return s.defaults, nil
	}
	merged := submitted.RunSettings
	if err := mergo.Merge(&merged, s.defaults); err != nil {
		return models.RunSettings{}, fmt.Errorf("failed to merge settings: %w", err)
	}
	merged.EnableCompetitorScraping = boolOr(submitted.EnableCompetitorScraping, s.defaults.EnableCompetitorScraping)
	merged.EnableSERPAnalysis = boolOr(submitted.EnableSERPAnalysis, s.defaults.EnableSERPAnalysis)
	merged.EnableSemanticVariations = boolOr(submitted.EnableSemanticVariations, s.defaults.EnableSemanticVariations)
	merged.QuickWinPriority = boolOr(submitted.QuickWinPriority, s.defaults.QuickWinPriority)
	return merged, nil
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

// GetRun retrieves a run by ID.
func (s *RunService) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	run, err := s.store.Runs().Get(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs with filtering and pagination.
func (s *RunService) ListRuns(ctx context.Context, filters models.RunFilters) (*models.RunListResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	runs, total, err := s.store.Runs().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return &models.RunListResponse{
		Runs:       runs,
		TotalCount: total,
		Limit:      filters.Limit,
		Offset:     filters.Offset,
	}, nil
}

// CancelRun cancels a pending run directly, or signals the local worker pool
// for a processing one.
func (s *RunService) CancelRun(ctx context.Context, runID string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	switch run.Status {
	case models.RunStatusPending:
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.Runs().UpdateStatus(writeCtx, runID, models.RunStatusCancelled); err != nil {
			return fmt.Errorf("failed to cancel pending run: %w", err)
		}
		s.logger.Info("pending run cancelled", "run_id", runID)
		return nil
	case models.RunStatusProcessing:
		if s.canceller != nil && s.canceller.CancelRun(runID) {
			s.logger.Info("processing run cancellation signalled", "run_id", runID)
			return nil
		}
		return fmt.Errorf("%w: run %s is processing on another pod", ErrNotCancellable, runID)
	default:
		return fmt.Errorf("%w: run %s is already %s", ErrNotCancellable, runID, run.Status)
	}
}

// ResumeRun creates a new run that carries the lineage of a failed or
// cancelled run, copying the outputs of its completed stages so the pipeline
// picks up where the original stopped. Export and cleanup always rerun so the
// new run gets its own artifacts.
func (s *RunService) ResumeRun(ctx context.Context, runID string) (*models.Run, error) {
	src, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if src.Status != models.RunStatusFailed && src.Status != models.RunStatusCancelled {
		return nil, fmt.Errorf("%w: run %s is %s", ErrNotResumable, runID, src.Status)
	}

	carried := make([]models.Stage, 0, len(src.CompletedStages))
	for _, stage := range src.CompletedStages {
		if stage == models.StageExport || stage == models.StageCleanup {
			continue
		}
		carried = append(carried, stage)
	}

	resumed := &models.Run{
		ID:              uuid.NewString(),
		OwnerID:         src.OwnerID,
		LineageID:       src.ID,
		Seeds:           src.Seeds,
		Market:          src.Market,
		Language:        src.Language,
		Settings:        src.Settings,
		Status:          models.RunStatusPending,
		CompletedStages: carried,
		BudgetLimit:     src.BudgetLimit,
		CreatedAt:       time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.Runs().Create(writeCtx, resumed); err != nil {
		return nil, fmt.Errorf("failed to create resumed run: %w", err)
	}
	if err := s.copyStageOutputs(writeCtx, src, resumed); err != nil {
		// Without the carried outputs the resumed run would re-fail;
		// surface the problem instead of enqueuing a broken run.
		_ = s.store.Runs().UpdateStatus(writeCtx, resumed.ID, models.RunStatusFailed)
		return nil, err
	}

	s.logger.Info("run resumed", "run_id", resumed.ID, "lineage_id", src.ID,
		"carried_stages", carried)
	return resumed, nil
}

// copyStageOutputs clones the source run's persisted outputs for every
// carried stage into the resumed run.
func (s *RunService) copyStageOutputs(ctx context.Context, src, dst *models.Run) error {
	if !dst.StageCompleted(models.StageExpansion) {
		return nil
	}

	keywords, err := s.store.Keywords().ListByRun(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("failed to load source keywords: %w", err)
	}
	clusterIDMap := make(map[string]string)

	if dst.StageCompleted(models.StageClustering) {
		clusters, err := s.store.Clusters().ListByRun(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("failed to load source clusters: %w", err)
		}
		copied := make([]*models.Cluster, len(clusters))
		for i, c := range clusters {
			clone := *c
			clone.ID = uuid.NewString()
			clone.RunID = dst.ID
			clusterIDMap[c.ID] = clone.ID
			copied[i] = &clone
		}
		if err := s.store.Clusters().InsertBatch(ctx, copied); err != nil {
			return fmt.Errorf("failed to copy clusters: %w", err)
		}
	}

	copiedKeywords := make([]*models.Keyword, len(keywords))
	for i, kw := range keywords {
		clone := *kw
		clone.ID = uuid.NewString()
		clone.RunID = dst.ID
		if clone.ClusterID != nil {
			if mapped, ok := clusterIDMap[*clone.ClusterID]; ok {
				clone.ClusterID = &mapped
			} else {
				clone.ClusterID = nil
			}
		}
		copiedKeywords[i] = &clone
	}
	if err := s.store.Keywords().UpsertBatch(ctx, copiedKeywords); err != nil {
		return fmt.Errorf("failed to copy keywords: %w", err)
	}

	if dst.StageCompleted(models.StageRoadmap) {
		items, err := s.store.Roadmap().ListByRun(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("failed to load source roadmap: %w", err)
		}
		copied := make([]*models.RoadmapItem, len(items))
		for i, item := range items {
			clone := *item
			clone.ID = uuid.NewString()
			clone.RunID = dst.ID
			if mapped, ok := clusterIDMap[clone.ClusterID]; ok {
				clone.ClusterID = mapped
			}
			copied[i] = &clone
		}
		if err := s.store.Roadmap().InsertBatch(ctx, copied); err != nil {
			return fmt.Errorf("failed to copy roadmap: %w", err)
		}
	}
	return nil
}

// GetKeywords returns the keyword universe of a run, optionally filtered by
// tier or quick-win flag.
func (s *RunService) GetKeywords(ctx context.Context, runID string, tier models.Tier, quickWinsOnly bool) ([]*models.Keyword, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	keywords, err := s.store.Keywords().ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	if tier == "" && !quickWinsOnly {
		return keywords, nil
	}
	filtered := keywords[:0]
	for _, kw := range keywords {
		if tier != "" && kw.Tier != tier {
			continue
		}
		if quickWinsOnly && !kw.QuickWin {
			continue
		}
		filtered = append(filtered, kw)
	}
	return filtered, nil
}

// GetClusters returns the clusters of a run.
func (s *RunService) GetClusters(ctx context.Context, runID string) ([]*models.Cluster, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	clusters, err := s.store.Clusters().ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	return clusters, nil
}

// GetRoadmap returns the roadmap items of a run, optionally filtered by DRI.
func (s *RunService) GetRoadmap(ctx context.Context, runID, dri string) ([]*models.RoadmapItem, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	items, err := s.store.Roadmap().ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roadmap items: %w", err)
	}
	if dri == "" {
		return items, nil
	}
	filtered := items[:0]
	for _, item := range items {
		if strings.EqualFold(item.DRI, dri) {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}
