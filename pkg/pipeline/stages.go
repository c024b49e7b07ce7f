package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/seoforge/seoforge/pkg/clustering"
	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/expansion"
	"github.com/seoforge/seoforge/pkg/export"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/roadmap"
	"github.com/seoforge/seoforge/pkg/scoring"
)

// ErrInvalidRun marks validation failures that no amount of retrying fixes.
var ErrInvalidRun = errors.New("invalid run")

// stageInitialization validates the run's inputs before any provider spend.
func (o *Orchestrator) stageInitialization(ctx context.Context, run *models.Run) error {
	if len(run.Seeds) == 0 {
		return fmt.Errorf("%w: at least one seed is required", ErrInvalidRun)
	}
	if len(run.Seeds) > models.MaxSeeds {
		return fmt.Errorf("%w: %d seeds exceeds the maximum of %d",
			ErrInvalidRun, len(run.Seeds), models.MaxSeeds)
	}
	for _, seed := range run.Seeds {
		if strings.TrimSpace(seed) == "" {
			return fmt.Errorf("%w: blank seed phrase", ErrInvalidRun)
		}
	}
	if run.BudgetLimit > 0 && run.BudgetLimit < 10 {
		return fmt.Errorf("%w: budget limit %.2f below the minimum of 10",
			ErrInvalidRun, run.BudgetLimit)
	}
	if err := config.ValidateRunSettings(run.Settings); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRun, err)
	}
	return nil
}

// stageExpansion generates the Dream 100 head terms and persists them so the
// universe stage (and any resumed run) can pick them up from the store.
func (o *Orchestrator) stageExpansion(ctx context.Context, run *models.Run, tracker *progressTracker) error {
	engine := o.expansionEngine(tracker)
	dream, err := engine.ExpandDream100(ctx, run.Seeds, run.Settings)
	if err != nil {
		return fmt.Errorf("dream100 expansion failed: %w", err)
	}

	keywords := dream.Keywords(o.now())
	for i := range keywords {
		keywords[i].ID = uuid.NewString()
		keywords[i].RunID = run.ID
	}
	if err := o.store.Keywords().UpsertBatch(ctx, toPointers(keywords)); err != nil {
		return fmt.Errorf("failed to persist dream100: %w", err)
	}

	o.mergeUsage(ctx, run.ID, dream.LLMUsage, o.logger)
	o.recordStageWarnings(ctx, run.ID, models.StageExpansion, dream.Warnings)
	o.logger.Info("dream100 expanded", "run_id", run.ID, "count", dream.Count())
	return nil
}

// stageUniverse expands the persisted Dream 100 into the full universe:
// Tier2, Tier3, enrichment, intent classification, filtering, and capping.
func (o *Orchestrator) stageUniverse(ctx context.Context, run *models.Run, tracker *progressTracker) error {
	stored, err := o.store.Keywords().ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load dream100: %w", err)
	}
	var dreamKeywords []models.Keyword
	for _, kw := range stored {
		if kw.Tier == models.TierDream100 {
			dreamKeywords = append(dreamKeywords, *kw)
		}
	}
	if len(dreamKeywords) == 0 {
		return fmt.Errorf("no dream100 keywords found for run %s", run.ID)
	}

	dream := expansion.Dream100FromKeywords(run.Seeds, dreamKeywords)
	engine := o.expansionEngine(tracker)
	result, err := engine.ExpandUniverse(ctx, dream, run.Settings)
	if err != nil {
		return fmt.Errorf("universe expansion failed: %w", err)
	}

	keywords := result.Keywords
	for i := range keywords {
		keywords[i].ID = uuid.NewString()
		keywords[i].RunID = run.ID
	}
	if err := o.store.Keywords().UpsertBatch(ctx, toPointers(keywords)); err != nil {
		return fmt.Errorf("failed to persist universe: %w", err)
	}

	o.mergeUsage(ctx, run.ID, result.LLMUsage, o.logger)
	o.recordStageWarnings(ctx, run.ID, models.StageUniverse, result.Warnings)
	o.logger.Info("universe expanded", "run_id", run.ID,
		"keywords", len(keywords), "synthesized_metrics", result.Stats.SynthesizedMetrics)
	return nil
}

// stageClustering groups the universe into semantic clusters and writes the
// assignment back onto each keyword.
func (o *Orchestrator) stageClustering(ctx context.Context, run *models.Run, tracker *progressTracker) error {
	keywords, err := o.store.Keywords().ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load universe: %w", err)
	}
	if len(keywords) == 0 {
		return fmt.Errorf("no keywords to cluster for run %s", run.ID)
	}

	candidates := make([]clustering.Candidate, len(keywords))
	for i, kw := range keywords {
		candidates[i] = clustering.Candidate{
			Phrase:       kw.Phrase,
			Intent:       kw.Intent,
			Volume:       kw.Volume,
			BlendedScore: kw.BlendedScore,
		}
	}

	params := clustering.DefaultParams(run.Settings)
	engine := clustering.NewEngine(o.embeddings, o.llm, o.logger).
		WithProgress(tracker.stageProgress)
	result, err := engine.Cluster(ctx, candidates, params)
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}

	now := o.now()
	clusters := make([]*models.Cluster, 0, len(result.Clusters))
	for _, c := range result.Clusters {
		clusters = append(clusters, &models.Cluster{
			ID:                    c.ID,
			RunID:                 run.ID,
			Label:                 c.Label,
			Size:                  len(c.Members),
			Score:                 c.Coherence,
			IntentMix:             c.IntentMix,
			RepresentativePhrases: c.RepresentativePhrases,
			SimilarityThreshold:   params.SimilarityThreshold,
			Centroid:              c.Centroid,
			CreatedAt:             now,
		})
	}
	if err := o.store.Clusters().InsertBatch(ctx, clusters); err != nil {
		return fmt.Errorf("failed to persist clusters: %w", err)
	}

	for _, kw := range keywords {
		if id, ok := result.Assignments[kw.Phrase]; ok {
			clusterID := id
			kw.ClusterID = &clusterID
		} else {
			kw.ClusterID = nil
		}
		kw.UpdatedAt = now
	}
	if err := o.store.Keywords().UpsertBatch(ctx, keywords); err != nil {
		return fmt.Errorf("failed to persist cluster assignments: %w", err)
	}

	for _, issue := range result.Issues {
		if issue.Severity == "error" {
			o.appendWarning(ctx, run.ID, models.RunWarning{
				Kind:      "cluster_" + issue.Kind,
				Stage:     models.StageClustering,
				Message:   issue.Message,
				Timestamp: now,
			})
		}
	}
	o.logger.Info("universe clustered", "run_id", run.ID,
		"clusters", len(clusters), "outliers", len(result.Outliers),
		"quality", result.Quality.Overall)
	return nil
}

// stageScoring computes blended scores and quick-win flags for the whole
// universe in one batch.
func (o *Orchestrator) stageScoring(ctx context.Context, run *models.Run, tracker *progressTracker) error {
	keywords, err := o.store.Keywords().ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load universe: %w", err)
	}
	if len(keywords) == 0 {
		return fmt.Errorf("no keywords to score for run %s", run.ID)
	}

	inputs := make([]scoring.Input, len(keywords))
	for i, kw := range keywords {
		clusterID := ""
		if kw.ClusterID != nil {
			clusterID = *kw.ClusterID
		}
		inputs[i] = scoring.Input{
			Phrase:     kw.Phrase,
			Tier:       kw.Tier,
			Volume:     kw.Volume,
			Difficulty: kw.Difficulty,
			Intent:     kw.Intent,
			Relevance:  kw.Relevance,
			Trend:      kw.Trend,
			ClusterID:  clusterID,
		}
	}

	opts := scoring.Options{
		Weights:           run.Settings.ScoringWeights,
		QuickWinThreshold: run.Settings.QuickWinThreshold,
		Seasonal:          run.Settings.Seasonal,
		Now:               o.now,
	}
	results, err := scoring.ScoreBatch(inputs, opts)
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}
	scoring.ApplyClusterMedianRule(inputs, results)
	tracker.stageProgress(80)

	now := o.now()
	for i, kw := range keywords {
		kw.BlendedScore = results[i].BlendedScore
		kw.QuickWin = results[i].QuickWin
		kw.UpdatedAt = now
	}
	if err := o.store.Keywords().UpsertBatch(ctx, keywords); err != nil {
		return fmt.Errorf("failed to persist scores: %w", err)
	}
	o.logger.Info("universe scored", "run_id", run.ID, "keywords", len(keywords))
	return nil
}

// stageRoadmap schedules the top-scored keywords into the publication window.
func (o *Orchestrator) stageRoadmap(ctx context.Context, run *models.Run, tracker *progressTracker) error {
	stored, err := o.store.Keywords().ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load universe: %w", err)
	}
	storedClusters, err := o.store.Clusters().ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load clusters: %w", err)
	}

	keywords := make([]models.Keyword, len(stored))
	for i, kw := range stored {
		keywords[i] = *kw
	}
	clusters := make([]models.Cluster, len(storedClusters))
	for i, c := range storedClusters {
		clusters[i] = *c
	}

	generator := roadmap.NewGenerator(o.logger)
	plan, err := generator.Generate(keywords, clusters,
		roadmap.OptionsFromSettings(run.Settings, o.now()))
	if err != nil {
		return fmt.Errorf("roadmap generation failed: %w", err)
	}
	tracker.stageProgress(80)

	items := make([]*models.RoadmapItem, len(plan.Items))
	for i := range plan.Items {
		item := plan.Items[i]
		item.ID = uuid.NewString()
		item.RunID = run.ID
		items[i] = &item
	}
	if err := o.store.Roadmap().InsertBatch(ctx, items); err != nil {
		return fmt.Errorf("failed to persist roadmap: %w", err)
	}
	o.logger.Info("roadmap generated", "run_id", run.ID,
		"items", len(items), "quick_wins", plan.Analytics.QuickWinCount)
	return nil
}

// stageExport writes the final artifacts through the file store.
func (o *Orchestrator) stageExport(ctx context.Context, run *models.Run) error {
	keywords, err := o.store.Keywords().ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load universe: %w", err)
	}
	clusters, err := o.store.Clusters().ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load clusters: %w", err)
	}
	items, err := o.store.Roadmap().ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load roadmap: %w", err)
	}
	// The summary folds in warnings and usage accumulated after claim time.
	current, err := o.store.Runs().Get(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to refresh run: %w", err)
	}

	exporter := export.NewExporter(o.files, o.logger).WithClock(o.now)
	if _, err := exporter.Export(ctx, current, keywords, clusters, items); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return nil
}

// stageCleanup releases per-run transients. Failures are logged by the
// caller and never fail the run.
func (o *Orchestrator) stageCleanup(ctx context.Context, run *models.Run) error {
	o.embeddings.Purge()
	o.logger.Debug("cleanup finished", "run_id", run.ID)
	return nil
}

func (o *Orchestrator) recordStageWarnings(ctx context.Context, runID string, stage models.Stage, warnings []string) {
	for _, message := range warnings {
		o.appendWarning(ctx, runID, models.RunWarning{
			Kind:      "stage_warning",
			Stage:     stage,
			Message:   message,
			Timestamp: o.now(),
		})
	}
}

func toPointers(keywords []models.Keyword) []*models.Keyword {
	out := make([]*models.Keyword, len(keywords))
	for i := range keywords {
		out[i] = &keywords[i]
	}
	return out
}
