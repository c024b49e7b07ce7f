package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
)

func newTestRun() *models.Run {
	return &models.Run{
		ID:          uuid.NewString(),
		OwnerID:     "owner-1",
		Seeds:       []string{"marketing automation"},
		Market:      "US",
		Language:    "en",
		Settings:    config.DefaultRunSettings(),
		Status:      models.RunStatusPending,
		BudgetLimit: 100,
		CreatedAt:   time.Now(),
	}
}

func TestMemoryRuns_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, run))

	got, err := s.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, models.RunStatusPending, got.Status)
	assert.Equal(t, []string{"marketing automation"}, got.Seeds)

	// Duplicate IDs are rejected.
	assert.ErrorIs(t, s.Runs().Create(ctx, run), ErrAlreadyExists)

	_, err = s.Runs().Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRuns_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, run))

	got, err := s.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	got.Seeds[0] = "mutated"
	got.Status = models.RunStatusFailed

	again, err := s.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "marketing automation", again.Seeds[0])
	assert.Equal(t, models.RunStatusPending, again.Status)
}

func TestMemoryRuns_ClaimNextPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Runs().ClaimNextPending(ctx, "pod-1")
	assert.ErrorIs(t, err, ErrNoPendingRuns)

	first := newTestRun()
	first.CreatedAt = time.Now().Add(-2 * time.Minute)
	second := newTestRun()
	second.CreatedAt = time.Now().Add(-1 * time.Minute)
	require.NoError(t, s.Runs().Create(ctx, first))
	require.NoError(t, s.Runs().Create(ctx, second))

	claimed, err := s.Runs().ClaimNextPending(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID, "oldest pending run is claimed first")
	assert.Equal(t, models.RunStatusProcessing, claimed.Status)
	assert.Equal(t, "pod-1", claimed.PodID)
	require.NotNil(t, claimed.StartedAt)

	count, err := s.Runs().CountProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	claimed2, err := s.Runs().ClaimNextPending(ctx, "pod-2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed2.ID)

	_, err = s.Runs().ClaimNextPending(ctx, "pod-1")
	assert.ErrorIs(t, err, ErrNoPendingRuns)
}

func TestMemoryRuns_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, run))

	// pending → completed skips processing and is rejected.
	err := s.Runs().UpdateStatus(ctx, run.ID, models.RunStatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Runs().UpdateStatus(ctx, run.ID, models.RunStatusProcessing))
	require.NoError(t, s.Runs().UpdateStatus(ctx, run.ID, models.RunStatusCompleted))

	got, err := s.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Terminal states are sinks.
	err = s.Runs().UpdateStatus(ctx, run.ID, models.RunStatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemoryRuns_ProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, run))

	require.NoError(t, s.Runs().UpdateProgress(ctx, run.ID, 40))
	// A late snapshot from an earlier batch must not regress progress.
	require.NoError(t, s.Runs().UpdateProgress(ctx, run.ID, 25))

	got, err := s.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, got.Progress)

	require.NoError(t, s.Runs().UpdateProgress(ctx, run.ID, 65))
	got, err = s.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 65.0, got.Progress)
}

func TestMemoryRuns_AddCompletedStageIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, run))

	require.NoError(t, s.Runs().AddCompletedStage(ctx, run.ID, models.StageExpansion))
	require.NoError(t, s.Runs().AddCompletedStage(ctx, run.ID, models.StageExpansion))
	require.NoError(t, s.Runs().AddCompletedStage(ctx, run.ID, models.StageUniverse))

	got, err := s.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Stage{models.StageExpansion, models.StageUniverse}, got.CompletedStages)
}

func TestMemoryRuns_MergeUsage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, run))

	usage := models.APIUsage{}
	usage.Record("serpapi", 10, 0, 0.05, false)
	require.NoError(t, s.Runs().MergeUsage(ctx, run.ID, usage))

	more := models.APIUsage{}
	more.Record("serpapi", 5, 0, 0.025, false)
	more.Record("openai", 2, 1200, 0.01, false)
	require.NoError(t, s.Runs().MergeUsage(ctx, run.ID, more))

	got, err := s.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.APIUsage.Providers["serpapi"].Requests)
	assert.Equal(t, int64(2), got.APIUsage.Providers["openai"].Requests)
	assert.InDelta(t, 0.085, got.APIUsage.TotalCost, 1e-9)
}

func TestMemoryRuns_FailStaleProcessing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// A run claimed by a pod that died ten minutes ago.
	stale := newTestRun()
	stale.Status = models.RunStatusProcessing
	stale.PodID = "pod-gone"
	stale.LastHeartbeatAt = time.Now().Add(-10 * time.Minute)
	require.NoError(t, s.Runs().Create(ctx, stale))

	fresh := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, fresh))
	_, err := s.Runs().ClaimNextPending(ctx, "pod-alive")
	require.NoError(t, err)
	require.NoError(t, s.Runs().Heartbeat(ctx, fresh.ID, time.Now()))

	recovered, err := s.Runs().FailStaleProcessing(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := s.Runs().Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotEmpty(t, got.ErrorLog)

	got, err = s.Runs().Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusProcessing, got.Status)
}

func TestMemoryRuns_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 3; i++ {
		run := newTestRun()
		run.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Runs().Create(ctx, run))
	}
	other := newTestRun()
	other.OwnerID = "owner-2"
	require.NoError(t, s.Runs().Create(ctx, other))

	runs, total, err := s.Runs().List(ctx, models.RunFilters{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, runs, 3)

	runs, total, err = s.Runs().List(ctx, models.RunFilters{OwnerID: "owner-1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, runs, 2)

	runs, _, err = s.Runs().List(ctx, models.RunFilters{Status: models.RunStatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestMemoryKeywords_UpsertBatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, run))

	kw := &models.Keyword{
		ID:     uuid.NewString(),
		RunID:  run.ID,
		Phrase: "email marketing tools",
		Tier:   models.TierDream100,
		Volume: 5000,
	}
	require.NoError(t, s.Keywords().UpsertBatch(ctx, []*models.Keyword{kw}))

	// Same (run, phrase) updates in place instead of duplicating.
	updated := *kw
	updated.ID = uuid.NewString()
	updated.Volume = 8000
	updated.Tier = models.TierTier2
	require.NoError(t, s.Keywords().UpsertBatch(ctx, []*models.Keyword{&updated}))

	count, err := s.Keywords().CountByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	list, err := s.Keywords().ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(8000), list[0].Volume)
	assert.Equal(t, models.TierTier2, list[0].Tier)

	require.NoError(t, s.Keywords().DeleteByRun(ctx, run.ID))
	count, err = s.Keywords().CountByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryClustersAndRoadmap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun()
	require.NoError(t, s.Runs().Create(ctx, run))

	cluster := &models.Cluster{
		ID:    uuid.NewString(),
		RunID: run.ID,
		Label: "email marketing",
		Size:  12,
		Score: 0.81,
	}
	require.NoError(t, s.Clusters().InsertBatch(ctx, []*models.Cluster{cluster}))

	clusters, err := s.Clusters().ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "email marketing", clusters[0].Label)

	item := &models.RoadmapItem{
		ID:             uuid.NewString(),
		RunID:          run.ID,
		ClusterID:      cluster.ID,
		Stage:          models.RoadmapStagePillar,
		PrimaryKeyword: "email marketing tools",
		DueDate:        "2026-09-07",
	}
	require.NoError(t, s.Roadmap().InsertBatch(ctx, []*models.RoadmapItem{item}))

	items, err := s.Roadmap().ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.RoadmapStagePillar, items[0].Stage)
}

func TestMemoryJobs_TerminalGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	job := &models.Job{
		ID:          uuid.NewString(),
		RunID:       "run-1",
		Stage:       models.StageExpansion,
		Priority:    5,
		Status:      models.JobStatusQueued,
		MaxAttempts: 3,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.Jobs().Create(ctx, job))

	job.Status = models.JobStatusRunning
	require.NoError(t, s.Jobs().Update(ctx, job))

	job.Status = models.JobStatusCompleted
	require.NoError(t, s.Jobs().Update(ctx, job))

	// Completed jobs cannot move again.
	job.Status = models.JobStatusRunning
	assert.ErrorIs(t, s.Jobs().Update(ctx, job), ErrInvalidTransition)

	got, err := s.Jobs().Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestMemoryEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Embeddings().Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	vec := []float32{0.1, 0.2, 0.3}
	require.NoError(t, s.Embeddings().Put(ctx, "key-1", vec))

	got, ok, err := s.Embeddings().Get(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestMemoryFileStore(t *testing.T) {
	ctx := context.Background()
	fs := NewMemoryFileStore()

	require.NoError(t, fs.Write(ctx, "run-1", "keywords.json", []byte(`{"ok":true}`)))

	data, ok := fs.Get("run-1", "keywords.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	_, ok = fs.Get("run-1", "missing.json")
	assert.False(t, ok)
}
