package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seoforge/seoforge/pkg/models"
)

// MemoryStore is an in-memory Store used by tests and mock mode. All methods
// copy on read and write so callers never share mutable state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	runs       map[string]*models.Run
	runOrder   []string                              // creation order, for FIFO claiming and listing
	keywords   map[string]map[string]*models.Keyword // run_id → phrase → keyword
	clusters   map[string][]*models.Cluster
	roadmap    map[string][]*models.RoadmapItem
	jobs       map[string]*models.Job
	jobsByRun  map[string][]string
	embeddings map[string][]float32
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:       make(map[string]*models.Run),
		keywords:   make(map[string]map[string]*models.Keyword),
		clusters:   make(map[string][]*models.Cluster),
		roadmap:    make(map[string][]*models.RoadmapItem),
		jobs:       make(map[string]*models.Job),
		jobsByRun:  make(map[string][]string),
		embeddings: make(map[string][]float32),
	}
}

// Runs implements Store.
func (m *MemoryStore) Runs() RunStore { return (*memoryRuns)(m) }

// Keywords implements Store.
func (m *MemoryStore) Keywords() KeywordStore { return (*memoryKeywords)(m) }

// Clusters implements Store.
func (m *MemoryStore) Clusters() ClusterStore { return (*memoryClusters)(m) }

// Roadmap implements Store.
func (m *MemoryStore) Roadmap() RoadmapStore { return (*memoryRoadmap)(m) }

// Jobs implements Store.
func (m *MemoryStore) Jobs() JobStore { return (*memoryJobs)(m) }

// Embeddings implements Store.
func (m *MemoryStore) Embeddings() EmbeddingStore { return (*memoryEmbeddings)(m) }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func copyRun(r *models.Run) *models.Run {
	cp := *r
	cp.Seeds = append([]string(nil), r.Seeds...)
	cp.CompletedStages = append([]models.Stage(nil), r.CompletedStages...)
	cp.Warnings = append([]models.RunWarning(nil), r.Warnings...)
	cp.ErrorLog = append([]models.RunError(nil), r.ErrorLog...)
	if r.APIUsage.Providers != nil {
		cp.APIUsage.Providers = make(map[string]models.ProviderUsage, len(r.APIUsage.Providers))
		for k, v := range r.APIUsage.Providers {
			cp.APIUsage.Providers[k] = v
		}
	}
	return &cp
}

// ── runs ──────────────────────────────────────────────────────────

type memoryRuns MemoryStore

func (m *memoryRuns) Create(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return ErrAlreadyExists
	}
	m.runs[run.ID] = copyRun(run)
	m.runOrder = append(m.runOrder, run.ID)
	return nil
}

func (m *memoryRuns) Get(_ context.Context, id string) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRun(run), nil
}

func (m *memoryRuns) List(_ context.Context, filters models.RunFilters) ([]*models.Run, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*models.Run
	for i := len(m.runOrder) - 1; i >= 0; i-- { // newest first
		run := m.runs[m.runOrder[i]]
		if filters.OwnerID != "" && run.OwnerID != filters.OwnerID {
			continue
		}
		if filters.Status != "" && run.Status != filters.Status {
			continue
		}
		matched = append(matched, run)
	}

	total := len(matched)
	offset := filters.Offset
	if offset > total {
		offset = total
	}
	end := total
	if filters.Limit > 0 && offset+filters.Limit < end {
		end = offset + filters.Limit
	}

	out := make([]*models.Run, 0, end-offset)
	for _, run := range matched[offset:end] {
		out = append(out, copyRun(run))
	}
	return out, total, nil
}

func (m *memoryRuns) ClaimNextPending(_ context.Context, podID string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.runOrder { // FIFO
		run := m.runs[id]
		if run.Status != models.RunStatusPending {
			continue
		}
		now := time.Now()
		run.Status = models.RunStatusProcessing
		run.PodID = podID
		run.StartedAt = &now
		run.LastHeartbeatAt = now
		return copyRun(run), nil
	}
	return nil, ErrNoPendingRuns
}

func (m *memoryRuns) CountProcessing(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, run := range m.runs {
		if run.Status == models.RunStatusProcessing {
			count++
		}
	}
	return count, nil
}

func (m *memoryRuns) UpdateStatus(_ context.Context, id string, status models.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	if !run.Status.CanTransitionTo(status) {
		return ErrInvalidTransition
	}
	run.Status = status
	if status.IsTerminal() {
		now := time.Now()
		run.CompletedAt = &now
	}
	return nil
}

func (m *memoryRuns) SetCurrentStage(_ context.Context, id string, stage models.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.CurrentStage = stage
	return nil
}

func (m *memoryRuns) AddCompletedStage(_ context.Context, id string, stage models.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	if !run.StageCompleted(stage) {
		run.CompletedStages = append(run.CompletedStages, stage)
	}
	return nil
}

func (m *memoryRuns) UpdateProgress(_ context.Context, id string, progress float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	// Merge as maximum: out-of-order snapshots never regress progress.
	if progress > run.Progress {
		run.Progress = progress
	}
	return nil
}

func (m *memoryRuns) MergeUsage(_ context.Context, id string, usage models.APIUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.APIUsage.Merge(usage)
	return nil
}

func (m *memoryRuns) AppendWarning(_ context.Context, id string, warning models.RunWarning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Warnings = append(run.Warnings, warning)
	return nil
}

func (m *memoryRuns) AppendError(_ context.Context, id string, runErr models.RunError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.ErrorLog = append(run.ErrorLog, runErr)
	return nil
}

func (m *memoryRuns) Heartbeat(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	if at.After(run.LastHeartbeatAt) {
		run.LastHeartbeatAt = at
	}
	return nil
}

func (m *memoryRuns) FailStaleProcessing(_ context.Context, threshold time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	recovered := 0
	for _, run := range m.runs {
		if run.Status == models.RunStatusProcessing && run.LastHeartbeatAt.Before(cutoff) {
			run.Status = models.RunStatusFailed
			now := time.Now()
			run.CompletedAt = &now
			run.ErrorLog = append(run.ErrorLog, models.RunError{
				Kind:      "internal",
				Message:   "orphaned run recovered: heartbeat expired",
				Timestamp: now,
			})
			recovered++
		}
	}
	return recovered, nil
}

// ── keywords ──────────────────────────────────────────────────────

type memoryKeywords MemoryStore

func copyKeyword(k *models.Keyword) *models.Keyword {
	cp := *k
	cp.Embedding = append([]float32(nil), k.Embedding...)
	cp.TopSERPURLs = append([]string(nil), k.TopSERPURLs...)
	if k.CPC != nil {
		v := *k.CPC
		cp.CPC = &v
	}
	if k.ClusterID != nil {
		v := *k.ClusterID
		cp.ClusterID = &v
	}
	return &cp
}

func (m *memoryKeywords) UpsertBatch(_ context.Context, keywords []*models.Keyword) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keywords {
		byPhrase, ok := m.keywords[k.RunID]
		if !ok {
			byPhrase = make(map[string]*models.Keyword)
			m.keywords[k.RunID] = byPhrase
		}
		byPhrase[k.Phrase] = copyKeyword(k)
	}
	return nil
}

func (m *memoryKeywords) ListByRun(_ context.Context, runID string) ([]*models.Keyword, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byPhrase := m.keywords[runID]
	out := make([]*models.Keyword, 0, len(byPhrase))
	for _, k := range byPhrase {
		out = append(out, copyKeyword(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phrase < out[j].Phrase })
	return out, nil
}

func (m *memoryKeywords) CountByRun(_ context.Context, runID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keywords[runID]), nil
}

func (m *memoryKeywords) DeleteByRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keywords, runID)
	return nil
}

// ── clusters ──────────────────────────────────────────────────────

type memoryClusters MemoryStore

func copyCluster(c *models.Cluster) *models.Cluster {
	cp := *c
	cp.RepresentativePhrases = append([]string(nil), c.RepresentativePhrases...)
	cp.Centroid = append([]float32(nil), c.Centroid...)
	if c.IntentMix != nil {
		cp.IntentMix = make(map[models.Intent]float64, len(c.IntentMix))
		for k, v := range c.IntentMix {
			cp.IntentMix[k] = v
		}
	}
	return &cp
}

func (m *memoryClusters) InsertBatch(_ context.Context, clusters []*models.Cluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clusters {
		m.clusters[c.RunID] = append(m.clusters[c.RunID], copyCluster(c))
	}
	return nil
}

func (m *memoryClusters) ListByRun(_ context.Context, runID string) ([]*models.Cluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Cluster, 0, len(m.clusters[runID]))
	for _, c := range m.clusters[runID] {
		out = append(out, copyCluster(c))
	}
	return out, nil
}

func (m *memoryClusters) DeleteByRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clusters, runID)
	return nil
}

// ── roadmap ───────────────────────────────────────────────────────

type memoryRoadmap MemoryStore

func copyRoadmapItem(item *models.RoadmapItem) *models.RoadmapItem {
	cp := *item
	cp.SecondaryKeywords = append([]string(nil), item.SecondaryKeywords...)
	cp.SourceURLs = append([]string(nil), item.SourceURLs...)
	return &cp
}

func (m *memoryRoadmap) InsertBatch(_ context.Context, items []*models.RoadmapItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.roadmap[item.RunID] = append(m.roadmap[item.RunID], copyRoadmapItem(item))
	}
	return nil
}

func (m *memoryRoadmap) ListByRun(_ context.Context, runID string) ([]*models.RoadmapItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.RoadmapItem, 0, len(m.roadmap[runID]))
	for _, item := range m.roadmap[runID] {
		out = append(out, copyRoadmapItem(item))
	}
	return out, nil
}

func (m *memoryRoadmap) DeleteByRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roadmap, runID)
	return nil
}

// ── jobs ──────────────────────────────────────────────────────────

type memoryJobs MemoryStore

func copyJob(j *models.Job) *models.Job {
	cp := *j
	cp.Dependencies = append([]string(nil), j.Dependencies...)
	if j.Result != nil {
		cp.Result = make(map[string]any, len(j.Result))
		for k, v := range j.Result {
			cp.Result[k] = v
		}
	}
	return &cp
}

func (m *memoryJobs) Create(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrAlreadyExists
	}
	m.jobs[job.ID] = copyJob(job)
	m.jobsByRun[job.RunID] = append(m.jobsByRun[job.RunID], job.ID)
	return nil
}

func (m *memoryJobs) Update(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status.IsTerminal() && existing.Status != job.Status {
		return ErrInvalidTransition
	}
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *memoryJobs) Get(_ context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (m *memoryJobs) ListByRun(_ context.Context, runID string) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.jobsByRun[runID]
	out := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyJob(m.jobs[id]))
	}
	return out, nil
}

// ── embeddings ────────────────────────────────────────────────────

type memoryEmbeddings MemoryStore

func (m *memoryEmbeddings) Get(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.embeddings[key]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), vec...), true, nil
}

func (m *memoryEmbeddings) Put(_ context.Context, key string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[key] = append([]float32(nil), vector...)
	return nil
}
