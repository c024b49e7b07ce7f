package queue

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/store"
)

// stubExecutor marks claimed runs terminal the way the pipeline does, so the
// queue's capacity accounting sees realistic state transitions.
type stubExecutor struct {
	store store.Store

	mu       sync.Mutex
	executed []string

	// release, when non-nil, blocks Execute until closed or ctx is done.
	release chan struct{}
	started chan string
}

func (s *stubExecutor) Execute(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	s.executed = append(s.executed, run.ID)
	s.mu.Unlock()
	if s.started != nil {
		s.started <- run.ID
	}

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			_ = s.store.Runs().UpdateStatus(context.Background(), run.ID, models.RunStatusCancelled)
			return context.Canceled
		}
	}
	_ = s.store.Runs().UpdateStatus(context.Background(), run.ID, models.RunStatusCompleted)
	return nil
}

func (s *stubExecutor) executedRuns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

func fastQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.WorkerCount = 2
	cfg.MaxConcurrentRuns = 2
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollIntervalJitter = 0
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.RunTimeout = time.Minute
	return cfg
}

func enqueueRun(t *testing.T, st store.Store, id string) {
	t.Helper()
	require.NoError(t, st.Runs().Create(context.Background(), &models.Run{
		ID:        id,
		Seeds:     []string{"seed"},
		Status:    models.RunStatusPending,
		CreatedAt: time.Now(),
	}))
}

func runStatus(t *testing.T, st store.Store, id string) models.RunStatus {
	t.Helper()
	run, err := st.Runs().Get(context.Background(), id)
	require.NoError(t, err)
	return run.Status
}

func TestWorkerPool_ProcessesPendingRuns(t *testing.T) {
	st := store.NewMemoryStore()
	executor := &stubExecutor{store: st}
	pool := NewWorkerPool("pod-1", st, fastQueueConfig(), executor, slog.New(slog.DiscardHandler))

	for _, id := range []string{"run-a", "run-b", "run-c"} {
		enqueueRun(t, st, id)
	}

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		for _, id := range []string{"run-a", "run-b", "run-c"} {
			if runStatus(t, st, id) != models.RunStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	executed := executor.executedRuns()
	assert.Len(t, executed, 3)
	seen := map[string]int{}
	for _, id := range executed {
		seen[id]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "run %s executed more than once", id)
	}
}

func TestWorkerPool_CancelRun(t *testing.T) {
	st := store.NewMemoryStore()
	executor := &stubExecutor{
		store:   st,
		release: make(chan struct{}),
		started: make(chan string, 1),
	}
	pool := NewWorkerPool("pod-1", st, fastQueueConfig(), executor, slog.New(slog.DiscardHandler))

	enqueueRun(t, st, "run-cancel")
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	select {
	case <-executor.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}

	assert.False(t, pool.CancelRun("missing"))
	assert.True(t, pool.CancelRun("run-cancel"))

	require.Eventually(t, func() bool {
		return runStatus(t, st, "run-cancel") == models.RunStatusCancelled
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_RespectsCapacity(t *testing.T) {
	st := store.NewMemoryStore()
	executor := &stubExecutor{store: st, release: make(chan struct{})}
	cfg := fastQueueConfig()
	cfg.MaxConcurrentRuns = 1
	pool := NewWorkerPool("pod-1", st, cfg, executor, slog.New(slog.DiscardHandler))

	enqueueRun(t, st, "run-1")
	enqueueRun(t, st, "run-2")
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		count, err := st.Runs().CountProcessing(context.Background())
		require.NoError(t, err)
		return count == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The second run must stay queued while the first holds the slot.
	time.Sleep(100 * time.Millisecond)
	count, err := st.Runs().CountProcessing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	close(executor.release)
	require.Eventually(t, func() bool {
		return runStatus(t, st, "run-1") == models.RunStatusCompleted &&
			runStatus(t, st, "run-2") == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_Health(t *testing.T) {
	st := store.NewMemoryStore()
	executor := &stubExecutor{store: st}
	cfg := fastQueueConfig()
	pool := NewWorkerPool("pod-1", st, cfg, executor, slog.New(slog.DiscardHandler))

	enqueueRun(t, st, "run-queued")
	health := pool.Health()
	assert.False(t, health.IsHealthy) // no workers before Start
	assert.True(t, health.StoreReachable)
	assert.Equal(t, 1, health.QueueDepth)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return runStatus(t, st, "run-queued") == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	health = pool.Health()
	assert.True(t, health.IsHealthy)
	assert.Equal(t, "pod-1", health.PodID)
	assert.Equal(t, cfg.WorkerCount, health.TotalWorkers)
	assert.Equal(t, 0, health.QueueDepth)
	assert.Len(t, health.WorkerStats, cfg.WorkerCount)
}

func TestWorkerPool_StartIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	pool := NewWorkerPool("pod-1", st, fastQueueConfig(), &stubExecutor{store: st}, slog.New(slog.DiscardHandler))
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Start(context.Background()))
	assert.Len(t, pool.workers, fastQueueConfig().WorkerCount)
	pool.Stop()
}

func TestRecoverStartupOrphans(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	enqueueRun(t, st, "run-orphan")
	_, err := st.Runs().ClaimNextPending(ctx, "pod-crashed")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, RecoverStartupOrphans(ctx, st, time.Millisecond, slog.New(slog.DiscardHandler)))

	assert.Equal(t, models.RunStatusFailed, runStatus(t, st, "run-orphan"))
	run, err := st.Runs().Get(ctx, "run-orphan")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ErrorLog)
}

func TestWorker_PollIntervalJitterBounds(t *testing.T) {
	cfg := fastQueueConfig()
	cfg.PollInterval = 100 * time.Millisecond
	cfg.PollIntervalJitter = 20 * time.Millisecond
	w := NewWorker("w-0", "pod-1", store.NewMemoryStore(), cfg, nil, nil, slog.New(slog.DiscardHandler))

	for i := 0; i < 50; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}
