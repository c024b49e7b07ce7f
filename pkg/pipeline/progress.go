package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/seoforge/seoforge/pkg/events"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/store"
)

// progressTracker turns stage-local fractions into the run's weighted
// overall progress. Every update publishes an event; persistence is throttled
// to ProgressPersistStep deltas and the store merges snapshots as maxima, so
// out-of-order writes never regress.
type progressTracker struct {
	runs        store.RunStore
	bus         events.Publisher
	runID       string
	persistStep float64

	mu            sync.Mutex
	base          float64 // weight of completed stages
	stage         models.Stage
	stageWeight   float64
	lastPersisted float64
}

func (t *progressTracker) beginStage(stage models.Stage, weight float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.stageWeight = weight
}

func (t *progressTracker) completeStage(weight float64) {
	t.mu.Lock()
	t.base += weight
	t.stageWeight = 0
	overall := t.base
	t.mu.Unlock()
	t.persist(overall, true)
}

// stageProgress receives a stage-local fraction (0..100) from the running
// stage engine. Safe for concurrent batch workers.
func (t *progressTracker) stageProgress(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 100 {
		fraction = 100
	}

	t.mu.Lock()
	overall := t.base + t.stageWeight*fraction/100
	stage := t.stage
	t.mu.Unlock()

	t.bus.Publish(events.RunChannel(t.runID), events.StageProgressPayload{
		Type:      events.EventTypeStageProgress,
		RunID:     t.runID,
		Stage:     stage,
		Progress:  fraction,
		Overall:   overall,
		Timestamp: events.Now(),
	})
	t.persist(overall, false)
}

func (t *progressTracker) persist(overall float64, force bool) {
	t.mu.Lock()
	if !force && overall-t.lastPersisted < t.persistStep {
		t.mu.Unlock()
		return
	}
	if overall > t.lastPersisted {
		t.lastPersisted = overall
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Best effort: a missed snapshot is superseded by the next one.
	_ = t.runs.UpdateProgress(ctx, t.runID, overall)
}
