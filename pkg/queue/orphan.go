package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seoforge/seoforge/pkg/store"
)

// orphanScanInterval is how often each pod scans for stale processing runs.
// All pods run the scan independently; the store-side failure is idempotent.
const orphanScanInterval = time.Minute

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically fails processing runs whose heartbeat has
// gone stale, recovering work lost to crashed pods.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(orphanScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				p.logger.Error("orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans fails processing runs with stale heartbeats.
// Failed is terminal; the owner resumes by creating a lineage run.
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	recovered, err := p.store.Runs().FailStaleProcessing(ctx, p.config.OrphanThreshold)
	if err != nil {
		return fmt.Errorf("failed to fail stale runs: %w", err)
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	if recovered > 0 {
		p.logger.Warn("recovered orphaned runs", "count", recovered)
	}
	return nil
}

// RecoverStartupOrphans performs a one-time recovery of runs that were
// processing when a pod previously crashed. Called once during startup,
// before the worker pool begins processing.
func RecoverStartupOrphans(ctx context.Context, st store.Store, threshold time.Duration, logger *slog.Logger) error {
	recovered, err := st.Runs().FailStaleProcessing(ctx, threshold)
	if err != nil {
		return fmt.Errorf("failed to recover startup orphans: %w", err)
	}
	if recovered > 0 {
		logger.Warn("recovered startup orphans from previous run", "count", recovered)
	}
	return nil
}
