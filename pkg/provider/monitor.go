package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// prober is implemented by providers that support an active reachability
// check. The mock never needs one.
type prober interface {
	Probe(ctx context.Context) error
}

// Monitor periodically probes every configured vendor so auto-selection
// works from fresh health data instead of discovering dead vendors on the
// request path. It also caches the latest health snapshot for the API.
type Monitor struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger

	statusMu  sync.RWMutex
	statuses  []HealthStatus
	lastCheck time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewMonitor creates a health monitor over the registry's vendors.
func NewMonitor(registry *Registry, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		logger:   logger.With("component", "provider_monitor"),
		done:     make(chan struct{}),
	}
}

// Start launches the probe loop. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		<-m.done
	})
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probeAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {
	for _, p := range m.registry.Providers() {
		pr, ok := p.(prober)
		if !ok {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pr.Probe(probeCtx); err != nil {
			m.logger.Warn("provider probe failed", "provider", p.Name(), "error", err)
		}
		cancel()
	}

	snapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	statuses := m.registry.Health(snapCtx)
	cancel()

	m.statusMu.Lock()
	m.statuses = statuses
	m.lastCheck = time.Now()
	m.statusMu.Unlock()
}

// Statuses returns the most recent health snapshot and when it was taken.
// Before the first probe completes it falls back to a live registry check.
func (m *Monitor) Statuses(ctx context.Context) ([]HealthStatus, time.Time) {
	m.statusMu.RLock()
	statuses, lastCheck := m.statuses, m.lastCheck
	m.statusMu.RUnlock()
	if statuses == nil {
		return m.registry.Health(ctx), time.Now()
	}
	return append([]HealthStatus(nil), statuses...), lastCheck
}
