package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
)

// ErrNoHealthyProvider is returned when no vendor can serve a call and the
// mock fallback is disabled.
var ErrNoHealthyProvider = errors.New("no healthy provider available")

// Registry fronts the configured vendors with auto-selection and failover.
// It accumulates usage for budget enforcement; the pipeline drains it with
// TakeUsage after each stage.
type Registry struct {
	providers []Provider
	order     map[string]int // configuration preference order
	mock      *MockProvider

	mockFallback bool
	mockOnly     bool
	logger       *slog.Logger

	usageMu sync.Mutex
	usage   models.APIUsage
}

// NewRegistry builds a registry from configuration. Vendors keep their
// configured order for deterministic tie-breaking.
func NewRegistry(cfg *config.ProvidersConfig, logger *slog.Logger) *Registry {
	r := &Registry{
		order:        make(map[string]int),
		mock:         NewMockProvider(),
		mockFallback: cfg.MockFallback,
		mockOnly:     cfg.MockOnly,
		logger:       logger.With("component", "provider_registry"),
	}
	for i, mc := range cfg.Metrics {
		r.providers = append(r.providers, NewHTTPProvider(mc, logger))
		r.order[mc.Name] = i
	}
	return r
}

// NewRegistryWithProviders builds a registry over pre-constructed providers,
// used by tests to inject scripted vendors.
func NewRegistryWithProviders(providers []Provider, mockFallback bool, logger *slog.Logger) *Registry {
	r := &Registry{
		order:        make(map[string]int),
		mock:         NewMockProvider(),
		mockFallback: mockFallback,
		logger:       logger.With("component", "provider_registry"),
	}
	for i, p := range providers {
		r.providers = append(r.providers, p)
		r.order[p.Name()] = i
	}
	return r
}

// candidates returns healthy vendors with quota remaining, best first:
// highest quota headroom, then lowest latency, then configuration order.
func (r *Registry) candidates(ctx context.Context) []Provider {
	if r.mockOnly {
		return nil
	}
	type scored struct {
		p      Provider
		health HealthStatus
	}
	var healthy []scored
	for _, p := range r.providers {
		h := p.Health(ctx)
		if h.Healthy && (h.QuotaRemaining > 0 || h.QuotaLimit < 0) {
			healthy = append(healthy, scored{p: p, health: h})
		}
	}
	sort.SliceStable(healthy, func(i, j int) bool {
		hi, hj := healthy[i].health, healthy[j].health
		ri := quotaHeadroom(hi)
		rj := quotaHeadroom(hj)
		if ri != rj {
			return ri > rj
		}
		if hi.LastLatency != hj.LastLatency {
			return hi.LastLatency < hj.LastLatency
		}
		return r.order[hi.Provider] < r.order[hj.Provider]
	})
	out := make([]Provider, len(healthy))
	for i, s := range healthy {
		out[i] = s.p
	}
	return out
}

func quotaHeadroom(h HealthStatus) float64 {
	if h.QuotaLimit <= 0 {
		return 1
	}
	return float64(h.QuotaRemaining) / float64(h.QuotaLimit)
}

// GetKeywordMetrics tries vendors best-first; on hard failure of all vendors
// it synthesizes metrics when the fallback is enabled.
func (r *Registry) GetKeywordMetrics(ctx context.Context, phrase string, opts MetricsOptions) (*MetricsRecord, error) {
	var lastErr error
	for _, p := range r.candidates(ctx) {
		record, err := p.GetKeywordMetrics(ctx, phrase, opts)
		r.recordUsage(p, 1, err)
		if err == nil {
			return record, nil
		}
		lastErr = err
		r.logger.Warn("provider call failed, trying next",
			"provider", p.Name(), "error", err)
	}
	if r.mockFallback {
		record, _ := r.mock.GetKeywordMetrics(ctx, phrase, opts)
		return record, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoHealthyProvider
}

// GetBulkKeywordMetrics preserves input order. Auth failures reject the whole
// batch and fail over to the next vendor; per-item failures are filled from
// the mock when the fallback is enabled, otherwise surfaced per item.
func (r *Registry) GetBulkKeywordMetrics(ctx context.Context, phrases []string, opts MetricsOptions) ([]BulkResult, error) {
	var lastErr error
	for _, p := range r.candidates(ctx) {
		results, err := p.GetBulkKeywordMetrics(ctx, phrases, opts)
		r.recordUsage(p, 1, err)
		if err != nil {
			lastErr = err
			r.logger.Warn("bulk metrics call failed, trying next",
				"provider", p.Name(), "count", len(phrases), "error", err)
			continue
		}
		if r.mockFallback {
			for i := range results {
				if results[i].Err != nil {
					results[i] = BulkResult{Record: Synthesize(phrases[i])}
				}
			}
		}
		return results, nil
	}
	if r.mockFallback {
		return r.synthesizeBulk(phrases), nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoHealthyProvider
}

// GetKeywordSuggestions tries vendors best-first, then the mock.
func (r *Registry) GetKeywordSuggestions(ctx context.Context, seed string, opts SuggestOptions) ([]string, error) {
	var lastErr error
	for _, p := range r.candidates(ctx) {
		phrases, err := p.GetKeywordSuggestions(ctx, seed, opts)
		r.recordUsage(p, 1, err)
		if err == nil {
			return phrases, nil
		}
		lastErr = err
	}
	if r.mockFallback {
		return r.mock.GetKeywordSuggestions(ctx, seed, opts)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoHealthyProvider
}

// Health reports every configured vendor plus the mock.
func (r *Registry) Health(ctx context.Context) []HealthStatus {
	statuses := make([]HealthStatus, 0, len(r.providers)+1)
	for _, p := range r.providers {
		statuses = append(statuses, p.Health(ctx))
	}
	if r.mockFallback || r.mockOnly {
		statuses = append(statuses, r.mock.Health(ctx))
	}
	return statuses
}

// Providers exposes the configured vendors for the health monitor.
func (r *Registry) Providers() []Provider { return r.providers }

// TakeUsage drains accumulated usage since the previous call.
func (r *Registry) TakeUsage() models.APIUsage {
	r.usageMu.Lock()
	defer r.usageMu.Unlock()
	out := r.usage
	r.usage = models.APIUsage{}
	return out
}

func (r *Registry) recordUsage(p Provider, requests int64, err error) {
	r.usageMu.Lock()
	defer r.usageMu.Unlock()
	r.usage.Record(p.Name(), requests, 0, p.CostPerRequest()*float64(requests), err != nil)
}

func (r *Registry) synthesizeBulk(phrases []string) []BulkResult {
	results := make([]BulkResult, len(phrases))
	for i, phrase := range phrases {
		results[i] = BulkResult{Record: Synthesize(phrase)}
	}
	return results
}

// String describes the registry for startup logging.
func (r *Registry) String() string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return fmt.Sprintf("providers=%v mock_fallback=%t mock_only=%t", names, r.mockFallback, r.mockOnly)
}
