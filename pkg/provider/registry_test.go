package provider

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scripted vendor for registry tests.
type fakeProvider struct {
	name    string
	health  HealthStatus
	err     error
	bulkErr error
	perItem map[string]error
	calls   int
	cost    float64
}

func (f *fakeProvider) Name() string            { return f.name }
func (f *fakeProvider) CostPerRequest() float64 { return f.cost }

func (f *fakeProvider) GetKeywordMetrics(_ context.Context, phrase string, _ MetricsOptions) (*MetricsRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	volume := int64(100)
	return &MetricsRecord{Phrase: phrase, Volume: &volume, Source: f.name, Confidence: 1}, nil
}

func (f *fakeProvider) GetBulkKeywordMetrics(_ context.Context, phrases []string, _ MetricsOptions) ([]BulkResult, error) {
	f.calls++
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	results := make([]BulkResult, len(phrases))
	for i, phrase := range phrases {
		if err, ok := f.perItem[phrase]; ok {
			results[i] = BulkResult{Err: err}
			continue
		}
		volume := int64(100)
		results[i] = BulkResult{Record: &MetricsRecord{Phrase: phrase, Volume: &volume, Source: f.name}}
	}
	return results, nil
}

func (f *fakeProvider) GetKeywordSuggestions(_ context.Context, seed string, _ SuggestOptions) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []string{seed + " idea"}, nil
}

func (f *fakeProvider) Health(context.Context) HealthStatus { return f.health }

func healthyStatus(name string, remaining, limit int64, latency time.Duration) HealthStatus {
	return HealthStatus{
		Provider: name, Healthy: true,
		QuotaLimit: limit, QuotaUsed: limit - remaining, QuotaRemaining: remaining,
		LastLatency: latency,
	}
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRegistry_SelectsHighestQuotaHeadroom(t *testing.T) {
	low := &fakeProvider{name: "low", health: healthyStatus("low", 10, 100, time.Millisecond)}
	high := &fakeProvider{name: "high", health: healthyStatus("high", 90, 100, time.Second)}
	r := NewRegistryWithProviders([]Provider{low, high}, false, testLogger())

	record, err := r.GetKeywordMetrics(context.Background(), "seo tools", MetricsOptions{})
	require.NoError(t, err)
	assert.Equal(t, "high", record.Source)
	assert.Equal(t, 1, high.calls)
	assert.Zero(t, low.calls)
}

func TestRegistry_TieBreaksOnLatencyThenOrder(t *testing.T) {
	slow := &fakeProvider{name: "slow", health: healthyStatus("slow", 50, 100, 800*time.Millisecond)}
	fast := &fakeProvider{name: "fast", health: healthyStatus("fast", 50, 100, 20*time.Millisecond)}
	r := NewRegistryWithProviders([]Provider{slow, fast}, false, testLogger())

	record, err := r.GetKeywordMetrics(context.Background(), "seo tools", MetricsOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fast", record.Source)
}

func TestRegistry_SkipsUnhealthyAndExhausted(t *testing.T) {
	down := &fakeProvider{name: "down", health: HealthStatus{Provider: "down", Healthy: false}}
	exhausted := &fakeProvider{name: "dry", health: healthyStatus("dry", 0, 100, time.Millisecond)}
	ok := &fakeProvider{name: "ok", health: healthyStatus("ok", 5, 100, time.Millisecond)}
	r := NewRegistryWithProviders([]Provider{down, exhausted, ok}, false, testLogger())

	record, err := r.GetKeywordMetrics(context.Background(), "seo tools", MetricsOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", record.Source)
	assert.Zero(t, down.calls)
	assert.Zero(t, exhausted.calls)
}

func TestRegistry_FailsOverThenMockFallback(t *testing.T) {
	failing := &fakeProvider{
		name:   "failing",
		health: healthyStatus("failing", 50, 100, time.Millisecond),
		err:    NewProviderError("failing", KindTransient, errors.New("upstream down")),
	}
	r := NewRegistryWithProviders([]Provider{failing}, true, testLogger())

	record, err := r.GetKeywordMetrics(context.Background(), "seo tools", MetricsOptions{})
	require.NoError(t, err)
	assert.Equal(t, MockSource, record.Source)
	assert.Equal(t, MockConfidence, record.Confidence)
	assert.Equal(t, 1, failing.calls)
}

func TestRegistry_NoFallbackSurfacesError(t *testing.T) {
	failing := &fakeProvider{
		name:   "failing",
		health: healthyStatus("failing", 50, 100, time.Millisecond),
		err:    NewProviderError("failing", KindTransient, errors.New("upstream down")),
	}
	r := NewRegistryWithProviders([]Provider{failing}, false, testLogger())

	_, err := r.GetKeywordMetrics(context.Background(), "seo tools", MetricsOptions{})
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindTransient, pe.Kind)
}

func TestRegistry_NoProvidersNoFallback(t *testing.T) {
	r := NewRegistryWithProviders(nil, false, testLogger())
	_, err := r.GetKeywordMetrics(context.Background(), "seo tools", MetricsOptions{})
	assert.ErrorIs(t, err, ErrNoHealthyProvider)
}

func TestRegistry_BulkPreservesOrderAndFillsPerItemFailures(t *testing.T) {
	vendor := &fakeProvider{
		name:   "vendor",
		health: healthyStatus("vendor", 50, 100, time.Millisecond),
		perItem: map[string]error{
			"broken phrase": NewProviderError("vendor", KindPermanent, errors.New("no data")),
		},
	}
	r := NewRegistryWithProviders([]Provider{vendor}, true, testLogger())

	phrases := []string{"alpha", "broken phrase", "zulu"}
	results, err := r.GetBulkKeywordMetrics(context.Background(), phrases, MetricsOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "vendor", results[0].Record.Source)
	assert.Equal(t, "alpha", results[0].Record.Phrase)
	// The broken item is synthesized, not dropped; order holds.
	require.NotNil(t, results[1].Record)
	assert.Equal(t, MockSource, results[1].Record.Source)
	assert.Equal(t, "broken phrase", results[1].Record.Phrase)
	assert.Equal(t, "zulu", results[2].Record.Phrase)
}

func TestRegistry_BulkAuthFailureFailsOverWholeBatch(t *testing.T) {
	unauthorized := &fakeProvider{
		name:    "unauthorized",
		health:  healthyStatus("unauthorized", 90, 100, time.Millisecond),
		bulkErr: NewProviderError("unauthorized", KindAuth, errors.New("invalid key")),
	}
	backup := &fakeProvider{name: "backup", health: healthyStatus("backup", 10, 100, time.Millisecond)}
	r := NewRegistryWithProviders([]Provider{unauthorized, backup}, false, testLogger())

	results, err := r.GetBulkKeywordMetrics(context.Background(), []string{"a", "b"}, MetricsOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "backup", results[0].Record.Source)
	assert.Equal(t, 1, unauthorized.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestRegistry_UsageAccounting(t *testing.T) {
	vendor := &fakeProvider{
		name:   "vendor",
		health: healthyStatus("vendor", 50, 100, time.Millisecond),
		cost:   0.01,
	}
	r := NewRegistryWithProviders([]Provider{vendor}, false, testLogger())

	_, err := r.GetKeywordMetrics(context.Background(), "a", MetricsOptions{})
	require.NoError(t, err)
	_, err = r.GetBulkKeywordMetrics(context.Background(), []string{"b", "c"}, MetricsOptions{})
	require.NoError(t, err)

	usage := r.TakeUsage()
	assert.Equal(t, int64(2), usage.Providers["vendor"].Requests)
	assert.InDelta(t, 0.02, usage.TotalCost, 1e-9)

	// Drained: a second take is empty.
	assert.Empty(t, r.TakeUsage().Providers)
}

func TestRegistry_HealthIncludesMockWhenEnabled(t *testing.T) {
	vendor := &fakeProvider{name: "vendor", health: healthyStatus("vendor", 50, 100, 0)}
	r := NewRegistryWithProviders([]Provider{vendor}, false, testLogger())
	assert.Len(t, r.Health(context.Background()), 1)

	r = NewRegistryWithProviders([]Provider{vendor}, true, testLogger())
	statuses := r.Health(context.Background())
	require.Len(t, statuses, 2)
	assert.Equal(t, MockSource, statuses[1].Provider)
}
