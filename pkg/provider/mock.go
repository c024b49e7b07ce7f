package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/seoforge/seoforge/pkg/models"
)

// MockProvider synthesizes deterministic metrics from the phrase itself. It
// backs local development, the end-to-end suite, and the fallback path when
// every real vendor is down.
type MockProvider struct {
	name string
}

// NewMockProvider returns a mock vendor named MockSource.
func NewMockProvider() *MockProvider {
	return &MockProvider{name: MockSource}
}

// Name implements Provider.
func (m *MockProvider) Name() string { return m.name }

// GetKeywordMetrics implements Provider. The same phrase always yields the
// same record.
func (m *MockProvider) GetKeywordMetrics(_ context.Context, phrase string, _ MetricsOptions) (*MetricsRecord, error) {
	return m.synthesize(phrase), nil
}

// GetBulkKeywordMetrics implements Provider.
func (m *MockProvider) GetBulkKeywordMetrics(_ context.Context, phrases []string, _ MetricsOptions) ([]BulkResult, error) {
	results := make([]BulkResult, len(phrases))
	for i, phrase := range phrases {
		results[i] = BulkResult{Record: m.synthesize(phrase)}
	}
	return results, nil
}

// GetKeywordSuggestions implements Provider.
func (m *MockProvider) GetKeywordSuggestions(_ context.Context, seed string, opts SuggestOptions) ([]string, error) {
	patterns := []string{"best %s", "%s guide", "%s for beginners", "%s vs alternatives",
		"how to use %s", "%s pricing", "%s examples", "free %s"}
	limit := opts.Limit
	if limit <= 0 || limit > len(patterns) {
		limit = len(patterns)
	}
	suggestions := make([]string, 0, limit)
	for _, p := range patterns[:limit] {
		suggestions = append(suggestions, models.NormalizePhrase(fmt.Sprintf(p, seed)))
	}
	return suggestions, nil
}

// Health implements Provider. The mock is always healthy with unlimited quota.
func (m *MockProvider) Health(context.Context) HealthStatus {
	return HealthStatus{
		Provider:       m.name,
		Healthy:        true,
		QuotaLimit:     -1,
		QuotaRemaining: -1,
		ResetAt:        time.Now().Add(24 * time.Hour),
	}
}

// CostPerRequest implements Provider. Mock calls are free.
func (m *MockProvider) CostPerRequest() float64 { return 0 }

func (m *MockProvider) synthesize(phrase string) *MetricsRecord {
	return Synthesize(phrase)
}

// Synthesize produces a deterministic fallback record for a phrase. Volume
// decays with phrase length (long-tail phrases search less), difficulty and
// the rest derive from a stable hash.
func Synthesize(phrase string) *MetricsRecord {
	normalized := models.NormalizePhrase(phrase)
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalized))
	seed := h.Sum64()

	tokens := models.TokenCount(normalized)
	if tokens < 1 {
		tokens = 1
	}

	// Base volume shrinks roughly an order of magnitude per extra token.
	base := int64(50000)
	for i := 1; i < tokens && base > 10; i++ {
		base /= 8
	}
	volume := base/2 + int64(seed%uint64(base/2+1))
	difficulty := int(seed >> 8 % 101)
	competition := int(seed >> 16 % 101)
	cpc := float64(seed>>24%2000) / 100
	trend := float64(int64(seed>>32%201)-100) / 100

	return &MetricsRecord{
		Phrase:      normalized,
		Volume:      &volume,
		Difficulty:  &difficulty,
		Competition: &competition,
		CPC:         &cpc,
		Trend:       &trend,
		Source:      MockSource,
		Confidence:  MockConfidence,
	}
}
