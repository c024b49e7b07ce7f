package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_Deterministic(t *testing.T) {
	m := NewMockProvider()

	a, err := m.GetKeywordMetrics(context.Background(), "Email  Marketing Tools", MetricsOptions{})
	require.NoError(t, err)
	b, err := m.GetKeywordMetrics(context.Background(), "email marketing tools", MetricsOptions{})
	require.NoError(t, err)

	// Normalized phrases hash identically.
	assert.Equal(t, a, b)
	assert.Equal(t, MockSource, a.Source)
	assert.Equal(t, MockConfidence, a.Confidence)
	require.NotNil(t, a.Volume)
	require.NotNil(t, a.Difficulty)
	assert.GreaterOrEqual(t, *a.Difficulty, 0)
	assert.LessOrEqual(t, *a.Difficulty, 100)
}

func TestMockProvider_LongerPhrasesLowerVolume(t *testing.T) {
	m := NewMockProvider()

	short, err := m.GetKeywordMetrics(context.Background(), "seo", MetricsOptions{})
	require.NoError(t, err)
	long, err := m.GetKeywordMetrics(context.Background(),
		"how to choose the best seo tool for a small startup team", MetricsOptions{})
	require.NoError(t, err)

	assert.Greater(t, *short.Volume, *long.Volume)
}

func TestMockProvider_SuggestionsHonorLimit(t *testing.T) {
	m := NewMockProvider()

	suggestions, err := m.GetKeywordSuggestions(context.Background(), "crm software", SuggestOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, suggestions, 3)
	for _, s := range suggestions {
		assert.Contains(t, s, "crm software")
	}
}

func TestMockProvider_BulkPreservesOrder(t *testing.T) {
	m := NewMockProvider()

	phrases := []string{"zulu", "alpha", "mike"}
	results, err := m.GetBulkKeywordMetrics(context.Background(), phrases, MetricsOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, phrase := range phrases {
		require.NotNil(t, results[i].Record)
		assert.Equal(t, phrase, results[i].Record.Phrase)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
		failed bool
	}{
		{200, "", false},
		{201, "", false},
		{400, KindPermanent, true},
		{401, KindAuth, true},
		{403, KindAuth, true},
		{404, KindPermanent, true},
		{429, KindTransient, true},
		{500, KindTransient, true},
		{503, KindTransient, true},
	}
	for _, tt := range tests {
		kind, failed := classifyStatus(tt.status)
		assert.Equal(t, tt.failed, failed, "status %d", tt.status)
		assert.Equal(t, tt.kind, kind, "status %d", tt.status)
	}
}

func TestProviderError_Retryable(t *testing.T) {
	assert.True(t, NewProviderError("x", KindTransient, assert.AnError).Retryable())
	assert.False(t, NewProviderError("x", KindPermanent, assert.AnError).Retryable())
	assert.False(t, NewProviderError("x", KindAuth, assert.AnError).Retryable())
	assert.False(t, NewProviderError("x", KindQuota, assert.AnError).Retryable())
}
