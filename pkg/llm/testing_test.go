package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge/seoforge/pkg/models"
)

func TestMockClient_ExpandDeterministic(t *testing.T) {
	m := NewMockClient()
	req := ExpansionRequest{Seeds: []string{"email marketing"}, Limit: 5}

	first, _, err := m.Expand(context.Background(), req)
	require.NoError(t, err)
	second, _, err := m.Expand(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 5)
	for _, p := range first {
		assert.Equal(t, "email marketing", p.Seed)
		assert.NotEqual(t, "email marketing", p.Phrase)
		assert.GreaterOrEqual(t, p.Confidence, 0.55)
		assert.LessOrEqual(t, p.Confidence, 0.96)
	}
}

func TestMockClient_ExpandHonorsAvoidList(t *testing.T) {
	m := NewMockClient()
	avoided := "email marketing software"
	out, _, err := m.Expand(context.Background(), ExpansionRequest{
		Seeds: []string{"email marketing"},
		Avoid: []string{avoided},
	})
	require.NoError(t, err)
	for _, p := range out {
		assert.NotEqual(t, avoided, p.Phrase)
	}
}

func TestMockClient_ClassifyIntents(t *testing.T) {
	m := NewMockClient()
	phrases := []string{
		"buy crm software",
		"best crm tools",
		"what is a crm",
		"salesforce login page",
	}
	results, _, err := m.ClassifyIntents(context.Background(), phrases)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, models.IntentTransactional, results[0].Intent)
	assert.Equal(t, models.IntentCommercial, results[1].Intent)
	assert.Equal(t, models.IntentInformational, results[2].Intent)
	assert.Equal(t, models.IntentNavigational, results[3].Intent)
}

func TestMockClient_SuggestLabel(t *testing.T) {
	m := NewMockClient()
	label, _, err := m.SuggestLabel(context.Background(), []string{
		"email marketing tools",
		"email marketing software",
		"email campaign ideas",
	})
	require.NoError(t, err)
	assert.Contains(t, label, "email")
}
