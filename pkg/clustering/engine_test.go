package clustering

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge/seoforge/pkg/embedding"
	"github.com/seoforge/seoforge/pkg/llm"
	"github.com/seoforge/seoforge/pkg/models"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	cache, err := embedding.NewCache(&embedding.MockProvider{Dimensions: 128}, nil, 1000, 100, logger)
	require.NoError(t, err)
	return NewEngine(cache, nil, logger)
}

func testParams() Params {
	return Params{
		SimilarityThreshold: 0.35,
		MinClusterSize:      2,
		MaxClusterSize:      100,
		MaxClusters:         50,
		SemanticWeight:      1.0,
		IntentWeight:        0.0,
	}
}

// Two obvious topic groups plus one loner.
func topicCandidates() []Candidate {
	mk := func(phrase string, intent models.Intent, volume int64) Candidate {
		return Candidate{Phrase: phrase, Intent: intent, Volume: volume}
	}
	return []Candidate{
		mk("email marketing tools", models.IntentCommercial, 9000),
		mk("email marketing software", models.IntentCommercial, 7000),
		mk("email marketing tips", models.IntentInformational, 5000),
		mk("email marketing automation", models.IntentCommercial, 4000),
		mk("crm pricing comparison", models.IntentCommercial, 6000),
		mk("crm pricing plans", models.IntentCommercial, 3000),
		mk("crm pricing guide", models.IntentInformational, 2000),
		mk("underwater basket weaving", models.IntentInformational, 10),
	}
}

func TestCluster_GroupsRelatedPhrases(t *testing.T) {
	e := testEngine(t)
	result, err := e.Cluster(context.Background(), topicCandidates(), testParams())
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(result.Clusters), 2)

	// Phrases sharing a topic land in one cluster.
	emailCluster := result.Assignments["email marketing tools"]
	require.NotEmpty(t, emailCluster)
	assert.Equal(t, emailCluster, result.Assignments["email marketing software"])

	crmCluster := result.Assignments["crm pricing comparison"]
	require.NotEmpty(t, crmCluster)
	assert.Equal(t, crmCluster, result.Assignments["crm pricing plans"])
	assert.NotEqual(t, emailCluster, crmCluster)

	// The loner is an outlier.
	assert.Contains(t, result.Outliers, "underwater basket weaving")
	_, assigned := result.Assignments["underwater basket weaving"]
	assert.False(t, assigned)
}

func TestCluster_CoverageAndAssignmentsConsistent(t *testing.T) {
	e := testEngine(t)
	candidates := topicCandidates()
	result, err := e.Cluster(context.Background(), candidates, testParams())
	require.NoError(t, err)

	// Every input phrase is either assigned or an outlier, never both.
	outliers := map[string]bool{}
	for _, o := range result.Outliers {
		outliers[o] = true
	}
	for _, c := range candidates {
		phrase := models.NormalizePhrase(c.Phrase)
		_, assigned := result.Assignments[phrase]
		assert.True(t, assigned != outliers[phrase], "phrase %q must be exactly one of assigned/outlier", phrase)
	}

	clustered := 0
	for _, c := range result.Clusters {
		clustered += len(c.Members)
	}
	assert.InDelta(t, float64(clustered)/float64(len(candidates)), result.Quality.Coverage, 1e-9)
}

func TestCluster_Deterministic(t *testing.T) {
	e := testEngine(t)
	first, err := e.Cluster(context.Background(), topicCandidates(), testParams())
	require.NoError(t, err)
	second, err := e.Cluster(context.Background(), topicCandidates(), testParams())
	require.NoError(t, err)

	require.Equal(t, len(first.Clusters), len(second.Clusters))
	// IDs derive from the member phrases, so reruns over the same universe
	// produce identical cluster records.
	for i := range first.Clusters {
		assert.Equal(t, first.Clusters[i].ID, second.Clusters[i].ID)
		assert.Equal(t, first.Clusters[i].Members, second.Clusters[i].Members)
	}
	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Quality.WithinClusterSimilarity, second.Quality.WithinClusterSimilarity)
}

func TestClusterID_ContentDerived(t *testing.T) {
	a := clusterID([]string{"crm pricing guide", "crm pricing plans"})
	assert.Equal(t, a, clusterID([]string{"crm pricing guide", "crm pricing plans"}))
	assert.NotEqual(t, a, clusterID([]string{"crm pricing guide"}))
	// The separator keeps concatenation ambiguity out of the hash.
	assert.NotEqual(t, clusterID([]string{"ab", "c"}), clusterID([]string{"a", "bc"}))
	assert.Len(t, a, 32)
}

func TestCluster_LabelsAreMeaningful(t *testing.T) {
	e := testEngine(t)
	result, err := e.Cluster(context.Background(), topicCandidates(), testParams())
	require.NoError(t, err)

	labels := map[string]bool{}
	for _, c := range result.Clusters {
		labels[c.Label] = true
	}
	// "email" and "crm"/"pricing" dominate their clusters' token counts.
	assert.True(t, labels["email"] || labels["marketing"], "labels: %v", labels)
	assert.True(t, labels["crm"] || labels["pricing"], "labels: %v", labels)
}

func TestCluster_RejectsInvalidParams(t *testing.T) {
	e := testEngine(t)
	candidates := topicCandidates()

	params := testParams()
	params.SimilarityThreshold = 0.95
	_, err := e.Cluster(context.Background(), candidates, params)
	assert.ErrorContains(t, err, "similarity_threshold")

	params = testParams()
	params.MinClusterSize = 1
	_, err = e.Cluster(context.Background(), candidates, params)
	assert.ErrorContains(t, err, "min_cluster_size")

	params = testParams()
	params.SemanticWeight = 0.5
	params.IntentWeight = 0.2
	_, err = e.Cluster(context.Background(), candidates, params)
	assert.ErrorContains(t, err, "semantic_weight")
}

func TestCluster_BusyGuard(t *testing.T) {
	e := testEngine(t)

	busy.Store(true)
	_, err := e.Cluster(context.Background(), topicCandidates(), testParams())
	assert.ErrorIs(t, err, ErrBusy)
	busy.Store(false)

	_, err = e.Cluster(context.Background(), topicCandidates(), testParams())
	assert.NoError(t, err)
}

func TestCluster_EmptyInput(t *testing.T) {
	e := testEngine(t)
	result, err := e.Cluster(context.Background(), nil, testParams())
	require.NoError(t, err)
	assert.Empty(t, result.Clusters)
	assert.Empty(t, result.Outliers)
}

func TestCluster_IntentMixSumsToOne(t *testing.T) {
	e := testEngine(t)
	result, err := e.Cluster(context.Background(), topicCandidates(), testParams())
	require.NoError(t, err)
	require.NotEmpty(t, result.Clusters)

	for _, c := range result.Clusters {
		var sum float64
		for _, share := range c.IntentMix {
			sum += share
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestCluster_LLMEnhancedLabels(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	cache, err := embedding.NewCache(&embedding.MockProvider{Dimensions: 128}, nil, 1000, 100, logger)
	require.NoError(t, err)
	e := NewEngine(cache, llm.NewMockClient(), logger)

	params := testParams()
	params.EnhanceLabels = true
	result, err := e.Cluster(context.Background(), topicCandidates(), params)
	require.NoError(t, err)
	for _, c := range result.Clusters {
		assert.NotEmpty(t, c.Label)
	}
}

func TestCluster_LLMLabelFailureKeepsHeuristic(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	cache, err := embedding.NewCache(&embedding.MockProvider{Dimensions: 128}, nil, 1000, 100, logger)
	require.NoError(t, err)
	mock := llm.NewMockClient()
	mock.FailLabel = assert.AnError
	e := NewEngine(cache, mock, logger)

	params := testParams()
	params.EnhanceLabels = true
	result, err := e.Cluster(context.Background(), topicCandidates(), params)
	require.NoError(t, err)
	for _, c := range result.Clusters {
		assert.NotEmpty(t, c.Label, "heuristic label survives LLM failure")
	}
}

func TestCluster_MaxClustersCap(t *testing.T) {
	e := testEngine(t)
	params := testParams()
	params.MaxClusters = 1

	result, err := e.Cluster(context.Background(), topicCandidates(), params)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Clusters), 1)
}

func TestCluster_CancelledContext(t *testing.T) {
	e := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Small inputs may finish between checks; all that matters is no hang
	// and either success or a context error.
	_, err := e.Cluster(ctx, topicCandidates(), testParams())
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestHeuristicLabel_TieBreaks(t *testing.T) {
	global := map[string]int{"marketing": 10, "email": 3}
	label := heuristicLabel([]string{"email marketing", "email marketing"}, global)
	// Local counts tie at 2 each; global frequency prefers marketing.
	assert.Equal(t, "marketing", label)
}

func TestValidateClusters_FindsIssues(t *testing.T) {
	result := &Result{Clusters: []ClusterResult{{
		ID:      "c1",
		Label:   "mixed",
		Members: []string{"a", "a"},
		IntentMix: map[models.Intent]float64{
			models.IntentCommercial:    0.5,
			models.IntentInformational: 0.5,
		},
	}}}
	issues := validateClusters(result, Params{SimilarityThreshold: 0.4})

	kinds := map[string]string{}
	for _, issue := range issues {
		kinds[issue.Kind] = issue.Severity
	}
	assert.Equal(t, "warning", kinds["size"])
	assert.Equal(t, "warning", kinds["coherence"])
	assert.Equal(t, "warning", kinds["intent"])
	assert.Equal(t, "error", kinds["duplicate"])
}
