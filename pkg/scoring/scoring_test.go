package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
)

func defaultOptions() Options {
	return Options{
		Weights:       config.DefaultScoringWeights(),
		Normalization: NormalizeMinMax,
	}
}

func TestScoreBatch_OutputOrderMatchesInput(t *testing.T) {
	inputs := []Input{
		{Phrase: "zulu", Tier: models.TierTier3, Volume: 100, Difficulty: 80, Intent: models.IntentInformational, Relevance: 0.3},
		{Phrase: "alpha", Tier: models.TierDream100, Volume: 9000, Difficulty: 20, Intent: models.IntentTransactional, Relevance: 0.9},
	}
	results, err := ScoreBatch(inputs, defaultOptions())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "zulu", results[0].Phrase)
	assert.Equal(t, "alpha", results[1].Phrase)
}

func TestScoreBatch_ScoresStayInUnitInterval(t *testing.T) {
	inputs := []Input{
		{Phrase: "a", Tier: models.TierDream100, Volume: 0, Difficulty: 100, Intent: models.IntentNavigational, Relevance: 0, Trend: -1},
		{Phrase: "b", Tier: models.TierDream100, Volume: 1 << 40, Difficulty: 0, Intent: models.IntentTransactional, Relevance: 1, Trend: 1},
	}
	results, err := ScoreBatch(inputs, defaultOptions())
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.BlendedScore, 0.0)
		assert.LessOrEqual(t, r.BlendedScore, 1.0)
		for _, c := range []float64{r.Components.Volume, r.Components.Intent,
			r.Components.Relevance, r.Components.Trend, r.Components.Ease} {
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 1.0)
		}
	}
}

func TestScoreBatch_RejectsBadWeights(t *testing.T) {
	opts := defaultOptions()
	opts.Weights.Dream100.Volume = 0.9 // pushes sum past 1.01
	_, err := ScoreBatch([]Input{{Phrase: "a", Tier: models.TierDream100}}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dream100")
}

func TestScoreBatch_SingleItemFallsBackToLogScale(t *testing.T) {
	results, err := ScoreBatch([]Input{
		{Phrase: "only", Tier: models.TierTier2, Volume: 999999, Difficulty: 50,
			Intent: models.IntentCommercial, Relevance: 0.5},
	}, defaultOptions())
	require.NoError(t, err)
	// log10(10^6)/6 = 1.0 for a million-volume phrase.
	assert.InDelta(t, 1.0, results[0].Components.Volume, 0.01)
}

func TestScoreBatch_IntentTable(t *testing.T) {
	mk := func(intent models.Intent) Input {
		return Input{Phrase: string(intent), Tier: models.TierTier2, Volume: 100, Intent: intent}
	}
	results, err := ScoreBatch([]Input{
		mk(models.IntentTransactional), mk(models.IntentCommercial),
		mk(models.IntentInformational), mk(models.IntentNavigational),
		mk(models.IntentUnknown),
	}, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1.0, results[0].Components.Intent)
	assert.Equal(t, 0.8, results[1].Components.Intent)
	assert.Equal(t, 0.6, results[2].Components.Intent)
	assert.Equal(t, 0.4, results[3].Components.Intent)
	assert.Equal(t, 0.6, results[4].Components.Intent)
}

func TestScoreBatch_QuickWinRule(t *testing.T) {
	inputs := []Input{
		// Easy, high volume, strong profile: quick win.
		{Phrase: "winner", Tier: models.TierDream100, Volume: 5000, Difficulty: 10,
			Intent: models.IntentTransactional, Relevance: 0.9, Trend: 0.5},
		// Identical but volume below 1000: not a quick win.
		{Phrase: "small", Tier: models.TierDream100, Volume: 900, Difficulty: 10,
			Intent: models.IntentTransactional, Relevance: 0.9, Trend: 0.5},
		// Identical but too difficult (ease < 0.7): not a quick win.
		{Phrase: "hard", Tier: models.TierDream100, Volume: 5000, Difficulty: 40,
			Intent: models.IntentTransactional, Relevance: 0.9, Trend: 0.5},
	}
	results, err := ScoreBatch(inputs, defaultOptions())
	require.NoError(t, err)
	assert.True(t, results[0].QuickWin)
	assert.False(t, results[1].QuickWin)
	assert.False(t, results[2].QuickWin)
}

func TestApplyClusterMedianRule(t *testing.T) {
	inputs := []Input{
		{Phrase: "big", Tier: models.TierDream100, Volume: 9000, Difficulty: 10,
			Intent: models.IntentTransactional, Relevance: 0.9, ClusterID: "c1"},
		{Phrase: "mid", Tier: models.TierDream100, Volume: 5000, Difficulty: 10,
			Intent: models.IntentTransactional, Relevance: 0.9, ClusterID: "c1"},
		{Phrase: "low", Tier: models.TierDream100, Volume: 2000, Difficulty: 10,
			Intent: models.IntentTransactional, Relevance: 0.9, ClusterID: "c1"},
	}
	results, err := ScoreBatch(inputs, defaultOptions())
	require.NoError(t, err)
	require.True(t, results[2].QuickWin, "precondition: quick win before cluster rule")

	ApplyClusterMedianRule(inputs, results)
	assert.True(t, results[0].QuickWin)
	assert.True(t, results[1].QuickWin, "median itself stays")
	assert.False(t, results[2].QuickWin, "below cluster median volume")
}

func TestScoreBatch_SeasonalAdjustment(t *testing.T) {
	opts := defaultOptions()
	opts.Seasonal = []models.SeasonalFactor{{
		Name:       "holiday",
		StartDate:  "11-15",
		EndDate:    "01-15",
		Multiplier: 1.5,
		Phrases:    []string{"christmas gift guide"},
	}}

	input := []Input{
		{Phrase: "christmas gift guide", Tier: models.TierTier2, Volume: 4000,
			Difficulty: 50, Intent: models.IntentCommercial, Relevance: 0.5},
		{Phrase: "summer picnic ideas", Tier: models.TierTier2, Volume: 4000,
			Difficulty: 50, Intent: models.IntentCommercial, Relevance: 0.5},
	}

	// Inside the wrap-around window.
	opts.Now = func() time.Time { return time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC) }
	inWindow, err := ScoreBatch(input, opts)
	require.NoError(t, err)
	assert.Equal(t, "holiday", inWindow[0].SeasonalApplied)
	assert.Empty(t, inWindow[1].SeasonalApplied)

	// Outside the window the factor is inert.
	opts.Now = func() time.Time { return time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC) }
	outWindow, err := ScoreBatch(input, opts)
	require.NoError(t, err)
	assert.Empty(t, outWindow[0].SeasonalApplied)
	assert.Greater(t, inWindow[0].BlendedScore, outWindow[0].BlendedScore)
}

func TestScoreBatch_RanksAndTieBreaks(t *testing.T) {
	inputs := []Input{
		{Phrase: "banana", Tier: models.TierTier2, Volume: 1000, Difficulty: 50,
			Intent: models.IntentCommercial, Relevance: 0.5, ClusterID: "c1"},
		{Phrase: "apple", Tier: models.TierTier2, Volume: 1000, Difficulty: 50,
			Intent: models.IntentCommercial, Relevance: 0.5, ClusterID: "c1"},
		{Phrase: "cherry", Tier: models.TierDream100, Volume: 8000, Difficulty: 10,
			Intent: models.IntentTransactional, Relevance: 0.9, ClusterID: "c2"},
	}
	results, err := ScoreBatch(inputs, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, results[2].OverallRank, "highest score ranks first")
	// banana and apple tie on score and volume: alphabetical breaks it.
	assert.Equal(t, 2, results[1].OverallRank)
	assert.Equal(t, 3, results[0].OverallRank)

	assert.Equal(t, 1, results[2].TierRank)
	assert.Equal(t, 1, results[1].TierRank)
	assert.Equal(t, 2, results[0].TierRank)

	assert.Equal(t, 1, results[1].ClusterRank)
	assert.Equal(t, 2, results[0].ClusterRank)
	assert.Equal(t, 1, results[2].ClusterRank)
}

func TestScoreBatch_Bands(t *testing.T) {
	assert.Equal(t, BandHigh, band(0.7))
	assert.Equal(t, BandMedium, band(0.4))
	assert.Equal(t, BandMedium, band(0.69))
	assert.Equal(t, BandLow, band(0.39))
}

func TestScoreBatch_Deterministic(t *testing.T) {
	inputs := []Input{
		{Phrase: "a", Tier: models.TierDream100, Volume: 5000, Difficulty: 30, Intent: models.IntentCommercial, Relevance: 0.7, Trend: 0.2},
		{Phrase: "b", Tier: models.TierTier2, Volume: 800, Difficulty: 60, Intent: models.IntentInformational, Relevance: 0.5, Trend: -0.1},
	}
	first, err := ScoreBatch(inputs, defaultOptions())
	require.NoError(t, err)
	second, err := ScoreBatch(inputs, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
