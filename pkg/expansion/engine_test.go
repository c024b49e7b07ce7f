package expansion

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/llm"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/provider"
)

func testRegistry() *provider.Registry {
	return provider.NewRegistryWithProviders(nil, true, slog.New(slog.DiscardHandler))
}

func newTestEngine(client llm.Client) *Engine {
	e := NewEngine(client, testRegistry(), slog.New(slog.DiscardHandler))
	return e.WithClock(func() time.Time {
		return time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	})
}

func TestExpand_BuildsThreeTiers(t *testing.T) {
	e := newTestEngine(llm.NewMockClient())
	settings := config.DefaultRunSettings()

	result, err := e.Expand(context.Background(), []string{"social selling"}, settings)
	require.NoError(t, err)
	require.NotEmpty(t, result.Keywords)

	byTier := map[models.Tier][]models.Keyword{}
	phrases := map[string]models.Keyword{}
	for _, kw := range result.Keywords {
		byTier[kw.Tier] = append(byTier[kw.Tier], kw)
		_, dup := phrases[kw.Phrase]
		require.False(t, dup, "duplicate phrase %q in output", kw.Phrase)
		phrases[kw.Phrase] = kw
		assert.NotEqual(t, "social selling", kw.Phrase, "seed must not echo into the universe")
	}
	assert.NotEmpty(t, byTier[models.TierDream100])
	assert.NotEmpty(t, byTier[models.TierTier2])
	assert.NotEmpty(t, byTier[models.TierTier3])

	assertParentLineage(t, result.Keywords)
}

// assertParentLineage checks that every keyword's parent, when set, is itself
// in the output at a strictly higher tier. Children whose parents were capped
// or filtered out must be re-pointed or orphaned, never left dangling.
func assertParentLineage(t *testing.T, keywords []models.Keyword) {
	t.Helper()
	byPhrase := make(map[string]models.Keyword, len(keywords))
	for _, kw := range keywords {
		byPhrase[kw.Phrase] = kw
	}
	for _, kw := range keywords {
		if kw.ParentPhrase == "" {
			continue
		}
		parent, ok := byPhrase[kw.ParentPhrase]
		require.True(t, ok, "parent %q of %q missing from output", kw.ParentPhrase, kw.Phrase)
		assert.True(t, parent.Tier.Higher(kw.Tier),
			"parent %q (%s) must outrank %q (%s)", parent.Phrase, parent.Tier, kw.Phrase, kw.Tier)
	}
}

func TestExpand_MetricsAndIntentFilled(t *testing.T) {
	e := newTestEngine(llm.NewMockClient())
	settings := config.DefaultRunSettings()

	result, err := e.Expand(context.Background(), []string{"email outreach"}, settings)
	require.NoError(t, err)
	require.NotEmpty(t, result.Keywords)

	for _, kw := range result.Keywords {
		if kw.Tier == models.TierDream100 {
			assert.Positive(t, kw.Volume, "enrichment must fill volume for %q", kw.Phrase)
		}
		assert.NotEmpty(t, kw.Source)
		assert.NotEqual(t, models.Intent(""), kw.Intent)
		assert.GreaterOrEqual(t, kw.Relevance, 0.0)
		assert.LessOrEqual(t, kw.Relevance, 1.0)
	}
	// Mock-only registry: everything is synthesized.
	assert.Equal(t, len(result.Keywords), countBySource(result.Keywords, provider.MockSource))
	assert.Positive(t, result.LLMUsage.Tokens())
}

func countBySource(kws []models.Keyword, source string) int {
	n := 0
	for _, kw := range kws {
		if kw.Source == source {
			n++
		}
	}
	return n
}

func TestExpand_Dream100RespectsLimit(t *testing.T) {
	e := newTestEngine(llm.NewMockClient())
	settings := config.DefaultRunSettings()
	settings.MaxDream100 = 10

	result, err := e.Expand(context.Background(), []string{"crm", "sales automation"}, settings)
	require.NoError(t, err)

	dream := 0
	for _, kw := range result.Keywords {
		if kw.Tier == models.TierDream100 {
			dream++
		}
	}
	assert.LessOrEqual(t, dream, 10)
}

func TestExpand_CapBoundsTotal(t *testing.T) {
	e := newTestEngine(llm.NewMockClient())
	settings := config.DefaultRunSettings()
	settings.MaxTotalKeywords = 150

	result, err := e.Expand(context.Background(), []string{"social selling"}, settings)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Keywords), 150)
	assert.Positive(t, result.Stats.Dropped[DropCapped])
}

func TestExpand_CapKeepsParentLineage(t *testing.T) {
	e := newTestEngine(llm.NewMockClient())
	settings := config.DefaultRunSettings()
	settings.MaxTotalKeywords = 150

	result, err := e.Expand(context.Background(), []string{"social selling"}, settings)
	require.NoError(t, err)
	require.Positive(t, result.Stats.Dropped[DropCapped], "cap pressure must drop candidates")
	assertParentLineage(t, result.Keywords)
}

func TestRepairParents_ReassignsAndClears(t *testing.T) {
	dream := &candidate{phrase: "crm software", tier: models.TierDream100, state: StateCapped}
	droppedT2 := &candidate{phrase: "crm software pricing", tier: models.TierTier2, parent: "crm software", state: StateDropped, dropReason: DropCapped}
	t3 := &candidate{phrase: "how much is crm software", tier: models.TierTier3, parent: "crm software pricing", state: StateCapped}
	droppedDream := &candidate{phrase: "email outreach", tier: models.TierDream100, state: StateDropped, dropReason: DropCapped}
	orphanT2 := &candidate{phrase: "email outreach tools", tier: models.TierTier2, parent: "email outreach", state: StateCapped}

	repairParents([]*candidate{dream, droppedT2, t3, droppedDream, orphanT2})

	assert.Equal(t, "crm software", t3.parent, "tier3 climbs to the surviving grandparent")
	assert.Empty(t, orphanT2.parent, "no surviving ancestor clears the parent")
	assert.Equal(t, "crm software", droppedT2.parent, "dropped candidates keep their parent")
}

func TestExpand_SERPDisabledMakesNoCalls(t *testing.T) {
	e := newTestEngine(llm.NewMockClient())
	settings := config.DefaultRunSettings()
	settings.EnableSERPAnalysis = false

	result, err := e.Expand(context.Background(), []string{"webinar marketing"}, settings)
	require.NoError(t, err)
	assert.Zero(t, result.Stats.SERPCalls)
}

func TestExpand_SERPEnabledMinesSuggestions(t *testing.T) {
	e := newTestEngine(llm.NewMockClient())
	settings := config.DefaultRunSettings()
	settings.EnableSERPAnalysis = true

	result, err := e.Expand(context.Background(), []string{"webinar marketing"}, settings)
	require.NoError(t, err)
	assert.Positive(t, result.Stats.SERPCalls)
}

func TestExpand_LLMFailureIsFatal(t *testing.T) {
	client := llm.NewMockClient()
	client.FailExpand = errors.New("model unavailable")
	e := newTestEngine(client)

	_, err := e.Expand(context.Background(), []string{"crm"}, config.DefaultRunSettings())
	require.Error(t, err)
	assert.ErrorContains(t, err, "dream100")
}

// failingIntentClient wraps the mock and breaks only intent classification.
type failingIntentClient struct {
	*llm.MockClient
}

func (f failingIntentClient) ClassifyIntents(context.Context, []string) ([]llm.IntentResult, llm.Usage, error) {
	return nil, llm.Usage{}, errors.New("classification down")
}

func TestExpand_IntentDefaultsToInformationalOnFailure(t *testing.T) {
	e := newTestEngine(failingIntentClient{llm.NewMockClient()})

	result, err := e.Expand(context.Background(), []string{"lead generation"}, config.DefaultRunSettings())
	require.NoError(t, err)
	require.NotEmpty(t, result.Keywords)
	for _, kw := range result.Keywords {
		assert.Equal(t, models.IntentInformational, kw.Intent)
	}
	assert.NotEmpty(t, result.Warnings)
}

func TestExpand_NoUsableSeeds(t *testing.T) {
	e := newTestEngine(llm.NewMockClient())
	_, err := e.Expand(context.Background(), []string{"", "   "}, config.DefaultRunSettings())
	assert.Error(t, err)
}

func TestExpand_Deterministic(t *testing.T) {
	settings := config.DefaultRunSettings()
	first, err := newTestEngine(llm.NewMockClient()).Expand(context.Background(), []string{"cold email"}, settings)
	require.NoError(t, err)
	second, err := newTestEngine(llm.NewMockClient()).Expand(context.Background(), []string{"cold email"}, settings)
	require.NoError(t, err)

	require.Equal(t, len(first.Keywords), len(second.Keywords))
	for i := range first.Keywords {
		assert.Equal(t, first.Keywords[i].Phrase, second.Keywords[i].Phrase)
		assert.Equal(t, first.Keywords[i].Tier, second.Keywords[i].Tier)
	}
}

func TestExpand_TwoPhaseMatchesSingleCall(t *testing.T) {
	settings := config.DefaultRunSettings()
	seeds := []string{"cold email"}

	whole, err := newTestEngine(llm.NewMockClient()).Expand(context.Background(), seeds, settings)
	require.NoError(t, err)

	e := newTestEngine(llm.NewMockClient())
	dream, err := e.ExpandDream100(context.Background(), seeds, settings)
	require.NoError(t, err)
	require.Positive(t, dream.Count())

	// Round-trip through persisted keywords, as a resumed run would.
	rebuilt := Dream100FromKeywords(seeds, dream.Keywords(time.Now()))
	require.Equal(t, dream.Count(), rebuilt.Count())

	staged, err := e.ExpandUniverse(context.Background(), rebuilt, settings)
	require.NoError(t, err)

	require.Equal(t, len(whole.Keywords), len(staged.Keywords))
	for i := range whole.Keywords {
		assert.Equal(t, whole.Keywords[i].Phrase, staged.Keywords[i].Phrase)
		assert.Equal(t, whole.Keywords[i].Tier, staged.Keywords[i].Tier)
	}
}

func TestDedupe_KeepsHighestTier(t *testing.T) {
	stats := newStats()
	d := &candidate{phrase: "crm software", tier: models.TierDream100, state: StateProposed}
	t2 := &candidate{phrase: "crm software", tier: models.TierTier2, parent: "crm tools", state: StateProposed}
	t3 := &candidate{phrase: "crm pricing guide", tier: models.TierTier3, parent: "crm pricing", state: StateProposed}

	out := dedupe([]*candidate{d, t2, t3}, map[string]bool{}, &stats)

	require.Len(t, out, 2)
	assert.Equal(t, StateDeduped, d.state)
	assert.Equal(t, StateDropped, t2.state)
	assert.Equal(t, DropDuplicate, t2.dropReason)
	assert.Equal(t, 1, stats.Dropped[DropDuplicate])
}

func TestDedupe_DropsSeedEchoAndShortPhrases(t *testing.T) {
	stats := newStats()
	echo := &candidate{phrase: "crm", tier: models.TierTier2, state: StateProposed}
	short := &candidate{phrase: "software", tier: models.TierTier3, state: StateProposed}

	out := dedupe([]*candidate{echo, short}, map[string]bool{"crm": true}, &stats)

	assert.Empty(t, out)
	assert.Equal(t, DropSeedEcho, echo.dropReason)
	assert.Equal(t, DropTooShort, short.dropReason)
}

func TestModifierExpansions(t *testing.T) {
	out := modifierExpansions("crm software", 2026)
	assert.Contains(t, out, "best crm software")
	assert.Contains(t, out, "crm software guide")
	assert.Contains(t, out, "crm software for small business")
	assert.Contains(t, out, "crm software 2026")
	for _, phrase := range out {
		assert.GreaterOrEqual(t, models.TokenCount(phrase), 2)
	}
}

func TestQuestionAndLongTailExpansions(t *testing.T) {
	questions := questionExpansions("crm software")
	assert.Contains(t, questions, "what is crm software")
	assert.Contains(t, questions, "how to crm software")

	tails := longTailExpansions("crm software")
	assert.Contains(t, tails, "crm software for beginners")
}

func TestLengthPenalty(t *testing.T) {
	assert.Equal(t, 0.5, lengthPenalty(1))
	assert.Equal(t, 1.0, lengthPenalty(2))
	assert.Equal(t, 1.0, lengthPenalty(8))
	assert.Equal(t, 0.5, lengthPenalty(9))
	assert.Equal(t, 0.25, lengthPenalty(12))
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, tokenOverlap("crm software", "software crm"))
	assert.Equal(t, 0.0, tokenOverlap("crm software", "email outreach"))
	// {best, crm, software} ∩ {crm, software} = 2 of 3.
	assert.InDelta(t, 2.0/3.0, tokenOverlap("best crm software", "crm software"), 1e-9)
}

func TestCapCandidates_RatioAndOrder(t *testing.T) {
	mk := func(n int, tier models.Tier, base float64) []*candidate {
		out := make([]*candidate, n)
		for i := range out {
			out[i] = &candidate{
				phrase:   string(tier) + " phrase " + string(rune('a'+i%26)) + string(rune('a'+i/26)),
				tier:     tier,
				state:    StateFiltered,
				estimate: base - float64(i)*0.001,
			}
		}
		return out
	}
	var all []*candidate
	all = append(all, mk(5, models.TierDream100, 0.9)...)
	all = append(all, mk(50, models.TierTier2, 0.8)...)
	all = append(all, mk(400, models.TierTier3, 0.7)...)

	capCandidates(all, 100)

	counts := map[models.Tier]int{}
	for _, c := range all {
		if c.state == StateCapped {
			counts[c.tier]++
		}
	}
	total := counts[models.TierDream100] + counts[models.TierTier2] + counts[models.TierTier3]
	assert.Equal(t, 100, total)
	assert.Equal(t, 1, counts[models.TierDream100], "100/81 rounds down to one dream slot")
	assert.Equal(t, 10, counts[models.TierTier2])
	assert.Equal(t, 89, counts[models.TierTier3])
}

func TestCapCandidates_UnderTargetKeepsAll(t *testing.T) {
	cands := []*candidate{
		{phrase: "a b", tier: models.TierDream100, state: StateFiltered},
		{phrase: "c d", tier: models.TierTier2, state: StateFiltered},
	}
	capCandidates(cands, 100)
	for _, c := range cands {
		assert.Equal(t, StateCapped, c.state)
	}
}

func TestEnsureParentCoverage_SwapsChildBackIn(t *testing.T) {
	d1 := &candidate{phrase: "crm software", tier: models.TierDream100, state: StateCapped, estimate: 0.9}
	d2 := &candidate{phrase: "email outreach", tier: models.TierDream100, state: StateCapped, estimate: 0.8}

	mkChild := func(parent string, estimate float64, kept bool) *candidate {
		c := &candidate{
			phrase:   parent + " child",
			tier:     models.TierTier2,
			parent:   parent,
			estimate: estimate,
		}
		if kept {
			c.state = StateCapped
		} else {
			c.drop(DropCapped)
		}
		return c
	}
	c1 := mkChild("crm software", 0.9, true)
	c2 := mkChild("crm software", 0.8, true)
	c3 := mkChild("crm software", 0.7, true)
	orphanChild := mkChild("email outreach", 0.1, false)
	orphanChild.phrase = "email outreach templates"

	ensureParentCoverage([]*candidate{d1, d2}, []*candidate{c1, c2, c3, orphanChild})

	assert.Equal(t, StateCapped, orphanChild.state, "d2's only child must be swapped back in")
	assert.Equal(t, StateDropped, c3.state, "weakest kept child of a multi-child parent is demoted")
	assert.Equal(t, StateCapped, c1.state)
	assert.Equal(t, StateCapped, c2.state)
}
