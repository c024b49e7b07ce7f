package roadmap

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge/seoforge/pkg/models"
)

var testStart = time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC)

func testGenerator() *Generator {
	return NewGenerator(slog.New(slog.DiscardHandler))
}

func testOptions() Options {
	return Options{
		PostsPerMonth:  4,
		DurationMonths: 3,
		PillarRatio:    0.3,
		StartDate:      testStart,
	}
}

func kw(phrase string, score float64, volume int64, quickWin bool, clusterID string, intent models.Intent) models.Keyword {
	k := models.Keyword{
		Phrase:       phrase,
		Tier:         models.TierTier2,
		Volume:       volume,
		Difficulty:   40,
		Intent:       intent,
		BlendedScore: score,
		QuickWin:     quickWin,
	}
	if clusterID != "" {
		k.ClusterID = &clusterID
	}
	return k
}

func testUniverse() ([]models.Keyword, []models.Cluster) {
	clusters := []models.Cluster{
		{ID: "c-email", Label: "email marketing", Size: 6},
		{ID: "c-crm", Label: "crm pricing", Size: 6},
	}
	var keywords []models.Keyword
	for i := 0; i < 6; i++ {
		keywords = append(keywords, kw(
			fmt.Sprintf("email marketing topic %d", i),
			0.9-float64(i)*0.05, int64(9000-i*1000), i == 1, "c-email", models.IntentInformational))
	}
	for i := 0; i < 6; i++ {
		keywords = append(keywords, kw(
			fmt.Sprintf("crm pricing topic %d", i),
			0.85-float64(i)*0.05, int64(8000-i*1000), false, "c-crm", models.IntentCommercial))
	}
	return keywords, clusters
}

func TestGenerate_FillsScheduleWindow(t *testing.T) {
	keywords, clusters := testUniverse()
	roadmap, err := testGenerator().Generate(keywords, clusters, testOptions())
	require.NoError(t, err)

	require.Len(t, roadmap.Items, 12)
	assert.Equal(t, map[string]int{"2026-04": 4, "2026-05": 4, "2026-06": 4},
		roadmap.Analytics.MonthlyDistribution)

	// Four posts per month spread over the four weekly slots.
	weeks := map[string]bool{}
	for _, item := range roadmap.Items {
		if item.DueDate[:7] == "2026-04" {
			weeks[item.DueDate] = true
		}
		due, parseErr := time.Parse("2006-01-02", item.DueDate)
		require.NoError(t, parseErr)
		assert.False(t, due.Before(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, due.Before(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)))
	}
	assert.Len(t, weeks, 4, "april posts land on distinct weekly slots")
}

func TestGenerate_CapsAtCapacity(t *testing.T) {
	keywords, clusters := testUniverse()
	opts := testOptions()
	opts.DurationMonths = 2 // capacity 8 < 12 keywords

	roadmap, err := testGenerator().Generate(keywords, clusters, opts)
	require.NoError(t, err)
	assert.Len(t, roadmap.Items, 8)

	// The dropped keywords are the lowest scored.
	for _, item := range roadmap.Items {
		assert.GreaterOrEqual(t, item.BlendedScore, 0.65)
	}
}

func TestGenerate_PillarPerCluster(t *testing.T) {
	keywords, clusters := testUniverse()
	roadmap, err := testGenerator().Generate(keywords, clusters, testOptions())
	require.NoError(t, err)

	// floor(12 · 0.3) = 3 pillar budget, but only 2 clusters → 2 pillars,
	// plus the best unclustered keyword would take the third; all keywords
	// here are clustered, and each cluster anchors exactly once.
	pillarsByCluster := map[string]int{}
	for _, item := range roadmap.Items {
		if item.Stage == models.RoadmapStagePillar {
			pillarsByCluster[item.ClusterID]++
		}
	}
	for clusterID, count := range pillarsByCluster {
		assert.Equal(t, 1, count, "cluster %s must anchor exactly one pillar", clusterID)
	}
	assert.Equal(t, 2, roadmap.Analytics.StageDistribution[models.RoadmapStagePillar])
	assert.Equal(t, 10, roadmap.Analytics.StageDistribution[models.RoadmapStageSupporting])

	// The pillar is the cluster's best keyword.
	for _, item := range roadmap.Items {
		if item.Stage == models.RoadmapStagePillar && item.ClusterID == "c-email" {
			assert.Equal(t, "email marketing topic 0", item.PrimaryKeyword)
		}
	}
}

func TestGenerate_QuickWinPriority(t *testing.T) {
	keywords, clusters := testUniverse()
	opts := testOptions()
	opts.QuickWinPriority = true

	roadmap, err := testGenerator().Generate(keywords, clusters, opts)
	require.NoError(t, err)

	first := roadmap.Items[0]
	assert.True(t, first.QuickWin, "the quick win leads the schedule")
	assert.Equal(t, "email marketing topic 1", first.PrimaryKeyword)
	assert.Equal(t, "2026-04-01", first.DueDate)
}

func TestGenerate_DRISpecialtyAndLoad(t *testing.T) {
	keywords, clusters := testUniverse()
	opts := testOptions()
	opts.TeamMembers = []models.TeamMember{
		{Name: "Alex", Role: models.RoleWriter, Capacity: 4, Specialties: []string{"email"}},
		{Name: "Sam", Role: models.RoleWriter, Capacity: 4, Specialties: []string{"crm"}},
	}

	roadmap, err := testGenerator().Generate(keywords, clusters, opts)
	require.NoError(t, err)

	for _, item := range roadmap.Items {
		require.NotEmpty(t, item.DRI)
		switch item.ClusterLabel {
		case "email marketing":
			assert.Equal(t, "Alex", item.DRI, "specialist owns %q", item.PrimaryKeyword)
		case "crm pricing":
			assert.Equal(t, "Sam", item.DRI, "specialist owns %q", item.PrimaryKeyword)
		}
	}
	assert.Equal(t, 6, roadmap.Analytics.DRIWorkload["Alex"])
	assert.Equal(t, 6, roadmap.Analytics.DRIWorkload["Sam"])
}

func TestGenerate_LoadBalancesWithoutSpecialists(t *testing.T) {
	keywords, clusters := testUniverse()
	opts := testOptions()
	opts.TeamMembers = []models.TeamMember{
		{Name: "Alex", Role: models.RoleWriter, Capacity: 4},
		{Name: "Sam", Role: models.RoleWriter, Capacity: 4},
	}

	roadmap, err := testGenerator().Generate(keywords, clusters, opts)
	require.NoError(t, err)
	assert.Equal(t, 6, roadmap.Analytics.DRIWorkload["Alex"])
	assert.Equal(t, 6, roadmap.Analytics.DRIWorkload["Sam"])
}

func TestGenerate_SecondaryKeywordsAreClusterPeers(t *testing.T) {
	keywords, clusters := testUniverse()
	roadmap, err := testGenerator().Generate(keywords, clusters, testOptions())
	require.NoError(t, err)

	for _, item := range roadmap.Items {
		if item.PrimaryKeyword != "email marketing topic 0" {
			continue
		}
		// Peers by volume descending.
		assert.Equal(t, []string{
			"email marketing topic 1",
			"email marketing topic 2",
			"email marketing topic 3",
		}, item.SecondaryKeywords)
	}
}

func TestGenerate_TitlesFollowIntentAndStage(t *testing.T) {
	cid := "c-1"
	keywords := []models.Keyword{
		kw("crm tools", 0.9, 9000, false, cid, models.IntentCommercial),
		kw("crm tools pricing", 0.8, 5000, false, cid, models.IntentTransactional),
		kw("what is crm", 0.7, 4000, false, cid, models.IntentInformational),
	}
	clusters := []models.Cluster{{ID: cid, Label: "crm"}}
	opts := testOptions()
	opts.PostsPerMonth = 1
	opts.PillarRatio = 0.4 // floor(3 · 0.4) = 1 pillar

	roadmap, err := testGenerator().Generate(keywords, clusters, opts)
	require.NoError(t, err)
	require.Len(t, roadmap.Items, 3)

	assert.Equal(t, "The Complete Guide to Crm Tools", roadmap.Items[0].SuggestedTitle)
	assert.Equal(t, "Crm Tools Pricing: Pricing and Options Compared", roadmap.Items[1].SuggestedTitle)
	assert.Equal(t, "What is Crm: Everything You Need to Know", roadmap.Items[2].SuggestedTitle)
}

func TestGenerate_EmptyUniverse(t *testing.T) {
	roadmap, err := testGenerator().Generate(nil, nil, testOptions())
	require.NoError(t, err)
	assert.Empty(t, roadmap.Items)
	assert.Zero(t, roadmap.Analytics.TotalItems)
}

func TestGenerate_RejectsInvalidOptions(t *testing.T) {
	keywords, clusters := testUniverse()

	opts := testOptions()
	opts.PillarRatio = 0.95
	_, err := testGenerator().Generate(keywords, clusters, opts)
	assert.ErrorContains(t, err, "pillar_ratio")

	opts = testOptions()
	opts.PostsPerMonth = 0
	_, err = testGenerator().Generate(keywords, clusters, opts)
	assert.ErrorContains(t, err, "posts_per_month")
}

func TestGenerate_RecommendsFillingEmptySlots(t *testing.T) {
	keywords, clusters := testUniverse()
	opts := testOptions()
	opts.DurationMonths = 6 // capacity 24 > 12 keywords

	roadmap, err := testGenerator().Generate(keywords, clusters, opts)
	require.NoError(t, err)
	require.NotEmpty(t, roadmap.Analytics.Recommendations)
	found := false
	for _, rec := range roadmap.Analytics.Recommendations {
		if len(rec) > 0 && rec[:4] == "only" {
			found = true
		}
	}
	assert.True(t, found, "recommendations: %v", roadmap.Analytics.Recommendations)
}
