package export

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/store"
)

func TestExport_WritesAllArtifacts(t *testing.T) {
	files := store.NewMemoryFileStore()
	e := NewExporter(files, slog.New(slog.DiscardHandler)).
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) })

	run := &models.Run{ID: "run-1", Seeds: []string{"social selling"}, Market: "US"}
	keywords := []*models.Keyword{
		{Phrase: "social selling tools", Tier: models.TierDream100, QuickWin: true},
		{Phrase: "what is social selling", Tier: models.TierTier3},
	}
	clusters := []*models.Cluster{{ID: "c-1", Label: "social selling", Size: 2}}
	items := []*models.RoadmapItem{{PostID: "p-1", PrimaryKeyword: "social selling tools"}}

	written, err := e.Export(context.Background(), run, keywords, clusters, items)
	require.NoError(t, err)
	assert.Equal(t, []string{KeywordsArtifact, ClustersArtifact, RoadmapArtifact, SummaryArtifact}, written)

	raw, ok := files.Get("run-1", SummaryArtifact)
	require.True(t, ok)
	var summary Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.Keywords)
	assert.Equal(t, 1, summary.Clusters)
	assert.Equal(t, 1, summary.QuickWins)

	raw, ok = files.Get("run-1", KeywordsArtifact)
	require.True(t, ok)
	var decoded []models.Keyword
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "social selling tools", decoded[0].Phrase)
}

func TestExport_EmptyRunStillWritesSummary(t *testing.T) {
	files := store.NewMemoryFileStore()
	e := NewExporter(files, slog.New(slog.DiscardHandler))

	written, err := e.Export(context.Background(), &models.Run{ID: "run-2"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, written, SummaryArtifact)

	_, ok := files.Get("run-2", SummaryArtifact)
	assert.True(t, ok)
}
