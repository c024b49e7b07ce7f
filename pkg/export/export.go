// Package export assembles the final artifacts of a completed pipeline and
// writes them through the file store.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/store"
)

// Artifact names written per run.
const (
	KeywordsArtifact = "keywords.json"
	ClustersArtifact = "clusters.json"
	RoadmapArtifact  = "roadmap.json"
	SummaryArtifact  = "summary.json"
)

// Summary is the run-level artifact header.
type Summary struct {
	RunID       string              `json:"run_id"`
	Seeds       []string            `json:"seeds"`
	Market      string              `json:"market,omitempty"`
	Language    string              `json:"language,omitempty"`
	Keywords    int                 `json:"keywords"`
	Clusters    int                 `json:"clusters"`
	Roadmap     int                 `json:"roadmap_items"`
	QuickWins   int                 `json:"quick_wins"`
	APIUsage    models.APIUsage     `json:"api_usage"`
	Warnings    []models.RunWarning `json:"warnings,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Exporter writes run artifacts.
type Exporter struct {
	files  store.FileStore
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter over the given file store.
func NewExporter(files store.FileStore, logger *slog.Logger) *Exporter {
	return &Exporter{
		files:  files,
		logger: logger.With("component", "export"),
		now:    time.Now,
	}
}

// WithClock injects the timestamp source.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// Export writes the keyword universe, clusters, roadmap, and a run summary
// as JSON artifacts. It returns the artifact names written.
func (e *Exporter) Export(ctx context.Context, run *models.Run,
	keywords []*models.Keyword, clusters []*models.Cluster, items []*models.RoadmapItem) ([]string, error) {

	quickWins := 0
	for _, kw := range keywords {
		if kw.QuickWin {
			quickWins++
		}
	}
	summary := Summary{
		RunID:       run.ID,
		Seeds:       run.Seeds,
		Market:      run.Market,
		Language:    run.Language,
		Keywords:    len(keywords),
		Clusters:    len(clusters),
		Roadmap:     len(items),
		QuickWins:   quickWins,
		APIUsage:    run.APIUsage,
		Warnings:    run.Warnings,
		GeneratedAt: e.now(),
	}

	artifacts := []struct {
		name string
		data any
	}{
		{KeywordsArtifact, keywords},
		{ClustersArtifact, clusters},
		{RoadmapArtifact, items},
		{SummaryArtifact, summary},
	}
	written := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		payload, err := json.MarshalIndent(a.data, "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to encode %s: %w", a.name, err)
		}
		if err := e.files.Write(ctx, run.ID, a.name, payload); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", a.name, err)
		}
		written = append(written, a.name)
	}
	e.logger.Info("artifacts exported", "run_id", run.ID, "artifacts", written)
	return written, nil
}
