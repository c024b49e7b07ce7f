// Package roadmap turns scored, clustered keywords into a publication
// schedule: pillar and supporting posts in monthly buckets with weekly slots,
// owners balanced by load and specialty, plus analytics and recommendations.
package roadmap

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seoforge/seoforge/pkg/models"
)

// Options control one roadmap generation.
type Options struct {
	PostsPerMonth  int
	DurationMonths int

	// PillarRatio is the share of items published as cluster anchors,
	// within [0.1, 0.9].
	PillarRatio float64

	// QuickWinPriority schedules quick wins ahead of everything else.
	QuickWinPriority bool

	TeamMembers []models.TeamMember

	// StartDate anchors the schedule; the zero value means time.Now.
	// Month one of the roadmap is StartDate's month.
	StartDate time.Time
}

// OptionsFromSettings derives generation options from run settings.
func OptionsFromSettings(settings models.RunSettings, start time.Time) Options {
	return Options{
		PostsPerMonth:    settings.PostsPerMonth,
		DurationMonths:   settings.DurationMonths,
		PillarRatio:      settings.PillarRatio,
		QuickWinPriority: settings.QuickWinPriority,
		TeamMembers:      settings.TeamMembers,
		StartDate:        start,
	}
}

func (o Options) validate() error {
	if o.PostsPerMonth < 1 {
		return fmt.Errorf("posts_per_month %d must be at least 1", o.PostsPerMonth)
	}
	if o.DurationMonths < 1 {
		return fmt.Errorf("duration_months %d must be at least 1", o.DurationMonths)
	}
	if o.PillarRatio < 0.1 || o.PillarRatio > 0.9 {
		return fmt.Errorf("pillar_ratio %.2f outside [0.1, 0.9]", o.PillarRatio)
	}
	return nil
}

// Roadmap is the generation output.
type Roadmap struct {
	Items     []models.RoadmapItem
	Analytics models.RoadmapAnalytics
}

// Generator builds roadmaps.
type Generator struct {
	logger *slog.Logger
}

// NewGenerator creates a roadmap generator.
func NewGenerator(logger *slog.Logger) *Generator {
	return &Generator{logger: logger.With("component", "roadmap")}
}

// Generate schedules the top keywords into the publication window. Clusters
// provide labels and secondary keywords; keywords without a cluster still
// schedule, as their own single-item topic.
func (g *Generator) Generate(keywords []models.Keyword, clusters []models.Cluster, opts Options) (*Roadmap, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid roadmap options: %w", err)
	}
	if opts.StartDate.IsZero() {
		opts.StartDate = time.Now()
	}
	if len(keywords) == 0 {
		return &Roadmap{Analytics: newAnalytics()}, nil
	}

	clusterByID := make(map[string]models.Cluster, len(clusters))
	for _, c := range clusters {
		clusterByID[c.ID] = c
	}

	capacity := opts.PostsPerMonth * opts.DurationMonths
	selected := selectKeywords(keywords, capacity, opts.QuickWinPriority)
	pillars := assignPillars(selected, opts.PillarRatio)

	schedule := buildSchedule(selected, opts)
	assignDRIs(schedule, clusterByID, opts)

	roadmap := &Roadmap{Analytics: newAnalytics()}
	for _, slot := range schedule {
		kw := slot.keyword
		item := models.RoadmapItem{
			PostID:         uuid.NewString(),
			Stage:          models.RoadmapStageSupporting,
			PrimaryKeyword: kw.Phrase,
			Intent:         kw.Intent,
			Volume:         kw.Volume,
			Difficulty:     kw.Difficulty,
			BlendedScore:   kw.BlendedScore,
			QuickWin:       kw.QuickWin,
			DRI:            slot.dri,
			DueDate:        slot.dueDate,
			SourceURLs:     kw.TopSERPURLs,
			CreatedAt:      opts.StartDate,
		}
		if pillars[kw.Phrase] {
			item.Stage = models.RoadmapStagePillar
		}
		if kw.ClusterID != nil {
			if cluster, ok := clusterByID[*kw.ClusterID]; ok {
				item.ClusterID = cluster.ID
				item.ClusterLabel = cluster.Label
			}
		}
		item.SecondaryKeywords = secondaryKeywords(kw, keywords)
		item.SuggestedTitle = suggestTitle(kw, item.Stage)
		if kw.QuickWin {
			item.Notes = "quick win: low difficulty with meaningful volume"
		}
		roadmap.Items = append(roadmap.Items, item)
	}

	fillAnalytics(roadmap, opts)
	g.logger.Info("roadmap generated",
		"items", len(roadmap.Items),
		"pillars", roadmap.Analytics.StageDistribution[models.RoadmapStagePillar],
		"quick_wins", roadmap.Analytics.QuickWinCount)
	return roadmap, nil
}

// selectKeywords orders the universe for scheduling and trims it to the
// window capacity. Quick wins lead when prioritized; ties fall back to
// volume, then phrase.
func selectKeywords(keywords []models.Keyword, capacity int, quickWinPriority bool) []models.Keyword {
	ordered := make([]models.Keyword, len(keywords))
	copy(ordered, keywords)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if quickWinPriority && a.QuickWin != b.QuickWin {
			return a.QuickWin
		}
		if a.BlendedScore != b.BlendedScore {
			return a.BlendedScore > b.BlendedScore
		}
		if a.Volume != b.Volume {
			return a.Volume > b.Volume
		}
		return a.Phrase < b.Phrase
	})
	if len(ordered) > capacity {
		ordered = ordered[:capacity]
	}
	return ordered
}

// assignPillars marks the best keyword of each cluster as a pillar, one per
// cluster, best clusters first, up to floor(total · ratio).
func assignPillars(selected []models.Keyword, ratio float64) map[string]bool {
	budget := int(float64(len(selected)) * ratio)
	pillars := make(map[string]bool, budget)
	seenClusters := map[string]bool{}
	for _, kw := range selected { // already in score order
		if len(pillars) >= budget {
			break
		}
		key := kw.Phrase // unclustered keywords anchor themselves
		if kw.ClusterID != nil {
			key = *kw.ClusterID
		}
		if seenClusters[key] {
			continue
		}
		seenClusters[key] = true
		pillars[kw.Phrase] = true
	}
	return pillars
}

// secondaryKeywords returns up to three co-cluster peers by volume, then
// lexicographic order.
func secondaryKeywords(kw models.Keyword, all []models.Keyword) []string {
	if kw.ClusterID == nil {
		return nil
	}
	var peers []models.Keyword
	for _, other := range all {
		if other.Phrase == kw.Phrase || other.ClusterID == nil || *other.ClusterID != *kw.ClusterID {
			continue
		}
		peers = append(peers, other)
	}
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].Volume != peers[j].Volume {
			return peers[i].Volume > peers[j].Volume
		}
		return peers[i].Phrase < peers[j].Phrase
	})
	if len(peers) > 3 {
		peers = peers[:3]
	}
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.Phrase
	}
	return out
}

// suggestTitle renders a deterministic working title from the keyword's
// stage and intent.
func suggestTitle(kw models.Keyword, stage models.RoadmapStage) string {
	phrase := titleCase(kw.Phrase)
	if stage == models.RoadmapStagePillar {
		return fmt.Sprintf("The Complete Guide to %s", phrase)
	}
	switch kw.Intent {
	case models.IntentTransactional:
		return fmt.Sprintf("%s: Pricing and Options Compared", phrase)
	case models.IntentCommercial:
		return fmt.Sprintf("%s: Top Options Compared", phrase)
	case models.IntentNavigational:
		return fmt.Sprintf("Getting Started with %s", phrase)
	default:
		return fmt.Sprintf("%s: Everything You Need to Know", phrase)
	}
}

func titleCase(phrase string) string {
	words := strings.Fields(phrase)
	for i, w := range words {
		if len(w) > 2 || i == 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
