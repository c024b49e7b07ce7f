package models

import "time"

// RoadmapStage classifies a roadmap item as the anchor of its cluster or a
// supporting piece orbiting the anchor.
type RoadmapStage string

// Roadmap item stages.
const (
	RoadmapStagePillar     RoadmapStage = "pillar"
	RoadmapStageSupporting RoadmapStage = "supporting"
)

// RoadmapItem is one scheduled content post.
type RoadmapItem struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	ClusterID string `json:"cluster_id,omitempty"`
	PostID    string `json:"post_id"`

	Stage             RoadmapStage `json:"stage"`
	PrimaryKeyword    string       `json:"primary_keyword"`
	SecondaryKeywords []string     `json:"secondary_keywords,omitempty"`
	ClusterLabel      string       `json:"cluster_label,omitempty"`

	Intent       Intent  `json:"intent"`
	Volume       int64   `json:"volume"`
	Difficulty   int     `json:"difficulty"`
	BlendedScore float64 `json:"blended_score"`
	QuickWin     bool    `json:"quick_win"`

	SuggestedTitle string   `json:"suggested_title"`
	DRI            string   `json:"dri,omitempty"`
	DueDate        string   `json:"due_date"` // YYYY-MM-DD
	Notes          string   `json:"notes,omitempty"`
	SourceURLs     []string `json:"source_urls,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RoadmapAnalytics summarizes a generated roadmap.
type RoadmapAnalytics struct {
	TotalItems          int                  `json:"total_items"`
	MonthlyDistribution map[string]int       `json:"monthly_distribution"` // "YYYY-MM" → item count
	DRIWorkload         map[string]int       `json:"dri_workload"`
	IntentDistribution  map[Intent]int       `json:"intent_distribution"`
	StageDistribution   map[RoadmapStage]int `json:"stage_distribution"`
	QuickWinCount       int                  `json:"quick_win_count"`
	TopOpportunities    []string             `json:"top_opportunities,omitempty"` // phrases, best first
	Recommendations     []string             `json:"recommendations,omitempty"`
}
