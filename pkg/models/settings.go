package models

// WeightProfile holds the five component weights of one tier's scoring
// profile. Weights are nonnegative and sum to 1.0 ± 0.01.
type WeightProfile struct {
	Volume    float64 `json:"volume" yaml:"volume" validate:"gte=0,lte=1"`
	Intent    float64 `json:"intent" yaml:"intent" validate:"gte=0,lte=1"`
	Relevance float64 `json:"relevance" yaml:"relevance" validate:"gte=0,lte=1"`
	Trend     float64 `json:"trend" yaml:"trend" validate:"gte=0,lte=1"`
	Ease      float64 `json:"ease" yaml:"ease" validate:"gte=0,lte=1"`
}

// Sum returns the total of the five weights.
func (p WeightProfile) Sum() float64 {
	return p.Volume + p.Intent + p.Relevance + p.Trend + p.Ease
}

// ScoringWeights holds one weight profile per tier.
type ScoringWeights struct {
	Dream100 WeightProfile `json:"dream100" yaml:"dream100"`
	Tier2    WeightProfile `json:"tier2" yaml:"tier2"`
	Tier3    WeightProfile `json:"tier3" yaml:"tier3"`
}

// ForTier returns the profile for the given tier.
func (w ScoringWeights) ForTier(tier Tier) WeightProfile {
	switch tier {
	case TierDream100:
		return w.Dream100
	case TierTier2:
		return w.Tier2
	default:
		return w.Tier3
	}
}

// TeamMemberRole is the editorial role of a team member.
type TeamMemberRole string

// Team member roles.
const (
	RoleWriter     TeamMemberRole = "writer"
	RoleEditor     TeamMemberRole = "editor"
	RoleStrategist TeamMemberRole = "strategist"
	RoleDesigner   TeamMemberRole = "designer"
)

// TeamMember is a person roadmap items can be assigned to.
type TeamMember struct {
	Name        string         `json:"name" yaml:"name" validate:"required"`
	Email       string         `json:"email" yaml:"email" validate:"omitempty,email"`
	Role        TeamMemberRole `json:"role" yaml:"role" validate:"oneof=writer editor strategist designer"`
	Capacity    int            `json:"capacity" yaml:"capacity" validate:"min=1,max=50"` // posts per month
	Specialties []string       `json:"specialties,omitempty" yaml:"specialties"`
	Unavailable []string       `json:"unavailable,omitempty" yaml:"unavailable"` // YYYY-MM-DD
}

// SeasonalFactor boosts or dampens matching phrases while today falls inside
// the MM-DD window.
type SeasonalFactor struct {
	Name       string   `json:"name" yaml:"name"`
	StartDate  string   `json:"start_date" yaml:"start_date"` // MM-DD
	EndDate    string   `json:"end_date" yaml:"end_date"`     // MM-DD
	Multiplier float64  `json:"multiplier" yaml:"multiplier" validate:"gte=0.5,lte=2"`
	Phrases    []string `json:"phrases" yaml:"phrases"`
}

// RunSettings is the typed settings record of a run. Every knob is a named
// field with an explicit default; unknown fields are rejected at load time.
type RunSettings struct {
	Market   string `json:"market" yaml:"market"`
	Language string `json:"language" yaml:"language"`

	MaxTotalKeywords int `json:"max_total_keywords" yaml:"max_total_keywords" validate:"min=100,max=50000"`
	MaxDream100      int `json:"max_dream100" yaml:"max_dream100" validate:"min=10,max=200"`
	MaxTier2PerDream int `json:"max_tier2_per_dream" yaml:"max_tier2_per_dream" validate:"min=5,max=20"`
	MaxTier3PerTier2 int `json:"max_tier3_per_tier2" yaml:"max_tier3_per_tier2" validate:"min=5,max=20"`

	EnableCompetitorScraping bool `json:"enable_competitor_scraping" yaml:"enable_competitor_scraping"`
	EnableSERPAnalysis       bool `json:"enable_serp_analysis" yaml:"enable_serp_analysis"`
	EnableSemanticVariations bool `json:"enable_semantic_variations" yaml:"enable_semantic_variations"`

	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" validate:"gte=0.1,lte=0.9"`
	MinClusterSize      int     `json:"min_cluster_size" yaml:"min_cluster_size" validate:"min=2"`
	MaxClusters         int     `json:"max_clusters" yaml:"max_clusters" validate:"min=1"`

	QuickWinThreshold float64        `json:"quick_win_threshold" yaml:"quick_win_threshold" validate:"gte=0.5,lte=0.9"`
	QualityThreshold  float64        `json:"quality_threshold" yaml:"quality_threshold" validate:"gte=0,lte=1"`
	ScoringWeights    ScoringWeights `json:"scoring_weights" yaml:"scoring_weights"`

	PostsPerMonth    int     `json:"posts_per_month" yaml:"posts_per_month" validate:"min=1,max=100"`
	DurationMonths   int     `json:"duration_months" yaml:"duration_months" validate:"min=1,max=24"`
	PillarRatio      float64 `json:"pillar_ratio" yaml:"pillar_ratio" validate:"gte=0.1,lte=0.9"`
	QuickWinPriority bool    `json:"quick_win_priority" yaml:"quick_win_priority"`

	TeamMembers []TeamMember     `json:"team_members,omitempty" yaml:"team_members" validate:"dive"`
	Seasonal    []SeasonalFactor `json:"seasonal,omitempty" yaml:"seasonal" validate:"dive"`

	BudgetLimit float64 `json:"budget_limit" yaml:"budget_limit" validate:"gte=10"`
}

// RunSettingsPatch is the request-side shape of RunSettings. The boolean
// knobs are pointers so an explicit false is distinguishable from an omitted
// field when merging onto the defaults; the outer fields shadow the embedded
// ones during JSON decoding.
type RunSettingsPatch struct {
	RunSettings
	EnableCompetitorScraping *bool `json:"enable_competitor_scraping,omitempty"`
	EnableSERPAnalysis       *bool `json:"enable_serp_analysis,omitempty"`
	EnableSemanticVariations *bool `json:"enable_semantic_variations,omitempty"`
	QuickWinPriority         *bool `json:"quick_win_priority,omitempty"`
}
