// Package expansion builds the keyword universe for a run: Dream100 phrases
// from the seeds, Tier2 from each Dream100 phrase, Tier3 from each Tier2
// phrase, then cross-tier dedupe, metrics enrichment, intent classification,
// quality filtering, and smart capping.
package expansion

import (
	"github.com/seoforge/seoforge/pkg/llm"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/provider"
)

// State tracks a candidate through the expansion pipeline.
type State string

// Candidate states, in pipeline order. A candidate either reaches
// StateAccepted or ends at StateDropped with a reason.
const (
	StateProposed   State = "proposed"
	StateDeduped    State = "deduped"
	StateEnriched   State = "enriched"
	StateClassified State = "intent_classified"
	StateFiltered   State = "quality_filtered"
	StateCapped     State = "capped"
	StateAccepted   State = "accepted"
	StateDropped    State = "dropped"
)

// Drop reasons surfaced in Stats.Dropped.
const (
	DropDuplicate  = "duplicate"
	DropSeedEcho   = "seed_echo"
	DropTooShort   = "too_short"
	DropLowQuality = "low_quality"
	DropCapped     = "capped"
)

// candidate is one phrase moving through the expansion pipeline.
type candidate struct {
	phrase string
	tier   models.Tier
	parent string // immediate ancestor phrase, empty for Dream100
	seed   string // originating run seed

	// confidence is the generation-strategy confidence, not the metrics
	// provider's. LLM candidates carry the model's own estimate; grammar
	// strategies carry fixed values.
	confidence float64
	relevance  float64

	state      State
	dropReason string

	record  *provider.MetricsRecord
	intent  models.Intent
	quality float64

	// estimate is the preliminary blended score used for capping; the real
	// blended score is computed by the scoring stage.
	estimate float64
}

func (c *candidate) drop(reason string) {
	c.state = StateDropped
	c.dropReason = reason
}

// Stats summarizes one expansion run.
type Stats struct {
	Proposed map[models.Tier]int `json:"proposed"`
	Accepted map[models.Tier]int `json:"accepted"`
	Dropped  map[string]int      `json:"dropped"`

	// SynthesizedMetrics counts candidates whose metrics came from local
	// synthesis after every provider failed.
	SynthesizedMetrics int `json:"synthesized_metrics"`
	SERPCalls          int `json:"serp_calls"`
}

func newStats() Stats {
	return Stats{
		Proposed: map[models.Tier]int{},
		Accepted: map[models.Tier]int{},
		Dropped:  map[string]int{},
	}
}

// Result is the output of one expansion run. Keywords carry tier, provenance,
// metrics, and intent; IDs and blended scores are assigned downstream.
type Result struct {
	Keywords []models.Keyword
	Stats    Stats
	Warnings []string

	// LLMUsage is the token consumption of generation and classification
	// calls, folded into the run's budget by the orchestrator.
	LLMUsage llm.Usage
}
