package models

import "time"

// Cluster is a semantic grouping of keywords. Created by clustering; its
// label may be overwritten by the LLM enhancement pass; read-only after.
type Cluster struct {
	ID    string  `json:"id"`
	RunID string  `json:"run_id"`
	Label string  `json:"label"`
	Size  int     `json:"size"`
	Score float64 `json:"score"` // 0..1

	// IntentMix maps intent → share of members; shares sum to 1.0 ± 0.01.
	IntentMix map[Intent]float64 `json:"intent_mix"`

	// RepresentativePhrases holds up to 5 member phrases ordered by
	// in-cluster score.
	RepresentativePhrases []string `json:"representative_phrases"`

	// SimilarityThreshold is the merge similarity at the final join.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	Centroid []float32 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}
