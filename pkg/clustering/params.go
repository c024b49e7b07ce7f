// Package clustering groups keywords into semantic clusters by sparse cosine
// similarity and average-linkage agglomerative merging. One clustering
// operation runs per process at a time.
package clustering

import (
	"errors"
	"fmt"
	"math"

	"github.com/seoforge/seoforge/pkg/models"
)

var (
	// ErrBusy is returned when a clustering operation is already running
	// in this process.
	ErrBusy = errors.New("clustering operation already in progress")

	// ErrTooManyKeywords is returned when the input exceeds MaxInputSize.
	ErrTooManyKeywords = errors.New("too many keywords for clustering")
)

// MaxInputSize bounds one clustering operation.
const MaxInputSize = 10000

// cancelCheckInterval is how many similarity comparisons run between
// cancellation checks.
const cancelCheckInterval = 10000

// Params controls one clustering operation.
type Params struct {
	// SimilarityThreshold is the minimum pairwise similarity for an edge.
	SimilarityThreshold float64

	// MinClusterSize drops smaller clusters to outliers at finalize.
	MinClusterSize int

	// MaxClusterSize stops merges that would exceed it.
	MaxClusterSize int

	// MaxClusters lets the merge loop stop early once reached.
	MaxClusters int

	// SemanticWeight and IntentWeight blend cosine similarity with intent
	// agreement; they must sum to 1.0 ± 0.01.
	SemanticWeight float64
	IntentWeight   float64

	// EnhanceLabels asks the LLM to refine heuristic labels.
	EnhanceLabels bool
}

// DefaultParams derives clustering parameters from run settings.
func DefaultParams(settings models.RunSettings) Params {
	return Params{
		SimilarityThreshold: settings.SimilarityThreshold,
		MinClusterSize:      settings.MinClusterSize,
		MaxClusterSize:      100,
		MaxClusters:         settings.MaxClusters,
		SemanticWeight:      0.8,
		IntentWeight:        0.2,
		EnhanceLabels:       settings.EnableSemanticVariations,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.SimilarityThreshold < 0.1 || p.SimilarityThreshold > 0.9 {
		return fmt.Errorf("similarity_threshold %.2f outside [0.1, 0.9]", p.SimilarityThreshold)
	}
	if p.MinClusterSize < 2 {
		return fmt.Errorf("min_cluster_size %d must be at least 2", p.MinClusterSize)
	}
	if p.MaxClusterSize <= p.MinClusterSize {
		return fmt.Errorf("max_cluster_size %d must exceed min_cluster_size %d",
			p.MaxClusterSize, p.MinClusterSize)
	}
	if p.MaxClusters < 1 {
		return fmt.Errorf("max_clusters %d must be at least 1", p.MaxClusters)
	}
	if math.Abs(p.SemanticWeight+p.IntentWeight-1.0) > 0.01 {
		return fmt.Errorf("semantic_weight + intent_weight = %.3f, want 1.0 ± 0.01",
			p.SemanticWeight+p.IntentWeight)
	}
	return nil
}

// Candidate is one keyword entering clustering.
type Candidate struct {
	Phrase       string
	Intent       models.Intent
	Volume       int64
	BlendedScore float64 // 0 when scoring has not run yet
}

// ClusterResult is one finalized cluster before persistence.
type ClusterResult struct {
	ID                    string
	Label                 string
	Members               []string // phrases
	Centroid              []float32
	IntentMix             map[models.Intent]float64
	RepresentativePhrases []string
	Coherence             float64 // mean internal edge weight
}

// QualityMetrics summarizes a clustering operation.
type QualityMetrics struct {
	WithinClusterSimilarity   float64 `json:"within_cluster_similarity"`
	BetweenClusterSeparation  float64 `json:"between_cluster_separation"`
	Coverage                  float64 `json:"coverage"`
	Balance                   float64 `json:"balance"`
	Overall                   float64 `json:"overall"`
	EdgeDensity               float64 `json:"edge_density"`
	SimilarityComparisonCount int64   `json:"similarity_comparison_count"`
}

// Issue is a per-cluster validation finding.
type Issue struct {
	ClusterID string `json:"cluster_id"`
	Severity  string `json:"severity"` // warning or error
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// Result is the output of one clustering operation.
type Result struct {
	Clusters []ClusterResult
	Outliers []string // phrases not in any cluster

	// Assignments maps each clustered phrase to its cluster ID.
	Assignments map[string]string

	Quality QualityMetrics
	Issues  []Issue
}
