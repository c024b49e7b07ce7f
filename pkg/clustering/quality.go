package clustering

import (
	"fmt"
	"math"
)

// Overall quality weighting.
const (
	coherenceWeight  = 0.30
	separationWeight = 0.25
	coverageWeight   = 0.25
	balanceWeight    = 0.20
)

// computeQuality derives the operation-level quality metrics.
func computeQuality(result *Result, sizes []int, total int, params Params) QualityMetrics {
	q := QualityMetrics{}
	if len(result.Clusters) == 0 {
		return q
	}

	// Coherence: mean internal edge weight, averaged over clusters.
	var coherenceSum float64
	for _, c := range result.Clusters {
		coherenceSum += c.Coherence
	}
	q.WithinClusterSimilarity = coherenceSum / float64(len(result.Clusters))

	// Separation: 1 − mean pairwise centroid similarity.
	if len(result.Clusters) > 1 {
		var simSum float64
		var pairs int
		for i := 0; i < len(result.Clusters); i++ {
			for j := i + 1; j < len(result.Clusters); j++ {
				a, b := result.Clusters[i].Centroid, result.Clusters[j].Centroid
				if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
					continue
				}
				simSum += cosine(a, b)
				pairs++
			}
		}
		if pairs > 0 {
			q.BetweenClusterSeparation = clampUnit(1 - simSum/float64(pairs))
		}
	} else {
		q.BetweenClusterSeparation = 1
	}

	// Coverage: clustered / total.
	clustered := 0
	for _, s := range sizes {
		clustered += s
	}
	if total > 0 {
		q.Coverage = float64(clustered) / float64(total)
	}

	// Balance: 1 − stddev(sizes)/mean(sizes), clamped at zero.
	if len(sizes) > 0 {
		var sum float64
		for _, s := range sizes {
			sum += float64(s)
		}
		mean := sum / float64(len(sizes))
		var variance float64
		for _, s := range sizes {
			variance += (float64(s) - mean) * (float64(s) - mean)
		}
		stddev := math.Sqrt(variance / float64(len(sizes)))
		q.Balance = clampUnit(1 - stddev/mean)
	}

	q.Overall = coherenceWeight*q.WithinClusterSimilarity +
		separationWeight*q.BetweenClusterSeparation +
		coverageWeight*q.Coverage +
		balanceWeight*q.Balance
	return q
}

// validateClusters emits per-cluster warnings and errors.
func validateClusters(result *Result, params Params) []Issue {
	var issues []Issue
	for _, c := range result.Clusters {
		if len(c.Members) < 3 || len(c.Members) > 100 {
			issues = append(issues, Issue{
				ClusterID: c.ID, Severity: "warning", Kind: "size",
				Message: fmt.Sprintf("cluster %q has %d members", c.Label, len(c.Members)),
			})
		}
		if params.SimilarityThreshold < 0.5 {
			issues = append(issues, Issue{
				ClusterID: c.ID, Severity: "warning", Kind: "coherence",
				Message: fmt.Sprintf("cluster %q built at low similarity threshold %.2f",
					c.Label, params.SimilarityThreshold),
			})
		}
		if primary := primaryIntentShare(c); primary < 0.6 {
			issues = append(issues, Issue{
				ClusterID: c.ID, Severity: "warning", Kind: "intent",
				Message: fmt.Sprintf("cluster %q primary intent share %.2f below 0.6", c.Label, primary),
			})
		}
		if dup := firstDuplicate(c.Members); dup != "" {
			issues = append(issues, Issue{
				ClusterID: c.ID, Severity: "error", Kind: "duplicate",
				Message: fmt.Sprintf("cluster %q contains duplicate phrase %q", c.Label, dup),
			})
		}
	}
	return issues
}

func primaryIntentShare(c ClusterResult) float64 {
	var max float64
	for _, share := range c.IntentMix {
		if share > max {
			max = share
		}
	}
	return max
}

func firstDuplicate(phrases []string) string {
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		if seen[p] {
			return p
		}
		seen[p] = true
	}
	return ""
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
