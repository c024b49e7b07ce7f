package scoring

import (
	"sort"

	"github.com/seoforge/seoforge/pkg/models"
)

// assignRanks fills OverallRank, TierRank, and ClusterRank. Ordering is
// score descending; ties break by higher volume, then alphabetical phrase.
func assignRanks(inputs []Input, results []Result) {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := results[order[a]], results[order[b]]
		if ra.BlendedScore != rb.BlendedScore {
			return ra.BlendedScore > rb.BlendedScore
		}
		ia, ib := inputs[order[a]], inputs[order[b]]
		if ia.Volume != ib.Volume {
			return ia.Volume > ib.Volume
		}
		return ia.Phrase < ib.Phrase
	})

	tierCounts := map[models.Tier]int{}
	clusterCounts := map[string]int{}
	for rank, idx := range order {
		results[idx].OverallRank = rank + 1

		tier := inputs[idx].Tier
		tierCounts[tier]++
		results[idx].TierRank = tierCounts[tier]

		if cluster := inputs[idx].ClusterID; cluster != "" {
			clusterCounts[cluster]++
			results[idx].ClusterRank = clusterCounts[cluster]
		}
	}
}
