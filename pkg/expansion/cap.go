package expansion

import (
	"sort"

	"github.com/seoforge/seoforge/pkg/models"
)

// Tier ratio units for capping: roughly 1 Dream100 per 10 Tier2 per 70+ Tier3.
const (
	ratioDream = 1
	ratioTier2 = 10
	ratioUnits = 81
)

// capCandidates enforces the total keyword cap while keeping the target tier
// ratio and ensuring every kept Dream100 phrase retains at least one Tier2
// child where possible. Candidates that survive are marked StateCapped;
// excess candidates are dropped.
func capCandidates(cands []*candidate, target int) {
	if target <= 0 || len(cands) <= target {
		for _, c := range cands {
			c.state = StateCapped
		}
		return
	}

	byTier := map[models.Tier][]*candidate{}
	for _, c := range cands {
		byTier[c.tier] = append(byTier[c.tier], c)
	}
	dream := byTier[models.TierDream100]
	tier2 := byTier[models.TierTier2]
	tier3 := byTier[models.TierTier3]
	sortByEstimate(dream)
	sortByEstimate(tier2)
	sortByEstimate(tier3)

	base := target * ratioDream / ratioUnits
	dreamKeep := clampKeep(len(dream), max(1, base))
	tier2Keep := clampKeep(len(tier2), dreamKeep*ratioTier2)
	if dreamKeep+tier2Keep > target {
		tier2Keep = max(0, target-dreamKeep)
	}
	tier3Keep := clampKeep(len(tier3), target-dreamKeep-tier2Keep)

	// Hand unused capacity to the tiers that still have candidates,
	// longest tail first.
	for _, grow := range []struct {
		have int
		keep *int
	}{
		{len(tier3), &tier3Keep},
		{len(tier2), &tier2Keep},
		{len(dream), &dreamKeep},
	} {
		spare := target - dreamKeep - tier2Keep - tier3Keep
		if spare <= 0 {
			break
		}
		room := grow.have - *grow.keep
		if room > spare {
			room = spare
		}
		*grow.keep += room
	}

	markKept(dream, dreamKeep)
	markKept(tier2, tier2Keep)
	markKept(tier3, tier3Keep)

	ensureParentCoverage(dream[:dreamKeep], tier2)
}

// repairParents re-points surviving candidates whose parent did not survive.
// A kept phrase's parent must itself be kept at a strictly higher tier, so a
// child of a dropped parent climbs the parent chain to the nearest surviving
// ancestor (a Tier3 whose Tier2 parent was capped re-parents to its Dream100
// grandparent) and clears the parent when none survives.
func repairParents(cands []*candidate) {
	kept := make(map[string]models.Tier, len(cands))
	parentOf := make(map[string]string, len(cands))
	for _, c := range cands {
		if _, seen := parentOf[c.phrase]; !seen || c.state != StateDropped {
			parentOf[c.phrase] = c.parent
		}
		if c.state != StateDropped {
			kept[c.phrase] = c.tier
		}
	}
	for _, c := range cands {
		if c.state == StateDropped || c.parent == "" {
			continue
		}
		p := c.parent
		for hops := 0; p != "" && hops < 4; hops++ {
			if tier, ok := kept[p]; ok && tier.Higher(c.tier) {
				break
			}
			p = parentOf[p]
		}
		if tier, ok := kept[p]; !ok || !tier.Higher(c.tier) {
			p = ""
		}
		c.parent = p
	}
}

func clampKeep(have, want int) int {
	if want < 0 {
		want = 0
	}
	if want > have {
		return have
	}
	return want
}

func sortByEstimate(list []*candidate) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].estimate != list[j].estimate {
			return list[i].estimate > list[j].estimate
		}
		return list[i].phrase < list[j].phrase
	})
}

func markKept(list []*candidate, keep int) {
	for i, c := range list {
		if i < keep {
			c.state = StateCapped
		} else {
			c.drop(DropCapped)
		}
	}
}

// ensureParentCoverage swaps capped-out Tier2 children back in so every kept
// Dream100 phrase keeps at least one child, demoting the weakest kept Tier2
// whose parent retains another child.
func ensureParentCoverage(keptDreams []*candidate, tier2 []*candidate) {
	keptDream := make(map[string]bool, len(keptDreams))
	for _, d := range keptDreams {
		keptDream[d.phrase] = true
	}
	childCount := map[string]int{}
	for _, c := range tier2 {
		if c.state == StateCapped && keptDream[c.parent] {
			childCount[c.parent]++
		}
	}

	for _, d := range keptDreams {
		if childCount[d.phrase] > 0 {
			continue
		}
		var promote *candidate
		for _, c := range tier2 { // sorted by estimate, first match is best
			if c.state == StateDropped && c.dropReason == DropCapped && c.parent == d.phrase {
				promote = c
				break
			}
		}
		if promote == nil {
			continue
		}
		for i := len(tier2) - 1; i >= 0; i-- {
			c := tier2[i]
			if c.state != StateCapped {
				continue
			}
			if !keptDream[c.parent] || childCount[c.parent] >= 2 {
				if keptDream[c.parent] {
					childCount[c.parent]--
				}
				c.drop(DropCapped)
				promote.state = StateCapped
				promote.dropReason = ""
				childCount[d.phrase]++
				break
			}
		}
	}
}
