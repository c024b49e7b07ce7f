package roadmap

import (
	"fmt"
	"math"
	"sort"

	"github.com/seoforge/seoforge/pkg/models"
)

func newAnalytics() models.RoadmapAnalytics {
	return models.RoadmapAnalytics{
		MonthlyDistribution: map[string]int{},
		DRIWorkload:         map[string]int{},
		IntentDistribution:  map[models.Intent]int{},
		StageDistribution:   map[models.RoadmapStage]int{},
	}
}

// fillAnalytics computes distributions and optimization recommendations over
// the generated items.
func fillAnalytics(roadmap *Roadmap, opts Options) {
	a := &roadmap.Analytics
	a.TotalItems = len(roadmap.Items)

	type opportunity struct {
		phrase string
		score  float64
	}
	var opportunities []opportunity
	for _, item := range roadmap.Items {
		a.MonthlyDistribution[item.DueDate[:7]]++
		if item.DRI != "" {
			a.DRIWorkload[item.DRI]++
		}
		a.IntentDistribution[item.Intent]++
		a.StageDistribution[item.Stage]++
		if item.QuickWin {
			a.QuickWinCount++
		}
		opportunities = append(opportunities, opportunity{item.PrimaryKeyword, item.BlendedScore})
	}

	sort.Slice(opportunities, func(i, j int) bool {
		if opportunities[i].score != opportunities[j].score {
			return opportunities[i].score > opportunities[j].score
		}
		return opportunities[i].phrase < opportunities[j].phrase
	})
	for i, o := range opportunities {
		if i >= 5 {
			break
		}
		a.TopOpportunities = append(a.TopOpportunities, o.phrase)
	}

	a.Recommendations = recommendations(roadmap, opts)
}

// recommendations flags structural imbalances a strategist should look at.
func recommendations(roadmap *Roadmap, opts Options) []string {
	var recs []string
	total := len(roadmap.Items)
	if total == 0 {
		return nil
	}
	a := roadmap.Analytics

	actualPillarRatio := float64(a.StageDistribution[models.RoadmapStagePillar]) / float64(total)
	if math.Abs(actualPillarRatio-opts.PillarRatio) > 0.1 {
		recs = append(recs, fmt.Sprintf(
			"pillar share %.0f%% deviates from the configured %.0f%%; too few clusters may be limiting anchors",
			actualPillarRatio*100, opts.PillarRatio*100))
	}

	if len(a.DRIWorkload) > 1 {
		minLoad, maxLoad := math.MaxInt, 0
		for _, load := range a.DRIWorkload {
			minLoad = min(minLoad, load)
			maxLoad = max(maxLoad, load)
		}
		if maxLoad-minLoad > opts.PostsPerMonth {
			recs = append(recs, fmt.Sprintf(
				"workload spread of %d items between the busiest and lightest owner; rebalance specialties or capacity",
				maxLoad-minLoad))
		}
	}

	if !opts.QuickWinPriority && a.QuickWinCount > total/10 {
		recs = append(recs, fmt.Sprintf(
			"%d quick wins are scheduled by score only; enabling quick-win priority would front-load them",
			a.QuickWinCount))
	}

	capacity := opts.PostsPerMonth * opts.DurationMonths
	if total < capacity {
		recs = append(recs, fmt.Sprintf(
			"only %d of %d slots filled; widen the keyword universe or shorten the window", total, capacity))
	}
	return recs
}
