package roadmap

import (
	"sort"
	"strings"
	"time"

	"github.com/seoforge/seoforge/pkg/models"
)

// scheduledSlot pairs a keyword with its publication slot.
type scheduledSlot struct {
	keyword models.Keyword
	month   int // 0-based offset from the start month
	week    int // 0..3
	dueDate string
	dri     string
}

// buildSchedule distributes the selected keywords into monthly buckets of
// PostsPerMonth, spreading each month's posts over four weekly slots. Due
// dates land on the first day of the slot's week.
func buildSchedule(selected []models.Keyword, opts Options) []*scheduledSlot {
	monthStart := time.Date(opts.StartDate.Year(), opts.StartDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	schedule := make([]*scheduledSlot, 0, len(selected))
	for i, kw := range selected {
		month := i / opts.PostsPerMonth
		indexInMonth := i % opts.PostsPerMonth
		week := indexInMonth * 4 / opts.PostsPerMonth
		due := monthStart.AddDate(0, month, week*7)
		schedule = append(schedule, &scheduledSlot{
			keyword: kw,
			month:   month,
			week:    week,
			dueDate: due.Format("2006-01-02"),
		})
	}
	return schedule
}

// assignDRIs picks an owner per slot maximizing 0.7·load_score +
// 0.3·specialty_score, where load resets each month and specialty matches
// cluster label terms. Without team members every slot stays unassigned.
func assignDRIs(schedule []*scheduledSlot, clusters map[string]models.Cluster, opts Options) {
	if len(opts.TeamMembers) == 0 {
		return
	}
	members := make([]models.TeamMember, len(opts.TeamMembers))
	copy(members, opts.TeamMembers)
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	load := map[string]int{}
	currentMonth := 0
	for _, slot := range schedule {
		if slot.month != currentMonth {
			currentMonth = slot.month
			load = map[string]int{}
		}
		label := ""
		if slot.keyword.ClusterID != nil {
			if cluster, ok := clusters[*slot.keyword.ClusterID]; ok {
				label = cluster.Label
			}
		}

		bestScore := -1.0
		for _, m := range members {
			score := 0.7*loadScore(m, load[m.Name]) + 0.3*specialtyScore(m, label)
			if score > bestScore {
				bestScore = score
				slot.dri = m.Name
			}
		}
		load[slot.dri]++
	}
}

func loadScore(m models.TeamMember, current int) float64 {
	if m.Capacity <= 0 {
		return 0
	}
	score := float64(m.Capacity-current) / float64(m.Capacity)
	if score < 0 {
		return 0
	}
	return score
}

func specialtyScore(m models.TeamMember, clusterLabel string) float64 {
	if clusterLabel != "" {
		for _, specialty := range m.Specialties {
			if strings.Contains(strings.ToLower(clusterLabel), strings.ToLower(specialty)) ||
				strings.Contains(strings.ToLower(specialty), strings.ToLower(clusterLabel)) {
				return 1
			}
		}
	}
	return 0.3
}
