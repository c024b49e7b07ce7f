// Package scoring computes tier-weighted blended scores, quick-win flags,
// and ranks. ScoreBatch is a pure function of its inputs plus, when seasonal
// adjustment is enabled, the injected clock.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/seoforge/seoforge/pkg/models"
)

// NormalizationMode selects how batch volume statistics are normalized.
type NormalizationMode string

// Normalization modes.
const (
	NormalizeMinMax     NormalizationMode = "minmax"
	NormalizeZScore     NormalizationMode = "zscore"
	NormalizePercentile NormalizationMode = "percentile"
)

// Quick-win rule constants.
const (
	quickWinEaseFloor   = 0.7
	quickWinVolumeFloor = 1000
	quickWinScoreFloor  = 0.6
)

// Band buckets a blended score.
type Band string

// Score bands.
const (
	BandHigh   Band = "high"   // ≥ 0.7
	BandMedium Band = "medium" // ≥ 0.4
	BandLow    Band = "low"
)

// intentScores is the fixed intent component table.
var intentScores = map[models.Intent]float64{
	models.IntentTransactional: 1.0,
	models.IntentCommercial:    0.8,
	models.IntentInformational: 0.6,
	models.IntentNavigational:  0.4,
	models.IntentUnknown:       0.6,
}

// Input is one keyword to score.
type Input struct {
	Phrase     string
	Tier       models.Tier
	Volume     int64
	Difficulty int // 0..100
	Intent     models.Intent
	Relevance  float64 // 0..1
	Trend      float64 // -1..1
	ClusterID  string  // empty when unclustered
}

// Components holds the normalized 0..1 component values of one result.
type Components struct {
	Volume    float64 `json:"volume"`
	Intent    float64 `json:"intent"`
	Relevance float64 `json:"relevance"`
	Trend     float64 `json:"trend"`
	Ease      float64 `json:"ease"`
}

// Result is one scored keyword. Output order matches input order.
type Result struct {
	Phrase       string     `json:"phrase"`
	BlendedScore float64    `json:"blended_score"`
	Components   Components `json:"components"`
	Band         Band       `json:"band"`
	QuickWin     bool       `json:"quick_win"`

	// SeasonalApplied names the seasonal factor applied, if any.
	SeasonalApplied string `json:"seasonal_applied,omitempty"`

	OverallRank int `json:"overall_rank"`
	TierRank    int `json:"tier_rank"`
	ClusterRank int `json:"cluster_rank,omitempty"`
}

// Options configures a scoring batch.
type Options struct {
	Weights       models.ScoringWeights
	Normalization NormalizationMode

	// QuickWinThreshold overrides the default blended-score floor of the
	// quick-win rule when > 0.
	QuickWinThreshold float64

	// Seasonal factors to apply; empty disables seasonal adjustment.
	Seasonal []models.SeasonalFactor

	// Now supplies today's date for seasonal windows. Defaults to
	// time.Now, injected for reproducible tests.
	Now func() time.Time
}

// ScoreBatch scores every input. The result slice parallels the input slice.
func ScoreBatch(inputs []Input, opts Options) ([]Result, error) {
	if err := validateWeights(opts.Weights); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	volumes := make([]float64, len(inputs))
	for i, in := range inputs {
		volumes[i] = float64(in.Volume)
	}
	normalizeVolume := volumeNormalizer(volumes, opts.Normalization)

	scoreFloor := quickWinScoreFloor
	if opts.QuickWinThreshold > 0 {
		scoreFloor = opts.QuickWinThreshold
	}

	results := make([]Result, len(inputs))
	for i, in := range inputs {
		comp := Components{
			Volume:    normalizeVolume(float64(in.Volume)),
			Intent:    intentScore(in.Intent),
			Relevance: clamp01(in.Relevance),
			Trend:     clamp01((in.Trend + 1) / 2),
			Ease:      clamp01(float64(100-in.Difficulty) / 100),
		}
		w := opts.Weights.ForTier(in.Tier)
		score := clamp01(w.Volume*comp.Volume + w.Intent*comp.Intent +
			w.Relevance*comp.Relevance + w.Trend*comp.Trend + w.Ease*comp.Ease)

		var seasonal string
		if len(opts.Seasonal) > 0 {
			score, seasonal = applySeasonal(score, in.Phrase, opts.Seasonal, now())
			score = clamp01(score)
		}

		results[i] = Result{
			Phrase:          in.Phrase,
			BlendedScore:    score,
			Components:      comp,
			Band:            band(score),
			SeasonalApplied: seasonal,
			QuickWin: comp.Ease >= quickWinEaseFloor &&
				in.Volume >= quickWinVolumeFloor &&
				score >= scoreFloor,
		}
	}

	assignRanks(inputs, results)
	return results, nil
}

// ApplyClusterMedianRule clears quick-win flags on keywords whose volume
// falls below their cluster's median. Call after clustering.
func ApplyClusterMedianRule(inputs []Input, results []Result) {
	byCluster := map[string][]int64{}
	for _, in := range inputs {
		if in.ClusterID != "" {
			byCluster[in.ClusterID] = append(byCluster[in.ClusterID], in.Volume)
		}
	}
	medians := make(map[string]int64, len(byCluster))
	for id, volumes := range byCluster {
		sort.Slice(volumes, func(i, j int) bool { return volumes[i] < volumes[j] })
		medians[id] = volumes[len(volumes)/2]
	}
	for i := range results {
		if !results[i].QuickWin || inputs[i].ClusterID == "" {
			continue
		}
		if inputs[i].Volume < medians[inputs[i].ClusterID] {
			results[i].QuickWin = false
		}
	}
}

func validateWeights(w models.ScoringWeights) error {
	for _, p := range []struct {
		tier    models.Tier
		profile models.WeightProfile
	}{
		{models.TierDream100, w.Dream100},
		{models.TierTier2, w.Tier2},
		{models.TierTier3, w.Tier3},
	} {
		if math.Abs(p.profile.Sum()-1.0) > 0.01 {
			return fmt.Errorf("weights for %s sum to %.3f, want 1.0 ± 0.01", p.tier, p.profile.Sum())
		}
	}
	return nil
}

// volumeNormalizer returns a 0..1 mapping over the batch's volume
// distribution. Degenerate distributions fall back to a log scale.
func volumeNormalizer(volumes []float64, mode NormalizationMode) func(float64) float64 {
	min, max := volumes[0], volumes[0]
	var sum float64
	for _, v := range volumes {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	if len(volumes) == 1 || max == min {
		return logVolume
	}

	switch mode {
	case NormalizeZScore:
		mean := sum / float64(len(volumes))
		var variance float64
		for _, v := range volumes {
			variance += (v - mean) * (v - mean)
		}
		stddev := math.Sqrt(variance / float64(len(volumes)))
		if stddev == 0 {
			return logVolume
		}
		// Map z ∈ [-3,3] onto [0,1].
		return func(v float64) float64 {
			return clamp01(((v-mean)/stddev + 3) / 6)
		}
	case NormalizePercentile:
		sorted := make([]float64, len(volumes))
		copy(sorted, volumes)
		sort.Float64s(sorted)
		n := float64(len(sorted))
		return func(v float64) float64 {
			idx := sort.SearchFloat64s(sorted, v)
			return clamp01(float64(idx) / (n - 1))
		}
	default: // min-max
		span := max - min
		return func(v float64) float64 {
			return clamp01((v - min) / span)
		}
	}
}

func logVolume(v float64) float64 {
	return clamp01(math.Log10(v+1) / 6)
}

func intentScore(intent models.Intent) float64 {
	if s, ok := intentScores[intent]; ok {
		return s
	}
	return intentScores[models.IntentUnknown]
}

// applySeasonal multiplies the score when today falls inside a factor's
// window and the phrase matches its set (case-insensitive exact match).
func applySeasonal(score float64, phrase string, factors []models.SeasonalFactor, today time.Time) (float64, string) {
	normalized := models.NormalizePhrase(phrase)
	for _, f := range factors {
		if !windowContains(f.StartDate, f.EndDate, today) {
			continue
		}
		for _, p := range f.Phrases {
			if models.NormalizePhrase(p) == normalized {
				return score * f.Multiplier, f.Name
			}
		}
	}
	return score, ""
}

// windowContains reports whether today's MM-DD falls inside [start, end].
// Windows may wrap the year end (e.g. 11-15..01-15).
func windowContains(start, end string, today time.Time) bool {
	day := today.Format("01-02")
	if start <= end {
		return day >= start && day <= end
	}
	return day >= start || day <= end
}

func band(score float64) Band {
	switch {
	case score >= 0.7:
		return BandHigh
	case score >= 0.4:
		return BandMedium
	default:
		return BandLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
