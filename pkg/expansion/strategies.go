package expansion

import (
	"fmt"
	"math"
	"strings"

	"github.com/seoforge/seoforge/pkg/models"
)

// Fixed generation-strategy confidences. LLM candidates carry the model's
// own estimate instead.
const (
	modifierConfidence = 0.70
	serpConfidence     = 0.65
	questionConfidence = 0.60
	longTailConfidence = 0.60
)

// Modifier grammar applied to each Dream100 phrase.
var (
	modifierPrefixes = []string{"best", "top", "cheap"}
	modifierSuffixes = []string{"guide", "review", "alternatives", "vs competitors"}
	modifierSegments = []string{"small business", "startups", "agencies", "enterprise"}
)

// Question patterns prefixed to Tier2 phrases.
var questionPatterns = []string{"what is", "how to", "why", "when to", "where", "which"}

// Long-tail refinements suffixed to Tier2 phrases.
var longTailSuffixes = []string{"for beginners", "step by step", "with examples", "checklist"}

// modifierExpansions applies the fixed modifier grammar to one phrase.
// Results shorter than two tokens are discarded.
func modifierExpansions(phrase string, year int) []string {
	var out []string
	add := func(p string) {
		p = models.NormalizePhrase(p)
		if models.TokenCount(p) >= 2 {
			out = append(out, p)
		}
	}
	for _, prefix := range modifierPrefixes {
		add(prefix + " " + phrase)
	}
	for _, suffix := range modifierSuffixes {
		add(phrase + " " + suffix)
	}
	for _, segment := range modifierSegments {
		add(phrase + " for " + segment)
	}
	add(fmt.Sprintf("%s %d", phrase, year))
	return out
}

// questionExpansions prefixes question patterns to one phrase.
func questionExpansions(phrase string) []string {
	out := make([]string, 0, len(questionPatterns))
	for _, pattern := range questionPatterns {
		out = append(out, models.NormalizePhrase(pattern+" "+phrase))
	}
	return out
}

// longTailExpansions suffixes refinements to one phrase.
func longTailExpansions(phrase string) []string {
	out := make([]string, 0, len(longTailSuffixes))
	for _, suffix := range longTailSuffixes {
		out = append(out, models.NormalizePhrase(phrase+" "+suffix))
	}
	return out
}

// tokenOverlap is the Jaccard similarity of the token sets of two phrases.
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, tok := range ta {
		set[tok] = true
	}
	shared := 0
	union := len(set)
	seen := make(map[string]bool, len(tb))
	for _, tok := range tb {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if set[tok] {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

// seedRelevance scores a Dream100 candidate against its originating seed,
// with a floor so purely-semantic expansions are not crushed by zero token
// overlap.
func seedRelevance(phrase, seed string) float64 {
	return 0.5 + 0.5*tokenOverlap(phrase, seed)
}

// childRelevance derives a child's relevance from its parent's, nudged by
// lexical overlap with the parent.
func childRelevance(phrase string, parentRelevance float64, parent string) float64 {
	return 0.85*parentRelevance + 0.15*tokenOverlap(phrase, parent)
}

// lengthPenalty penalizes phrases outside the 2..8 token sweet spot.
func lengthPenalty(tokens int) float64 {
	switch {
	case tokens >= 2 && tokens <= 8:
		return 1.0
	case tokens == 1 || tokens <= 10:
		return 0.5
	default:
		return 0.25
	}
}

// qualityScore is the filter heuristic over relevance, generation
// confidence, and phrase length.
func qualityScore(c *candidate) float64 {
	return 0.4*c.relevance + 0.3*c.confidence + 0.3*lengthPenalty(models.TokenCount(c.phrase))
}

// scoreEstimate is the preliminary blended score used for capping order.
// Volume contributes on a log10 scale saturating at one million.
func scoreEstimate(c *candidate) float64 {
	var volume int64
	difficulty := 50
	if c.record != nil {
		if c.record.Volume != nil {
			volume = *c.record.Volume
		}
		if c.record.Difficulty != nil {
			difficulty = *c.record.Difficulty
		}
	}
	logVolume := math.Log10(float64(volume)+1) / 6
	if logVolume > 1 {
		logVolume = 1
	}
	ease := float64(100-difficulty) / 100
	return 0.4*logVolume + 0.3*ease + 0.3*c.relevance
}
