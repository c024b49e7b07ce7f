package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Tier identifies the expansion tier a keyword belongs to.
type Tier string

// Expansion tiers, highest first. Dream100 phrases seed Tier2, Tier2 seeds Tier3.
const (
	TierDream100 Tier = "dream100"
	TierTier2    Tier = "tier2"
	TierTier3    Tier = "tier3"
)

// Rank returns the ordering of the tier: Dream100 is 0 (highest).
func (t Tier) Rank() int {
	switch t {
	case TierDream100:
		return 0
	case TierTier2:
		return 1
	case TierTier3:
		return 2
	default:
		return 3
	}
}

// Higher reports whether t outranks other (Dream100 > Tier2 > Tier3).
func (t Tier) Higher(other Tier) bool {
	return t.Rank() < other.Rank()
}

// Intent is the search intent classification of a keyword.
type Intent string

// Intent values.
const (
	IntentTransactional Intent = "transactional"
	IntentCommercial    Intent = "commercial"
	IntentInformational Intent = "informational"
	IntentNavigational  Intent = "navigational"
	IntentUnknown       Intent = "unknown"
)

// AllIntents lists every intent value in a stable order.
var AllIntents = []Intent{
	IntentTransactional,
	IntentCommercial,
	IntentInformational,
	IntentNavigational,
	IntentUnknown,
}

// EmbeddingDimensions is the fixed vector size produced by the embedding provider.
const EmbeddingDimensions = 1536

// MaxPhraseLength is the maximum length of a normalized phrase.
const MaxPhraseLength = 255

// Keyword is the atomic unit of the universe. Created by expansion, mutated
// by enrichment, clustering, and scoring; immutable after scoring within a run.
type Keyword struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Phrase       string    `json:"phrase"`
	Tier         Tier      `json:"tier"`
	ParentPhrase string    `json:"parent_phrase,omitempty"`
	Volume       int64     `json:"volume"`
	Difficulty   int       `json:"difficulty"` // 0..100
	Intent       Intent    `json:"intent"`
	Relevance    float64   `json:"relevance"` // 0..1
	Trend        float64   `json:"trend"`     // -1..1
	CPC          *float64  `json:"cpc,omitempty"`
	BlendedScore float64   `json:"blended_score"` // 0..1
	QuickWin     bool      `json:"quick_win"`
	ClusterID    *string   `json:"cluster_id,omitempty"`
	Embedding    []float32 `json:"-"`
	TopSERPURLs  []string  `json:"top_serp_urls,omitempty"`

	// Source records which provider produced the metrics ("mock" when
	// synthesized). Surfaced in all downstream artifacts.
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizePhrase lowercases, collapses interior whitespace to single spaces,
// trims, and truncates to at most MaxPhraseLength bytes on a rune boundary.
// It is idempotent.
func NormalizePhrase(phrase string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	if len(normalized) > MaxPhraseLength {
		cut := MaxPhraseLength
		for cut > 0 && !utf8.RuneStart(normalized[cut]) {
			cut--
		}
		normalized = strings.TrimSpace(normalized[:cut])
	}
	return normalized
}

// TokenCount returns the number of whitespace-separated tokens in a phrase.
func TokenCount(phrase string) int {
	return len(strings.Fields(phrase))
}
