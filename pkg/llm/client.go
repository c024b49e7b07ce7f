// Package llm provides the language-model client used for semantic keyword
// expansion, intent classification, and cluster label refinement. Responses
// are strict JSON; a malformed payload is a permanent failure, never retried.
package llm

import (
	"context"

	"github.com/seoforge/seoforge/pkg/models"
)

// ExpansionRequest asks for novel keyword phrases related to the inputs.
type ExpansionRequest struct {
	// Seeds are the phrases to expand from.
	Seeds []string

	// Limit caps the number of returned phrases.
	Limit int

	// Market and Language localize the expansion.
	Market   string
	Language string

	// Avoid lists phrases the model must not repeat.
	Avoid []string
}

// ExpandedPhrase is one candidate produced by semantic expansion.
type ExpandedPhrase struct {
	Phrase string `json:"phrase"`

	// Confidence is the model's own 0..1 estimate of relevance to the seeds.
	Confidence float64 `json:"confidence"`

	// Seed names the input phrase the candidate derives from.
	Seed string `json:"seed"`
}

// IntentResult is one phrase's classified intent.
type IntentResult struct {
	Phrase string        `json:"phrase"`
	Intent models.Intent `json:"intent"`
}

// Usage reports token consumption of one call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// Add folds another call's usage into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.Cost += other.Cost
}

// Tokens returns total tokens of the call.
func (u Usage) Tokens() int64 { return u.PromptTokens + u.CompletionTokens }

// Client is the LLM surface the pipeline depends on.
type Client interface {
	// Expand generates up to req.Limit novel phrases from the seeds.
	Expand(ctx context.Context, req ExpansionRequest) ([]ExpandedPhrase, Usage, error)

	// ClassifyIntents classifies a batch of phrases. Results are keyed by
	// phrase; the caller defaults missing phrases.
	ClassifyIntents(ctx context.Context, phrases []string) ([]IntentResult, Usage, error)

	// SuggestLabel proposes a short human-readable label for a cluster
	// from a sample of its phrases.
	SuggestLabel(ctx context.Context, phrases []string) (string, Usage, error)
}
