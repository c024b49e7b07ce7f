package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/seoforge/seoforge/pkg/models"
)

// MockClient is a deterministic Client for local development and the
// end-to-end suite. The same request always yields the same phrases.
type MockClient struct {
	// FailExpand forces Expand to return the given error, for failure-path
	// tests.
	FailExpand error

	// FailLabel forces SuggestLabel to fail so heuristic labels stick.
	FailLabel error
}

// NewMockClient returns a deterministic mock LLM.
func NewMockClient() *MockClient { return &MockClient{} }

var expansionTemplates = []string{
	"%s software",
	"%s platform",
	"%s services",
	"%s strategy",
	"%s tips",
	"%s for small business",
	"%s automation",
	"%s tools comparison",
	"affordable %s",
	"%s best practices",
	"%s trends",
	"%s checklist",
}

// Expand implements Client.
func (m *MockClient) Expand(_ context.Context, req ExpansionRequest) ([]ExpandedPhrase, Usage, error) {
	if m.FailExpand != nil {
		return nil, Usage{}, m.FailExpand
	}
	avoid := make(map[string]bool, len(req.Avoid)+len(req.Seeds))
	for _, p := range req.Avoid {
		avoid[models.NormalizePhrase(p)] = true
	}
	for _, s := range req.Seeds {
		avoid[models.NormalizePhrase(s)] = true
	}

	var out []ExpandedPhrase
	for _, seed := range req.Seeds {
		normalized := models.NormalizePhrase(seed)
		for _, tmpl := range expansionTemplates {
			phrase := models.NormalizePhrase(fmt.Sprintf(tmpl, normalized))
			if avoid[phrase] {
				continue
			}
			avoid[phrase] = true
			out = append(out, ExpandedPhrase{
				Phrase:     phrase,
				Confidence: mockConfidence(phrase),
				Seed:       normalized,
			})
			if req.Limit > 0 && len(out) >= req.Limit {
				return out, mockUsage(len(out)), nil
			}
		}
	}
	return out, mockUsage(len(out)), nil
}

// ClassifyIntents implements Client using a keyword heuristic.
func (m *MockClient) ClassifyIntents(_ context.Context, phrases []string) ([]IntentResult, Usage, error) {
	results := make([]IntentResult, len(phrases))
	for i, phrase := range phrases {
		results[i] = IntentResult{
			Phrase: models.NormalizePhrase(phrase),
			Intent: heuristicIntent(phrase),
		}
	}
	return results, mockUsage(len(phrases)), nil
}

// SuggestLabel implements Client: the most frequent meaningful token wins.
func (m *MockClient) SuggestLabel(_ context.Context, phrases []string) (string, Usage, error) {
	if m.FailLabel != nil {
		return "", Usage{}, m.FailLabel
	}
	counts := map[string]int{}
	for _, phrase := range phrases {
		for _, token := range strings.Fields(models.NormalizePhrase(phrase)) {
			if len(token) > 2 {
				counts[token]++
			}
		}
	}
	tokens := make([]string, 0, len(counts))
	for token := range counts {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	if len(tokens) == 0 {
		return "misc", mockUsage(1), nil
	}
	label := tokens[0]
	if len(tokens) > 1 {
		label += " " + tokens[1]
	}
	return label, mockUsage(len(phrases)), nil
}

func heuristicIntent(phrase string) models.Intent {
	p := " " + models.NormalizePhrase(phrase) + " "
	switch {
	case containsAny(p, "buy", "pricing", "price", "discount", "order", "cheap"):
		return models.IntentTransactional
	case containsAny(p, "best", "top", "vs", "review", "alternatives", "comparison", "compare"):
		return models.IntentCommercial
	case containsAny(p, "login", "sign in", "dashboard", "account"):
		return models.IntentNavigational
	default:
		return models.IntentInformational
	}
}

func containsAny(phrase string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(phrase, " "+term+" ") {
			return true
		}
	}
	return false
}

func mockConfidence(phrase string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(phrase))
	// 0.55..0.95 so quality filtering has something to discriminate on.
	return 0.55 + float64(h.Sum32()%41)/100
}

func mockUsage(items int) Usage {
	tokens := int64(items) * 12
	return Usage{PromptTokens: tokens, CompletionTokens: tokens / 2}
}
