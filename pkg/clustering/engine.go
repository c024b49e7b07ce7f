package clustering

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/seoforge/seoforge/pkg/embedding"
	"github.com/seoforge/seoforge/pkg/llm"
	"github.com/seoforge/seoforge/pkg/models"
)

// busy guards the one-operation-per-process invariant. The similarity matrix
// and merge heap of a large input dominate process memory; two at once would
// thrash.
var busy atomic.Bool

// Engine runs clustering operations.
type Engine struct {
	embeddings *embedding.Cache
	llmClient  llm.Client // nil disables label enhancement
	logger     *slog.Logger

	// progress receives 0..100 stage-local progress, nil to disable.
	progress func(float64)
}

// NewEngine creates a clustering engine. llmClient may be nil when label
// enhancement is disabled.
func NewEngine(embeddings *embedding.Cache, llmClient llm.Client, logger *slog.Logger) *Engine {
	return &Engine{
		embeddings: embeddings,
		llmClient:  llmClient,
		logger:     logger.With("component", "clustering"),
	}
}

// WithProgress sets a stage-local progress callback (0..100).
func (e *Engine) WithProgress(fn func(float64)) *Engine {
	e.progress = fn
	return e
}

// Cluster runs the full pipeline: embed, sparse similarity, agglomerative
// merge, finalize, optional label enhancement, quality metrics. Only one
// operation runs per process; a concurrent call returns ErrBusy.
func (e *Engine) Cluster(ctx context.Context, candidates []Candidate, params Params) (*Result, error) {
	if !busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer busy.Store(false)

	if len(candidates) == 0 {
		return &Result{Assignments: map[string]string{}}, nil
	}
	if len(candidates) > MaxInputSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyKeywords, len(candidates), MaxInputSize)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clustering params: %w", err)
	}

	candidates = dedupeCandidates(candidates)
	e.report(5)

	// Embedding acquisition. Phrases whose embedding batch failed after
	// retries become outliers immediately.
	phrases := make([]string, len(candidates))
	for i, c := range candidates {
		phrases[i] = models.NormalizePhrase(c.Phrase)
	}
	vectors, err := e.embeddings.GetBatch(ctx, phrases)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire embeddings: %w", err)
	}

	var embedded []int
	var outliers []string
	for i := range candidates {
		if _, ok := vectors[phrases[i]]; ok {
			embedded = append(embedded, i)
		} else {
			outliers = append(outliers, phrases[i])
		}
	}
	if len(outliers) > 0 {
		e.logger.Warn("phrases skipped for missing embeddings", "count", len(outliers))
	}
	e.report(30)

	// Sparse similarity over all unordered pairs.
	graph, comparisons, err := e.buildEdges(ctx, candidates, phrases, vectors, embedded, params)
	if err != nil {
		return nil, err
	}
	e.report(55)

	// Agglomerative average-linkage merge.
	merged, err := agglomerate(ctx, graph, params)
	if err != nil {
		return nil, err
	}
	e.report(75)

	result := e.finalize(candidates, phrases, vectors, merged, outliers, params)
	result.Quality.SimilarityComparisonCount = comparisons
	totalPairs := int64(len(embedded)) * int64(len(embedded)-1) / 2
	if totalPairs > 0 {
		result.Quality.EdgeDensity = float64(graph.edgeCount) / float64(totalPairs)
	}

	if params.EnhanceLabels && e.llmClient != nil {
		e.enhanceLabels(ctx, result)
	}
	e.report(100)
	return result, nil
}

// buildEdges computes the sparse similarity graph, checking cancellation
// every cancelCheckInterval comparisons.
func (e *Engine) buildEdges(ctx context.Context, candidates []Candidate, phrases []string,
	vectors map[string][]float32, embedded []int, params Params) (*graph, int64, error) {

	g := newGraph(len(candidates))
	var comparisons int64
	for a := 0; a < len(embedded); a++ {
		for b := a + 1; b < len(embedded); b++ {
			comparisons++
			if comparisons%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, comparisons, err
				}
			}
			i, j := embedded[a], embedded[b]
			sim := params.SemanticWeight*cosine(vectors[phrases[i]], vectors[phrases[j]]) +
				params.IntentWeight*intentAgreement(candidates[i].Intent, candidates[j].Intent)
			if sim >= params.SimilarityThreshold {
				g.addEdge(i, j, sim)
			}
		}
	}
	return g, comparisons, nil
}

// finalize drops undersized clusters, labels the rest, and computes quality.
func (e *Engine) finalize(candidates []Candidate, phrases []string, vectors map[string][]float32,
	merged []*cluster, outliers []string, params Params) *Result {

	termFreq := globalTermFrequencies(phrases)

	result := &Result{Assignments: make(map[string]string)}
	var sizes []int
	for _, c := range merged {
		if len(c.members) < params.MinClusterSize {
			for _, idx := range c.members {
				outliers = append(outliers, phrases[idx])
			}
			continue
		}

		memberPhrases := make([]string, len(c.members))
		for i, idx := range c.members {
			memberPhrases[i] = phrases[idx]
		}
		sort.Strings(memberPhrases)
		id := clusterID(memberPhrases)
		for _, idx := range c.members {
			result.Assignments[phrases[idx]] = id
		}

		cr := ClusterResult{
			ID:                    id,
			Label:                 heuristicLabel(memberPhrases, termFreq),
			Members:               memberPhrases,
			Centroid:              centroid(c.members, phrases, vectors),
			IntentMix:             intentMix(c.members, candidates),
			RepresentativePhrases: representatives(c.members, candidates, phrases),
			Coherence:             c.meanInternalSimilarity(),
		}
		result.Clusters = append(result.Clusters, cr)
		sizes = append(sizes, len(c.members))
	}
	// Enforce the cluster cap: when natural merging still leaves too many
	// clusters, keep the largest and most coherent, demote the rest.
	if len(result.Clusters) > params.MaxClusters {
		sort.Slice(result.Clusters, func(i, j int) bool {
			a, b := result.Clusters[i], result.Clusters[j]
			if len(a.Members) != len(b.Members) {
				return len(a.Members) > len(b.Members)
			}
			if a.Coherence != b.Coherence {
				return a.Coherence > b.Coherence
			}
			return a.ID < b.ID
		})
		for _, demoted := range result.Clusters[params.MaxClusters:] {
			for _, phrase := range demoted.Members {
				delete(result.Assignments, phrase)
				outliers = append(outliers, phrase)
			}
		}
		result.Clusters = result.Clusters[:params.MaxClusters]
		sizes = sizes[:0]
		for _, c := range result.Clusters {
			sizes = append(sizes, len(c.Members))
		}
	}

	sort.Slice(result.Clusters, func(i, j int) bool {
		return result.Clusters[i].ID < result.Clusters[j].ID
	})
	result.Outliers = outliers

	result.Quality = computeQuality(result, sizes, len(candidates), params)
	result.Issues = validateClusters(result, params)
	return result
}

// clusterID derives a stable ID from the sorted member phrases, so reruns
// over the same universe yield byte-identical cluster records.
func clusterID(sortedMembers []string) string {
	h := sha256.New()
	for _, phrase := range sortedMembers {
		h.Write([]byte(phrase))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// enhanceLabels asks the LLM for a refined label per cluster, keeping the
// heuristic label on any failure.
func (e *Engine) enhanceLabels(ctx context.Context, result *Result) {
	for i := range result.Clusters {
		sample := result.Clusters[i].RepresentativePhrases
		if len(sample) == 0 {
			sample = result.Clusters[i].Members
		}
		if len(sample) > 10 {
			sample = sample[:10]
		}
		label, _, err := e.llmClient.SuggestLabel(ctx, sample)
		if err != nil || label == "" {
			e.logger.Debug("label enhancement failed, keeping heuristic",
				"cluster", result.Clusters[i].ID, "error", err)
			continue
		}
		result.Clusters[i].Label = models.NormalizePhrase(label)
	}
}

func (e *Engine) report(progress float64) {
	if e.progress != nil {
		e.progress(progress)
	}
}

func dedupeCandidates(candidates []Candidate) []Candidate {
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		normalized := models.NormalizePhrase(c.Phrase)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, c)
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func intentAgreement(a, b models.Intent) float64 {
	if a == b && a != models.IntentUnknown {
		return 1
	}
	return 0
}

func centroid(members []int, phrases []string, vectors map[string][]float32) []float32 {
	var sum []float32
	count := 0
	for _, idx := range members {
		vec, ok := vectors[phrases[idx]]
		if !ok {
			continue
		}
		if sum == nil {
			sum = make([]float32, len(vec))
		}
		for d := range vec {
			sum[d] += vec[d]
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for d := range sum {
		sum[d] /= float32(count)
	}
	return sum
}

func intentMix(members []int, candidates []Candidate) map[models.Intent]float64 {
	mix := map[models.Intent]float64{}
	for _, idx := range members {
		mix[candidates[idx].Intent]++
	}
	for intent := range mix {
		mix[intent] /= float64(len(members))
	}
	return mix
}

// representatives returns the top 5 members by blended score when present,
// else by volume.
func representatives(members []int, candidates []Candidate, phrases []string) []string {
	idx := make([]int, len(members))
	copy(idx, members)
	hasScores := false
	for _, i := range idx {
		if candidates[i].BlendedScore > 0 {
			hasScores = true
			break
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		ca, cb := candidates[idx[a]], candidates[idx[b]]
		if hasScores && ca.BlendedScore != cb.BlendedScore {
			return ca.BlendedScore > cb.BlendedScore
		}
		if ca.Volume != cb.Volume {
			return ca.Volume > cb.Volume
		}
		return phrases[idx[a]] < phrases[idx[b]]
	})
	if len(idx) > 5 {
		idx = idx[:5]
	}
	out := make([]string, len(idx))
	for i, m := range idx {
		out[i] = phrases[m]
	}
	return out
}
