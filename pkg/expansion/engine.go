package expansion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seoforge/seoforge/pkg/llm"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/provider"
)

// Default batching and fan-out knobs.
const (
	defaultEnrichBatchSize = 100
	defaultIntentBatchSize = 50
	defaultConcurrency     = 8
)

// Engine runs the universe expansion for one run.
type Engine struct {
	llm       llm.Client
	providers *provider.Registry
	logger    *slog.Logger

	now             func() time.Time
	enrichBatchSize int
	intentBatchSize int
	concurrency     int

	// progress receives 0..100 stage-local progress, nil to disable.
	progress func(float64)
}

// NewEngine creates an expansion engine.
func NewEngine(llmClient llm.Client, providers *provider.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		llm:             llmClient,
		providers:       providers,
		logger:          logger.With("component", "expansion"),
		now:             time.Now,
		enrichBatchSize: defaultEnrichBatchSize,
		intentBatchSize: defaultIntentBatchSize,
		concurrency:     defaultConcurrency,
	}
}

// WithClock injects the time source used for the {year} modifier.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithProgress sets a stage-local progress callback (0..100).
func (e *Engine) WithProgress(fn func(float64)) *Engine {
	e.progress = fn
	return e
}

// WithBatchSizes overrides enrichment and intent classification batch sizes.
func (e *Engine) WithBatchSizes(enrich, intent int) *Engine {
	if enrich > 0 {
		e.enrichBatchSize = enrich
	}
	if intent > 0 {
		e.intentBatchSize = intent
	}
	return e
}

// Dream100 holds the head phrases of a run between the expansion and
// universe stages.
type Dream100 struct {
	seeds      []string
	seedSet    map[string]bool
	candidates []*candidate

	// LLMUsage and Warnings cover Dream100 generation only; universe
	// expansion accounts for its own.
	LLMUsage llm.Usage
	Warnings []string
}

// Count returns the number of Dream100 phrases.
func (d *Dream100) Count() int { return len(d.candidates) }

// Phrases returns the Dream100 phrases in rank order.
func (d *Dream100) Phrases() []string {
	out := make([]string, len(d.candidates))
	for i, c := range d.candidates {
		out[i] = c.phrase
	}
	return out
}

// Keywords renders the Dream100 phrases as unenriched keywords for
// persistence between stages. Confidence carries the generation confidence
// until enrichment overwrites it with the metrics provider's.
func (d *Dream100) Keywords(now time.Time) []models.Keyword {
	out := make([]models.Keyword, len(d.candidates))
	for i, c := range d.candidates {
		out[i] = models.Keyword{
			Phrase:     c.phrase,
			Tier:       models.TierDream100,
			Intent:     models.IntentUnknown,
			Relevance:  c.relevance,
			Confidence: c.confidence,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return out
}

// Dream100FromKeywords rebuilds the stage handoff from persisted keywords,
// used when a run resumes between the expansion and universe stages.
func Dream100FromKeywords(seeds []string, keywords []models.Keyword) *Dream100 {
	d := &Dream100{seedSet: map[string]bool{}}
	for _, s := range seeds {
		n := models.NormalizePhrase(s)
		if n != "" && !d.seedSet[n] {
			d.seedSet[n] = true
			d.seeds = append(d.seeds, n)
		}
	}
	for _, kw := range keywords {
		if kw.Tier != models.TierDream100 {
			continue
		}
		seed := ""
		if len(d.seeds) > 0 {
			seed = d.seeds[0]
		}
		d.candidates = append(d.candidates, &candidate{
			phrase:     kw.Phrase,
			tier:       models.TierDream100,
			seed:       seed,
			confidence: kw.Confidence,
			relevance:  kw.Relevance,
			state:      StateProposed,
		})
	}
	return d
}

// ExpandDream100 generates the head phrases from the run seeds.
func (e *Engine) ExpandDream100(ctx context.Context, seeds []string, settings models.RunSettings) (*Dream100, error) {
	d := &Dream100{seedSet: make(map[string]bool, len(seeds))}
	for _, s := range seeds {
		n := models.NormalizePhrase(s)
		if n != "" && !d.seedSet[n] {
			d.seedSet[n] = true
			d.seeds = append(d.seeds, n)
		}
	}
	if len(d.seeds) == 0 {
		return nil, errors.New("no usable seeds after normalization")
	}

	scratch := &Result{Stats: newStats()}
	candidates, err := e.dream100(ctx, d.seeds, settings, scratch)
	if err != nil {
		return nil, fmt.Errorf("dream100 generation failed: %w", err)
	}
	d.candidates = candidates
	d.LLMUsage = scratch.LLMUsage
	d.Warnings = scratch.Warnings
	e.logger.Info("dream100 generated", "count", len(candidates), "seeds", len(d.seeds))
	e.report(100)
	return d, nil
}

// Expand builds the whole keyword universe in one call: Dream100 plus the
// universe stage. The orchestrator drives the two stages separately.
func (e *Engine) Expand(ctx context.Context, seeds []string, settings models.RunSettings) (*Result, error) {
	dream, err := e.ExpandDream100(ctx, seeds, settings)
	if err != nil {
		return nil, err
	}
	result, err := e.ExpandUniverse(ctx, dream, settings)
	if err != nil {
		return nil, err
	}
	result.LLMUsage.Add(dream.LLMUsage)
	result.Warnings = append(dream.Warnings, result.Warnings...)
	return result, nil
}

// ExpandUniverse expands Dream100 into Tier2 and Tier3, then dedupes,
// enriches, classifies, filters, and caps the full universe. Dream100 usage
// and warnings are not folded in; the caller accounts for them.
func (e *Engine) ExpandUniverse(ctx context.Context, d *Dream100, settings models.RunSettings) (*Result, error) {
	result := &Result{Stats: newStats()}
	dream := d.candidates
	seedSet := d.seedSet

	tier2, err := e.tier2(ctx, dream, d.seeds, settings, result)
	if err != nil {
		return nil, err
	}
	e.report(20)

	tier3, err := e.tier3(ctx, tier2, settings, result)
	if err != nil {
		return nil, err
	}
	e.logger.Info("expansion strategies complete",
		"dream100", len(dream), "tier2", len(tier2), "tier3", len(tier3))
	e.report(40)

	all := make([]*candidate, 0, len(dream)+len(tier2)+len(tier3))
	all = append(all, dream...)
	all = append(all, tier2...)
	all = append(all, tier3...)
	result.Stats.Proposed[models.TierDream100] += len(dream)
	result.Stats.Proposed[models.TierTier2] += len(tier2)
	result.Stats.Proposed[models.TierTier3] += len(tier3)

	survivors := dedupe(all, seedSet, &result.Stats)
	e.report(55)

	if err := e.enrich(ctx, survivors, settings, result); err != nil {
		return nil, err
	}
	e.report(75)

	if err := e.classifyIntents(ctx, survivors, result); err != nil {
		return nil, err
	}
	e.report(85)

	survivors = e.qualityFilter(survivors, settings, &result.Stats)
	e.report(92)

	capCandidates(survivors, settings.MaxTotalKeywords)
	repairParents(all)

	now := e.now()
	for _, c := range survivors {
		if c.state == StateDropped {
			result.Stats.Dropped[c.dropReason]++
			candidatesTotal.WithLabelValues(string(c.tier), "dropped").Inc()
			continue
		}
		c.state = StateAccepted
		result.Stats.Accepted[c.tier]++
		candidatesTotal.WithLabelValues(string(c.tier), "accepted").Inc()
		result.Keywords = append(result.Keywords, keywordFrom(c, now))
	}
	sort.Slice(result.Keywords, func(i, j int) bool {
		a, b := result.Keywords[i], result.Keywords[j]
		if a.Tier != b.Tier {
			return a.Tier.Higher(b.Tier)
		}
		return a.Phrase < b.Phrase
	})

	e.logger.Info("expansion complete",
		"accepted", len(result.Keywords),
		"dropped", result.Stats.Dropped,
		"synthesized_metrics", result.Stats.SynthesizedMetrics)
	e.report(100)
	return result, nil
}

// dream100 generates head phrases from the seeds and trims them to the limit
// by preliminary rank (LLM confidence × seed similarity).
func (e *Engine) dream100(ctx context.Context, seeds []string, settings models.RunSettings, result *Result) ([]*candidate, error) {
	expanded, usage, err := e.llm.Expand(ctx, llm.ExpansionRequest{
		Seeds:    seeds,
		Limit:    settings.MaxDream100,
		Market:   settings.Market,
		Language: settings.Language,
	})
	result.LLMUsage.Add(usage)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(expanded))
	var out []*candidate
	for _, ep := range expanded {
		phrase := models.NormalizePhrase(ep.Phrase)
		if phrase == "" || seen[phrase] {
			continue
		}
		seen[phrase] = true
		seed := models.NormalizePhrase(ep.Seed)
		if seed == "" {
			seed = seeds[0]
		}
		out = append(out, &candidate{
			phrase:     phrase,
			tier:       models.TierDream100,
			seed:       seed,
			confidence: ep.Confidence,
			relevance:  seedRelevance(phrase, seed),
			state:      StateProposed,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ri := out[i].confidence * out[i].relevance
		rj := out[j].confidence * out[j].relevance
		if ri != rj {
			return ri > rj
		}
		return out[i].phrase < out[j].phrase
	})
	if len(out) > settings.MaxDream100 {
		out = out[:settings.MaxDream100]
	}
	return out, nil
}

// tier2 expands each Dream100 phrase through three strategies in parallel:
// LLM semantic expansion, the modifier grammar, and SERP suggestion mining.
func (e *Engine) tier2(ctx context.Context, dream []*candidate, seeds []string, settings models.RunSettings, result *Result) ([]*candidate, error) {
	var mu sync.Mutex
	var out []*candidate
	year := e.now().Year()

	add := func(cands ...*candidate) {
		mu.Lock()
		out = append(out, cands...)
		mu.Unlock()
	}
	warn := func(format string, args ...any) {
		mu.Lock()
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, d := range dream {
		g.Go(func() error {
			sg, sctx := errgroup.WithContext(gctx)
			sg.Go(func() error {
				expanded, usage, err := e.llm.Expand(sctx, llm.ExpansionRequest{
					Seeds:    []string{d.phrase},
					Limit:    settings.MaxTier2PerDream,
					Market:   settings.Market,
					Language: settings.Language,
					Avoid:    seeds,
				})
				mu.Lock()
				result.LLMUsage.Add(usage)
				mu.Unlock()
				if err != nil {
					if sctx.Err() != nil {
						return sctx.Err()
					}
					warn("tier2 llm expansion failed for %q: %v", d.phrase, err)
					return nil
				}
				for _, ep := range expanded {
					add(e.childCandidate(ep.Phrase, models.TierTier2, d, ep.Confidence))
				}
				return nil
			})
			sg.Go(func() error {
				for _, phrase := range modifierExpansions(d.phrase, year) {
					add(e.childCandidate(phrase, models.TierTier2, d, modifierConfidence))
				}
				return nil
			})
			sg.Go(func() error {
				if !settings.EnableSERPAnalysis {
					return nil
				}
				suggestions, err := e.providers.GetKeywordSuggestions(sctx, d.phrase, provider.SuggestOptions{
					Market:   settings.Market,
					Language: settings.Language,
					Limit:    settings.MaxTier2PerDream,
				})
				mu.Lock()
				result.Stats.SERPCalls++
				mu.Unlock()
				if err != nil {
					if sctx.Err() != nil {
						return sctx.Err()
					}
					warn("serp suggestions failed for %q: %v", d.phrase, err)
					return nil
				}
				for _, phrase := range suggestions {
					add(e.childCandidate(phrase, models.TierTier2, d, serpConfidence))
				}
				return nil
			})
			return sg.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tier2 expansion failed: %w", err)
	}
	return out, nil
}

// tier3 expands each Tier2 phrase with question patterns and long-tail
// refinements, topping up from SERP suggestions when enabled and under quota.
func (e *Engine) tier3(ctx context.Context, tier2 []*candidate, settings models.RunSettings, result *Result) ([]*candidate, error) {
	var mu sync.Mutex
	var out []*candidate

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, t2 := range tier2 {
		g.Go(func() error {
			quota := settings.MaxTier3PerTier2
			var local []*candidate
			for _, phrase := range questionExpansions(t2.phrase) {
				if len(local) >= quota {
					break
				}
				local = append(local, e.childCandidate(phrase, models.TierTier3, t2, questionConfidence))
			}
			for _, phrase := range longTailExpansions(t2.phrase) {
				if len(local) >= quota {
					break
				}
				local = append(local, e.childCandidate(phrase, models.TierTier3, t2, longTailConfidence))
			}
			if settings.EnableSERPAnalysis && len(local) < quota {
				suggestions, err := e.providers.GetKeywordSuggestions(gctx, t2.phrase, provider.SuggestOptions{
					Market:   settings.Market,
					Language: settings.Language,
					Limit:    quota - len(local),
				})
				mu.Lock()
				result.Stats.SERPCalls++
				mu.Unlock()
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				for _, phrase := range suggestions {
					if len(local) >= quota {
						break
					}
					local = append(local, e.childCandidate(phrase, models.TierTier3, t2, serpConfidence))
				}
			}
			mu.Lock()
			out = append(out, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tier3 expansion failed: %w", err)
	}
	return out, nil
}

func (e *Engine) childCandidate(phrase string, tier models.Tier, parent *candidate, confidence float64) *candidate {
	normalized := models.NormalizePhrase(phrase)
	return &candidate{
		phrase:     normalized,
		tier:       tier,
		parent:     parent.phrase,
		seed:       parent.seed,
		confidence: confidence,
		relevance:  childRelevance(normalized, parent.relevance, parent.phrase),
		state:      StateProposed,
	}
}

// dedupe drops seed echoes, sub-two-token phrases, and cross-tier duplicates,
// keeping the highest-tier occurrence of each phrase. The input is ordered
// Dream100 first, so the first occurrence wins within a tier.
func dedupe(cands []*candidate, seedSet map[string]bool, stats *Stats) []*candidate {
	byPhrase := make(map[string]*candidate, len(cands))
	for _, c := range cands {
		if c.phrase == "" || seedSet[c.phrase] {
			c.drop(DropSeedEcho)
			stats.Dropped[DropSeedEcho]++
			candidatesTotal.WithLabelValues(string(c.tier), "dropped").Inc()
			continue
		}
		if c.tier != models.TierDream100 && models.TokenCount(c.phrase) < 2 {
			c.drop(DropTooShort)
			stats.Dropped[DropTooShort]++
			candidatesTotal.WithLabelValues(string(c.tier), "dropped").Inc()
			continue
		}
		existing, ok := byPhrase[c.phrase]
		if !ok {
			byPhrase[c.phrase] = c
			continue
		}
		loser := c
		if c.tier.Higher(existing.tier) {
			byPhrase[c.phrase] = c
			loser = existing
		}
		loser.drop(DropDuplicate)
		stats.Dropped[DropDuplicate]++
		candidatesTotal.WithLabelValues(string(loser.tier), "dropped").Inc()
	}

	out := make([]*candidate, 0, len(byPhrase))
	for _, c := range cands {
		if byPhrase[c.phrase] == c {
			c.state = StateDeduped
			out = append(out, c)
		}
	}
	return out
}

// enrich fills provider metrics in batches. A batch failing after every
// provider produces locally synthesized metrics rather than failing the run.
func (e *Engine) enrich(ctx context.Context, cands []*candidate, settings models.RunSettings, result *Result) error {
	opts := provider.MetricsOptions{Market: settings.Market, Language: settings.Language}
	for start := 0; start < len(cands); start += e.enrichBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+e.enrichBatchSize, len(cands))
		chunk := cands[start:end]
		phrases := make([]string, len(chunk))
		for i, c := range chunk {
			phrases[i] = c.phrase
		}

		results, err := e.providers.GetBulkKeywordMetrics(ctx, phrases, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("bulk enrichment failed, synthesizing metrics",
				"batch_size", len(chunk), "error", err)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("metrics batch of %d synthesized after provider failure: %v", len(chunk), err))
			for _, c := range chunk {
				c.record = provider.Synthesize(c.phrase)
				c.state = StateEnriched
			}
			result.Stats.SynthesizedMetrics += len(chunk)
			continue
		}
		for i, c := range chunk {
			if results[i].Err != nil || results[i].Record == nil {
				c.record = provider.Synthesize(c.phrase)
				result.Stats.SynthesizedMetrics++
			} else {
				c.record = results[i].Record
				if c.record.Source == provider.MockSource {
					result.Stats.SynthesizedMetrics++
				}
			}
			c.state = StateEnriched
		}
	}
	return nil
}

// classifyIntents classifies candidates in batches; phrases the model skips
// default to Informational.
func (e *Engine) classifyIntents(ctx context.Context, cands []*candidate, result *Result) error {
	intents := make(map[string]models.Intent, len(cands))
	for start := 0; start < len(cands); start += e.intentBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+e.intentBatchSize, len(cands))
		phrases := make([]string, 0, end-start)
		for _, c := range cands[start:end] {
			phrases = append(phrases, c.phrase)
		}
		results, usage, err := e.llm.ClassifyIntents(ctx, phrases)
		result.LLMUsage.Add(usage)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("intent classification batch failed, defaulting to informational",
				"batch_size", len(phrases), "error", err)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("intent batch of %d defaulted after failure: %v", len(phrases), err))
			continue
		}
		for _, r := range results {
			intents[models.NormalizePhrase(r.Phrase)] = r.Intent
		}
	}
	for _, c := range cands {
		if intent, ok := intents[c.phrase]; ok && intent != "" {
			c.intent = intent
		} else {
			c.intent = models.IntentInformational
		}
		c.state = StateClassified
	}
	return nil
}

// qualityFilter drops candidates below the quality threshold and computes
// the capping estimate for survivors.
func (e *Engine) qualityFilter(cands []*candidate, settings models.RunSettings, stats *Stats) []*candidate {
	out := cands[:0]
	for _, c := range cands {
		c.quality = qualityScore(c)
		if c.quality < settings.QualityThreshold {
			c.drop(DropLowQuality)
			stats.Dropped[DropLowQuality]++
			candidatesTotal.WithLabelValues(string(c.tier), "dropped").Inc()
			continue
		}
		c.state = StateFiltered
		c.estimate = scoreEstimate(c)
		out = append(out, c)
	}
	return out
}

func keywordFrom(c *candidate, now time.Time) models.Keyword {
	kw := models.Keyword{
		Phrase:       c.phrase,
		Tier:         c.tier,
		ParentPhrase: c.parent,
		Intent:       c.intent,
		Relevance:    c.relevance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if r := c.record; r != nil {
		if r.Volume != nil {
			kw.Volume = *r.Volume
		}
		if r.Difficulty != nil {
			kw.Difficulty = *r.Difficulty
		}
		if r.Trend != nil {
			kw.Trend = *r.Trend
		}
		kw.CPC = r.CPC
		kw.TopSERPURLs = r.TopSERPURLs
		kw.Source = r.Source
		kw.Confidence = r.Confidence
	}
	return kw
}

func (e *Engine) report(progress float64) {
	if e.progress != nil {
		e.progress(progress)
	}
}
