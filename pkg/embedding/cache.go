package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/store"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoforge",
		Subsystem: "embedding_cache",
		Name:      "lookups_total",
		Help:      "Embedding cache lookups by layer outcome.",
	}, []string{"outcome"}) // lru_hit, store_hit, miss
)

// Cache fronts an embedding Provider with an in-process LRU over an optional
// durable store. Keys are the SHA-256 of the normalized phrase; values have
// no TTL and are evicted LRU-only. A single-flight group guarantees at most
// one in-flight computation per phrase across the process.
type Cache struct {
	provider  Provider
	durable   store.EmbeddingStore // may be nil
	local     *lru.Cache[string, []float32]
	group     singleflight.Group
	batchSize int
	logger    *slog.Logger

	// inFlight tracks phrases some leader is currently embedding, keyed by
	// normalized phrase, so overlapping batches never re-send them.
	flightMu sync.Mutex
	inFlight map[string]chan struct{}
}

// NewCache builds a cache with the given LRU capacity. durable may be nil,
// leaving only the in-process layer.
func NewCache(provider Provider, durable store.EmbeddingStore, capacity, batchSize int, logger *slog.Logger) (*Cache, error) {
	if capacity <= 0 {
		capacity = 50000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	local, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding LRU: %w", err)
	}
	return &Cache{
		provider:  provider,
		durable:   durable,
		local:     local,
		batchSize: batchSize,
		logger:    logger.With("component", "embedding_cache"),
		inFlight:  make(map[string]chan struct{}),
	}, nil
}

// Purge drops the in-process layer. The durable store keeps its entries.
func (c *Cache) Purge() {
	c.local.Purge()
}

// Get returns the embedding of one phrase, computing it on miss.
func (c *Cache) Get(ctx context.Context, phrase string) ([]float32, error) {
	vectors, err := c.GetBatch(ctx, []string{phrase})
	if err != nil {
		return nil, err
	}
	vec, ok := vectors[models.NormalizePhrase(phrase)]
	if !ok {
		return nil, fmt.Errorf("embedding unavailable for %q", phrase)
	}
	return vec, nil
}

// GetBatch resolves embeddings for many phrases, keyed by normalized phrase.
// Phrases whose provider batch failed after retries are absent from the
// result; callers treat them as skipped.
func (c *Cache) GetBatch(ctx context.Context, phrases []string) (map[string][]float32, error) {
	results := make(map[string][]float32, len(phrases))
	var misses []string
	seen := make(map[string]bool, len(phrases))

	for _, phrase := range phrases {
		normalized := models.NormalizePhrase(phrase)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true

		if vec, ok := c.local.Get(CacheKey(normalized)); ok {
			cacheLookups.WithLabelValues("lru_hit").Inc()
			results[normalized] = vec
			continue
		}
		if vec, ok := c.durableGet(ctx, normalized); ok {
			cacheLookups.WithLabelValues("store_hit").Inc()
			results[normalized] = vec
			continue
		}
		cacheLookups.WithLabelValues("miss").Inc()
		misses = append(misses, normalized)
	}

	if len(misses) == 0 {
		return results, nil
	}

	for i, phrase := range misses {
		tail := misses[i+1:]
		v, err, _ := c.group.Do(CacheKey(phrase), func() (any, error) {
			return c.fetchLead(ctx, phrase, tail)
		})
		if err != nil {
			// Skipped after retries; the failure is already logged.
			continue
		}
		results[phrase] = v.([]float32)
	}
	if ctx.Err() != nil {
		return results, ctx.Err()
	}
	return results, nil
}

func (c *Cache) durableGet(ctx context.Context, normalized string) ([]float32, bool) {
	if c.durable == nil {
		return nil, false
	}
	vec, ok, err := c.durable.Get(ctx, CacheKey(normalized))
	if err != nil {
		c.logger.Warn("durable embedding lookup failed", "error", err)
		return nil, false
	}
	if ok {
		c.local.Add(CacheKey(normalized), vec)
	}
	return vec, ok
}

func (c *Cache) put(ctx context.Context, normalized string, vec []float32) {
	key := CacheKey(normalized)
	c.local.Add(key, vec)
	if c.durable != nil {
		if err := c.durable.Put(ctx, key, vec); err != nil {
			c.logger.Warn("durable embedding write failed", "error", err)
		}
	}
}

// fetchLead resolves one missed phrase as its single-flight leader, pulling
// as many of the caller's remaining misses as fit into the same provider
// round. Phrases another leader is already embedding are left to that flight
// and waited on instead, so no phrase is ever on the wire twice.
func (c *Cache) fetchLead(ctx context.Context, phrase string, tail []string) ([]float32, error) {
	for {
		c.flightMu.Lock()
		if done, busy := c.inFlight[phrase]; busy {
			c.flightMu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if vec, ok := c.local.Get(CacheKey(phrase)); ok {
				return vec, nil
			}
			// The other flight failed; take the lead ourselves.
			continue
		}
		if vec, ok := c.local.Get(CacheKey(phrase)); ok {
			c.flightMu.Unlock()
			return vec, nil
		}

		done := make(chan struct{})
		chunk := []string{phrase}
		c.inFlight[phrase] = done
		for _, p := range tail {
			if len(chunk) >= c.batchSize {
				break
			}
			if _, busy := c.inFlight[p]; busy {
				continue
			}
			if _, ok := c.local.Get(CacheKey(p)); ok {
				continue
			}
			c.inFlight[p] = done
			chunk = append(chunk, p)
		}
		c.flightMu.Unlock()

		vectors, err := c.provider.Embed(ctx, chunk)
		if err == nil {
			for i, p := range chunk {
				c.put(ctx, p, vectors[i])
			}
		} else {
			// Retries happened inside the provider's batcher; the chunk
			// is skipped.
			c.logger.Warn("embedding batch failed, skipping",
				"count", len(chunk), "error", err)
		}

		c.flightMu.Lock()
		for _, p := range chunk {
			delete(c.inFlight, p)
		}
		c.flightMu.Unlock()
		close(done)

		if err != nil {
			return nil, fmt.Errorf("embedding batch failed for %q: %w", phrase, err)
		}
		return vectors[0], nil
	}
}
