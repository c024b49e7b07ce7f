// Package embedding acquires and caches phrase embeddings. The cache is
// two-layer: an in-process LRU in front of a durable store, with
// single-flight deduplication so each normalized phrase is computed at most
// once per process.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math"
	"strings"

	"github.com/seoforge/seoforge/pkg/models"
)

// Provider computes embeddings for batches of phrases.
type Provider interface {
	// Embed returns one vector per phrase, in input order. Vectors are
	// models.EmbeddingDimensions wide.
	Embed(ctx context.Context, phrases []string) ([][]float32, error)
}

// CacheKey is the SHA-256 of the normalized phrase, hex-encoded.
func CacheKey(phrase string) string {
	sum := sha256.Sum256([]byte(models.NormalizePhrase(phrase)))
	return hex.EncodeToString(sum[:])
}

// MockProvider produces deterministic embeddings without a network call.
// Phrases sharing tokens land near each other, which gives clustering tests
// realistic neighborhood structure.
type MockProvider struct {
	// Dimensions overrides models.EmbeddingDimensions when > 0, keeping
	// test fixtures small.
	Dimensions int
}

// Embed implements Provider.
func (m *MockProvider) Embed(_ context.Context, phrases []string) ([][]float32, error) {
	dims := m.Dimensions
	if dims <= 0 {
		dims = models.EmbeddingDimensions
	}
	out := make([][]float32, len(phrases))
	for i, phrase := range phrases {
		out[i] = tokenVector(phrase, dims)
	}
	return out, nil
}

// tokenVector spreads each token over a few hashed positions and normalizes,
// so cosine similarity tracks token overlap.
func tokenVector(phrase string, dims int) []float32 {
	vec := make([]float32, dims)
	for _, token := range tokenize(phrase) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		seed := h.Sum64()
		for k := 0; k < 4; k++ {
			pos := int((seed >> (k * 13)) % uint64(dims))
			vec[pos] += 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(phrase string) []string {
	return strings.Fields(models.NormalizePhrase(phrase))
}
