// Package provider presents one interface for keyword metrics regardless of
// upstream vendor, and encapsulates quota, latency, and health. A registry
// selects among configured vendors and falls back to synthesized metrics when
// no healthy vendor remains.
package provider

import (
	"context"
	"time"
)

// MockSource is the source recorded on synthesized metrics.
const MockSource = "mock"

// MockConfidence is the confidence recorded on synthesized metrics.
const MockConfidence = 0.5

// MetricsRecord holds normalized keyword metrics. Difficulty and competition
// are rescaled to 0..100 regardless of vendor scale. Missing fields stay nil,
// never zero.
type MetricsRecord struct {
	Phrase      string   `json:"phrase"`
	Volume      *int64   `json:"volume"`
	Difficulty  *int     `json:"difficulty"`  // 0..100
	Competition *int     `json:"competition"` // 0..100
	CPC         *float64 `json:"cpc"`
	Trend       *float64 `json:"trend"` // -1..1
	TopSERPURLs []string `json:"top_serp_urls,omitempty"`

	// Source names the vendor that produced the record; MockSource when
	// synthesized.
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// BulkResult pairs one phrase of a bulk request with its record or error.
// Results preserve the input order.
type BulkResult struct {
	Record *MetricsRecord
	Err    error
}

// MetricsOptions qualifies a metrics lookup.
type MetricsOptions struct {
	Market   string
	Language string
}

// SuggestOptions qualifies a suggestion lookup.
type SuggestOptions struct {
	Market   string
	Language string
	Limit    int
}

// HealthStatus is one provider's entry in the health report.
type HealthStatus struct {
	Provider       string        `json:"provider"`
	Healthy        bool          `json:"healthy"`
	QuotaUsed      int64         `json:"quota_used"`
	QuotaLimit     int64         `json:"quota_limit"`
	QuotaRemaining int64         `json:"quota_remaining"`
	ResetAt        time.Time     `json:"reset_at"`
	LastLatency    time.Duration `json:"last_latency"`
}

// Provider is a single keyword-metrics vendor.
type Provider interface {
	// Name identifies the vendor in usage accounting and record sources.
	Name() string

	// GetKeywordMetrics returns metrics for one phrase or a typed
	// *ProviderError within the configured per-call timeout.
	GetKeywordMetrics(ctx context.Context, phrase string, opts MetricsOptions) (*MetricsRecord, error)

	// GetBulkKeywordMetrics returns one result per input phrase, in input
	// order. Partial failures surface per item; only auth failures reject
	// the whole batch.
	GetBulkKeywordMetrics(ctx context.Context, phrases []string, opts MetricsOptions) ([]BulkResult, error)

	// GetKeywordSuggestions returns at most opts.Limit phrases in the
	// vendor's native relevance order.
	GetKeywordSuggestions(ctx context.Context, seed string, opts SuggestOptions) ([]string, error)

	// Health reports current vendor health and quota state.
	Health(ctx context.Context) HealthStatus

	// CostPerRequest feeds budget accounting.
	CostPerRequest() float64
}
