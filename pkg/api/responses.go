package api

import (
	"time"

	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/provider"
	"github.com/seoforge/seoforge/pkg/queue"
)

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// KeywordListResponse wraps a run's keyword universe.
type KeywordListResponse struct {
	RunID    string            `json:"run_id"`
	Keywords []*models.Keyword `json:"keywords"`
	Count    int               `json:"count"`
}

// ClusterListResponse wraps a run's clusters.
type ClusterListResponse struct {
	RunID    string            `json:"run_id"`
	Clusters []*models.Cluster `json:"clusters"`
	Count    int               `json:"count"`
}

// RoadmapResponse wraps a run's publishing roadmap.
type RoadmapResponse struct {
	RunID string                `json:"run_id"`
	Items []*models.RoadmapItem `json:"items"`
	Count int                   `json:"count"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  string            `json:"status"` // healthy or degraded
	Version string            `json:"version"`
	Pool    *queue.PoolHealth `json:"pool,omitempty"`
}

// ProviderHealthResponse is the /providers/health body.
type ProviderHealthResponse struct {
	Providers []provider.HealthStatus `json:"providers"`
	CheckedAt time.Time               `json:"checked_at"`
}
