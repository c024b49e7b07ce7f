package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seoforge/seoforge/pkg/version"
)

// healthHandler handles GET /health and GET /api/v1/health.
// Reports degraded (503) when the worker pool is unhealthy.
func (s *Server) healthHandler(c *gin.Context) {
	resp := &HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
	}
	if s.pool != nil {
		resp.Pool = s.pool.Health()
		if !resp.Pool.IsHealthy {
			resp.Status = "degraded"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// providerHealthHandler handles GET /api/v1/providers/health, serving the
// monitor's cached snapshot.
func (s *Server) providerHealthHandler(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusOK, &ProviderHealthResponse{})
		return
	}
	statuses, checkedAt := s.monitor.Statuses(c.Request.Context())
	c.JSON(http.StatusOK, &ProviderHealthResponse{
		Providers: statuses,
		CheckedAt: checkedAt,
	})
}
