package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seoforge/seoforge/pkg/models"
)

// getKeywordsHandler handles GET /api/v1/runs/:id/keywords.
// Supports ?tier=dream100|tier2|tier3 and ?quick_wins=true.
func (s *Server) getKeywordsHandler(c *gin.Context) {
	var tier models.Tier
	if v := c.Query("tier"); v != "" {
		switch t := models.Tier(v); t {
		case models.TierDream100, models.TierTier2, models.TierTier3:
			tier = t
		default:
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid tier: " + v})
			return
		}
	}
	quickWinsOnly := c.Query("quick_wins") == "true"

	keywords, err := s.runs.GetKeywords(c.Request.Context(), c.Param("id"), tier, quickWinsOnly)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, &KeywordListResponse{
		RunID:    c.Param("id"),
		Keywords: keywords,
		Count:    len(keywords),
	})
}

// getClustersHandler handles GET /api/v1/runs/:id/clusters.
func (s *Server) getClustersHandler(c *gin.Context) {
	clusters, err := s.runs.GetClusters(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, &ClusterListResponse{
		RunID:    c.Param("id"),
		Clusters: clusters,
		Count:    len(clusters),
	})
}

// getRoadmapHandler handles GET /api/v1/runs/:id/roadmap.
// Supports ?dri=<name> to filter by assignee.
func (s *Server) getRoadmapHandler(c *gin.Context) {
	items, err := s.runs.GetRoadmap(c.Request.Context(), c.Param("id"), c.Query("dri"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, &RoadmapResponse{
		RunID: c.Param("id"),
		Items: items,
		Count: len(items),
	})
}
