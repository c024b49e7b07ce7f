package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/seoforge/seoforge/pkg/models"
)

// createRunHandler handles POST /api/v1/runs.
func (s *Server) createRunHandler(c *gin.Context) {
	var req models.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	run, err := s.runs.CreateRun(c.Request.Context(), req)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

// listRunsHandler handles GET /api/v1/runs.
func (s *Server) listRunsHandler(c *gin.Context) {
	filters := models.RunFilters{
		OwnerID: c.Query("owner_id"),
	}

	if v := c.Query("status"); v != "" {
		switch status := models.RunStatus(v); status {
		case models.RunStatusPending, models.RunStatusProcessing,
			models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
			filters.Status = status
		default:
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid status: " + v})
			return
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filters.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	result, err := s.runs.ListRuns(c.Request.Context(), filters)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// getRunHandler handles GET /api/v1/runs/:id.
func (s *Server) getRunHandler(c *gin.Context) {
	run, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// cancelRunHandler handles POST /api/v1/runs/:id/cancel.
func (s *Server) cancelRunHandler(c *gin.Context) {
	runID := c.Param("id")
	if err := s.runs.CancelRun(c.Request.Context(), runID); err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, &CancelResponse{
		RunID:   runID,
		Message: "run cancellation requested",
	})
}

// resumeRunHandler handles POST /api/v1/runs/:id/resume. The resumed run is a
// new run linked to the original through its lineage.
func (s *Server) resumeRunHandler(c *gin.Context) {
	resumed, err := s.runs.ResumeRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resumed)
}
