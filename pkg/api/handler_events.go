package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seoforge/seoforge/pkg/events"
)

// sseKeepAliveInterval keeps idle streams from being reaped by proxies.
const sseKeepAliveInterval = 30 * time.Second

// streamEventsHandler handles GET /api/v1/runs/:id/events, streaming the
// run's lifecycle, stage, progress, and warning events over SSE until the
// client disconnects.
func (s *Server) streamEventsHandler(c *gin.Context) {
	runID := c.Param("id")
	if s.bus == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "event streaming is not enabled"})
		return
	}
	if _, err := s.runs.GetRun(c.Request.Context(), runID); err != nil {
		s.mapServiceError(c, err)
		return
	}

	ch, cancel := s.bus.Subscribe(events.RunChannel(runID))
	defer cancel()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case env, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("message", env.Payload)
			return true
		case <-keepAlive.C:
			c.SSEvent("keepalive", nil)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
