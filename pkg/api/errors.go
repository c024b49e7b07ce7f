package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seoforge/seoforge/pkg/services"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// mapServiceError maps service-layer errors to HTTP error responses.
func (s *Server) mapServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: validErr.Error()})
		return
	}
	if errors.Is(err, services.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "resource not found"})
		return
	}
	if errors.Is(err, services.ErrNotCancellable) {
		c.JSON(http.StatusConflict, errorResponse{Error: "run is not in a cancellable state"})
		return
	}
	if errors.Is(err, services.ErrNotResumable) {
		c.JSON(http.StatusConflict, errorResponse{Error: "run is not in a resumable state"})
		return
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		c.JSON(http.StatusConflict, errorResponse{Error: "resource already exists"})
		return
	}

	// Unexpected error
	s.logger.Error("unexpected service error", "error", err, "path", c.Request.URL.Path)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}
