// Package api exposes the HTTP surface: run lifecycle endpoints, result
// access, live event streaming, and operational health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seoforge/seoforge/pkg/events"
	"github.com/seoforge/seoforge/pkg/provider"
	"github.com/seoforge/seoforge/pkg/queue"
	"github.com/seoforge/seoforge/pkg/services"
	"github.com/seoforge/seoforge/pkg/version"
)

// PoolHealthReporter reports worker pool health. Implemented by
// queue.WorkerPool; nil disables the pool section of /health.
type PoolHealthReporter interface {
	Health() *queue.PoolHealth
}

// Server wires the run service and operational surfaces into a gin router.
type Server struct {
	runs    *services.RunService
	pool    PoolHealthReporter
	monitor *provider.Monitor
	bus     *events.Bus
	logger  *slog.Logger

	httpServer *http.Server
}

// NewServer creates the API server. pool, monitor, and bus may be nil; the
// corresponding endpoints degrade gracefully.
func NewServer(runs *services.RunService, pool PoolHealthReporter, monitor *provider.Monitor, bus *events.Bus, logger *slog.Logger) *Server {
	return &Server{
		runs:    runs,
		pool:    pool,
		monitor: monitor,
		bus:     bus,
		logger:  logger.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(securityHeaders())

	router.GET("/health", s.healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", s.healthHandler)
		v1.GET("/providers/health", s.providerHealthHandler)

		runs := v1.Group("/runs")
		{
			runs.POST("", s.createRunHandler)
			runs.GET("", s.listRunsHandler)
			runs.GET("/:id", s.getRunHandler)
			runs.POST("/:id/cancel", s.cancelRunHandler)
			runs.POST("/:id/resume", s.resumeRunHandler)
			runs.GET("/:id/keywords", s.getKeywordsHandler)
			runs.GET("/:id/clusters", s.getClustersHandler)
			runs.GET("/:id/roadmap", s.getRoadmapHandler)
			runs.GET("/:id/events", s.streamEventsHandler)
		}
	}

	return router
}

// Start begins serving on addr. It blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server starting", "addr", addr, "version", version.Full())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
