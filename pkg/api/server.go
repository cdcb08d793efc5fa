// Package api is the HTTP surface of the provenance service: detection
// endpoints, history and dashboard queries, operator endpoints for the
// scheduler and audit pipeline, and health checks.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	echo "github.com/labstack/echo/v5"

	"github.com/provenance-labs/provd/pkg/audit"
	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/database"
	"github.com/provenance-labs/provd/pkg/intel"
	"github.com/provenance-labs/provd/pkg/ratelimit"
	"github.com/provenance-labs/provd/pkg/scheduler"
	"github.com/provenance-labs/provd/pkg/services"
	"github.com/provenance-labs/provd/pkg/store"
)

// cachePinger is the optional shared-counter backend health probe.
type cachePinger interface {
	Ping(ctx context.Context) error
}

// Server wires the HTTP layer over the core components.
type Server struct {
	cfg       *config.Config
	dbClient  *database.Client
	detection *services.DetectionService
	store     *store.AnalysisStore
	audit     *audit.Service
	guard     *ratelimit.Guard
	sched     *scheduler.Scheduler
	collector *intel.Collector
	cache     cachePinger

	validate *validator.Validate
	echo     *echo.Echo
	http     *http.Server
}

// NewServer builds the router with middleware and all routes registered.
func NewServer(cfg *config.Config, dbClient *database.Client, detection *services.DetectionService,
	analysisStore *store.AnalysisStore, auditSvc *audit.Service, guard *ratelimit.Guard,
	sched *scheduler.Scheduler, collector *intel.Collector, cache cachePinger) *Server {

	s := &Server{
		cfg:       cfg,
		dbClient:  dbClient,
		detection: detection,
		store:     analysisStore,
		audit:     auditSvc,
		guard:     guard,
		sched:     sched,
		collector: collector,
		cache:     cache,
		validate:  validator.New(),
		echo:      echo.New(),
	}
	s.echo.HTTPErrorHandler = errorEnvelopeHandler
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(requestID())
	e.Use(securityHeaders())
	e.Use(s.auditHTTP())

	// Health stays unauthenticated so orchestrators can probe it.
	e.GET("/health", s.healthHandler)

	auth := s.apiKeyAuth()
	detect := e.Group("/detect", auth)
	detect.POST("/text", s.detectTextHandler, s.rateLimit("text", "text"))
	detect.POST("/image", s.detectMediaHandler("image"), s.rateLimit("media", "image"))
	detect.POST("/audio", s.detectMediaHandler("audio"), s.rateLimit("media", "audio"))
	detect.POST("/video", s.detectMediaHandler("video"), s.rateLimit("media", "video"))
	detect.POST("/url", s.detectURLHandler, s.rateLimit("media", "image"))

	e.POST("/batch/text", s.batchTextHandler, auth, s.rateLimit("batch", "batch"))

	analyze := e.Group("/analyze", auth, s.rateLimit("default", "text"))
	analyze.GET("/history", s.listHistoryHandler)
	analyze.GET("/history/:id", s.getAnalysisHandler)
	analyze.GET("/dashboard", s.dashboardHandler)
	analyze.GET("/export", s.exportHandler)

	intelGroup := e.Group("/intel", auth, s.rateLimit("intel", "intel"))
	intelGroup.POST("/x/collect/estimate", s.estimateHandler)
	intelGroup.GET("/scheduler/status", s.schedulerStatusHandler)
	intelGroup.POST("/scheduler/trigger", s.schedulerTriggerHandler)

	auditGroup := e.Group("/audit", auth, s.rateLimit("default", "text"))
	auditGroup.GET("/events", s.listEventsHandler)
	auditGroup.GET("/tail", s.tailEventsHandler)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
