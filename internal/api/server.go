package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/config"
	"example.com/procurement/services/rfq/internal/api/handlers"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/services"
	"example.com/procurement/services/rfq/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config       config.Config
	router       *gin.Engine
	httpServer   *http.Server
	awardService *services.AwardService
	projector    *services.Projector
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	awardService *services.AwardService,
	projector *services.Projector,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:       cfg,
		awardService: awardService,
		projector:    projector,
		metrics:      metricsCollector,
		tracer:       tracer,
	}

	router := server.setupRouter()
	server.router = router

	server.httpServer = &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  cfg.ServerTimeout,
		WriteTimeout: cfg.ServerTimeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(gin.Recovery())

	awardHandler := handlers.NewAwardHandler(s.awardService, s.tracer)
	awardHandler.RegisterRoutes(router)

	rfqHandler := handlers.NewRfqHandler(s.projector, s.tracer)
	rfqHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics)
	metricsHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
