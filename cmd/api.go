package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/procurement/services/rfq/config"
	"example.com/procurement/services/rfq/internal/api"
	"example.com/procurement/services/rfq/internal/cache"
	"example.com/procurement/services/rfq/internal/database"
	"example.com/procurement/services/rfq/internal/messaging"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/repositories"
	"example.com/procurement/services/rfq/internal/search"
	"example.com/procurement/services/rfq/internal/services"
	"example.com/procurement/services/rfq/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server that accepts award submissions and serves award summaries`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	var publisher services.EventPublisher
	if cfg.Azure.QueueConnStr != "" {
		busClient, err := messaging.NewServiceBusClient(cfg.Azure, "rfq-api")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Service Bus client, continuing without messaging")
		} else {
			defer busClient.Close()
			publisher = busClient
		}
	}

	metricsCollector := metrics.NewMetrics()
	repo := repositories.New(db, readOnlyDB)
	projector := services.NewProjector(repo, redisCache, elasticClient, metricsCollector)
	awardService := services.NewAwardService(repo, redisCache, projector, publisher, metricsCollector, tracer)

	server := api.NewServer(cfg, awardService, projector, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
