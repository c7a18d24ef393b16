package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/procurement/services/rfq/config"
	"example.com/procurement/services/rfq/internal/cache"
	"example.com/procurement/services/rfq/internal/database"
	"example.com/procurement/services/rfq/internal/messaging"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/repositories"
	"example.com/procurement/services/rfq/internal/search"
	"example.com/procurement/services/rfq/internal/services"
	"example.com/procurement/services/rfq/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to consume award events from Azure Service Bus and reconcile stale projections`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	g, ctx := errgroup.WithContext(ctx)

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

	metricsCollector := metrics.NewMetrics()
	repo := repositories.New(db, readOnlyDB)
	projector := services.NewProjector(repo, redisCache, elasticClient, metricsCollector)
	awardService := services.NewAwardService(repo, redisCache, projector, nil, metricsCollector, tracer)

	// Consume award events from the queue
	if cfg.Azure.QueueConnStr != "" {
		consumer, err := messaging.NewConsumer(cfg.Azure)
		if err != nil {
			return err
		}
		defer consumer.Close()

		processor := messaging.NewProcessor(awardService, metricsCollector)
		g.Go(func() error {
			return consumer.Run(ctx, processor)
		})
	} else {
		log.Warn().Msg("No Service Bus connection configured, running projection reconciliation only")
	}

	// Reproject stale RFQ summaries on a schedule
	g.Go(func() error {
		log.Info().
			Dur("interval", cfg.Worker.ProjectionInterval).
			Msg("Starting projection reconciliation job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.ProjectionInterval),
			gocron.NewTask(func() {
				if err := projector.ReconcileProjections(ctx, cfg.Worker.ProjectionBatch); err != nil {
					log.Error().Err(err).Msg("Failed to reconcile projections")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()
		<-ctx.Done()
		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
