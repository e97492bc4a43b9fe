package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/richcast/richcast/internal/config"
	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/handler"
	"github.com/richcast/richcast/internal/infra/postgresql"
	"github.com/richcast/richcast/internal/infra/postgresql/migrations"
	infraredis "github.com/richcast/richcast/internal/infra/redis"
	"github.com/richcast/richcast/internal/observability"
	"github.com/richcast/richcast/internal/provider"
	"github.com/richcast/richcast/internal/queue"
	"github.com/richcast/richcast/internal/repository"
	"github.com/richcast/richcast/internal/service"
	"github.com/richcast/richcast/internal/timezone"
	"github.com/richcast/richcast/internal/tracker"
	"github.com/richcast/richcast/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("richcast exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	deliveryRepo := repository.NewGormDeliveryRepo(db)
	timezoneRepo := repository.NewGormTimezoneRepo(db)

	metrics := observability.NewMetrics()

	resolver, err := timezone.NewResolver(timezoneRepo, logger)
	if err != nil {
		return err
	}
	manager, err := timezone.NewManager(timezoneRepo, cfg.DefaultDeliveryHour, logger)
	if err != nil {
		return err
	}

	policy := domain.DefaultRetryPolicy()
	policy.MaxRetries = cfg.RetryMax
	policy.InitialDelay = cfg.RetryInitialDelay()
	policy.MaxDelay = cfg.RetryMaxDelay()

	deliveries, err := tracker.NewTracker(deliveryRepo, policy, logger)
	if err != nil {
		return err
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return err
	}

	pushTransport, err := provider.NewWebhookTransport(cfg.PushAPIURL)
	if err != nil {
		return err
	}
	composer, err := provider.NewStaticImageComposer(cfg.ImageBaseURL)
	if err != nil {
		return err
	}
	generator := provider.NewTemplateContentGenerator()

	coordinator, err := service.NewCoordinator(manager, deliveries, publisher, cfg.SchedulerInterval(), cfg.DeliveryBatchSize, logger)
	if err != nil {
		return err
	}
	coordinator.SetMetrics(metrics)

	workers, err := service.NewWorkerService(deliveries, consumer, generator, composer, pushTransport, limiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		return err
	}
	workers.SetMetrics(metrics)

	scanner, err := service.NewRetryScanner(deliveries, publisher, cfg.RetryScanInterval(), cfg.DeliveryBatchSize, logger)
	if err != nil {
		return err
	}
	scanner.SetMetrics(metrics)

	janitor, err := service.NewJanitor(deliveries, manager, time.Hour, time.Duration(cfg.RecordRetentionDays)*24*time.Hour, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterDeliveryRoutes(app, deliveries, manager); err != nil {
		return err
	}
	if err := handler.RegisterTimezoneRoutes(app, resolver, manager); err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return coordinator.Start(groupCtx) })
	g.Go(func() error { return workers.Start(groupCtx) })
	g.Go(func() error { return scanner.Start(groupCtx) })
	g.Go(func() error { return janitor.Start(groupCtx) })

	g.Go(func() error {
		logger.Info("richcast api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
