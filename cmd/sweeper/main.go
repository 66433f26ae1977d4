package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/di"
	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/internal/worker"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/config"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/database"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/kafka"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	pkgredis "github.com/Klasique-art/cafa-tickets-backend/pkg/redis"
)

const serviceName = "sweeper"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateDatabase(); err != nil {
		log.Fatalf("Invalid database config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Sweeper...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.PostgresConfigFrom(&cfg.Database, false)
	dbCfg.MaxConns = 10
	dbCfg.MinConns = 2
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Redis only backs the job locks
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.ConfigFrom(&cfg.Redis))
	if err != nil {
		appLog.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	var publisher event.Publisher = event.NoOpPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      serviceName,
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		} else if kp, err := event.NewKafkaPublisher(producer, serviceName, producer.Close); err == nil {
			publisher = kp
		}
	}
	defer publisher.Close()

	paymentGateway, err := gateway.NewPaymentGateway(cfg.Marketplace.PaymentGateway, cfg)
	if err != nil {
		appLog.Fatal("Payment gateway setup failed", zap.Error(err))
	}
	transfers, err := gateway.NewTransferProvider(cfg.Marketplace.PaymentGateway, cfg, paymentGateway)
	if err != nil {
		appLog.Fatal("Transfer provider setup failed", zap.Error(err))
	}

	container := di.NewContainer(&di.ContainerConfig{
		Config:    cfg,
		Store:     repository.NewPostgresStore(db),
		Gateway:   paymentGateway,
		Transfers: transfers,
		Publisher: publisher,
		Log:       appLog,
	})

	// Reservation expiry runs on every replica; the cron jobs take a shared lock
	expiryWorker := worker.NewExpiryWorker(container.Reservations, &worker.ExpiryWorkerConfig{
		ScanInterval: cfg.Worker.ExpiryScanInterval,
		BatchSize:    cfg.Worker.ExpiryBatchSize,
	}, appLog)
	if err := expiryWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start expiry worker", zap.Error(err))
	}

	scheduler := worker.NewScheduler(pkgredis.NewLocker(redisClient.Client()), nil, appLog)
	if err := worker.RegisterSweeperJobs(scheduler, container.Revenue, container.Withdrawals, &worker.SweeperJobsConfig{
		RevenueReleaseSchedule: cfg.Worker.RevenueReleaseSchedule,
		ReconcileSchedule:      cfg.Worker.ReconcileSchedule,
		ReconcileAfter:         cfg.Worker.ReconcileAfter,
	}); err != nil {
		appLog.Fatal("Failed to register sweeper jobs", zap.Error(err))
	}
	scheduler.Start(ctx)

	appLog.Info("Sweeper started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down sweeper...")
	expiryWorker.Stop()

	select {
	case <-scheduler.Stop().Done():
	case <-time.After(30 * time.Second):
		appLog.Warn("Scheduled jobs still running at shutdown")
	}
	cancel()

	appLog.Info("Sweeper exited gracefully")
}
