package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/di"
	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/handler"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/config"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/database"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/kafka"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/middleware"
	pkgredis "github.com/Klasique-art/cafa-tickets-backend/pkg/redis"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

const serviceName = "cafa-tickets-api"

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
	appLog.Info("Starting ticketing API...", zap.String("version", cfg.App.Version))

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Tracing disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	// Initialize database connection
	db, err := database.NewPostgres(ctx, database.PostgresConfigFrom(&cfg.Database, cfg.OTel.Enabled))
	if err != nil {
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Redis connection
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.ConfigFrom(&cfg.Redis))
	if err != nil {
		appLog.Fatal("Redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	publisher := newPublisher(ctx, cfg, appLog)
	defer publisher.Close()

	// Payment providers
	paymentGateway, err := gateway.NewPaymentGateway(cfg.Marketplace.PaymentGateway, cfg)
	if err != nil {
		appLog.Fatal("Payment gateway setup failed", zap.Error(err))
	}
	transfers, err := gateway.NewTransferProvider(cfg.Marketplace.PaymentGateway, cfg, paymentGateway)
	if err != nil {
		appLog.Fatal("Transfer provider setup failed", zap.Error(err))
	}
	appLog.Info("Payment gateway ready", zap.String("gateway", paymentGateway.Name()))

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		Config:    cfg,
		Store:     repository.NewPostgresStore(db),
		Gateway:   paymentGateway,
		Transfers: transfers,
		Publisher: publisher,
		Log:       appLog,
		HealthChecks: map[string]handler.HealthCheck{
			"database": db.HealthCheck,
			"redis":    redisClient.HealthCheck,
		},
	})

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	idempotency := middleware.DefaultIdempotencyConfig(redisClient.Client())
	router := container.Router(idempotency)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		appLog.Info("API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}

// newPublisher connects the Kafka event publisher, falling back to a no-op
// publisher when Kafka is disabled or unreachable
func newPublisher(ctx context.Context, cfg *config.Config, appLog *logger.Logger) event.Publisher {
	if !cfg.Kafka.Enabled {
		appLog.Info("Kafka disabled, events are not published")
		return event.NoOpPublisher{}
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      cfg.Kafka.ClientID,
		MaxRetries:    3,
		RetryInterval: time.Second,
	})
	if err != nil {
		appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		return event.NoOpPublisher{}
	}

	publisher, err := event.NewKafkaPublisher(producer, serviceName, producer.Close)
	if err != nil {
		producer.Close()
		appLog.Warn("Kafka publisher setup failed, using no-op publisher", zap.Error(err))
		return event.NoOpPublisher{}
	}
	appLog.Info("Kafka event publisher connected")
	return publisher
}
