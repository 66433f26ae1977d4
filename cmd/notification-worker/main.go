package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/internal/worker"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/config"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/kafka"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/retry"
)

const serviceName = "notification-worker"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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
	appLog.Info("Starting Notification Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groupID := cfg.Kafka.ConsumerGroup
	if groupID == "" {
		groupID = serviceName
	}
	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       groupID,
		Topics:        event.Topics,
		ClientID:      serviceName,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()
	appLog.Info("Kafka consumer connected", zap.Strings("topics", event.Topics))

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      serviceName + "-dlq",
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	policy := retry.DefaultConfig()
	policy.MaxRetries = 3
	dlq := retry.NewDLQHandler(retry.NewKafkaDLQPublisher(producer, serviceName), policy, func(msg *retry.DLQMessage) {
		appLog.Warn("notification dead-lettered",
			zap.String("topic", msg.OriginalTopic),
			zap.String("key", msg.OriginalKey),
			zap.Int("attempts", msg.Attempts),
		)
	})

	notifications := worker.NewNotificationConsumer(
		consumer,
		worker.NewLogNotifier(appLog),
		dlq,
		&worker.NotificationConsumerConfig{WorkerCount: 5},
		appLog,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := notifications.Start(ctx); err != nil && ctx.Err() == nil {
			appLog.Error("Notification consumer error", zap.Error(err))
		}
	}()

	appLog.Info("Notification Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-done:
	}

	appLog.Info("Shutting down worker...")
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		appLog.Warn("Notification consumer did not drain in time")
	}

	appLog.Info("Worker exited gracefully")
}
