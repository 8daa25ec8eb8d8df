package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/infrastructure/kafka"
	"github.com/example/storefront-orders/internal/notification"
	"github.com/example/storefront-orders/internal/telemetry"
)

func main() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel)
	logger := slog.Default().With("component", "notifier")

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := notification.NewHandler(notification.LogSender{Logger: logger}, cfg.WhatsAppAdmin)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	logger.Info("consuming order events",
		"brokers", cfg.KafkaBrokers,
		"topic", cfg.KafkaTopic,
		"group", cfg.KafkaGroupID,
	)
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}
