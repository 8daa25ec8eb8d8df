package main

import (
	"context"
	"log/slog"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/infrastructure/kafka"
	"github.com/example/storefront-orders/internal/notification"
	"github.com/example/storefront-orders/internal/telemetry"
)

var notificationHandler *notification.Handler

func init() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel)

	logger := slog.Default().With("component", "lambda-notifier")
	notificationHandler = notification.NewHandler(notification.LogSender{Logger: logger}, cfg.WhatsAppAdmin)
	logger.Info("initialized", "admin_configured", cfg.WhatsAppAdmin != "")
}

// handler consumes order events delivered by an MSK event source mapping.
// A returned error makes Lambda retry the whole batch.
func handler(ctx context.Context, batch lambdaevents.KafkaEvent) error {
	return kafka.LambdaBatch(ctx, batch, notificationHandler.HandleEvent)
}

func main() {
	lambda.Start(handler)
}
