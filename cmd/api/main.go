package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront-orders/internal/api"
	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/events"
	"github.com/example/storefront-orders/internal/infrastructure/cache"
	"github.com/example/storefront-orders/internal/infrastructure/kafka"
	"github.com/example/storefront-orders/internal/query"
	"github.com/example/storefront-orders/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel)
	logger := slog.Default().With("component", "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer b.close()
	logger.Info("store ready", "backend", cfg.StoreBackend)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
		logger.Info("publishing order events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are dropped")
	}

	var idem command.IdempotencyStore
	if cfg.RedisAddr != "" {
		store := cache.NewIdempotencyStore(cfg.RedisAddr, "storefront-orders", cfg.IdempotencyTTL)
		defer store.Close()
		idem = store
		logger.Info("idempotency keys enabled", "redis", cfg.RedisAddr, "ttl", cfg.IdempotencyTTL)
	}

	pricer := order.NewPricer(b.catalog, b.coupons, cfg.CustomizationFee)
	cmdHandler := command.NewHandler(pricer, b.tx, b.orders, publisher, idem)
	queryHandler := query.NewHandler(b.orders, b.catalog)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)

	router := api.NewRouter(
		api.NewHandlers(cmdHandler, queryHandler),
		api.NewCouponHandlers(coupon.NewService(b.coupons)),
		api.NewAuthHandlers(),
		jwtService,
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}
