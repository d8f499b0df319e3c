package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/pageturn/fulfillment/internal/compensation"
	"github.com/pageturn/fulfillment/internal/config"
	"github.com/pageturn/fulfillment/internal/database"
	"github.com/pageturn/fulfillment/internal/eventbus"
	buskafka "github.com/pageturn/fulfillment/internal/eventbus/kafka"
	busmemory "github.com/pageturn/fulfillment/internal/eventbus/memory"
	"github.com/pageturn/fulfillment/internal/idempotency"
	idembolt "github.com/pageturn/fulfillment/internal/idempotency/bolt"
	idempostgres "github.com/pageturn/fulfillment/internal/idempotency/postgres"
	idemredis "github.com/pageturn/fulfillment/internal/idempotency/redis"
	"github.com/pageturn/fulfillment/internal/inventory"
	invpostgres "github.com/pageturn/fulfillment/internal/inventory/adapters/postgres"
	ordersmemory "github.com/pageturn/fulfillment/internal/orders/adapters/memory"
	"github.com/pageturn/fulfillment/internal/orders/adapters/paymenthttp"
	orderspostgres "github.com/pageturn/fulfillment/internal/orders/adapters/postgres"
	"github.com/pageturn/fulfillment/internal/orders/ports"
	"github.com/pageturn/fulfillment/internal/reconciler"
	"github.com/pageturn/fulfillment/internal/sellerstats"
	statspostgres "github.com/pageturn/fulfillment/internal/sellerstats/adapters/postgres"
	"github.com/pageturn/fulfillment/internal/telemetry"
	"github.com/pageturn/fulfillment/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(parseLogLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name + "-worker",
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	bus, err := newBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	markers, closeMarkers, err := newMarkers(cfg, pool)
	if err != nil {
		return err
	}
	defer closeMarkers()

	busMetrics, err := eventbus.NewMetrics(otel.Meter("fulfillment-worker"))
	if err != nil {
		return fmt.Errorf("create bus metrics: %w", err)
	}

	orders := orderspostgres.NewRepository(pool)
	warehouse := invpostgres.NewRepository(pool)
	listings := statspostgres.NewRepository(pool)

	engine := compensation.NewEngine(bus, markers, logger, cfg.Saga.CorrelationWindow)
	defer engine.Close()

	consumers := worker.Consumers{
		Inventory: inventory.NewReservationHandler(
			warehouse, orders, markers, bus, logger, cfg.Saga.TransientRetries,
		),
		SellerStats: sellerstats.NewHandler(
			listings, markers, bus, logger, cfg.Saga.TransientRetries,
		),
		Compensation: engine,
		Reconciler: reconciler.NewReconciler(
			orders, warehouse, newPaymentGateway(cfg), bus, logger,
		),
	}

	if err := worker.Subscribe(ctx, bus, consumers, busMetrics); err != nil {
		return err
	}

	logger.Info("worker started",
		"bus_driver", cfg.Bus.Driver,
		"correlation_window", cfg.Saga.CorrelationWindow.String())

	<-ctx.Done()
	logger.Info("worker stopping")
	return nil
}

func newBus(cfg *config.Config) (eventbus.Bus, error) {
	switch cfg.Bus.Driver {
	case "kafka":
		if len(cfg.Bus.Brokers) == 0 {
			return nil, fmt.Errorf("bus driver kafka requires KAFKA_BROKERS")
		}
		return buskafka.NewBus(cfg.Bus.Brokers), nil
	case "memory":
		return busmemory.NewBus(), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Bus.Driver)
	}
}

// newMarkers prefers redis for the processed-event markers when an
// address is configured, then an embedded bolt file, then postgres.
// Redis expires markers after the configured TTL; the others keep
// them until pruned out of band.
func newMarkers(cfg *config.Config, pool *pgxpool.Pool) (idempotency.Marker, func(), error) {
	switch {
	case cfg.Redis.Addr != "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := idemredis.NewMarkerStore(client, "fulfillment", cfg.Saga.MarkerTTL)
		return store, func() { client.Close() }, nil
	case cfg.Saga.MarkerPath != "":
		store, err := idembolt.NewMarkerStore(cfg.Saga.MarkerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open marker store: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return idempostgres.NewMarkerStore(pool), func() {}, nil
	}
}

func newPaymentGateway(cfg *config.Config) ports.PaymentGateway {
	if cfg.Payment.BaseURL == "" {
		return ordersmemory.NewPaymentGateway()
	}
	return paymenthttp.NewClient(cfg.Payment.BaseURL, cfg.Payment.Timeout)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
