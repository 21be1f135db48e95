package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/api"
	"github.com/akylbek/payment-system/refund-authorization/internal/clients"
	"github.com/akylbek/payment-system/refund-authorization/internal/config"
	"github.com/akylbek/payment-system/refund-authorization/internal/events"
	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/middleware"
	"github.com/akylbek/payment-system/refund-authorization/internal/repository"
	"github.com/akylbek/payment-system/refund-authorization/internal/repository/boltstore"
	"github.com/akylbek/payment-system/refund-authorization/internal/repository/memory"
	"github.com/akylbek/payment-system/refund-authorization/internal/service"
	"github.com/akylbek/payment-system/refund-authorization/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry("refund-authorization", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Refund Authorization", zap.String("storage_driver", cfg.StorageDriver))

	store, closeStore := openStore(cfg)
	defer closeStore()

	// Side-effect worker pool
	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		Workers:     cfg.DispatchWorkers,
		MaxAttempts: cfg.DispatchMaxAttempts,
	}, telemetry.Logger)
	dispatcher.Start()

	// Connect to Kafka
	var sink interfaces.NotificationSink
	if cfg.KafkaBrokers != "" {
		publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		sink = publisher
	} else {
		telemetry.Logger.Warn("KAFKA_BROKERS not set, refund notifications disabled")
	}

	// Connect to Redis
	var guard interfaces.IdempotencyGuard = clients.NewMemoryGuard()
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		defer redisClient.Close()
		guard = clients.NewRedisGuard(redisClient)
	}

	var reversals interfaces.ReversalGateway
	if cfg.PaymentGatewayURL != "" {
		reversals = clients.NewGuardedGateway(clients.NewGateway(cfg.PaymentGatewayURL, cfg.GatewayTimeout), guard, telemetry.Logger)
	} else {
		telemetry.Logger.Warn("PAYMENT_GATEWAY_URL not set, completed refunds will need manual reversal")
	}

	opts := []service.Option{service.WithLogger(telemetry.Logger)}

	// Connect to NATS
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()
		opts = append(opts, service.WithLedger(clients.NewLedger(nc, cfg.LedgerSubject, cfg.LedgerTimeout)))
	} else {
		telemetry.Logger.Warn("NATS_URL not set, captured-amount check disabled")
	}

	workflow := service.NewWorkflow(store, sink, reversals, dispatcher, opts...)
	queries := service.NewQueryService(store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	intakeDone := make(chan struct{})
	if cfg.IntakeEnabled {
		intake := events.NewIntake(cfg.KafkaBrokers, cfg.KafkaRequestTopic, workflow, telemetry.Logger)
		go func() {
			defer close(intakeDone)
			if err := intake.Run(ctx); err != nil {
				telemetry.Logger.Error("Refund intake stopped", zap.Error(err))
			}
		}()
	} else {
		close(intakeDone)
	}

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(workflow, queries, middleware.NewJWTResolver(cfg.JWTSecret)),
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Refund Authorization starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	telemetry.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	<-intakeDone
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		telemetry.Logger.Error("Side effects still running at shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}

func openStore(cfg *config.Config) (interfaces.RefundStore, func()) {
	switch cfg.StorageDriver {
	case config.DriverBolt:
		store, err := boltstore.New(cfg.BoltPath)
		if err != nil {
			telemetry.Logger.Fatal("Failed to open bolt store", zap.String("path", cfg.BoltPath), zap.Error(err))
		}
		return store, closer(store)

	case config.DriverMemory:
		telemetry.Logger.Warn("Using in-memory storage, refunds are lost on restart")
		return memory.NewRefundRepository(), func() {}
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Initialize repository
	repo := repository.NewRefundRepository(db)
	if err := repo.InitDB(context.Background()); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	return repo, closer(db)
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			telemetry.Logger.Error("Close failed", zap.Error(err))
		}
	}
}
