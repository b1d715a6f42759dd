package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/api"
	"github.com/akylbek/payment-system/mint-gateway/internal/config"
	"github.com/akylbek/payment-system/mint-gateway/internal/fulfillment"
	"github.com/akylbek/payment-system/mint-gateway/internal/handlers"
	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/publisher"
	"github.com/akylbek/payment-system/mint-gateway/internal/repository"
	"github.com/akylbek/payment-system/mint-gateway/internal/service"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

type admissionStores struct {
	nonces  interfaces.NonceStore
	windows interfaces.RateWindowStore
	history interfaces.AttemptHistory
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry(api.ServiceName, cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Mint Gateway")

	// PostgreSQL is optional: without it token ids come from memory and status
	// lookups only see live items.
	var archive interfaces.QueueArchive
	var sequencer interfaces.TokenSequencer = repository.NewMemorySequencer(0)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		repo := repository.NewQueueRepository(db)
		if err := repo.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		archive = repo
		sequencer = repo
	}

	stores := newAdmissionStores(cfg)

	// Connect to NATS
	nc, err := nats.Connect(cfg.Nats.URL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Kafka event bus
	kafkaPublisher := publisher.NewKafkaPublisher(cfg.Kafka.BrokerList(), []string{cfg.EventsTopic}, cfg.Kafka.GetRetryConfig())
	defer kafkaPublisher.Close()

	dispatcher := service.NewEventDispatcher(kafkaPublisher, archive, cfg.EventsTopic, cfg.EventBuffer)
	go dispatcher.Run()

	queue := service.NewFulfillmentQueue(service.QueueConfig{
		MaxSize:      cfg.Queue.MaxSize,
		TickInterval: cfg.TickInterval,
		Retention:    cfg.Retention,
	}, dispatcher)

	worker := service.NewQueueWorker(queue, fulfillment.NewNatsFulfiller(nc, cfg.FulfillSubject), sequencer, service.WorkerConfig{
		TickInterval:   cfg.TickInterval,
		FulfillTimeout: cfg.FulfillTimeout,
	})

	limiter := service.NewRateLimiter(stores.windows, service.RateLimitConfig{
		Window:        cfg.RateWindow,
		IdentityLimit: cfg.IdentityLimit,
		OriginLimit:   cfg.OriginLimit,
	})
	admission := service.NewAdmissionController(service.AdmissionConfig{
		MinAmount:     decimal.RequireFromString(cfg.MinAmount),
		MaxAmount:     decimal.RequireFromString(cfg.MaxAmount),
		AllowedTokens: cfg.AllowedTokens,
		Blocklist:     cfg.BlockedAddresses,
		MaxClockSkew:  cfg.MaxClockSkew,
		Risk:          service.DefaultRiskConfig(),
	}, limiter, service.NewReplayGuard(stores.nonces), stores.history)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	worker.Start(ctx)

	// Setup Gin router
	r := api.NewRouter(
		handlers.NewAdmissionHandler(admission, limiter.Limit()),
		handlers.NewQueueHandler(queue, admission, archive, limiter.Limit()),
		worker,
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Mint Gateway starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// gRPC health
	reporter := api.NewHealthReporter(worker, time.Second)
	go reporter.Run(ctx)
	grpcServer := api.NewGRPCServer(reporter)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		telemetry.Logger.Fatal("Failed to listen for gRPC", zap.Error(err))
	}
	go func() {
		telemetry.Logger.Info("gRPC health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			telemetry.Logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()
	grpcServer.GracefulStop()
	worker.Stop()
	dispatcher.Close()

	telemetry.Logger.Info("Server exited")
}

func newAdmissionStores(cfg *config.Config) admissionStores {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			telemetry.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		telemetry.Logger.Info("Using Redis admission state", zap.String("addr", cfg.RedisURL))
		return admissionStores{
			nonces:  repository.NewRedisNonceStore(client, cfg.NonceTTL),
			windows: repository.NewRedisRateWindowStore(client),
			history: repository.NewRedisAttemptHistory(client),
		}
	}
	return admissionStores{
		nonces:  repository.NewMemoryNonceStore(cfg.NonceTTL, cfg.NonceCapacity),
		windows: repository.NewMemoryRateWindowStore(),
		history: repository.NewMemoryAttemptHistory(),
	}
}
