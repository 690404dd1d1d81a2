package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"billing-service/internal/config"
	"billing-service/internal/db"
	"billing-service/internal/events"
	"billing-service/internal/gateway"
	"billing-service/internal/repository/postgres"
	billingsvc "billing-service/internal/service/billing"
	"billing-service/internal/worker"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// The worker runs the scheduled half of the billing lifecycle: the nightly
// billing run, the suspension sweep and outbox delivery. It shares no
// in-process state with the API; every hand-off goes through Postgres or
// redis.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	pool, err := db.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addresses: []string{cfg.RedisAddr},
		Password:  cfg.RedisPass,
		DB:        0,
		PoolSize:  10,
	})
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	accountRepo := postgres.NewAccountRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	attemptRepo := postgres.NewPaymentAttemptRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)

	charger := gateway.NewHTTPGateway(
		cfg.Billing.GatewayURL,
		cfg.Billing.GatewayAPIKey,
		cfg.Billing.GatewayTimeout,
		logger,
	)

	graceEngine := billingsvc.NewGraceEngine(
		subscriptionRepo,
		attemptRepo,
		cfg.Billing.FailureThreshold,
		cfg.Billing.GracePeriod,
		logger,
	)
	invoiceService := billingsvc.NewInvoiceService(
		subscriptionRepo,
		invoiceRepo,
		cfg.Billing.TaxRate,
		cfg.Billing.DueGraceWindow,
		logger,
	)
	settlementService := billingsvc.NewSettlementService(
		accountRepo,
		subscriptionRepo,
		invoiceRepo,
		attemptRepo,
		eventRepo,
		charger,
		cfg.Billing.FailureThreshold,
		logger,
	)
	sweepService := billingsvc.NewSweepService(
		accountRepo,
		subscriptionRepo,
		invoiceRepo,
		eventRepo,
		graceEngine,
		logger,
	)

	publisher := events.NewPublisher(redisClient, cfg.Billing.EventChannel, logger)

	jobs := worker.NewJobs(
		subscriptionRepo,
		eventRepo,
		invoiceService,
		settlementService,
		sweepService,
		publisher,
		logger,
	)

	scheduler, err := worker.NewScheduler(jobs, &cfg, logger)
	if err != nil {
		logger.Fatal("failed to build scheduler", zap.Error(err))
	}
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	scheduler.Stop()
}
