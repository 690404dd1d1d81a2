// internal/app/server.go
package app

import (
	"context"
	"fmt"

	"billing-service/internal/config"
	"billing-service/internal/db"
	"billing-service/internal/events"
	"billing-service/internal/gateway"
	billingHandler "billing-service/internal/handlers/billing"
	"billing-service/internal/middleware"
	"billing-service/internal/pkg/jwt"
	"billing-service/internal/repository/postgres"
	billingsvc "billing-service/internal/service/billing"
	"billing-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addresses: []string{s.cfg.RedisAddr},
		Password:  s.cfg.RedisPass,
		DB:        0,
		PoolSize:  10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("redis connected", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Repositories -----
	accountRepo := postgres.NewAccountRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	attemptRepo := postgres.NewPaymentAttemptRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)

	// ----- Payment Gateway -----
	charger := gateway.NewHTTPGateway(
		s.cfg.Billing.GatewayURL,
		s.cfg.Billing.GatewayAPIKey,
		s.cfg.Billing.GatewayTimeout,
		logger,
	)

	// ----- Services -----
	graceEngine := billingsvc.NewGraceEngine(
		subscriptionRepo,
		attemptRepo,
		s.cfg.Billing.FailureThreshold,
		s.cfg.Billing.GracePeriod,
		logger,
	)
	invoiceService := billingsvc.NewInvoiceService(
		subscriptionRepo,
		invoiceRepo,
		s.cfg.Billing.TaxRate,
		s.cfg.Billing.DueGraceWindow,
		logger,
	)
	settlementService := billingsvc.NewSettlementService(
		accountRepo,
		subscriptionRepo,
		invoiceRepo,
		attemptRepo,
		eventRepo,
		charger,
		s.cfg.Billing.FailureThreshold,
		logger,
	)
	subscriptionService := billingsvc.NewSubscriptionService(
		accountRepo,
		subscriptionRepo,
		eventRepo,
		invoiceService,
		settlementService,
		s.cfg.Billing.Plans,
		logger,
	)
	accessService := billingsvc.NewAccessService(accountRepo, subscriptionRepo, graceEngine, logger)
	projectionService := billingsvc.NewProjectionService(
		accountRepo,
		subscriptionRepo,
		graceEngine,
		redisClient,
		s.cfg.Billing.StatusCacheTTL,
		logger,
	)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// The worker publishes outbox events to redis; forward them to the
	// account's open sockets.
	go func() {
		for ev := range events.Subscribe(ctx, redisClient, s.cfg.Billing.EventChannel, logger) {
			hub.Dispatch(ev)
		}
	}()

	// ----- Handlers -----
	billingHandlerInst := billingHandler.NewBillingHandler(
		subscriptionService,
		settlementService,
		invoiceService,
		accessService,
		projectionService,
		logger,
	)
	invoiceHandlerInst := billingHandler.NewInvoiceHandler(invoiceService, logger)
	wsHandlerInst := billingHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier)
	accessMiddleware := middleware.NewAccessMiddleware(accessService, logger)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		BillingHandler:   billingHandlerInst,
		InvoiceHandler:   invoiceHandlerInst,
		WSHandler:        wsHandlerInst,
		AuthMiddleware:   authMiddleware,
		AccessMiddleware: accessMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	logger.Info("server starting", zap.String("addr", s.cfg.HTTPAddr))
	return s.engine.Run(s.cfg.HTTPAddr)
}
