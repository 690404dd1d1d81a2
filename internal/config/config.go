package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"billing-service/internal/pkg/jwt"
)

type AppConfig struct {
	// Server
	HTTPAddr       string
	DatabaseURL    string
	RedisAddr      string
	RedisPass      string
	AllowedOrigins []string

	// JWT
	JWT jwt.Config

	// Billing
	Billing BillingConfig

	// Worker cron specs
	BillingRunSchedule string
	SweepSchedule      string
	OutboxSchedule     string
}

// BillingConfig carries the lifecycle knobs. The failure threshold and grace
// duration are deployment-tuned, never hard-coded at call sites.
type BillingConfig struct {
	FailureThreshold int           // consecutive failures that open a grace window
	GracePeriod      time.Duration // countdown from the threshold-crossing failure
	DueGraceWindow   time.Duration // invoice due date offset from generation
	TaxRate          float64       // flat fraction applied on top of the plan price
	StatusCacheTTL   time.Duration // banner projection cache TTL

	GatewayURL     string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	EventChannel string // redis pub/sub channel for domain events

	// Plans maps tier name to monthly price. Catalog CRUD lives outside
	// this service.
	Plans map[string]float64
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/billing?sslmode=disable"),
		RedisAddr:      getEnv("REDIS_ADDR", "redis-billing:6379"),
		RedisPass:      getEnv("REDIS_PASS", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),

		JWT: jwt.Config{
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", "/app/secrets/jwt_public.pem"),
			Issuer:   getEnv("JWT_ISSUER", "identity-service"),
			Audience: getEnv("JWT_AUDIENCE", "billing-users"),
			TTL:      720 * time.Hour,
		},

		Billing: BillingConfig{
			FailureThreshold: getEnvInt("BILLING_FAILURE_THRESHOLD", 3),
			GracePeriod:      getEnvDuration("BILLING_GRACE_PERIOD", 7*24*time.Hour),
			DueGraceWindow:   getEnvDuration("BILLING_DUE_GRACE_WINDOW", 0),
			TaxRate:          getEnvFloat("BILLING_TAX_RATE", 0),
			StatusCacheTTL:   getEnvDuration("BILLING_STATUS_CACHE_TTL", 30*time.Second),

			GatewayURL:     getEnv("PAYMENT_GATEWAY_URL", "http://payment-gateway:9000"),
			GatewayAPIKey:  getEnv("PAYMENT_GATEWAY_API_KEY", ""),
			GatewayTimeout: getEnvDuration("PAYMENT_GATEWAY_TIMEOUT", 15*time.Second),

			EventChannel: getEnv("BILLING_EVENT_CHANNEL", "billing.events"),

			Plans: map[string]float64{
				"starter":    getEnvFloat("PLAN_PRICE_STARTER", 49.99),
				"team":       getEnvFloat("PLAN_PRICE_TEAM", 99.99),
				"enterprise": getEnvFloat("PLAN_PRICE_ENTERPRISE", 299.99),
			},
		},

		BillingRunSchedule: getEnv("BILLING_RUN_SCHEDULE", "0 2 * * *"),
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "*/15 * * * *"),
		OutboxSchedule:     getEnv("OUTBOX_SCHEDULE", "* * * * *"),
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
