package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	HTTPAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	RedisPassword string

	JWTSecret string

	// Ledger engine tuning.
	MaxAmount  int64 // per-transaction ceiling, minor units
	MaxRetries int

	// Reconciliation sweep.
	ReconcileInterval time.Duration
	PendingMaxAge     time.Duration

	// Sessions / rate limiting.
	SessionTimeout     time.Duration
	MaxSessionsPerUser int
	RateLimit          int
	RateWindow         time.Duration
	RateBlockDuration  time.Duration
}

func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8020"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "savings"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		MaxAmount:  getEnvAsInt64("LEDGER_MAX_AMOUNT", 100_000_000),
		MaxRetries: int(getEnvAsInt64("LEDGER_MAX_RETRIES", 5)),

		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
		PendingMaxAge:     getEnvAsDuration("PENDING_MAX_AGE", 10*time.Minute),

		SessionTimeout:     getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
		MaxSessionsPerUser: int(getEnvAsInt64("MAX_SESSIONS_PER_USER", 3)),
		RateLimit:          int(getEnvAsInt64("RATE_LIMIT", 60)),
		RateWindow:         getEnvAsDuration("RATE_WINDOW", time.Minute),
		RateBlockDuration:  getEnvAsDuration("RATE_BLOCK_DURATION", 5*time.Minute),
	}
}

func ConnectDB(cfg *Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("initialize db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db unreachable: %w", err)
	}
	return pool, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
