package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins []string

	DatabaseURL string
	RedisURL    string

	JWTSecret      string
	InternalAPIKey string

	MeiliSearchHost string
	MeiliMasterKey  string

	KafkaBrokers      []string
	NotificationTopic string

	RateLimitThread   time.Duration
	IdempotencyWindow time.Duration
	WSPingInterval    time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		InternalAPIKey: os.Getenv("INTERNAL_API_KEY"),

		MeiliSearchHost: normalizeMeiliHost(os.Getenv("MEILISEARCH_HOST")),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		NotificationTopic: getEnv("NOTIFICATION_TOPIC", "notification-deliveries"),
	}

	var err error
	cfg.RateLimitThread, err = parseDuration(getEnv("RATE_LIMIT_THREAD", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_THREAD: %w", err)
	}
	cfg.IdempotencyWindow, err = parseDuration(getEnv("IDEMPOTENCY_WINDOW", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_WINDOW: %w", err)
	}
	cfg.WSPingInterval, err = parseDuration(getEnv("WS_PING_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_PING_INTERVAL: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.AppEnv != "development" {
			return nil, fmt.Errorf("JWT_SECRET is required outside development")
		}
		cfg.JWTSecret = "dev-secret"
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeMeiliHost accepts a bare hostname the way docker-compose service
// names are usually given.
func normalizeMeiliHost(host string) string {
	if host == "" || strings.HasPrefix(host, "http") {
		return host
	}
	return "http://" + host + ":7700"
}
