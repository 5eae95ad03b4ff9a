package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string

	HTTPAddr    string
	DatabaseURL string
	AutoMigrate bool

	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration

	// Redis role cache; empty disables it.
	RedisURL     string
	RoleCacheTTL time.Duration

	// RabbitMQ outbox relay; empty leaves outbox rows pending.
	RabbitURL      string
	RabbitExchange string
	OutboxInterval time.Duration
	OutboxBatch    int

	RequireVerifiedToAdvertise bool

	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	LogLevel  string
	LogFormat string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":5000")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.AutoMigrate = getBool("AUTO_MIGRATE", true)

	cfg.TokenSecret = getEnv("ACCESS_TOKEN_SECRET", "")
	cfg.TokenIssuer = getEnv("TOKEN_ISSUER", "dreamkeys")
	cfg.TokenTTL = getDuration("TOKEN_TTL", time.Hour)

	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.RoleCacheTTL = getDuration("ROLE_CACHE_TTL", 30*time.Second)

	cfg.RabbitURL = getEnv("RABBIT_URL", "")
	cfg.RabbitExchange = getEnv("RABBIT_EXCHANGE", "dreamkeys.events")
	cfg.OutboxInterval = getDuration("OUTBOX_INTERVAL", 500*time.Millisecond)
	cfg.OutboxBatch = getIntEnv("OUTBOX_BATCH", 20)

	cfg.RequireVerifiedToAdvertise = getBool("REQUIRE_VERIFIED_TO_ADVERTISE", false)

	cfg.RLEnabled = getBool("RL_ENABLED", true)
	cfg.RLLimit = getIntEnv("RL_IP_LIMIT", 100)
	cfg.RLWindow = getDuration("RL_IP_WINDOW", time.Minute)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	cfg.HTTPReadTimeout = getDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTPWriteTimeout = getDuration("HTTP_WRITE_TIMEOUT", 20*time.Second)
	cfg.HTTPIdleTimeout = getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing DATABASE_URL")
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("missing ACCESS_TOKEN_SECRET")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}
	if cfg.AppEnv != "dev" && cfg.RabbitURL == "" {
		return nil, fmt.Errorf("missing RABBIT_URL (required when APP_ENV != dev)")
	}

	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
