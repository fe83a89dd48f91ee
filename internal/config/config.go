// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/domain"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Quota    QuotaConfig
	Upstream UpstreamConfig
	LogLevel slog.Level
}

type ServerConfig struct {
	Port                  string
	TrustForwardedHeaders bool
}

type StorageConfig struct {
	Type  string
	Redis RedisConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type QuotaConfig struct {
	Rule domain.QuotaRule
}

type UpstreamConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	RetryAttempts  uint
	MaxConcurrency int
	RPS            float64
	Burst          int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	trustForwarded, err := strconv.ParseBool(getEnv("TRUST_FORWARDED_HEADERS", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TRUST_FORWARDED_HEADERS: %w", err)
	}
	server := ServerConfig{
		Port:                  getEnv("SERVER_PORT", "8080"),
		TrustForwardedHeaders: trustForwarded,
	}

	storageType := strings.ToLower(getEnv("STORAGE_TYPE", "memory"))
	if storageType != "memory" && storageType != "redis" {
		return Config{}, fmt.Errorf("unsupported STORAGE_TYPE: %s", storageType)
	}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	quotaConfig, err := buildQuotaConfig()
	if err != nil {
		return Config{}, err
	}

	upstreamConfig, err := buildUpstreamConfig()
	if err != nil {
		return Config{}, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return Config{
		Server: server,
		Storage: StorageConfig{
			Type:  storageType,
			Redis: redisConfig,
		},
		Quota:    quotaConfig,
		Upstream: upstreamConfig,
		LogLevel: level,
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		Host:     host,
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func buildQuotaConfig() (QuotaConfig, error) {
	limit, err := strconv.Atoi(getEnv("QUOTA_DAILY_LIMIT", "5"))
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid QUOTA_DAILY_LIMIT: %w", err)
	}
	if limit <= 0 {
		return QuotaConfig{}, fmt.Errorf("QUOTA_DAILY_LIMIT must be positive, got %d", limit)
	}

	window, err := domain.ParseWindowPolicy(getEnv("QUOTA_WINDOW", string(domain.WindowCalendar)))
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid QUOTA_WINDOW: %w", err)
	}

	period, err := time.ParseDuration(getEnv("QUOTA_ROLLING_PERIOD", "24h"))
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid QUOTA_ROLLING_PERIOD: %w", err)
	}
	if window == domain.WindowRolling && period <= 0 {
		return QuotaConfig{}, fmt.Errorf("QUOTA_ROLLING_PERIOD must be positive, got %s", period)
	}

	location, err := time.LoadLocation(getEnv("QUOTA_TIMEZONE", "UTC"))
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid QUOTA_TIMEZONE: %w", err)
	}

	return QuotaConfig{
		Rule: domain.QuotaRule{
			Limit:    limit,
			Window:   window,
			Period:   period,
			Location: location,
		},
	}, nil
}

func buildUpstreamConfig() (UpstreamConfig, error) {
	timeout, err := time.ParseDuration(getEnv("UPSTREAM_TIMEOUT", "30s"))
	if err != nil {
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return UpstreamConfig{}, fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", timeout)
	}

	attempts, err := strconv.ParseUint(getEnv("UPSTREAM_RETRY_ATTEMPTS", "1"), 10, 32)
	if err != nil {
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_RETRY_ATTEMPTS: %w", err)
	}
	if attempts == 0 {
		return UpstreamConfig{}, fmt.Errorf("UPSTREAM_RETRY_ATTEMPTS must be at least 1")
	}

	maxConcurrency, err := strconv.Atoi(getEnv("UPSTREAM_MAX_CONCURRENCY", "10"))
	if err != nil {
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_MAX_CONCURRENCY: %w", err)
	}

	rps, err := strconv.ParseFloat(getEnv("UPSTREAM_RPS", "0"), 64)
	if err != nil {
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_RPS: %w", err)
	}

	burst, err := strconv.Atoi(getEnv("UPSTREAM_BURST", "1"))
	if err != nil {
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_BURST: %w", err)
	}

	return UpstreamConfig{
		BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		APIKey:         os.Getenv("OPENAI_API_KEY"),
		Model:          getEnv("OPENAI_MODEL", "gpt-4"),
		Timeout:        timeout,
		RetryAttempts:  uint(attempts),
		MaxConcurrency: maxConcurrency,
		RPS:            rps,
		Burst:          burst,
	}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
