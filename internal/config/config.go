package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/benvon/zentask/internal/request"
)

// Tip queue backends
const (
	QueueMemory   = "memory"
	QueueRabbitMQ = "rabbitmq"
)

// Config holds application configuration
type Config struct {
	ServerPort         string
	FrontendURL        string
	OpenAIKey          string
	AIProvider         string
	AIModel            string
	AIBaseURL          string
	EnableHSTS         bool
	RedisURL           string
	TipsRateLimit      string
	TipsQueue          string
	RabbitMQURL        string
	TipsWorkerPrefetch int
	ServerDebugMode    bool
	LogFormat          string
	OTELEnabled        bool
	OTELEndpoint       string
	TrustedProxies     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom loads configuration using lookup to read variables
func LoadFrom(lookup func(string) string) (*Config, error) {
	env := source(lookup)
	cfg := &Config{
		ServerPort:         env.get("SERVER_PORT", "8080"),
		FrontendURL:        env.get("FRONTEND_URL", "http://localhost:3000"),
		OpenAIKey:          env.get("OPENAI_API_KEY", ""),
		AIProvider:         env.get("AI_PROVIDER", "openai"),
		AIModel:            env.get("AI_MODEL", ""),
		AIBaseURL:          env.get("AI_BASE_URL", ""),
		EnableHSTS:         env.getBool("ENABLE_HSTS", false),
		RedisURL:           env.get("REDIS_URL", ""),
		TipsRateLimit:      env.get("TIPS_RATE_LIMIT", "10-M"),
		TipsQueue:          env.get("TIPS_QUEUE", QueueMemory),
		RabbitMQURL:        env.get("RABBITMQ_URL", ""),
		TipsWorkerPrefetch: env.getInt("TIPS_WORKER_PREFETCH", 4),
		ServerDebugMode:    env.getBool("SERVER_DEBUG_MODE", false),
		LogFormat:          env.get("LOG_FORMAT", "json"),
		OTELEnabled:        env.getBool("OTEL_ENABLED", false),
		OTELEndpoint:       env.get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TrustedProxies:     env.get("TRUSTED_PROXIES", ""),
	}

	switch cfg.TipsQueue {
	case QueueMemory:
	case QueueRabbitMQ:
		if cfg.RabbitMQURL == "" {
			return nil, fmt.Errorf("RABBITMQ_URL is required when TIPS_QUEUE=%s", QueueRabbitMQ)
		}
	default:
		return nil, fmt.Errorf("invalid TIPS_QUEUE %q (must be %q or %q)", cfg.TipsQueue, QueueMemory, QueueRabbitMQ)
	}

	if _, err := request.ParseTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	if cfg.TipsWorkerPrefetch < 1 {
		return nil, fmt.Errorf("TIPS_WORKER_PREFETCH must be at least 1, got %d", cfg.TipsWorkerPrefetch)
	}

	return cfg, nil
}

// AIConfigured reports whether an AI credential was supplied
func (c *Config) AIConfigured() bool {
	return c.OpenAIKey != ""
}

type source func(string) string

func (s source) get(key, defaultValue string) string {
	if value := s(key); value != "" {
		return value
	}
	return defaultValue
}

func (s source) getBool(key string, defaultValue bool) bool {
	if value := s(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (s source) getInt(key string, defaultValue int) int {
	if value := s(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
