// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides Redis connection settings shared by the lead stream
// consumer and the turn queue.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// StreamConfig provides settings for the lead event stream consumer.
type StreamConfig interface {
	RedisConfig
	GetLeadStreamKey() string
	GetLeadStreamGroup() string
	GetLeadStreamBlock() time.Duration
	GetLeadStreamClaimMinIdle() time.Duration
}

// QueueConfig provides settings for the turn scheduler queue.
type QueueConfig interface {
	RedisConfig
	GetWorkerConcurrency() int
	GetTurnMaxRetries() int
}

// EngineConfig provides the conversation engine rule settings.
type EngineConfig interface {
	GetAdaptiveMode() bool
	GetMaxTurnsCap() int
	GetHighValuePrice() float64
	GetEngagementThreshold() time.Duration
	GetDefaultModel() string
	GetHighCapabilityModel() string
}

// AIConfig provides settings for the AI backend client.
type AIConfig interface {
	GetGeminiAPIKey() string
	GetAIRequestsPerSecond() float64
	GetAIRequestTimeout() time.Duration
}

// BreakerConfig provides circuit breaker tuning.
type BreakerConfig interface {
	GetBreakerFailureThreshold() int
	GetBreakerResetTimeout() time.Duration
	GetBreakerHalfOpenSuccesses() int
}

// MetricsConfig provides metrics aggregation tuning.
type MetricsConfig interface {
	GetMetricsFlushSize() int
	GetMetricsFlushInterval() time.Duration
	GetHealthCheckInterval() time.Duration
}

// HTTPConfig provides settings for the ops HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
}

// JWTConfig provides JWT validation settings for the ops API middleware.
type JWTConfig interface {
	GetJWTSecret() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
//
// AdaptiveMode is read once here and frozen for the lifetime of the process;
// components receive the resolved value at construction so a conversation's
// turn rules cannot change mid-flight.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL      string
	RedisURL         string
	RedisTLSInsecure bool

	JWTSecret   string
	CORSOrigins []string

	LeadStreamKey          string
	LeadStreamGroup        string
	LeadStreamBlock        time.Duration
	LeadStreamClaimMinIdle time.Duration

	WorkerConcurrency int
	TurnMaxRetries    int

	AdaptiveMode        bool
	MaxTurnsCap         int
	HighValuePrice      float64
	EngagementThreshold time.Duration
	DefaultModel        string
	HighCapabilityModel string

	GeminiAPIKey        string
	AIRequestsPerSecond float64
	AIRequestTimeout    time.Duration

	BreakerFailureThreshold  int
	BreakerResetTimeout      time.Duration
	BreakerHalfOpenSuccesses int

	MetricsFlushSize     int
	MetricsFlushInterval time.Duration
	HealthCheckInterval  time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

func (c *Config) GetLeadStreamKey() string                 { return c.LeadStreamKey }
func (c *Config) GetLeadStreamGroup() string               { return c.LeadStreamGroup }
func (c *Config) GetLeadStreamBlock() time.Duration        { return c.LeadStreamBlock }
func (c *Config) GetLeadStreamClaimMinIdle() time.Duration { return c.LeadStreamClaimMinIdle }

func (c *Config) GetWorkerConcurrency() int { return c.WorkerConcurrency }
func (c *Config) GetTurnMaxRetries() int    { return c.TurnMaxRetries }

func (c *Config) GetAdaptiveMode() bool                 { return c.AdaptiveMode }
func (c *Config) GetMaxTurnsCap() int                   { return c.MaxTurnsCap }
func (c *Config) GetHighValuePrice() float64            { return c.HighValuePrice }
func (c *Config) GetEngagementThreshold() time.Duration { return c.EngagementThreshold }
func (c *Config) GetDefaultModel() string               { return c.DefaultModel }
func (c *Config) GetHighCapabilityModel() string        { return c.HighCapabilityModel }

func (c *Config) GetGeminiAPIKey() string            { return c.GeminiAPIKey }
func (c *Config) GetAIRequestsPerSecond() float64    { return c.AIRequestsPerSecond }
func (c *Config) GetAIRequestTimeout() time.Duration { return c.AIRequestTimeout }

func (c *Config) GetBreakerFailureThreshold() int       { return c.BreakerFailureThreshold }
func (c *Config) GetBreakerResetTimeout() time.Duration { return c.BreakerResetTimeout }
func (c *Config) GetBreakerHalfOpenSuccesses() int      { return c.BreakerHalfOpenSuccesses }

func (c *Config) GetMetricsFlushSize() int               { return c.MetricsFlushSize }
func (c *Config) GetMetricsFlushInterval() time.Duration { return c.MetricsFlushInterval }
func (c *Config) GetHealthCheckInterval() time.Duration  { return c.HealthCheckInterval }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetJWTSecret() string { return c.JWTSecret }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),

		LeadStreamKey:          getEnv("LEAD_STREAM_KEY", "leads:new"),
		LeadStreamGroup:        getEnv("LEAD_STREAM_GROUP", "conversation-engine"),
		LeadStreamBlock:        mustDuration(getEnv("LEAD_STREAM_BLOCK", "1s")),
		LeadStreamClaimMinIdle: mustDuration(getEnv("LEAD_STREAM_CLAIM_MIN_IDLE", "60s")),

		WorkerConcurrency: mustInt(getEnv("WORKER_CONCURRENCY", "5")),
		TurnMaxRetries:    mustInt(getEnv("TURN_MAX_RETRIES", "3")),

		AdaptiveMode:        strings.EqualFold(getEnv("ADAPTIVE_CONVERSATIONS", "false"), "true"),
		MaxTurnsCap:         mustInt(getEnv("MAX_TURNS_CAP", "10")),
		HighValuePrice:      mustFloat(getEnv("HIGH_VALUE_PRICE", "50000")),
		EngagementThreshold: mustDuration(getEnv("ENGAGEMENT_THRESHOLD", "2m")),
		DefaultModel:        getEnv("AI_DEFAULT_MODEL", "gemini-2.5-flash"),
		HighCapabilityModel: getEnv("AI_HIGH_CAPABILITY_MODEL", "gemini-2.5-pro"),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		AIRequestsPerSecond: mustFloat(getEnv("AI_REQUESTS_PER_SECOND", "5")),
		AIRequestTimeout:    mustDuration(getEnv("AI_REQUEST_TIMEOUT", "30s")),

		BreakerFailureThreshold:  mustInt(getEnv("BREAKER_FAILURE_THRESHOLD", "5")),
		BreakerResetTimeout:      mustDuration(getEnv("BREAKER_RESET_TIMEOUT", "60s")),
		BreakerHalfOpenSuccesses: mustInt(getEnv("BREAKER_HALF_OPEN_SUCCESSES", "3")),

		MetricsFlushSize:     mustInt(getEnv("METRICS_FLUSH_SIZE", "100")),
		MetricsFlushInterval: mustDuration(getEnv("METRICS_FLUSH_INTERVAL", "30s")),
		HealthCheckInterval:  mustDuration(getEnv("HEALTH_CHECK_INTERVAL", "30s")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.MaxTurnsCap < 2 {
		return nil, fmt.Errorf("MAX_TURNS_CAP must be at least 2")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
