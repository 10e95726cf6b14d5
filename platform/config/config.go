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

// GatewayConfig provides settings for the messaging gateway REST and socket surface.
type GatewayConfig interface {
	GetGatewayURL() string
	GetGatewaySocketURL() string
	GetGatewayAPIKey() string
	GetGatewayTimeout() time.Duration
	GetGatewayRequestsPerSecond() float64
}

// PollConfig provides settings for the polling message source adapter.
type PollConfig interface {
	GetPollInterval() time.Duration
	GetPollFetchLimit() int
	GetPollConcurrency() int
}

// PushConfig provides settings for the push message source adapter.
type PushConfig interface {
	IsPushEnabled() bool
	GetPushMaxReconnects() int
}

// AIConfig provides settings for the model-backed qualification strategy.
type AIConfig interface {
	GetGeminiAPIKey() string
	GetAIModel() string
	GetAITimeout() time.Duration
	IsAIEnabled() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for lead alert emails.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetSalesInboxAddress() string
}

// HTTPConfig provides settings for the diagnostics HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// WatermarkConfig provides settings for the dedup tracker.
type WatermarkConfig interface {
	GetRecentIDCapacity() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	GatewayURL               string
	GatewaySocketURL         string
	GatewayAPIKey            string
	GatewayTimeout           time.Duration
	GatewayRequestsPerSecond float64
	PollInterval             time.Duration
	PollFetchLimit           int
	PollConcurrency          int
	PushEnabled              bool
	PushMaxReconnects        int
	RecentIDCapacity         int
	GeminiAPIKey             string
	AIModel                  string
	AITimeout                time.Duration
	RedisURL                 string
	RedisTLSInsecure         bool
	AsynqQueueName           string
	AsynqConcurrency         int
	EmailEnabled             bool
	SMTPHost                 string
	SMTPPort                 int
	SMTPUsername             string
	SMTPPassword             string
	EmailFromName            string
	EmailFromAddress         string
	SalesInboxAddress        string
	CORSAllowAll             bool
	CORSOrigins              []string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// GatewayConfig implementation
func (c *Config) GetGatewayURL() string                { return c.GatewayURL }
func (c *Config) GetGatewaySocketURL() string          { return c.GatewaySocketURL }
func (c *Config) GetGatewayAPIKey() string             { return c.GatewayAPIKey }
func (c *Config) GetGatewayTimeout() time.Duration     { return c.GatewayTimeout }
func (c *Config) GetGatewayRequestsPerSecond() float64 { return c.GatewayRequestsPerSecond }

// PollConfig implementation
func (c *Config) GetPollInterval() time.Duration { return c.PollInterval }
func (c *Config) GetPollFetchLimit() int         { return c.PollFetchLimit }
func (c *Config) GetPollConcurrency() int        { return c.PollConcurrency }

// PushConfig implementation
func (c *Config) IsPushEnabled() bool       { return c.PushEnabled }
func (c *Config) GetPushMaxReconnects() int { return c.PushMaxReconnects }

// AIConfig implementation
func (c *Config) GetGeminiAPIKey() string     { return c.GeminiAPIKey }
func (c *Config) GetAIModel() string          { return c.AIModel }
func (c *Config) GetAITimeout() time.Duration { return c.AITimeout }
func (c *Config) IsAIEnabled() bool           { return c.GeminiAPIKey != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool        { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string          { return c.SMTPHost }
func (c *Config) GetSMTPPort() int             { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string      { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string      { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string     { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string  { return c.EmailFromAddress }
func (c *Config) GetSalesInboxAddress() string { return c.SalesInboxAddress }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// WatermarkConfig implementation
func (c *Config) GetRecentIDCapacity() int { return c.RecentIDCapacity }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		GatewayURL:               getEnv("GATEWAY_URL", ""),
		GatewaySocketURL:         getEnv("GATEWAY_SOCKET_URL", ""),
		GatewayAPIKey:            getEnv("GATEWAY_API_KEY", ""),
		GatewayTimeout:           mustDuration(getEnv("GATEWAY_TIMEOUT", "10s")),
		GatewayRequestsPerSecond: mustFloat(getEnv("GATEWAY_REQUESTS_PER_SECOND", "5")),
		PollInterval:             mustDuration(getEnv("POLL_INTERVAL", "30s")),
		PollFetchLimit:           mustInt(getEnv("POLL_FETCH_LIMIT", "50")),
		PollConcurrency:          mustInt(getEnv("POLL_CONCURRENCY", "4")),
		PushEnabled:              strings.EqualFold(getEnv("PUSH_ENABLED", "true"), "true"),
		PushMaxReconnects:        mustInt(getEnv("PUSH_MAX_RECONNECTS", "5")),
		RecentIDCapacity:         mustInt(getEnv("WATERMARK_RECENT_ID_CAPACITY", "512")),
		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		AIModel:                  getEnv("AI_MODEL", "gemini-2.0-flash"),
		AITimeout:                mustDuration(getEnv("AI_TIMEOUT", "12s")),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:           getEnv("ASYNQ_QUEUE", "notifications"),
		AsynqConcurrency:         mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		EmailEnabled:             emailEnabled && smtpHost != "",
		SMTPHost:                 smtpHost,
		SMTPPort:                 mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:             getEnv("SMTP_USERNAME", ""),
		SMTPPassword:             getEnv("SMTP_PASSWORD", ""),
		EmailFromName:            getEnv("EMAIL_FROM_NAME", "Leadflow"),
		EmailFromAddress:         getEnv("EMAIL_FROM_ADDRESS", ""),
		SalesInboxAddress:        getEnv("SALES_INBOX_ADDRESS", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be a positive duration")
	}
	if cfg.PollFetchLimit <= 0 {
		return nil, fmt.Errorf("POLL_FETCH_LIMIT must be a positive integer")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.EmailEnabled && cfg.SalesInboxAddress == "" {
		return nil, fmt.Errorf("SALES_INBOX_ADDRESS is required when email is enabled")
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

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
