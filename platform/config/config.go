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

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// WebhookConfig provides settings for the inbound CRM webhook endpoint.
type WebhookConfig interface {
	GetWebhookSharedSecret() string
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetRottingSweepCron() string
	GetWeeklyDigestCron() string
}

// CRMConfig provides settings for the external CRM API client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIToken() string
	GetCRMTimeout() time.Duration
	GetCRMRequestsPerSecond() float64
	GetCRMStaleFilterID() int
	GetSalesPipelineID() int
}

// AlertConfig provides settings for outbound automation webhooks.
type AlertConfig interface {
	GetAlertDealWonURL() string
	GetAlertMilestoneURL() string
}

// ScorecardConfig provides the location of the scorecard rules document.
type ScorecardConfig interface {
	GetScorecardPath() string
}

// EmailConfig provides settings for the weekly digest email.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetDigestRecipients() []string
}

// ArchiveConfig provides settings for the report archive object storage.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetReportArchiveBucket() string
	IsArchiveEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	JWTAccessSecret     string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	WebhookSharedSecret string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	RottingSweepCron    string
	WeeklyDigestCron    string
	CRMBaseURL          string
	CRMAPIToken         string
	CRMTimeout          time.Duration
	CRMRequestsPerSec   float64
	CRMStaleFilterID    int
	SalesPipelineID     int
	AlertDealWonURL     string
	AlertMilestoneURL   string
	ScorecardPath       string
	EmailEnabled        bool
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
	DigestRecipients    []string
	MinIOEndpoint       string
	MinIOAccessKey      string
	MinIOSecretKey      string
	MinIOUseSSL         bool
	ReportArchiveBucket string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// WebhookConfig implementation
func (c *Config) GetWebhookSharedSecret() string { return c.WebhookSharedSecret }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetRottingSweepCron() string { return c.RottingSweepCron }
func (c *Config) GetWeeklyDigestCron() string { return c.WeeklyDigestCron }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string             { return c.CRMBaseURL }
func (c *Config) GetCRMAPIToken() string            { return c.CRMAPIToken }
func (c *Config) GetCRMTimeout() time.Duration      { return c.CRMTimeout }
func (c *Config) GetCRMRequestsPerSecond() float64  { return c.CRMRequestsPerSec }
func (c *Config) GetCRMStaleFilterID() int          { return c.CRMStaleFilterID }
func (c *Config) GetSalesPipelineID() int           { return c.SalesPipelineID }

// AlertConfig implementation
func (c *Config) GetAlertDealWonURL() string   { return c.AlertDealWonURL }
func (c *Config) GetAlertMilestoneURL() string { return c.AlertMilestoneURL }

// ScorecardConfig implementation
func (c *Config) GetScorecardPath() string { return c.ScorecardPath }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool        { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string          { return c.SMTPHost }
func (c *Config) GetSMTPPort() int             { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string      { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string      { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string     { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string  { return c.EmailFromAddress }
func (c *Config) GetDigestRecipients() []string { return c.DigestRecipients }

// ArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string       { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string      { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string      { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool           { return c.MinIOUseSSL }
func (c *Config) GetReportArchiveBucket() string { return c.ReportArchiveBucket }
func (c *Config) IsArchiveEnabled() bool         { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTAccessSecret:     getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		WebhookSharedSecret: getEnv("WEBHOOK_SHARED_SECRET", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		RottingSweepCron:    getEnv("ROTTING_SWEEP_CRON", "@every 6h"),
		WeeklyDigestCron:    getEnv("WEEKLY_DIGEST_CRON", "0 8 * * 1"),
		CRMBaseURL:          getEnv("CRM_BASE_URL", "https://api.pipedrive.com/v1"),
		CRMAPIToken:         getEnv("CRM_API_TOKEN", ""),
		CRMTimeout:          mustDuration(getEnv("CRM_TIMEOUT", "10s")),
		CRMRequestsPerSec:   mustFloat(getEnv("CRM_REQUESTS_PER_SECOND", "5")),
		CRMStaleFilterID:    mustInt(getEnv("CRM_STALE_FILTER_ID", "2")),
		SalesPipelineID:     mustInt(getEnv("CRM_SALES_PIPELINE_ID", "11")),
		AlertDealWonURL:     getEnv("ALERT_DEAL_WON_URL", ""),
		AlertMilestoneURL:   getEnv("ALERT_MILESTONE_URL", ""),
		ScorecardPath:       getEnv("SCORECARD_PATH", ""),
		EmailEnabled:        emailEnabled && smtpHost != "",
		SMTPHost:            smtpHost,
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Sales Enforcer"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		DigestRecipients:    splitCSV(getEnv("DIGEST_RECIPIENTS", "")),
		MinIOEndpoint:       getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:      getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:      getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:         strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		ReportArchiveBucket: getEnv("MINIO_BUCKET_REPORT_ARCHIVES", "report-archives"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required outside development")
	}
	if cfg.WebhookSharedSecret == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("WEBHOOK_SHARED_SECRET is required outside development")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

func mustInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func mustFloat(raw string) float64 {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}
