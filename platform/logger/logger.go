// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// DealIDKey is the context key for the CRM deal being processed
	DealIDKey contextKey = "deal_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and deal_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if dealID, ok := ctx.Value(DealIDKey).(int); ok && dealID != 0 {
		newLogger = &Logger{Logger: newLogger.With(slog.Int("deal_id", dealID))}
	}

	return newLogger
}

// WithDeal returns a logger scoped to a CRM deal.
func (l *Logger) WithDeal(dealID int) *Logger {
	return &Logger{
		Logger: l.With(slog.Int("deal_id", dealID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// CRMError logs failures of outbound CRM API calls.
func (l *Logger) CRMError(operation string, dealID int, err error) {
	l.Error("crm_error",
		slog.String("operation", operation),
		slog.Int("deal_id", dealID),
		slog.String("error", err.Error()),
	)
}

// AlertError logs failures of best-effort outbound alerts. Alerts never
// block or roll back the ledger work that triggered them, so this is the
// only place their failures surface.
func (l *Logger) AlertError(alert string, err error) {
	l.Warn("alert_error",
		slog.String("alert", alert),
		slog.String("error", err.Error()),
	)
}
