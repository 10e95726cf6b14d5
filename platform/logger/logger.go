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
	// ChannelIDKey is the context key for the channel instance ID
	ChannelIDKey contextKey = "channel_id"
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
// Supports request_id and channel_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("request_id", requestID)),
		}
	}

	if channelID, ok := ctx.Value(ChannelIDKey).(string); ok && channelID != "" {
		newLogger = newLogger.WithChannelID(channelID)
	}

	return newLogger
}

// WithChannelID returns a logger with the channel instance ID attached.
func (l *Logger) WithChannelID(channelID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("channel_id", channelID)),
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

// GatewayError logs a failed call to the messaging gateway.
func (l *Logger) GatewayError(operation, channelID string, err error) {
	l.Warn("gateway_error",
		slog.String("operation", operation),
		slog.String("channel_id", channelID),
		slog.String("error", err.Error()),
	)
}

// PipelineEvent logs a message moving through the ingestion pipeline.
func (l *Logger) PipelineEvent(stage, channelID, messageID string) {
	l.Debug("pipeline_event",
		slog.String("stage", stage),
		slog.String("channel_id", channelID),
		slog.String("message_id", messageID),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
