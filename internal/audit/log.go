// Package audit emits structured audit entries for credential lifecycle
// events: logins, logout, refresh rotation, device revocation.
package audit

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"pelayanan.org/internal/auth"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// SetLogger installs the process-wide audit logger. Call once at startup.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and subject context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zfields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zfields = append(zfields, zap.String("request_id", rid))
	}
	if subject, ok := auth.SubjectFromContext(ctx); ok && subject != "" {
		zfields = append(zfields, zap.String("subject", subject))
	}
	if len(fields) > 0 {
		zfields = append(zfields, zap.Any("fields", fields))
	}
	current().Info(event, zfields...)
	return nil
}
