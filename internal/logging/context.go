// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID creates a new unique request identifier.
func GenerateRequestID() string {
	return uuid.NewString()
}

// FromContext returns a logger enriched with the request ID, when present.
func FromContext(ctx context.Context) *LoggerWithContext {
	return &LoggerWithContext{requestID: RequestIDFromContext(ctx)}
}

// LoggerWithContext wraps the global logger with request-scoped fields.
type LoggerWithContext struct {
	requestID string
}

// Info starts an info-level message carrying the request ID.
func (l *LoggerWithContext) Info() *zerolog.Event {
	return l.withRequestID(Info())
}

// Warn starts a warn-level message carrying the request ID.
func (l *LoggerWithContext) Warn() *zerolog.Event {
	return l.withRequestID(Warn())
}

// Error starts an error-level message carrying the request ID.
func (l *LoggerWithContext) Error() *zerolog.Event {
	return l.withRequestID(Error())
}

// Debug starts a debug-level message carrying the request ID.
func (l *LoggerWithContext) Debug() *zerolog.Event {
	return l.withRequestID(Debug())
}

func (l *LoggerWithContext) withRequestID(e *zerolog.Event) *zerolog.Event {
	if l.requestID != "" {
		return e.Str("request_id", l.requestID)
	}
	return e
}
