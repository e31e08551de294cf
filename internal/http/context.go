package http

import (
	"context"
	"log/slog"

	"github.com/example/scheduling-core/internal/logging"
)

type contextKey string

const (
	moduleContextKey     contextKey = "module"
	eventIDContextKey    contextKey = "event_id"
	resourceIDContextKey contextKey = "resource_id"
)

// ContextWithModule records the authenticated calling module.
func ContextWithModule(ctx context.Context, module string) context.Context {
	return context.WithValue(ctx, moduleContextKey, module)
}

// ModuleFromContext returns the calling module set by RequireModuleKey.
func ModuleFromContext(ctx context.Context) (string, bool) {
	module, ok := ctx.Value(moduleContextKey).(string)
	return module, ok
}

// ContextWithEventID injects the event identifier resolved from the request path.
func ContextWithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDContextKey, eventID)
}

// EventIDFromContext extracts an event identifier previously associated with the context.
func EventIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(eventIDContextKey).(string)
	return id, ok
}

// ContextWithResourceID injects the resource identifier resolved from the request path.
func ContextWithResourceID(ctx context.Context, resourceID string) context.Context {
	return context.WithValue(ctx, resourceIDContextKey, resourceID)
}

// ResourceIDFromContext extracts the resource identifier from the context.
func ResourceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(resourceIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches the request logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
