// Package logger carries logging helpers shared by services.
package logger

import (
	"context"

	"go.uber.org/zap"

	"notification-engine/pkg/trace"
)

// WithTrace attaches the request trace id from ctx, if present.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
