package logging

import (
	"context"
	"log/slog"

	"fbicheck/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTier is the standardized structured logging key for queue tiers (manual, crawler).
	FieldTier = "tier"
	// FieldPath is the standardized structured logging key for archive paths.
	FieldPath = "path"
	// FieldSpotID is the standardized structured logging key for catalog spot identifiers.
	FieldSpotID = "spot_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldRunID identifies one daemon process lifetime.
	FieldRunID = "run_id"
	// FieldEventType classifies warnings and errors for log searches.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if tier, ok := services.TierFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTier, tier))
	}
	if path, ok := services.TaskPathFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPath, path))
	}
	if spot, ok := services.SpotIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSpotID, spot))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
