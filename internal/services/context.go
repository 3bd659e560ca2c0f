package services

import "context"

type contextKey string

const (
	tierKey      contextKey = "tier"
	taskPathKey  contextKey = "task_path"
	spotIDKey    contextKey = "spot_id"
	requestIDKey contextKey = "request_id"
)

// WithTier annotates context with the queue tier a task came from.
func WithTier(ctx context.Context, tier string) context.Context {
	if tier == "" {
		return ctx
	}
	return context.WithValue(ctx, tierKey, tier)
}

// TierFromContext returns the queue tier if present.
func TierFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(tierKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTaskPath annotates context with the directory being reconciled.
func WithTaskPath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, taskPathKey, path)
}

// TaskPathFromContext returns the task directory if present.
func TaskPathFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskPathKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSpotID annotates context with the catalog spot being crawled.
func WithSpotID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, spotIDKey, id)
}

// SpotIDFromContext returns the spot identifier if present.
func SpotIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(spotIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
