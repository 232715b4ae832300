package logger

import "context"

type contextKey string

const (
	runIDKey contextKey = "ledgersnap.run_id"
	groupKey contextKey = "ledgersnap.group"
)

// WithRunID tags ctx with the id of the pull or extraction it serves.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run id set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// WithGroup tags ctx with the key group being fetched.
func WithGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, groupKey, group)
}

// GroupFromContext returns the key group set by WithGroup, or "".
func GroupFromContext(ctx context.Context) string {
	if g, ok := ctx.Value(groupKey).(string); ok {
		return g
	}
	return ""
}

// L returns base with the run id and key group of ctx attached.
func L(ctx context.Context, base Logger) Logger {
	l := base
	if runID := RunIDFromContext(ctx); runID != "" {
		l = l.With("run_id", runID)
	}
	if group := GroupFromContext(ctx); group != "" {
		l = l.With("group", group)
	}
	return l
}
