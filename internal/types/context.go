package types

import "context"

// runIDKey is the private context key for the dispatcher run identifier.
type runIDKey struct{}

// WithRunID returns a context carrying the run identifier. The run ID
// correlates log lines, ledger rows, and outbound HTTP calls of one run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// GetRunID returns the run identifier from the context, or "" when absent.
func GetRunID(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey{}).(string); ok {
		return v
	}
	return ""
}
