package logging

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// Fields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment, so business context
// (run_id, goal_id, etc.) is included in every log statement without
// threading extra parameters through call sites.
type Fields struct {
	RunID     *string // research run id
	GoalID    *string // goal node id
	SourceID  *string // source registry id
	ActionType *string
	Component string // e.g. "research.saturator"
}

// WithFields enriches context with structured log fields. Multiple calls
// merge fields, with newer non-nil/non-empty values taking precedence.
func WithFields(ctx context.Context, fields Fields) context.Context {
	existing := GetFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetFields retrieves log fields from context, returning the zero value if
// none are set.
func GetFields(ctx context.Context) Fields {
	if fields, ok := ctx.Value(logFieldsKey).(Fields); ok {
		return fields
	}
	return Fields{}
}

func mergeFields(existing, next Fields) Fields {
	result := existing

	if next.RunID != nil {
		result.RunID = next.RunID
	}
	if next.GoalID != nil {
		result.GoalID = next.GoalID
	}
	if next.SourceID != nil {
		result.SourceID = next.SourceID
	}
	if next.ActionType != nil {
		result.ActionType = next.ActionType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value, for inline Fields
// literals: logging.WithFields(ctx, logging.Fields{GoalID: logging.Ptr(id)}).
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long queries or raw content.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
