package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := UserIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("user.id", id))
	}
	if id := GoalIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("goal.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

type userCtxKey struct{}
type goalCtxKey struct{}
type requestCtxKey struct{}

const maxIDLen = 128

// idPattern covers UUIDs, auth subject ids and echo request ids.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen && idPattern.MatchString(id)
}

// WithUserID records the authenticated user. Malformed ids are ignored so a
// hostile header can never inject log content.
func WithUserID(ctx context.Context, userID string) context.Context {
	if !validID(userID) {
		return ctx
	}
	return context.WithValue(ctx, userCtxKey{}, userID)
}

// UserIDFromContext extracts the user id from context.
func UserIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(userCtxKey{}).(string)
	return s
}

// WithGoalID records the goal being operated on.
func WithGoalID(ctx context.Context, goalID string) context.Context {
	if !validID(goalID) {
		return ctx
	}
	return context.WithValue(ctx, goalCtxKey{}, goalID)
}

// GoalIDFromContext extracts the goal id from context.
func GoalIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(goalCtxKey{}).(string)
	return s
}

// WithRequestID records the HTTP request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request id from context.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
