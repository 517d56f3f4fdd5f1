package context

import (
	"context"
	"strings"
)

type (
	requestIDKey struct{}
	runIDKey     struct{}
	monthKey     struct{}
	actorKey     struct{}
)

type actor struct {
	kind string
	id   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithRunID tags the context with the settlement run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, strings.TrimSpace(runID))
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey{})
}

// WithMonth tags the context with the settlement month (YYYY-MM).
func WithMonth(ctx context.Context, month string) context.Context {
	return context.WithValue(ctx, monthKey{}, strings.TrimSpace(month))
}

func MonthFromContext(ctx context.Context) string {
	return stringValue(ctx, monthKey{})
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		kind: strings.TrimSpace(actorType),
		id:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if a, ok := ctx.Value(actorKey{}).(actor); ok {
		return a.kind, a.id
	}
	return "", ""
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
