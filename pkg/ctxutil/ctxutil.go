// Package ctxutil carries request-scoped values: the request ID used to
// correlate log lines and the identity of the contributor behind a teach.
package ctxutil

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const (
	contributorKey ctxKey = "contributor"
	requestIDKey   ctxKey = "request_id"
)

// WithContributor stores the contributor identity in the context.
func WithContributor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contributorKey, id)
}

// ContributorFromCtx extracts the contributor identity from the context.
// Returns "" and false if the value is missing, blank, or wrong type.
func ContributorFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contributorKey).(string)
	if !ok {
		return "", false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	return id, true
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx extracts the request ID from the context.
// Returns an empty string if absent.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// EnsureRequestID returns ctx unchanged when it already carries a request ID
// and otherwise attaches a fresh random one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromCtx(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}
