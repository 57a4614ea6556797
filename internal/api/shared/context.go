package shared

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/domain"
)

type contextKey int

const (
	principalKey contextKey = iota
	traceIDKey
)

// TraceIDLength is the length of a trace ID in hex characters.
const TraceIDLength = 32

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok && p.ID != ""
}

// SetTraceID adds a fresh trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceIDKey, newTraceID())
}

// GetTraceID returns the request's trace ID, or "" outside a traced request.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// newTraceID formats a random UUID as 32 hex characters, the form log search
// tools accept for trace correlation.
func newTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
