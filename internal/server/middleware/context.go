package middleware

import (
	"context"

	"emeet/backend/internal/security"
)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller set by Auth and true if set; otherwise a zero Identity, false.
func IdentityFrom(ctx context.Context) (security.Identity, bool) {
	v, ok := ctx.Value(identityKey).(security.Identity)
	return v, ok && v.UserID != ""
}

// UserID returns the authenticated user id or "".
func UserID(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.UserID
}
