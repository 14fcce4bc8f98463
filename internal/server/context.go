package server

import "context"

type contextKey string

const identityKey contextKey = "auth.identity"

// Identity is the authenticated caller extracted by the auth middleware.
type Identity struct {
	UserID      string
	SessionID   string
	AccessToken string
}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity stored by the auth middleware, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
