package auth

import "context"

type contextKey string

const (
	identityContextKey contextKey = "auth:identity"
	methodContextKey   contextKey = "auth:method"
)

// AuthMethod records which credential authenticated the request.
type AuthMethod string

const (
	MethodSession AuthMethod = "session"
	MethodBearer  AuthMethod = "bearer"
	MethodAPIKey  AuthMethod = "api_key"
)

// WithIdentity attaches the authenticated principal to the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the authenticated principal, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}

// WithAuthMethod records how the request authenticated.
func WithAuthMethod(ctx context.Context, method AuthMethod) context.Context {
	return context.WithValue(ctx, methodContextKey, method)
}

// AuthMethodFromContext returns the credential type used, if any.
func AuthMethodFromContext(ctx context.Context) (AuthMethod, bool) {
	method, ok := ctx.Value(methodContextKey).(AuthMethod)
	return method, ok
}
