package auth

import "context"

type contextKey string

const claimsKey contextKey = "tripboard-auth-claims"

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// ActorFromContext resolves the acting user from the request context. The
// second return is false when no authenticated actor is present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	claims, ok := FromContext(ctx)
	if !ok {
		return Actor{}, false
	}
	return ActorFromClaims(claims)
}
