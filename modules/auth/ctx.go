package auth

import "context"

type principalIDKey struct{}

func withPrincipalID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, principalIDKey{}, id)
}

// GetPrincipalID returns the authenticated principal's ID set by WithAuthn,
// or 0 when the request is anonymous.
func GetPrincipalID(ctx context.Context) int64 {
	val := ctx.Value(principalIDKey{})
	if val == nil {
		return 0
	}
	id, _ := val.(int64)
	return id
}
