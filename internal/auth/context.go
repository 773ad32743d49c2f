package auth

import "context"

type contextKey struct{}

// Identity is the caller established by token verification. Household
// membership is resolved per request from the store, not carried here.
type Identity struct {
	UserID int64
	Phone  string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func UserID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.UserID
}
