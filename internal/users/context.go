package users

import "context"

type userContextKey struct{}

// ContextWithUser stores the authenticated user in the request context. The
// access gate installs it; it lives only for the current request.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the authenticated user, or nil when the request
// did not pass the access gate.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}
