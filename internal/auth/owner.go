package auth

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("forbidden")
)

// AssertOwner is the single ownership gate used by all mutating operations.
// The author id must come from a fresh read of the resource, never from
// client input.
func AssertOwner(resourceAuthorID, requestingUserID int) error {
	if requestingUserID == 0 {
		return ErrUnauthenticated
	}
	if resourceAuthorID != requestingUserID {
		return ErrForbidden
	}
	return nil
}

type contextKey struct{}

var userIDContextKey = contextKey{}

// WithUserID stores the authenticated user id on the request context
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the authenticated user id, or zero when the
// request carries no valid session
func UserIDFromContext(ctx context.Context) int {
	userID, ok := ctx.Value(userIDContextKey).(int)
	if !ok {
		return 0
	}
	return userID
}
