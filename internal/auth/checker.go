package auth

import "context"

var _ Checker = (*SessionChecker)(nil)
var _ Checker = (*TestChecker)(nil)

// Checker resolves a session token to the logged in user id.
// A zero user id with nil error means: no valid session.
type Checker interface {
	UserID(ctx context.Context, token string) (int, error)
}
