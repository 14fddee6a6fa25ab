package auth

import "context"

// TestChecker is a Checker for unit tests, mapping tokens to user ids directly
type TestChecker struct {
	Tokens map[string]int
}

func NewTestChecker() *TestChecker {
	return &TestChecker{
		Tokens: make(map[string]int),
	}
}

func (tc *TestChecker) UserID(_ context.Context, token string) (int, error) {
	return tc.Tokens[token], nil
}
