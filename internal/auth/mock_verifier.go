package auth

import "context"

// MockVerifier accepts any non-empty token and returns a fixed user ID.
// Test use only.
type MockVerifier struct {
	UserID string
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	if m.UserID == "" {
		return "test-user", nil
	}
	return m.UserID, nil
}
