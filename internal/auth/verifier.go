package auth

import "context"

// Verifier decodes a bearer credential into a stable user identifier.
// Implementations must fail closed: any parse or validation problem returns
// an error and no user ID.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}
