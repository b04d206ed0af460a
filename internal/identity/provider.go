package identity

import "context"

// Provider checks credentials and manages sessions. Every refusal is an
// *AuthenticationError; any other error is a backend failure.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password, displayName string) (*Identity, error)
	SignInFederated(ctx context.Context, idToken string) (*Identity, error)

	// SignOut revokes the identity's session.
	SignOut(ctx context.Context, id *Identity) error

	// Verify resolves a session token to its identity, failing with
	// ReasonSessionExpired if the session is expired or revoked.
	Verify(ctx context.Context, token string) (*Identity, error)
}
