package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ConsentFlow obtains an ID token from a federated provider, typically by
// sending the user through the provider's consent screen. It returns
// ErrConsentCancelled if the user backs out.
type ConsentFlow interface {
	Authorize(ctx context.Context) (idToken string, err error)
}

// ConsentFunc adapts a function to ConsentFlow.
type ConsentFunc func(ctx context.Context) (string, error)

// Authorize calls f.
func (f ConsentFunc) Authorize(ctx context.Context) (string, error) {
	return f(ctx)
}

// IDToken is a ConsentFlow for an ID token the client already holds.
func IDToken(token string) ConsentFlow {
	return ConsentFunc(func(context.Context) (string, error) { return token, nil })
}

// FederatedConfig describes the one trusted external issuer.
type FederatedConfig struct {
	// Name is the provider name recorded on identities, e.g. "google".
	Name     string
	Issuer   string
	Audience string
	// Secret is the HS256 key shared with the issuer.
	Secret string
}

// FederatedClaims are the claims read from a provider ID token.
type FederatedClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// FederatedVerifier validates ID tokens from the configured issuer.
type FederatedVerifier struct {
	cfg FederatedConfig
}

// NewFederatedVerifier returns a verifier, or nil if cfg has no secret.
func NewFederatedVerifier(cfg FederatedConfig) *FederatedVerifier {
	if cfg.Secret == "" {
		return nil
	}
	return &FederatedVerifier{cfg: cfg}
}

// Name returns the provider name.
func (v *FederatedVerifier) Name() string {
	return v.cfg.Name
}

// Verify checks signature, issuer, audience and expiry and returns the
// claims. Failures are AuthenticationErrors with ReasonTokenRejected.
func (v *FederatedVerifier) Verify(idToken string) (*FederatedClaims, error) {
	parsed, err := jwt.ParseWithClaims(idToken, &FederatedClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(v.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, authError(ReasonTokenRejected, err)
	}

	claims, ok := parsed.Claims.(*FederatedClaims)
	if !ok || !parsed.Valid {
		return nil, authError(ReasonTokenRejected, errors.New("invalid claims"))
	}
	if claims.Subject == "" {
		return nil, authError(ReasonTokenRejected, errors.New("missing subject"))
	}
	if claims.Email == "" {
		return nil, authError(ReasonTokenRejected, fmt.Errorf("token for %s has no email", claims.Subject))
	}
	return claims, nil
}
