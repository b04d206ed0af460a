package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewFederatedVerifier_DisabledWithoutSecret(t *testing.T) {
	if v := NewFederatedVerifier(FederatedConfig{Name: "google"}); v != nil {
		t.Errorf("NewFederatedVerifier() = %v, want nil without secret", v)
	}
}

func TestFederatedVerifier_Verify(t *testing.T) {
	v := NewFederatedVerifier(testFederatedConfig())
	if v.Name() != testFedProvider {
		t.Errorf("Name() = %q, want %q", v.Name(), testFedProvider)
	}

	claims, err := v.Verify(signIDToken(t, testFedSecret, nil))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "google-subject-1" || claims.Email != "grace@example.com" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Name != "Grace" || claims.Picture == "" {
		t.Errorf("profile claims = %q/%q", claims.Name, claims.Picture)
	}
}

func TestFederatedVerifier_Rejects(t *testing.T) {
	v := NewFederatedVerifier(testFederatedConfig())

	tests := []struct {
		name   string
		secret string
		mutate func(*FederatedClaims)
	}{
		{name: "wrong key", secret: "wrong-secret-at-least-32-characters"},
		{name: "wrong issuer", mutate: func(c *FederatedClaims) { c.Issuer = "https://evil.example.com" }},
		{name: "wrong audience", mutate: func(c *FederatedClaims) { c.Audience = jwt.ClaimStrings{"other-app"} }},
		{name: "expired", mutate: func(c *FederatedClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}},
		{name: "no expiry", mutate: func(c *FederatedClaims) { c.ExpiresAt = nil }},
		{name: "no subject", mutate: func(c *FederatedClaims) { c.Subject = "" }},
		{name: "no email", mutate: func(c *FederatedClaims) { c.Email = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := tt.secret
			if secret == "" {
				secret = testFedSecret
			}
			_, err := v.Verify(signIDToken(t, secret, tt.mutate))
			wantReason(t, err, ReasonTokenRejected)
			if !errors.Is(err, ErrAuthentication) {
				t.Errorf("errors.Is(err, ErrAuthentication) = false for %v", err)
			}
		})
	}
}

func TestIDToken(t *testing.T) {
	got, err := IDToken("abc").Authorize(context.Background())
	if err != nil || got != "abc" {
		t.Errorf("Authorize() = %q, %v, want abc, nil", got, err)
	}
}
