package identity

import (
	"errors"
)

// ErrAuthentication matches every *AuthenticationError.
var ErrAuthentication = errors.New("identity: authentication failed")

// ErrConsentCancelled is returned by a ConsentFlow when the user backs out.
var ErrConsentCancelled = errors.New("identity: consent cancelled")

// ErrProfileNotFound is returned when no profile exists for an identity id.
var ErrProfileNotFound = errors.New("identity: profile not found")

// ErrMalformedHash is returned when a stored password hash cannot be parsed.
var ErrMalformedHash = errors.New("identity: malformed password hash")

// Reason classifies an authentication failure.
type Reason string

// Authentication failure reasons.
const (
	ReasonInvalidCredentials Reason = "invalid-credentials"
	ReasonWeakPassword       Reason = "weak-password"
	ReasonInvalidEmail       Reason = "invalid-email"
	ReasonEmailInUse         Reason = "email-already-in-use"
	ReasonConsentCancelled   Reason = "consent-cancelled"
	ReasonMissingToken       Reason = "missing-token"
	ReasonTokenRejected      Reason = "token-rejected"
	ReasonSessionExpired     Reason = "session-expired"
	ReasonProviderDisabled   Reason = "provider-disabled"
)

var reasonMessages = map[Reason]string{
	ReasonInvalidCredentials: "Incorrect email or password.",
	ReasonWeakPassword:       "Password must be at least 6 characters.",
	ReasonInvalidEmail:       "The email address is badly formatted.",
	ReasonEmailInUse:         "An account already exists for this email address.",
	ReasonConsentCancelled:   "Sign-in was cancelled.",
	ReasonMissingToken:       "The sign-in provider did not return an identity token.",
	ReasonTokenRejected:      "The sign-in provider's token was rejected.",
	ReasonSessionExpired:     "Your session has expired. Please sign in again.",
	ReasonProviderDisabled:   "This sign-in method is not enabled.",
}

// AuthenticationError reports why a sign-in or sign-up was refused.
type AuthenticationError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return "identity: " + string(e.Reason) + ": " + e.Err.Error()
	}
	return "identity: " + string(e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is makes every AuthenticationError match ErrAuthentication.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

func authError(reason Reason, cause error) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Message: reasonMessages[reason], Err: cause}
}

// ReasonOf returns the reason of an authentication error, or "" if err is
// not one.
func ReasonOf(err error) Reason {
	var ae *AuthenticationError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
