package identity

import "time"

// ProviderPassword names email/password identities.
const ProviderPassword = "password"

// Identity is an authenticated user session.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`

	// Provider is ProviderPassword or the federated provider name.
	Provider  string    `json:"provider"`
	SessionID string    `json:"-"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// sameSession reports whether a and b describe the same signed-in session.
func sameSession(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.SessionID == b.SessionID
}

// UserProfile is the stored profile document for an identity.
type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
