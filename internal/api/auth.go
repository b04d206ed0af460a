package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/smarthome-core/internal/identity"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// signUpRequest is the request body for POST /auth/signup.
type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// federatedRequest is the request body for POST /auth/federated.
type federatedRequest struct {
	IDToken string `json:"idToken"`
}

// sessionResponse is returned by every endpoint that starts a session.
type sessionResponse struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	ExpiresIn   int                `json:"expires_in"`
	Identity    *identity.Identity `json:"identity"`
}

// meResponse is the response body for GET /auth/me.
type meResponse struct {
	Identity *identity.Identity    `json:"identity"`
	Profile  *identity.UserProfile `json:"profile,omitempty"`
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	now     func() time.Time
}

type ticketEntry struct {
	identity  *identity.Identity
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry), now: time.Now}
}

// handleSignUp creates an email/password account and starts a session.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	id, err := s.client.Accounts.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	s.writeSession(w, r, id, err, http.StatusCreated)
}

// handleLogin signs in with email and password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	id, err := s.client.Accounts.SignIn(r.Context(), req.Email, req.Password)
	s.writeSession(w, r, id, err, http.StatusOK)
}

// handleFederatedLogin exchanges an external provider's ID token for a
// session.
func (s *Server) handleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	id, err := s.client.Accounts.SignInFederated(r.Context(), req.IDToken)
	s.writeSession(w, r, id, err, http.StatusOK)
}

// writeSession finishes a sign-in: the profile document is upserted from
// the identity, then the session token is returned. A failed upsert is
// logged and does not undo the sign-in.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, id *identity.Identity, err error, status int) {
	if err != nil {
		writeDomainError(w, err, "account")
		return
	}
	if err := s.client.Profiles.Upsert(r.Context(), id); err != nil {
		s.logger.Warn("profile upsert failed", "user_id", id.ID, "error", err)
	}
	s.logger.Info("session started", "user_id", id.ID, "provider", id.Provider)

	writeJSON(w, status, sessionResponse{
		AccessToken: id.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(id.ExpiresAt).Seconds()),
		Identity:    id,
	})
}

// handleLogout revokes the caller's session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	if err := s.client.Accounts.SignOut(r.Context(), id); err != nil {
		s.logger.Error("sign-out failed", "user_id", id.ID, "error", err)
		writeInternalError(w, "failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the caller's identity and stored profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	resp := meResponse{Identity: id}

	profile, err := s.client.Profiles.Get(r.Context(), id.ID)
	switch {
	case err == nil:
		resp.Profile = profile
	case errors.Is(err, identity.ErrProfileNotFound):
	default:
		s.logger.Error("reading profile failed", "user_id", id.ID, "error", err)
		writeInternalError(w, "failed to read profile")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWSTicket generates a single-use WebSocket authentication ticket
// bound to the caller, so the session token never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.tickets.issue(currentIdentity(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

func (t *ticketStore) issue(id *identity.Identity) string {
	ticket := generateTicket()
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{identity: id, expiresAt: t.now().Add(ticketTTL)}
	t.mu.Unlock()
	return ticket
}

// redeem consumes a ticket and returns the identity it was issued to.
func (t *ticketStore) redeem(ticket string) (*identity.Identity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return nil, false
	}
	delete(t.tickets, ticket)
	if !t.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.identity, true
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanExpired removes expired tickets.
func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for ticket, entry := range t.tickets {
		if !now.Before(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

func (t *ticketStore) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tickets)
}

// cleanLoop runs cleanExpired periodically until the context is cancelled.
func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanExpired()
		}
	}
}
