package onboarding

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long an idle onboarding session is kept.
const DefaultSessionTTL = 15 * time.Minute

type session struct {
	owner    string
	flow     *Flow
	lastUsed time.Time
}

// Sessions keeps one Flow per onboarding attempt, owned by a user.
type Sessions struct {
	newFlow func() *Flow
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSessions creates a session table. newFlow builds the flow for each
// new session; ttl <= 0 uses DefaultSessionTTL.
func NewSessions(newFlow func() *Flow, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		newFlow:  newFlow,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Start opens a session for owner and returns its id.
func (s *Sessions) Start(owner string) (string, *Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	id := uuid.NewString()
	f := s.newFlow()
	s.sessions[id] = &session{owner: owner, flow: f, lastUsed: s.now()}
	return id, f
}

// Get returns owner's flow for id. Sessions of other owners are reported as
// missing.
func (s *Sessions) Get(id, owner string) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	sess, ok := s.sessions[id]
	if !ok || sess.owner != owner {
		return nil, ErrSessionNotFound
	}
	sess.lastUsed = s.now()
	return sess.flow, nil
}

// End discards a session. Ending an unknown session is a no-op.
func (s *Sessions) End(id, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok && sess.owner == owner {
		delete(s.sessions, id)
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return len(s.sessions)
}

func (s *Sessions) pruneLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
