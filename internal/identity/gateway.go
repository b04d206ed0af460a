package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Gateway holds one client's sign-in state and notifies observers of every
// change.
type Gateway struct {
	provider Provider
	profiles *ProfileStore
	logger   Logger

	// transition serialises state changes and observer registration so every
	// observer sees the same ordered sequence of identities.
	transition sync.Mutex

	mu        sync.Mutex
	current   *Identity
	nextID    uint64
	observers map[uint64]func(*Identity)
}

// NewGateway creates a signed-out gateway.
func NewGateway(provider Provider, profiles *ProfileStore) *Gateway {
	return &Gateway{
		provider:  provider,
		profiles:  profiles,
		logger:    noopLogger{},
		observers: make(map[uint64]func(*Identity)),
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// Current returns the signed-in identity, or nil.
func (g *Gateway) Current() *Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// SignInWithEmail signs in with an email/password pair.
func (g *Gateway) SignInWithEmail(ctx context.Context, email, password string) (*Identity, error) {
	id, err := g.provider.SignIn(ctx, email, password)
	if err != nil {
		g.logFailure("email sign-in failed", err)
		return nil, err
	}
	g.setIdentity(ctx, id)
	return id, nil
}

// SignUpWithEmail creates an account and signs it in.
func (g *Gateway) SignUpWithEmail(ctx context.Context, email, password, displayName string) (*Identity, error) {
	id, err := g.provider.SignUp(ctx, email, password, displayName)
	if err != nil {
		g.logFailure("email sign-up failed", err)
		return nil, err
	}
	g.setIdentity(ctx, id)
	return id, nil
}

// SignInWithFederatedProvider runs the consent flow and exchanges the
// resulting ID token for a session.
func (g *Gateway) SignInWithFederatedProvider(ctx context.Context, flow ConsentFlow) (*Identity, error) {
	idToken, err := flow.Authorize(ctx)
	if err != nil {
		var ae *AuthenticationError
		if !errors.As(err, &ae) {
			err = authError(ReasonConsentCancelled, err)
		}
		g.logFailure("federated consent failed", err)
		return nil, err
	}
	if idToken == "" {
		err := authError(ReasonMissingToken, nil)
		g.logFailure("federated consent returned no token", err)
		return nil, err
	}

	id, err := g.provider.SignInFederated(ctx, idToken)
	if err != nil {
		g.logFailure("federated sign-in failed", err)
		return nil, err
	}
	g.setIdentity(ctx, id)
	return id, nil
}

// SignOut ends the session. Provider errors are logged and otherwise
// ignored; the gateway always ends signed out.
func (g *Gateway) SignOut(ctx context.Context) {
	g.transition.Lock()
	defer g.transition.Unlock()

	prev := g.Current()
	if prev == nil {
		return
	}
	if err := g.provider.SignOut(ctx, prev); err != nil {
		g.logger.Error("sign-out failed", "user_id", prev.ID, "error", err)
	}
	g.publish(nil)
}

// CheckSession re-validates the current session and signs out if the
// provider reports it expired or revoked. Backend failures are returned
// without changing state.
func (g *Gateway) CheckSession(ctx context.Context) (*Identity, error) {
	cur := g.Current()
	if cur == nil {
		return nil, nil
	}
	if _, err := g.provider.Verify(ctx, cur.Token); err != nil {
		if !errors.Is(err, ErrAuthentication) {
			g.logger.Error("session check failed", "user_id", cur.ID, "error", err)
			return cur, err
		}
		g.logger.Info("session ended by provider", "user_id", cur.ID, "reason", ReasonOf(err))

		g.transition.Lock()
		defer g.transition.Unlock()
		if sameSession(g.Current(), cur) {
			g.publish(nil)
		}
		return nil, nil
	}
	return cur, nil
}

// Resume restores a session from a token issued earlier, as a client does
// after a restart.
func (g *Gateway) Resume(ctx context.Context, token string) (*Identity, error) {
	id, err := g.provider.Verify(ctx, token)
	if err != nil {
		g.logFailure("session resume failed", err)
		return nil, err
	}
	g.setIdentity(ctx, id)
	return id, nil
}

// OnIdentityChange registers cb. It is called at once with the current
// identity (nil when signed out) and again after every transition. Every
// non-nil delivery, the first included, is preceded by a profile upsert. The
// returned function unregisters cb and is safe to call more than once.
//
// cb runs while the gateway holds its transition lock, so it must not call
// the gateway's sign-in or sign-out methods.
func (g *Gateway) OnIdentityChange(cb func(*Identity)) (unsubscribe func()) {
	g.transition.Lock()
	defer g.transition.Unlock()

	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.observers[id] = cb
	cur := g.current
	g.mu.Unlock()

	if cur != nil {
		g.upsertProfile(context.Background(), cur)
	}
	cb(cur)

	return func() {
		g.mu.Lock()
		delete(g.observers, id)
		g.mu.Unlock()
	}
}

// Profile returns the stored profile for an identity id.
func (g *Gateway) Profile(ctx context.Context, id string) (*UserProfile, error) {
	p, err := g.profiles.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			g.logger.Error("reading profile failed", "user_id", id, "error", err)
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// setIdentity makes id current: the profile is upserted first, then
// observers are notified. A failed upsert is logged and does not undo the
// sign-in.
func (g *Gateway) setIdentity(ctx context.Context, id *Identity) {
	g.transition.Lock()
	defer g.transition.Unlock()

	prev := g.Current()
	if sameSession(prev, id) {
		return
	}
	if prev != nil {
		if err := g.provider.SignOut(ctx, prev); err != nil {
			g.logger.Warn("revoking replaced session failed", "user_id", prev.ID, "error", err)
		}
	}
	g.upsertProfile(ctx, id)
	g.logger.Info("signed in", "user_id", id.ID, "provider", id.Provider)
	g.publish(id)
}

// publish sets the current identity and notifies observers in registration
// order. Callers hold g.transition.
func (g *Gateway) publish(id *Identity) {
	g.mu.Lock()
	g.current = id
	ids := make([]uint64, 0, len(g.observers))
	for k := range g.observers {
		ids = append(ids, k)
	}
	g.mu.Unlock()

	slices.Sort(ids)
	for _, k := range ids {
		g.mu.Lock()
		cb, ok := g.observers[k]
		g.mu.Unlock()
		if ok {
			cb(id)
		}
	}
}

// upsertProfile merges id into its stored profile. Failures are logged only.
func (g *Gateway) upsertProfile(ctx context.Context, id *Identity) {
	if g.profiles == nil {
		return
	}
	if err := g.profiles.Upsert(ctx, id); err != nil {
		g.logger.Error("profile upsert failed", "user_id", id.ID, "error", err)
	}
}

func (g *Gateway) logFailure(msg string, err error) {
	if reason := ReasonOf(err); reason != "" {
		g.logger.Warn(msg, "reason", reason)
		return
	}
	g.logger.Error(msg, "error", err)
}
