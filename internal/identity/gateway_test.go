package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

func TestGateway_InitialDeliveryIsNil(t *testing.T) {
	f := newFixture(t)
	rec := newIdentityRecorder()

	unsubscribe := f.gateway.OnIdentityChange(rec.observe)
	defer unsubscribe()

	if got := rec.next(t); got != nil {
		t.Errorf("initial identity = %+v, want nil", got)
	}
	rec.expectNone(t)
}

func TestGateway_SignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := newIdentityRecorder()
	unsubscribe := f.gateway.OnIdentityChange(rec.observe)
	defer unsubscribe()
	rec.next(t)

	id, err := f.gateway.SignUpWithEmail(ctx, testEmail, testPassword, testDisplayName)
	if err != nil {
		t.Fatalf("SignUpWithEmail() error = %v", err)
	}
	if got := rec.next(t); got == nil || got.ID != id.ID {
		t.Fatalf("delivered %+v, want %s", got, id.ID)
	}
	rec.expectNone(t)
	if f.gateway.Current() != id {
		t.Error("Current() does not return the signed-in identity")
	}

	// The profile is written before observers hear about the sign-in.
	rec2 := newIdentityRecorder()
	var profileSeen bool
	unsub2 := f.gateway.OnIdentityChange(func(got *Identity) {
		if got != nil {
			_, err := f.store.Get(ctx, docstore.CollectionUsers, got.ID)
			profileSeen = err == nil
		}
		rec2.observe(got)
	})
	defer unsub2()
	rec2.next(t)

	f.gateway.SignOut(ctx)
	if got := rec.next(t); got != nil {
		t.Errorf("after SignOut delivered %+v, want nil", got)
	}
	rec2.next(t)

	again, err := f.gateway.SignInWithEmail(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("SignInWithEmail() error = %v", err)
	}
	if again.ID != id.ID {
		t.Errorf("SignInWithEmail().ID = %q, want %q", again.ID, id.ID)
	}
	if got := rec.next(t); got == nil || got.ID != id.ID {
		t.Errorf("delivered %+v, want %s", got, id.ID)
	}
	rec2.next(t)
	if !profileSeen {
		t.Error("profile was not stored before observers were notified")
	}

	// Signing out twice delivers nil once.
	f.gateway.SignOut(ctx)
	f.gateway.SignOut(ctx)
	if got := rec.next(t); got != nil {
		t.Errorf("after SignOut delivered %+v, want nil", got)
	}
	rec.expectNone(t)

	// The revoked session no longer verifies.
	_, err = f.provider.Verify(ctx, again.Token)
	wantReason(t, err, ReasonSessionExpired)
}

func TestGateway_ProfileUpsert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.gateway.SignUpWithEmail(ctx, testEmail, testPassword, testDisplayName)
	if err != nil {
		t.Fatalf("SignUpWithEmail() error = %v", err)
	}

	rec, err := f.store.Get(ctx, docstore.CollectionUsers, id.ID)
	if err != nil {
		t.Fatalf("Get(users) error = %v", err)
	}
	if rec.Fields.String(FieldEmail) != testEmail {
		t.Errorf("email = %q, want %q", rec.Fields.String(FieldEmail), testEmail)
	}
	if rec.Fields.String(FieldDisplayName) != testDisplayName {
		t.Errorf("displayName = %q, want %q", rec.Fields.String(FieldDisplayName), testDisplayName)
	}
	if rec.Fields.Has(FieldPhotoURL) {
		t.Errorf("photoURL present without a photo: %v", rec.Fields[FieldPhotoURL])
	}

	profile, err := f.gateway.Profile(ctx, id.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.Email != testEmail || profile.DisplayName != testDisplayName || profile.PhotoURL != "" {
		t.Errorf("Profile() = %+v", profile)
	}

	// A later sign-in merges and keeps fields it does not write.
	if err := f.store.Update(ctx, docstore.CollectionUsers, id.ID, docstore.Fields{"theme": "dark", FieldPhotoURL: testPhotoURL}); err != nil {
		t.Fatalf("Update(users) error = %v", err)
	}
	f.gateway.SignOut(ctx)
	if _, err := f.gateway.SignInWithEmail(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("SignInWithEmail() error = %v", err)
	}
	rec, err = f.store.Get(ctx, docstore.CollectionUsers, id.ID)
	if err != nil {
		t.Fatalf("Get(users) error = %v", err)
	}
	if rec.Fields.String("theme") != "dark" || rec.Fields.String(FieldPhotoURL) != testPhotoURL {
		t.Errorf("profile fields lost on re-sign-in: %v", rec.Fields)
	}
}

func TestGateway_ProfileNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.gateway.Profile(context.Background(), "missing")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Profile() error = %v, want ErrProfileNotFound", err)
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Profile() error = %v, want docstore.ErrNotFound", err)
	}
}

func TestGateway_FailuresLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.provider.SignUp(ctx, testEmail, testPassword, ""); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	rec := newIdentityRecorder()
	unsubscribe := f.gateway.OnIdentityChange(rec.observe)
	defer unsubscribe()
	rec.next(t)

	_, err := f.gateway.SignInWithEmail(ctx, testEmail, "wrong-password")
	wantReason(t, err, ReasonInvalidCredentials)

	_, err = f.gateway.SignUpWithEmail(ctx, "other@example.com", "123", "")
	wantReason(t, err, ReasonWeakPassword)

	_, err = f.gateway.SignUpWithEmail(ctx, "bad-address", testPassword, "")
	wantReason(t, err, ReasonInvalidEmail)

	_, err = f.gateway.SignUpWithEmail(ctx, testEmail, testPassword, "")
	wantReason(t, err, ReasonEmailInUse)

	var ae *AuthenticationError
	if !errors.As(err, &ae) || ae.Message == "" {
		t.Errorf("AuthenticationError message missing: %v", err)
	}

	if f.gateway.Current() != nil {
		t.Errorf("Current() = %+v, want nil", f.gateway.Current())
	}
	rec.expectNone(t)
}

func TestGateway_FederatedSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.gateway.SignInWithFederatedProvider(ctx, IDToken(signIDToken(t, testFedSecret, nil)))
	if err != nil {
		t.Fatalf("SignInWithFederatedProvider() error = %v", err)
	}
	if id.Provider != testFedProvider {
		t.Errorf("Provider = %q, want %q", id.Provider, testFedProvider)
	}

	profile, err := f.gateway.Profile(ctx, id.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.PhotoURL != "https://example.com/grace.png" {
		t.Errorf("PhotoURL = %q, want provider picture", profile.PhotoURL)
	}
}

func TestGateway_FederatedConsentFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		flow ConsentFlow
		want Reason
	}{
		{
			name: "cancelled",
			flow: ConsentFunc(func(context.Context) (string, error) { return "", ErrConsentCancelled }),
			want: ReasonConsentCancelled,
		},
		{
			name: "no token",
			flow: IDToken(""),
			want: ReasonMissingToken,
		},
		{
			name: "rejected token",
			flow: IDToken(signIDToken(t, "wrong-secret-at-least-32-characters", nil)),
			want: ReasonTokenRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.gateway.SignInWithFederatedProvider(ctx, tt.flow)
			wantReason(t, err, tt.want)
			if f.gateway.Current() != nil {
				t.Error("Current() should stay nil after a failed federated sign-in")
			}
		})
	}

	t.Run("cancel keeps cause", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.gateway.SignInWithFederatedProvider(ctx,
			ConsentFunc(func(context.Context) (string, error) { return "", ErrConsentCancelled }))
		if !errors.Is(err, ErrConsentCancelled) {
			t.Errorf("error = %v, want wrapping ErrConsentCancelled", err)
		}
	})
}

func TestGateway_CheckSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if id, err := f.gateway.CheckSession(ctx); id != nil || err != nil {
		t.Errorf("CheckSession() signed out = %v, %v, want nil, nil", id, err)
	}

	id, err := f.gateway.SignUpWithEmail(ctx, testEmail, testPassword, "")
	if err != nil {
		t.Fatalf("SignUpWithEmail() error = %v", err)
	}
	got, err := f.gateway.CheckSession(ctx)
	if err != nil || got != id {
		t.Errorf("CheckSession() = %v, %v, want current identity", got, err)
	}

	rec := newIdentityRecorder()
	unsubscribe := f.gateway.OnIdentityChange(rec.observe)
	defer unsubscribe()
	rec.next(t)

	// Revoke behind the gateway's back, as another device signing out would.
	if err := f.provider.SignOut(ctx, id); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	got, err = f.gateway.CheckSession(ctx)
	if err != nil || got != nil {
		t.Errorf("CheckSession() after revoke = %v, %v, want nil, nil", got, err)
	}
	if delivered := rec.next(t); delivered != nil {
		t.Errorf("delivered %+v, want nil", delivered)
	}
	if f.gateway.Current() != nil {
		t.Error("Current() should be nil after the session ended")
	}
}

func TestGateway_Resume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.provider.SignUp(ctx, testEmail, testPassword, "")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	resumed, err := f.gateway.Resume(ctx, id.Token)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.ID != id.ID || f.gateway.Current() == nil {
		t.Errorf("Resume() = %+v, want %s", resumed, id.ID)
	}

	// Resuming the same session does not notify again.
	rec := newIdentityRecorder()
	unsubscribe := f.gateway.OnIdentityChange(rec.observe)
	defer unsubscribe()
	rec.next(t)
	if _, err := f.gateway.Resume(ctx, id.Token); err != nil {
		t.Fatalf("Resume() again error = %v", err)
	}
	rec.expectNone(t)

	_, err = f.gateway.Resume(ctx, "garbage")
	wantReason(t, err, ReasonSessionExpired)
}

func TestGateway_UnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := newIdentityRecorder()

	unsubscribe := f.gateway.OnIdentityChange(rec.observe)
	rec.next(t)
	unsubscribe()
	unsubscribe()

	if _, err := f.gateway.SignUpWithEmail(ctx, testEmail, testPassword, ""); err != nil {
		t.Fatalf("SignUpWithEmail() error = %v", err)
	}
	rec.expectNone(t)
}

func TestGateway_ProfileUpsertFailureStillSignsIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := NewGateway(f.provider, NewProfileStore(failingStore{f.store}))

	id, err := g.SignUpWithEmail(ctx, testEmail, testPassword, "")
	if err != nil {
		t.Fatalf("SignUpWithEmail() error = %v", err)
	}
	if g.Current() == nil || g.Current().ID != id.ID {
		t.Error("sign-in should succeed when the profile write fails")
	}
}

func TestGateway_ConcurrentObserversSeeSameSequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.provider.SignUp(ctx, testEmail, testPassword, ""); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	const observers = 4
	var (
		mu   sync.Mutex
		seen = make([][]bool, observers)
	)
	for i := range observers {
		unsubscribe := f.gateway.OnIdentityChange(func(id *Identity) {
			mu.Lock()
			seen[i] = append(seen[i], id != nil)
			mu.Unlock()
		})
		defer unsubscribe()
	}

	for range 3 {
		if _, err := f.gateway.SignInWithEmail(ctx, testEmail, testPassword); err != nil {
			t.Fatalf("SignInWithEmail() error = %v", err)
		}
		f.gateway.SignOut(ctx)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []bool{false, true, false, true, false, true, false}
	for i, got := range seen {
		if len(got) != len(want) {
			t.Fatalf("observer %d saw %v, want %v", i, got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("observer %d saw %v, want %v", i, got, want)
				break
			}
		}
	}
}

// failingStore fails every write.
type failingStore struct {
	docstore.Store
}

func (failingStore) Set(context.Context, string, string, docstore.Fields) error {
	return docstore.ErrStore
}

func TestGateway_LateObserverTriggersProfileUpsert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.gateway.SignUpWithEmail(ctx, testEmail, testPassword, testDisplayName)
	if err != nil {
		t.Fatalf("SignUpWithEmail() error = %v", err)
	}
	if err := f.store.Delete(ctx, docstore.CollectionUsers, id.ID); err != nil {
		t.Fatalf("Delete(users) error = %v", err)
	}

	var stored bool
	unsubscribe := f.gateway.OnIdentityChange(func(got *Identity) {
		if got == nil || got.ID != id.ID {
			t.Errorf("initial delivery = %+v, want the signed-in identity", got)
			return
		}
		_, err := f.store.Get(ctx, docstore.CollectionUsers, id.ID)
		stored = err == nil
	})
	defer unsubscribe()

	if !stored {
		t.Fatal("profile not upserted before the initial non-nil delivery")
	}
	rec, err := f.store.Get(ctx, docstore.CollectionUsers, id.ID)
	if err != nil {
		t.Fatalf("Get(users) error = %v", err)
	}
	if rec.Fields.String(FieldDisplayName) != testDisplayName || rec.Fields.Has(FieldPhotoURL) {
		t.Errorf("profile = %v", rec.Fields)
	}
}
