package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	_ "github.com/nerrad567/smarthome-core/migrations" // registers embedded schema
)

const (
	testSecret       = "test-secret-key-at-least-32-chars!"
	testFedSecret    = "federated-secret-at-least-32-chars"
	testFedIssuer    = "https://accounts.example.com"
	testFedAudience  = "smarthome-app"
	testFedProvider  = "google"
	testPassword     = "hunter22"
	testEmail        = "ada@example.com"
	testDisplayName  = "Ada"
	testPhotoURL     = "https://example.com/ada.png"
	testWaitDuration = 2 * time.Second
)

// testDB opens a migrated in-memory database.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db.DB
}

func testFederatedConfig() FederatedConfig {
	return FederatedConfig{
		Name:     testFedProvider,
		Issuer:   testFedIssuer,
		Audience: testFedAudience,
		Secret:   testFedSecret,
	}
}

func newTestProvider(t *testing.T, db *sql.DB) *LocalProvider {
	t.Helper()
	return NewLocalProvider(db, LocalConfig{
		Secret:    testSecret,
		TokenTTL:  time.Hour,
		Federated: NewFederatedVerifier(testFederatedConfig()),
	})
}

// testFixture wires a gateway over a real provider and profile store.
type testFixture struct {
	db       *sql.DB
	store    *docstore.SQLiteStore
	provider *LocalProvider
	gateway  *Gateway
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	db := testDB(t)
	store := docstore.NewSQLiteStore(db, nil)
	provider := newTestProvider(t, db)
	return &testFixture{
		db:       db,
		store:    store,
		provider: provider,
		gateway:  NewGateway(provider, NewProfileStore(store)),
	}
}

// signIDToken signs a federated ID token with the given claim overrides.
func signIDToken(t *testing.T, secret string, mutate func(*FederatedClaims)) string {
	t.Helper()
	now := time.Now()
	claims := FederatedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testFedIssuer,
			Subject:   "google-subject-1",
			Audience:  jwt.ClaimStrings{testFedAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
		Email:         "grace@example.com",
		EmailVerified: true,
		Name:          "Grace",
		Picture:       "https://example.com/grace.png",
	}
	if mutate != nil {
		mutate(&claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

// identityRecorder collects OnIdentityChange deliveries.
type identityRecorder struct {
	ch chan *Identity
}

func newIdentityRecorder() *identityRecorder {
	return &identityRecorder{ch: make(chan *Identity, 16)}
}

func (r *identityRecorder) observe(id *Identity) {
	r.ch <- id
}

func (r *identityRecorder) next(t *testing.T) *Identity {
	t.Helper()
	select {
	case id := <-r.ch:
		return id
	case <-time.After(testWaitDuration):
		t.Fatal("timed out waiting for identity change")
	}
	return nil
}

func (r *identityRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case id := <-r.ch:
		t.Fatalf("unexpected identity change: %+v", id)
	default:
	}
}

func wantReason(t *testing.T, err error, want Reason) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want reason %s", want)
	}
	if got := ReasonOf(err); got != want {
		t.Fatalf("ReasonOf(%v) = %q, want %q", err, got, want)
	}
}
