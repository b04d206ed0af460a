package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// LocalConfig configures a LocalProvider.
type LocalConfig struct {
	// Secret signs session tokens. At least 32 bytes.
	Secret string
	// TokenTTL is the session lifetime. Zero means one hour.
	TokenTTL time.Duration
	// Federated enables SignInFederated when non-nil.
	Federated *FederatedVerifier
}

// LocalProvider keeps accounts, federated links and sessions in SQLite.
type LocalProvider struct {
	db        *sql.DB
	secret    []byte
	ttl       time.Duration
	federated *FederatedVerifier
	now       func() time.Time
}

// NewLocalProvider creates a provider over a migrated database.
func NewLocalProvider(db *sql.DB, cfg LocalConfig) *LocalProvider {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &LocalProvider{
		db:        db,
		secret:    []byte(cfg.Secret),
		ttl:       ttl,
		federated: cfg.Federated,
		now:       time.Now,
	}
}

type account struct {
	id           string
	email        string
	displayName  string
	photoURL     sql.NullString
	passwordHash sql.NullString
}

// SignUp creates an email/password account and starts a session.
func (p *LocalProvider) SignUp(ctx context.Context, email, password, displayName string) (*Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, authError(ReasonWeakPassword, nil)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	acct := account{
		id:           uuid.NewString(),
		email:        email,
		displayName:  strings.TrimSpace(displayName),
		passwordHash: sql.NullString{String: hash, Valid: true},
	}
	now := p.timestamp()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, display_name, photo_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?, ?)`,
		acct.id, acct.email, acct.displayName, hash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, authError(ReasonEmailInUse, nil)
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return p.startSession(ctx, acct, ProviderPassword)
}

// SignIn checks an email/password pair and starts a session.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	acct, err := p.accountByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authError(ReasonInvalidCredentials, nil)
	}
	if err != nil {
		return nil, err
	}
	// Federated-only accounts have no password.
	if !acct.passwordHash.Valid {
		return nil, authError(ReasonInvalidCredentials, nil)
	}
	ok, err := VerifyPassword(password, acct.passwordHash.String)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, authError(ReasonInvalidCredentials, nil)
	}
	return p.startSession(ctx, acct, ProviderPassword)
}

// SignInFederated exchanges a provider ID token for a session. The first
// sign-in links the provider subject to the account with the same email,
// creating a password-less account if none exists.
func (p *LocalProvider) SignInFederated(ctx context.Context, idToken string) (*Identity, error) {
	if p.federated == nil {
		return nil, authError(ReasonProviderDisabled, nil)
	}
	claims, err := p.federated.Verify(idToken)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(claims.Email)
	if err != nil {
		return nil, authError(ReasonTokenRejected, err)
	}
	provider := p.federated.Name()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := p.timestamp()
	var accountID string
	err = tx.QueryRowContext(ctx,
		"SELECT account_id FROM account_links WHERE provider = ? AND subject = ?",
		provider, claims.Subject,
	).Scan(&accountID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx, "SELECT id FROM accounts WHERE email = ?", email).Scan(&accountID)
		if errors.Is(err, sql.ErrNoRows) {
			accountID = uuid.NewString()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (id, email, display_name, photo_url, password_hash, created_at, updated_at)
				 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
				accountID, email, claims.Name, nullString(claims.Picture), now, now,
			); err != nil {
				return nil, fmt.Errorf("creating federated account: %w", err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("looking up account: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO account_links (provider, subject, account_id, created_at) VALUES (?, ?, ?, ?)",
			provider, claims.Subject, accountID, now,
		); err != nil {
			return nil, fmt.Errorf("linking federated identity: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("looking up federated link: %w", err)
	}

	// Fill in profile details the provider knows and the account lacks.
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET
			display_name = CASE WHEN display_name = '' THEN ? ELSE display_name END,
			photo_url = COALESCE(?, photo_url),
			updated_at = ?
		 WHERE id = ?`,
		claims.Name, nullString(claims.Picture), now, accountID,
	); err != nil {
		return nil, fmt.Errorf("updating federated account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing federated sign-in: %w", err)
	}

	acct, err := p.accountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return p.startSession(ctx, acct, provider)
}

// SignOut revokes the session. Revoking an unknown session is not an error.
func (p *LocalProvider) SignOut(ctx context.Context, id *Identity) error {
	if id == nil || id.SessionID == "" {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, "UPDATE sessions SET revoked = 1 WHERE id = ?", id.SessionID); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// Verify resolves a session token to a live identity.
func (p *LocalProvider) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, authError(ReasonMissingToken, nil)
	}
	claims, err := ParseSessionToken(token, p.secret)
	if err != nil {
		return nil, authError(ReasonSessionExpired, err)
	}

	var (
		accountID string
		expiresAt string
		revoked   int
	)
	err = p.db.QueryRowContext(ctx,
		"SELECT account_id, expires_at, revoked FROM sessions WHERE id = ?", claims.SessionID,
	).Scan(&accountID, &expiresAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authError(ReasonSessionExpired, errors.New("unknown session"))
	}
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	expires, _ := time.Parse(time.RFC3339Nano, expiresAt) //nolint:errcheck // written by startSession
	if revoked != 0 || accountID != claims.Subject || !p.now().Before(expires) {
		return nil, authError(ReasonSessionExpired, nil)
	}

	acct, err := p.accountByID(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authError(ReasonSessionExpired, errors.New("account removed"))
	}
	if err != nil {
		return nil, err
	}
	return &Identity{
		ID:          acct.id,
		Email:       acct.email,
		DisplayName: acct.displayName,
		PhotoURL:    acct.photoURL.String,
		Provider:    claims.Provider,
		SessionID:   claims.SessionID,
		Token:       token,
		ExpiresAt:   expires,
	}, nil
}

func (p *LocalProvider) startSession(ctx context.Context, acct account, provider string) (*Identity, error) {
	now := p.now().UTC()
	sessionID := uuid.NewString()
	token, expires, err := issueToken(acct.id, acct.email, provider, sessionID, p.secret, now, p.ttl)
	if err != nil {
		return nil, err
	}
	if _, err := p.db.ExecContext(ctx,
		"INSERT INTO sessions (id, account_id, expires_at, revoked, created_at) VALUES (?, ?, ?, 0, ?)",
		sessionID, acct.id, expires.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &Identity{
		ID:          acct.id,
		Email:       acct.email,
		DisplayName: acct.displayName,
		PhotoURL:    acct.photoURL.String,
		Provider:    provider,
		SessionID:   sessionID,
		Token:       token,
		ExpiresAt:   expires,
	}, nil
}

func (p *LocalProvider) accountByEmail(ctx context.Context, email string) (account, error) {
	return p.scanAccount(p.db.QueryRowContext(ctx,
		"SELECT id, email, display_name, photo_url, password_hash FROM accounts WHERE email = ?", email))
}

func (p *LocalProvider) accountByID(ctx context.Context, id string) (account, error) {
	return p.scanAccount(p.db.QueryRowContext(ctx,
		"SELECT id, email, display_name, photo_url, password_hash FROM accounts WHERE id = ?", id))
}

func (p *LocalProvider) scanAccount(row *sql.Row) (account, error) {
	var a account
	err := row.Scan(&a.id, &a.email, &a.displayName, &a.photoURL, &a.passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return account{}, err
	}
	if err != nil {
		return account{}, fmt.Errorf("scanning account: %w", err)
	}
	return a, nil
}

func (p *LocalProvider) timestamp() string {
	return p.now().UTC().Format(time.RFC3339Nano)
}

// normalizeEmail lower-cases and validates a bare address.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", authError(ReasonInvalidEmail, nil)
	}
	return email, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
