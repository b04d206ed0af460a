package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// Profile document fields.
const (
	FieldEmail       = "email"
	FieldDisplayName = "displayName"
	FieldPhotoURL    = "photoURL"
)

// ProfileStore keeps user profiles in the users collection, keyed by
// identity id.
type ProfileStore struct {
	store docstore.Store
}

// NewProfileStore creates a profile store.
func NewProfileStore(store docstore.Store) *ProfileStore {
	return &ProfileStore{store: store}
}

// Upsert merges the identity's email and display name into its profile,
// creating it on first sign-in. photoURL is written only when the identity
// has one, so an existing photo is never cleared.
func (s *ProfileStore) Upsert(ctx context.Context, id *Identity) error {
	fields := docstore.Fields{
		FieldEmail:       id.Email,
		FieldDisplayName: id.DisplayName,
	}
	if id.PhotoURL != "" {
		fields[FieldPhotoURL] = id.PhotoURL
	}
	if err := s.store.Set(ctx, docstore.CollectionUsers, id.ID, fields); err != nil {
		return fmt.Errorf("upserting profile %s: %w", id.ID, err)
	}
	return nil
}

// Get returns a stored profile.
func (s *ProfileStore) Get(ctx context.Context, id string) (*UserProfile, error) {
	rec, err := s.store.Get(ctx, docstore.CollectionUsers, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s: %w", ErrProfileNotFound, id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", id, err)
	}
	return &UserProfile{
		ID:          rec.ID,
		Email:       rec.Fields.String(FieldEmail),
		DisplayName: rec.Fields.String(FieldDisplayName),
		PhotoURL:    rec.Fields.String(FieldPhotoURL),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}
