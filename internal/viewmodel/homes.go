package viewmodel

import (
	"context"

	"github.com/nerrad567/smarthome-core/internal/identity"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	"github.com/nerrad567/smarthome-core/internal/location"
)

// HomeStore is the part of the home repository HomesModel uses.
type HomeStore interface {
	Create(ctx context.Context, h location.NewHome) (string, error)
	Update(ctx context.Context, id string, u location.HomeUpdate) error
	Delete(ctx context.Context, id string) error
	SubscribeByParent(ctx context.Context, userID string, fn func([]location.Home, error)) (*docstore.Subscription, error)
}

// IdentitySource delivers identity changes. identity.Gateway satisfies it.
type IdentitySource interface {
	OnIdentityChange(cb func(*identity.Identity)) (unsubscribe func())
}

// HomesModel lists the homes of one user. Its parent is a user id.
type HomesModel struct {
	*liveModel[location.Home]
	homes HomeStore
}

// NewHomesModel creates a model with no user selected.
func NewHomesModel(homes HomeStore) *HomesModel {
	return &HomesModel{
		liveModel: newLiveModel[location.Home](homes.SubscribeByParent),
		homes:     homes,
	}
}

// BindIdentity follows src: the model lists the signed-in user's homes and
// clears when nobody is signed in. The returned function stops following.
func (m *HomesModel) BindIdentity(src IdentitySource) (unbind func()) {
	return src.OnIdentityChange(func(id *identity.Identity) {
		if id == nil {
			m.SetParent("")
			return
		}
		m.SetParent(id.ID)
	})
}

// Add creates a home owned by the current user.
func (m *HomesModel) Add(ctx context.Context, name, address string) (string, error) {
	userID, _, open := m.current()
	if !open {
		return "", ErrClosed
	}
	if userID == "" {
		return "", ErrNoParent
	}
	return m.homes.Create(ctx, location.NewHome{Name: name, Address: address, UserID: userID})
}

// Edit updates a home.
func (m *HomesModel) Edit(ctx context.Context, id string, u location.HomeUpdate) error {
	return m.homes.Update(ctx, id, u)
}

// Remove deletes a home with its rooms and devices.
func (m *HomesModel) Remove(ctx context.Context, id string) error {
	return m.homes.Delete(ctx, id)
}
