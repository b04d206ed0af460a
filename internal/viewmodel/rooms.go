package viewmodel

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/smarthome-core/internal/location"
)

// RoomStore is the part of the room repository RoomsModel uses.
type RoomStore interface {
	Create(ctx context.Context, r location.NewRoom) (string, error)
	List(ctx context.Context, homeID string) ([]location.Room, error)
	Update(ctx context.Context, id string, u location.RoomUpdate) error
	Delete(ctx context.Context, id string) error
}

// RoomsModel lists the rooms of one home from a one-shot fetch. With no
// subscription behind it, it applies its own mutations to the list: edits
// and removals immediately and rolled back on failure, additions once the
// store has assigned an id. Mutations that succeed while a fetch is in
// flight are replayed onto its result, since the fetch may have read the
// store before they committed.
type RoomsModel struct {
	base[location.Room]
	rooms  RoomStore
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	// fetching and replay are guarded by base.mu and belong to the current
	// generation.
	fetching bool
	replay   []roomsOp
}

// roomsOp is a local mutation of the room list. Applying one twice has the
// same effect as applying it once.
type roomsOp func([]location.Room) []location.Room

// NewRoomsModel creates a model with no home selected.
func NewRoomsModel(rooms RoomStore) *RoomsModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomsModel{
		base:   newBase[location.Room](),
		rooms:  rooms,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// SetParent points the model at homeID and fetches its rooms in the
// background. An empty id clears the list.
func (m *RoomsModel) SetParent(homeID string) {
	parent, _, open := m.current()
	if !open || (homeID == parent && homeID == "") {
		return
	}
	m.fetch(homeID)
}

// Refresh fetches the current home's rooms again.
func (m *RoomsModel) Refresh() {
	parent, _, open := m.current()
	if open {
		m.fetch(parent)
	}
}

// Retry is Refresh; it exists so every model recovers the same way.
func (m *RoomsModel) Retry() {
	m.Refresh()
}

// Close cancels a fetch in flight and drops every observer.
func (m *RoomsModel) Close() {
	if m.shut() {
		m.cancel()
	}
}

// fetch starts a new generation and loads it.
func (m *RoomsModel) fetch(homeID string) {
	gen := m.reset(homeID)
	if homeID == "" {
		m.apply(gen, func(s *State[location.Room]) {
			m.fetching, m.replay = false, nil
			*s = State[location.Room]{}
		})
		return
	}
	m.apply(gen, func(s *State[location.Room]) {
		m.fetching, m.replay = true, nil
		*s = State[location.Room]{Loading: true}
	})

	go func() {
		rooms, err := m.rooms.List(m.ctx, homeID)
		m.apply(gen, func(s *State[location.Room]) {
			replay := m.replay
			m.fetching, m.replay = false, nil
			if err != nil {
				*s = State[location.Room]{Err: err}
				return
			}
			for _, op := range replay {
				rooms = op(rooms)
			}
			*s = State[location.Room]{Items: rooms}
		})
	}()
}

// commit applies a mutation the store has accepted and keeps it for
// replay if a fetch is still in flight.
func (m *RoomsModel) commit(gen uint64, op roomsOp) {
	m.apply(gen, func(s *State[location.Room]) {
		s.Items = op(s.Items)
		if m.fetching {
			m.replay = append(m.replay, op)
		}
	})
}

// Add creates a room in the current home and puts it at the head of the
// list.
func (m *RoomsModel) Add(ctx context.Context, name string) (string, error) {
	homeID, gen, open := m.current()
	if !open {
		return "", ErrClosed
	}
	if homeID == "" {
		return "", ErrNoParent
	}

	id, err := m.rooms.Create(ctx, location.NewRoom{Name: name, HomeID: homeID})
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	room := location.Room{ID: id, Name: strings.TrimSpace(name), HomeID: homeID, CreatedAt: now, UpdatedAt: now}
	m.commit(gen, func(items []location.Room) []location.Room {
		if slices.ContainsFunc(items, func(r location.Room) bool { return r.ID == id }) {
			return items
		}
		return append([]location.Room{room}, items...)
	})
	return id, nil
}

// Edit renames a room. The list shows the new name at once and reverts if
// the store rejects the change.
func (m *RoomsModel) Edit(ctx context.Context, id string, u location.RoomUpdate) error {
	_, gen, _ := m.current()
	at := m.now().UTC()
	rename := func(items []location.Room) []location.Room {
		i := slices.IndexFunc(items, func(r location.Room) bool { return r.ID == id })
		if i >= 0 && u.Name != nil {
			items[i].Name = strings.TrimSpace(*u.Name)
			items[i].UpdatedAt = at
		}
		return items
	}

	restore := m.mutate(gen, rename)
	if err := m.rooms.Update(ctx, id, u); err != nil {
		restore()
		return err
	}
	m.commit(gen, rename)
	return nil
}

// Remove deletes a room and its devices. The room leaves the list at once
// and comes back if the store fails.
func (m *RoomsModel) Remove(ctx context.Context, id string) error {
	_, gen, _ := m.current()
	remove := func(items []location.Room) []location.Room {
		return slices.DeleteFunc(items, func(r location.Room) bool { return r.ID == id })
	}

	restore := m.mutate(gen, remove)
	if err := m.rooms.Delete(ctx, id); err != nil {
		restore()
		return err
	}
	m.commit(gen, remove)
	return nil
}

// mutate applies op to a copy of the list and returns a function that puts
// the previous list back, provided nothing else changed it since.
func (m *RoomsModel) mutate(gen uint64, op roomsOp) (restore func()) {
	var before, after []location.Room
	m.apply(gen, func(s *State[location.Room]) {
		before = slices.Clone(s.Items)
		after = op(slices.Clone(s.Items))
		s.Items = after
	})

	return func() {
		m.apply(gen, func(s *State[location.Room]) {
			if slices.EqualFunc(s.Items, after, func(a, b location.Room) bool {
				return a.ID == b.ID && a.Name == b.Name
			}) {
				s.Items = before
			}
		})
	}
}
