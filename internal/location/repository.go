package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// Logger defines the logging interface used by the repositories.
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

// DeviceDeleter removes every device in a room. Implemented by the device
// repository; kept as an interface so this package does not import it.
type DeviceDeleter interface {
	DeleteByRoom(ctx context.Context, roomID string) (int, error)
}

// HomeRepository stores homes in the homes collection.
type HomeRepository struct {
	store  docstore.Store
	rooms  *RoomRepository
	logger Logger
}

// NewHomeRepository creates a home repository. Deleting a home cascades
// through rooms.
func NewHomeRepository(store docstore.Store, rooms *RoomRepository) *HomeRepository {
	return &HomeRepository{store: store, rooms: rooms, logger: noopLogger{}}
}

// SetLogger sets the logger for the repository.
func (r *HomeRepository) SetLogger(logger Logger) {
	r.logger = logger
}

// Create stores a new home and returns its id.
func (r *HomeRepository) Create(ctx context.Context, h NewHome) (string, error) {
	if err := ValidateNewHome(h); err != nil {
		return "", err
	}
	rec, err := r.store.Create(ctx, docstore.CollectionHomes, docstore.Fields{
		FieldName:    strings.TrimSpace(h.Name),
		FieldAddress: h.Address,
		FieldUserID:  h.UserID,
	})
	if err != nil {
		r.logger.Error("creating home failed", "user_id", h.UserID, "error", err)
		return "", fmt.Errorf("creating home: %w", err)
	}
	r.logger.Debug("home created", "home_id", rec.ID, "user_id", h.UserID)
	return rec.ID, nil
}

// Get returns a single home.
func (r *HomeRepository) Get(ctx context.Context, id string) (*Home, error) {
	rec, err := r.store.Get(ctx, docstore.CollectionHomes, id)
	if err != nil {
		return nil, r.wrap("getting home", id, err)
	}
	h := homeFromRecord(rec)
	return &h, nil
}

// List returns the user's homes, newest first.
func (r *HomeRepository) List(ctx context.Context, userID string) ([]Home, error) {
	recs, err := r.store.Query(ctx, docstore.CollectionHomes, byUser(userID))
	if err != nil {
		r.logger.Error("listing homes failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("listing homes: %w", err)
	}
	return homesFromRecords(recs), nil
}

// Update merges the provided fields into a home.
func (r *HomeRepository) Update(ctx context.Context, id string, u HomeUpdate) error {
	if err := ValidateHomeUpdate(u); err != nil {
		return err
	}
	fields := docstore.Fields{}
	if u.Name != nil {
		fields[FieldName] = strings.TrimSpace(*u.Name)
	}
	if u.Address != nil {
		fields[FieldAddress] = *u.Address
	}
	if err := r.store.Update(ctx, docstore.CollectionHomes, id, fields); err != nil {
		return r.wrap("updating home", id, err)
	}
	return nil
}

// Delete removes a home together with its rooms and their devices.
// Deleting a missing home succeeds. Children go first, so a failure part way
// leaves the home in place for a retry.
func (r *HomeRepository) Delete(ctx context.Context, id string) error {
	if r.rooms != nil {
		n, err := r.rooms.DeleteByHome(ctx, id)
		if err != nil {
			return r.wrap("deleting home rooms", id, err)
		}
		if n > 0 {
			r.logger.Debug("cascaded home delete", "home_id", id, "rooms", n)
		}
	}
	if err := r.store.Delete(ctx, docstore.CollectionHomes, id); err != nil {
		return r.wrap("deleting home", id, err)
	}
	return nil
}

// SubscribeByParent streams the user's homes, newest first.
func (r *HomeRepository) SubscribeByParent(ctx context.Context, userID string, fn func([]Home, error)) (*docstore.Subscription, error) {
	return docstore.Subscribe(ctx, r.store, docstore.CollectionHomes, byUser(userID),
		func(recs []docstore.Record, err error) {
			if err != nil {
				r.logger.Error("homes subscription failed", "user_id", userID, "error", err)
				fn(nil, fmt.Errorf("watching homes: %w", err))
				return
			}
			fn(homesFromRecords(recs), nil)
		})
}

func (r *HomeRepository) wrap(op, id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrHomeNotFound, id, err)
	}
	if !errors.Is(err, docstore.ErrValidation) {
		r.logger.Error(op+" failed", "home_id", id, "error", err)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

// RoomRepository stores rooms in the rooms collection.
type RoomRepository struct {
	store   docstore.Store
	devices DeviceDeleter
	logger  Logger
}

// NewRoomRepository creates a room repository.
func NewRoomRepository(store docstore.Store) *RoomRepository {
	return &RoomRepository{store: store, logger: noopLogger{}}
}

// SetLogger sets the logger for the repository.
func (r *RoomRepository) SetLogger(logger Logger) {
	r.logger = logger
}

// SetDeviceDeleter wires the cascade into the device collection.
func (r *RoomRepository) SetDeviceDeleter(d DeviceDeleter) {
	r.devices = d
}

// Create stores a new room in an existing home and returns its id.
func (r *RoomRepository) Create(ctx context.Context, rm NewRoom) (string, error) {
	if err := ValidateNewRoom(rm); err != nil {
		return "", err
	}
	if _, err := r.store.Get(ctx, docstore.CollectionHomes, rm.HomeID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", fmt.Errorf("creating room: %w: %s: %w", ErrHomeNotFound, rm.HomeID, err)
		}
		r.logger.Error("checking room parent failed", "home_id", rm.HomeID, "error", err)
		return "", fmt.Errorf("creating room: %w", err)
	}

	rec, err := r.store.Create(ctx, docstore.CollectionRooms, docstore.Fields{
		FieldName:   strings.TrimSpace(rm.Name),
		FieldHomeID: rm.HomeID,
	})
	if err != nil {
		r.logger.Error("creating room failed", "home_id", rm.HomeID, "error", err)
		return "", fmt.Errorf("creating room: %w", err)
	}
	return rec.ID, nil
}

// Get returns a single room.
func (r *RoomRepository) Get(ctx context.Context, id string) (*Room, error) {
	rec, err := r.store.Get(ctx, docstore.CollectionRooms, id)
	if err != nil {
		return nil, r.wrap("getting room", id, err)
	}
	rm := roomFromRecord(rec)
	return &rm, nil
}

// List returns the home's rooms, newest first.
func (r *RoomRepository) List(ctx context.Context, homeID string) ([]Room, error) {
	recs, err := r.store.Query(ctx, docstore.CollectionRooms, byHome(homeID))
	if err != nil {
		r.logger.Error("listing rooms failed", "home_id", homeID, "error", err)
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return roomsFromRecords(recs), nil
}

// Update merges the provided fields into a room.
func (r *RoomRepository) Update(ctx context.Context, id string, u RoomUpdate) error {
	if err := ValidateRoomUpdate(u); err != nil {
		return err
	}
	fields := docstore.Fields{}
	if u.Name != nil {
		fields[FieldName] = strings.TrimSpace(*u.Name)
	}
	if err := r.store.Update(ctx, docstore.CollectionRooms, id, fields); err != nil {
		return r.wrap("updating room", id, err)
	}
	return nil
}

// Delete removes a room and its devices. Deleting a missing room succeeds.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	if err := r.deleteDevices(ctx, id); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, docstore.CollectionRooms, id); err != nil {
		return r.wrap("deleting room", id, err)
	}
	return nil
}

// DeleteByHome removes every room in a home, devices first, and returns the
// number of rooms removed.
func (r *RoomRepository) DeleteByHome(ctx context.Context, homeID string) (int, error) {
	rooms, err := r.List(ctx, homeID)
	if err != nil {
		return 0, err
	}
	for _, rm := range rooms {
		if err := r.deleteDevices(ctx, rm.ID); err != nil {
			return 0, err
		}
	}
	n, err := r.store.DeleteWhere(ctx, docstore.CollectionRooms, byHome(homeID))
	if err != nil {
		r.logger.Error("deleting rooms failed", "home_id", homeID, "error", err)
		return 0, fmt.Errorf("deleting rooms of home %s: %w", homeID, err)
	}
	return n, nil
}

// SubscribeByParent streams the home's rooms, newest first.
func (r *RoomRepository) SubscribeByParent(ctx context.Context, homeID string, fn func([]Room, error)) (*docstore.Subscription, error) {
	return docstore.Subscribe(ctx, r.store, docstore.CollectionRooms, byHome(homeID),
		func(recs []docstore.Record, err error) {
			if err != nil {
				r.logger.Error("rooms subscription failed", "home_id", homeID, "error", err)
				fn(nil, fmt.Errorf("watching rooms: %w", err))
				return
			}
			fn(roomsFromRecords(recs), nil)
		})
}

func (r *RoomRepository) deleteDevices(ctx context.Context, roomID string) error {
	if r.devices == nil {
		return nil
	}
	n, err := r.devices.DeleteByRoom(ctx, roomID)
	if err != nil {
		r.logger.Error("deleting room devices failed", "room_id", roomID, "error", err)
		return fmt.Errorf("deleting devices of room %s: %w", roomID, err)
	}
	if n > 0 {
		r.logger.Debug("cascaded room delete", "room_id", roomID, "devices", n)
	}
	return nil
}

func (r *RoomRepository) wrap(op, id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrRoomNotFound, id, err)
	}
	if !errors.Is(err, docstore.ErrValidation) {
		r.logger.Error(op+" failed", "room_id", id, "error", err)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func byUser(userID string) docstore.Query {
	return docstore.Query{Field: FieldUserID, Value: userID}
}

func byHome(homeID string) docstore.Query {
	return docstore.Query{Field: FieldHomeID, Value: homeID}
}
