package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	"github.com/nerrad567/smarthome-core/internal/location"
)

// Logger defines the logging interface used by the Repository.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RoomLookup resolves a device's parent room.
type RoomLookup interface {
	Get(ctx context.Context, id string) (*location.Room, error)
}

// Repository stores devices and their voltage readings.
//
// All public methods are safe for concurrent use.
type Repository struct {
	store  docstore.Store
	rooms  RoomLookup
	logger Logger
}

// NewRepository creates a device repository. rooms is used to check that a
// device's room exists when it is created or moved.
func NewRepository(store docstore.Store, rooms RoomLookup) *Repository {
	return &Repository{store: store, rooms: rooms, logger: noopLogger{}}
}

// SetLogger sets the logger for the repository.
func (r *Repository) SetLogger(logger Logger) {
	r.logger = logger
}

// Create stores a new device in an existing room and returns its id.
// Electrical values start at zero until telemetry arrives.
func (r *Repository) Create(ctx context.Context, d NewDevice) (string, error) {
	if err := ValidateNewDevice(d); err != nil {
		return "", err
	}
	if err := r.checkRoom(ctx, d.RoomID); err != nil {
		return "", fmt.Errorf("creating device: %w", err)
	}

	fields := docstore.Fields{
		FieldName:    strings.TrimSpace(d.Name),
		FieldType:    string(d.Type),
		FieldIsOn:    d.IsOn,
		FieldVoltage: 0.0,
		FieldCurrent: 0.0,
		FieldPower:   0.0,
		FieldRoomID:  d.RoomID,
	}
	if d.IPAddress != "" {
		fields[FieldIPAddress] = d.IPAddress
	}
	if d.SSID != "" {
		fields[FieldSSID] = d.SSID
	}

	rec, err := r.store.Create(ctx, docstore.CollectionDevices, fields)
	if err != nil {
		r.logger.Error("creating device failed", "room_id", d.RoomID, "error", err)
		return "", fmt.Errorf("creating device: %w", err)
	}
	r.logger.Debug("device created", "device_id", rec.ID, "room_id", d.RoomID, "type", d.Type)
	return rec.ID, nil
}

// Get returns a single device.
func (r *Repository) Get(ctx context.Context, id string) (*Device, error) {
	rec, err := r.store.Get(ctx, docstore.CollectionDevices, id)
	if err != nil {
		return nil, r.wrap("getting device", id, err)
	}
	d := deviceFromRecord(rec)
	return &d, nil
}

// List returns the room's devices, newest first.
func (r *Repository) List(ctx context.Context, roomID string) ([]Device, error) {
	recs, err := r.store.Query(ctx, docstore.CollectionDevices, byRoom(roomID))
	if err != nil {
		r.logger.Error("listing devices failed", "room_id", roomID, "error", err)
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devicesFromRecords(recs), nil
}

// ListAll returns every device, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Device, error) {
	recs, err := r.store.Query(ctx, docstore.CollectionDevices, docstore.Query{})
	if err != nil {
		r.logger.Error("listing all devices failed", "error", err)
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devicesFromRecords(recs), nil
}

// Update merges the provided fields into a device. Moving a device checks
// that the target room exists.
func (r *Repository) Update(ctx context.Context, id string, u Update) error {
	if err := ValidateUpdate(u); err != nil {
		return err
	}
	if u.RoomID != nil {
		if err := r.checkRoom(ctx, *u.RoomID); err != nil {
			return fmt.Errorf("updating device %s: %w", id, err)
		}
	}
	if err := r.store.Update(ctx, docstore.CollectionDevices, id, updateFields(u)); err != nil {
		return r.wrap("updating device", id, err)
	}
	return nil
}

// Toggle sets the power state. Only isOn and the update stamp are written.
func (r *Repository) Toggle(ctx context.Context, id string, isOn bool) error {
	if err := r.store.Update(ctx, docstore.CollectionDevices, id, docstore.Fields{FieldIsOn: isOn}); err != nil {
		return r.wrap("toggling device", id, err)
	}
	r.logger.Debug("device toggled", "device_id", id, "is_on", isOn)
	return nil
}

// RecordTelemetry stores the last-known electrical values without touching
// any other field.
func (r *Repository) RecordTelemetry(ctx context.Context, id string, voltage, current, power float64) error {
	return r.Update(ctx, id, Update{Voltage: &voltage, Current: &current, Power: &power})
}

// Delete removes a device. Its readings are kept. Deleting a missing device
// succeeds.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, docstore.CollectionDevices, id); err != nil {
		return r.wrap("deleting device", id, err)
	}
	return nil
}

// DeleteByRoom removes every device in a room and returns how many were
// removed. It implements location.DeviceDeleter.
func (r *Repository) DeleteByRoom(ctx context.Context, roomID string) (int, error) {
	n, err := r.store.DeleteWhere(ctx, docstore.CollectionDevices, byRoom(roomID))
	if err != nil {
		r.logger.Error("deleting room devices failed", "room_id", roomID, "error", err)
		return 0, fmt.Errorf("deleting devices of room %s: %w", roomID, err)
	}
	return n, nil
}

// SubscribeByParent streams the room's devices, newest first.
func (r *Repository) SubscribeByParent(ctx context.Context, roomID string, fn func([]Device, error)) (*docstore.Subscription, error) {
	return docstore.Subscribe(ctx, r.store, docstore.CollectionDevices, byRoom(roomID),
		func(recs []docstore.Record, err error) {
			if err != nil {
				r.logger.Error("devices subscription failed", "room_id", roomID, "error", err)
				fn(nil, fmt.Errorf("watching devices: %w", err))
				return
			}
			fn(devicesFromRecords(recs), nil)
		})
}

func (r *Repository) checkRoom(ctx context.Context, roomID string) error {
	if r.rooms == nil {
		return nil
	}
	if _, err := r.rooms.Get(ctx, roomID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrRoomNotFound, err)
		}
		return err
	}
	return nil
}

func (r *Repository) wrap(op, id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrDeviceNotFound, id, err)
	}
	if !errors.Is(err, docstore.ErrValidation) {
		r.logger.Error(op+" failed", "device_id", id, "error", err)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func updateFields(u Update) docstore.Fields {
	fields := docstore.Fields{}
	if u.Name != nil {
		fields[FieldName] = strings.TrimSpace(*u.Name)
	}
	if u.Type != nil {
		fields[FieldType] = string(*u.Type)
	}
	if u.IsOn != nil {
		fields[FieldIsOn] = *u.IsOn
	}
	if u.Voltage != nil {
		fields[FieldVoltage] = *u.Voltage
	}
	if u.Current != nil {
		fields[FieldCurrent] = *u.Current
	}
	if u.Power != nil {
		fields[FieldPower] = *u.Power
	}
	if u.RoomID != nil {
		fields[FieldRoomID] = *u.RoomID
	}
	// An empty string clears the optional network fields.
	if u.IPAddress != nil {
		fields[FieldIPAddress] = optional(*u.IPAddress)
	}
	if u.SSID != nil {
		fields[FieldSSID] = optional(*u.SSID)
	}
	return fields
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func byRoom(roomID string) docstore.Query {
	return docstore.Query{Field: FieldRoomID, Value: roomID}
}
