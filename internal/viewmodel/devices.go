package viewmodel

import (
	"context"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// DeviceStore is the part of the device repository DevicesModel uses.
type DeviceStore interface {
	Create(ctx context.Context, d device.NewDevice) (string, error)
	Update(ctx context.Context, id string, u device.Update) error
	Toggle(ctx context.Context, id string, isOn bool) error
	Delete(ctx context.Context, id string) error
	SubscribeByParent(ctx context.Context, roomID string, fn func([]device.Device, error)) (*docstore.Subscription, error)
}

// DevicesModel lists the devices of one room. Its parent is a room id.
type DevicesModel struct {
	*liveModel[device.Device]
	devices DeviceStore
}

// NewDevicesModel creates a model with no room selected.
func NewDevicesModel(devices DeviceStore) *DevicesModel {
	return &DevicesModel{
		liveModel: newLiveModel[device.Device](devices.SubscribeByParent),
		devices:   devices,
	}
}

// Add creates a device in the current room.
func (m *DevicesModel) Add(ctx context.Context, d device.NewDevice) (string, error) {
	roomID, _, open := m.current()
	if !open {
		return "", ErrClosed
	}
	if roomID == "" {
		return "", ErrNoParent
	}
	d.RoomID = roomID
	return m.devices.Create(ctx, d)
}

// Edit updates a device.
func (m *DevicesModel) Edit(ctx context.Context, id string, u device.Update) error {
	return m.devices.Update(ctx, id, u)
}

// Toggle switches a device on or off.
func (m *DevicesModel) Toggle(ctx context.Context, id string, isOn bool) error {
	return m.devices.Toggle(ctx, id, isOn)
}

// Remove deletes a device.
func (m *DevicesModel) Remove(ctx context.Context, id string) error {
	return m.devices.Delete(ctx, id)
}
