package smarthome

import (
	"context"
	"fmt"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/location"
)

// HomeTree is a home with its rooms and each room's devices.
type HomeTree struct {
	location.Home
	Rooms []RoomTree `json:"rooms"`
}

// RoomTree is a room with its devices.
type RoomTree struct {
	location.Room
	Devices []device.Device `json:"devices"`
}

// HomeTree loads homeID with every room and device under it. Lists are in
// the repositories' order, newest first.
func (c *Client) HomeTree(ctx context.Context, homeID string) (*HomeTree, error) {
	home, err := c.Homes.Get(ctx, homeID)
	if err != nil {
		return nil, err
	}
	rooms, err := c.Rooms.List(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("listing rooms of %s: %w", homeID, err)
	}

	tree := &HomeTree{Home: *home, Rooms: make([]RoomTree, 0, len(rooms))}
	for _, r := range rooms {
		devices, err := c.Devices.List(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("listing devices of %s: %w", r.ID, err)
		}
		if devices == nil {
			devices = []device.Device{}
		}
		tree.Rooms = append(tree.Rooms, RoomTree{Room: r, Devices: devices})
	}
	return tree, nil
}

// OwnedHome returns homeID if userID owns it. Homes of other users are
// reported as ErrHomeNotVisible.
func (c *Client) OwnedHome(ctx context.Context, userID, homeID string) (*location.Home, error) {
	home, err := c.Homes.Get(ctx, homeID)
	if err != nil {
		return nil, err
	}
	if home.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrHomeNotVisible, homeID)
	}
	return home, nil
}

// OwnedRoom returns roomID if its home belongs to userID.
func (c *Client) OwnedRoom(ctx context.Context, userID, roomID string) (*location.Room, error) {
	room, err := c.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if _, err := c.OwnedHome(ctx, userID, room.HomeID); err != nil {
		return nil, err
	}
	return room, nil
}

// OwnedDevice returns deviceID if its room's home belongs to userID.
func (c *Client) OwnedDevice(ctx context.Context, userID, deviceID string) (*device.Device, error) {
	d, err := c.Devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if _, err := c.OwnedRoom(ctx, userID, d.RoomID); err != nil {
		return nil, err
	}
	return d, nil
}
