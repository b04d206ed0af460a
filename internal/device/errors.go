package device

import "errors"

// Domain errors for the device package.
//
// Validation errors also match docstore.ErrValidation and not-found errors
// also match docstore.ErrNotFound:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrRoomNotFound is returned when a referenced room does not exist.
	ErrRoomNotFound = errors.New("device: room not found")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidDeviceType is returned when a device type is not recognised.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrInvalidAddress is returned when an IP address does not parse.
	ErrInvalidAddress = errors.New("device: invalid ip address")

	// ErrInvalidSSID is returned when a network name is too long.
	ErrInvalidSSID = errors.New("device: invalid ssid")

	// ErrInvalidReading is returned for negative or non-finite measurements.
	ErrInvalidReading = errors.New("device: invalid reading")

	// ErrMissingRoom is returned when a device has no room reference.
	ErrMissingRoom = errors.New("device: room is required")
)
