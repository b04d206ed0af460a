package location

import "errors"

var (
	// ErrHomeNotFound is returned when a home ID does not exist.
	ErrHomeNotFound = errors.New("home not found")

	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrInvalidName is returned when a home or room name is empty or too long.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidAddress is returned when a home address is too long.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrMissingParent is returned when a required parent reference is empty.
	ErrMissingParent = errors.New("missing parent reference")
)
