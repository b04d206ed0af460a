package smarthome

import "errors"

// Domain errors.
var (
	ErrClosed         = errors.New("smarthome: client closed")
	ErrUnknownDriver  = errors.New("smarthome: unknown store driver")
	ErrRelayAttached  = errors.New("smarthome: relay already attached")
	ErrMissingConfig  = errors.New("smarthome: configuration required")
	ErrHomeNotVisible = errors.New("smarthome: home not visible to user")
)
