package onboarding

import "errors"

// Domain errors for the onboarding package.
var (
	// ErrNetworkNotFound is returned when an SSID was not seen by the last scan.
	ErrNetworkNotFound = errors.New("onboarding: network not found")

	// ErrNotADevice is returned when the selected SSID lacks the device prefix.
	ErrNotADevice = errors.New("onboarding: network is not a device")

	// ErrPasswordRequired is returned when connecting without a password.
	ErrPasswordRequired = errors.New("onboarding: password required")

	// ErrConnectFailed is returned when joining the device network fails.
	ErrConnectFailed = errors.New("onboarding: connect failed")

	// ErrWrongStep is returned when a step is attempted out of order.
	ErrWrongStep = errors.New("onboarding: wrong step")

	// ErrDeviceNotFound is returned when a resolver cannot find the device.
	ErrDeviceNotFound = errors.New("onboarding: device address not found")

	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("onboarding: session not found")
)
