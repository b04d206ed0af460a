package telemetry

import "errors"

var (
	// ErrNoSample is returned by a Source that has nothing for a device.
	ErrNoSample = errors.New("telemetry: no sample")

	// ErrUnknownWindow is returned for an unrecognised chart window name.
	ErrUnknownWindow = errors.New("telemetry: unknown window")

	// ErrInvalidPayload is returned for a telemetry message that cannot be decoded.
	ErrInvalidPayload = errors.New("telemetry: invalid payload")
)
