package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// Sample is one electrical measurement.
type Sample struct {
	Voltage float64   `json:"voltage"`
	Current float64   `json:"current"`
	Power   float64   `json:"power"`
	At      time.Time `json:"-"`
}

// Reading converts the sample to a voltage reading for deviceID.
func (s Sample) Reading(deviceID string) device.VoltageReading {
	return device.VoltageReading{
		DeviceID:  deviceID,
		Timestamp: s.At.UnixMilli(),
		Voltage:   s.Voltage,
		Current:   s.Current,
		Power:     s.Power,
	}
}

// Source yields samples for devices. Implementations return ErrNoSample when
// they have nothing for the device.
type Source interface {
	Sample(ctx context.Context, deviceID string, at time.Time) (Sample, error)
}
