package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReading     = "voltage_readings"
	MeasurementDeviceState = "device_state"
)

// WriteReading records one electrical sample for a device.
//
// Example:
//
//	client.WriteReading("dev-1", 121.4, 0.8, 97.1, time.Now())
func (c *Client) WriteReading(deviceID string, voltage, current, power float64, at time.Time) {
	c.WritePoint(MeasurementReading,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"voltage": voltage,
			"current": current,
			"power":   power,
		},
		at,
	)
}

// WriteDeviceState records an on/off transition so dashboards can show duty
// cycles next to power draw.
func (c *Client) WriteDeviceState(deviceID string, isOn bool, at time.Time) {
	c.WritePoint(MeasurementDeviceState,
		map[string]string{"device_id": deviceID},
		map[string]any{"is_on": isOn},
		at,
	)
}

// WritePoint writes a point with explicit tags, fields and timestamp. It is
// a no-op when the client is closed.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
