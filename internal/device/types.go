package device

import (
	"time"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// Document field names.
const (
	FieldName      = "name"
	FieldType      = "type"
	FieldIsOn      = "isOn"
	FieldVoltage   = "voltage"
	FieldCurrent   = "current"
	FieldPower     = "power"
	FieldIPAddress = "ipAddress"
	FieldSSID      = "ssid"
	FieldRoomID    = "roomId"

	FieldDeviceID  = "deviceId"
	FieldTimestamp = "timestamp"
)

// Type classifies what a device is.
type Type string

// Device types.
const (
	TypeLight  Type = "light"
	TypeFan    Type = "fan"
	TypeSwitch Type = "switch"
)

// AllTypes returns every supported device type.
func AllTypes() []Type {
	return []Type{TypeLight, TypeFan, TypeSwitch}
}

// Valid reports whether t is a supported type.
func (t Type) Valid() bool {
	switch t {
	case TypeLight, TypeFan, TypeSwitch:
		return true
	default:
		return false
	}
}

// Device is a powered appliance in a room.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      Type      `json:"type"`
	IsOn      bool      `json:"isOn"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	IPAddress string    `json:"ipAddress,omitempty"`
	SSID      string    `json:"ssid,omitempty"`
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"lastUpdated"`
}

// NewDevice is the input for creating a device.
type NewDevice struct {
	Name      string `json:"name"`
	Type      Type   `json:"type"`
	RoomID    string `json:"roomId"`
	IsOn      bool   `json:"isOn"`
	IPAddress string `json:"ipAddress,omitempty"`
	SSID      string `json:"ssid,omitempty"`
}

// Update holds the fields to change on a device. Nil fields are left alone.
type Update struct {
	Name      *string  `json:"name,omitempty"`
	Type      *Type    `json:"type,omitempty"`
	IsOn      *bool    `json:"isOn,omitempty"`
	Voltage   *float64 `json:"voltage,omitempty"`
	Current   *float64 `json:"current,omitempty"`
	Power     *float64 `json:"power,omitempty"`
	IPAddress *string  `json:"ipAddress,omitempty"`
	SSID      *string  `json:"ssid,omitempty"`
	RoomID    *string  `json:"roomId,omitempty"`
}

// VoltageReading is one electrical sample for a device.
type VoltageReading struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`
	// Timestamp is Unix epoch milliseconds.
	Timestamp int64   `json:"timestamp"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Power     float64 `json:"power"`
}

// Time returns the reading timestamp as a time.Time.
func (r VoltageReading) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

func deviceFromRecord(rec docstore.Record) Device {
	f := rec.Fields
	return Device{
		ID:        rec.ID,
		Name:      f.String(FieldName),
		Type:      Type(f.String(FieldType)),
		IsOn:      f.Bool(FieldIsOn),
		Voltage:   f.Float(FieldVoltage),
		Current:   f.Float(FieldCurrent),
		Power:     f.Float(FieldPower),
		IPAddress: f.String(FieldIPAddress),
		SSID:      f.String(FieldSSID),
		RoomID:    f.String(FieldRoomID),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func devicesFromRecords(recs []docstore.Record) []Device {
	devices := make([]Device, len(recs))
	for i, rec := range recs {
		devices[i] = deviceFromRecord(rec)
	}
	return devices
}

func readingFromRecord(rec docstore.Record) VoltageReading {
	f := rec.Fields
	return VoltageReading{
		ID:        rec.ID,
		DeviceID:  f.String(FieldDeviceID),
		Timestamp: f.Int64(FieldTimestamp),
		Voltage:   f.Float(FieldVoltage),
		Current:   f.Float(FieldCurrent),
		Power:     f.Float(FieldPower),
	}
}
