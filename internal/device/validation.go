package device

import (
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSSIDLength = 32 // IEEE 802.11 limit in bytes
)

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid(ErrInvalidName, "name cannot be empty")
	}
	if len(name) > maxNameLength {
		return invalid(ErrInvalidName, fmt.Sprintf("name exceeds %d characters", maxNameLength))
	}
	return nil
}

// ValidateType checks the device type.
func ValidateType(t Type) error {
	if !t.Valid() {
		return invalid(ErrInvalidDeviceType, fmt.Sprintf("unknown type %q", t))
	}
	return nil
}

// ValidateIPAddress accepts empty or a literal IPv4/IPv6 address.
func ValidateIPAddress(addr string) error {
	if addr != "" && net.ParseIP(addr) == nil {
		return invalid(ErrInvalidAddress, fmt.Sprintf("%q is not an IP address", addr))
	}
	return nil
}

// ValidateSSID accepts empty or a network name up to 32 bytes.
func ValidateSSID(ssid string) error {
	if len(ssid) > maxSSIDLength {
		return invalid(ErrInvalidSSID, fmt.Sprintf("ssid exceeds %d bytes", maxSSIDLength))
	}
	return nil
}

// ValidateNewDevice validates a device before it is created.
func ValidateNewDevice(d NewDevice) error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateType(d.Type); err != nil {
		return err
	}
	if strings.TrimSpace(d.RoomID) == "" {
		return invalid(ErrMissingRoom, "roomId is required")
	}
	if err := ValidateIPAddress(d.IPAddress); err != nil {
		return err
	}
	return ValidateSSID(d.SSID)
}

// ValidateUpdate validates the fields present in an update.
func ValidateUpdate(u Update) error {
	if u.Name != nil {
		if err := ValidateName(*u.Name); err != nil {
			return err
		}
	}
	if u.Type != nil {
		if err := ValidateType(*u.Type); err != nil {
			return err
		}
	}
	if u.RoomID != nil && strings.TrimSpace(*u.RoomID) == "" {
		return invalid(ErrMissingRoom, "roomId cannot be cleared")
	}
	if u.IPAddress != nil {
		if err := ValidateIPAddress(*u.IPAddress); err != nil {
			return err
		}
	}
	if u.SSID != nil {
		if err := ValidateSSID(*u.SSID); err != nil {
			return err
		}
	}
	for name, v := range map[string]*float64{"voltage": u.Voltage, "current": u.Current, "power": u.Power} {
		if v != nil {
			if err := validateMeasurement(name, *v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateReading checks a reading's measurements.
func ValidateReading(r VoltageReading) error {
	if err := validateMeasurement("voltage", r.Voltage); err != nil {
		return err
	}
	if err := validateMeasurement("current", r.Current); err != nil {
		return err
	}
	if err := validateMeasurement("power", r.Power); err != nil {
		return err
	}
	if r.Timestamp < 0 {
		return invalid(ErrInvalidReading, "timestamp is negative")
	}
	return nil
}

func validateMeasurement(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return invalid(ErrInvalidReading, fmt.Sprintf("%s must be a non-negative number", name))
	}
	return nil
}

// invalid classifies a validation failure under both the package sentinel
// and docstore.ErrValidation.
func invalid(kind error, msg string) error {
	return fmt.Errorf("%w: %w: %s", docstore.ErrValidation, kind, msg)
}
