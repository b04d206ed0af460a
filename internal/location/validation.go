package location

import (
	"fmt"
	"strings"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// Validation constants.
const (
	maxNameLength    = 100
	maxAddressLength = 200
)

// ValidateName checks if a home or room name is valid.
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

// ValidateAddress checks a free-form street address. Empty is allowed.
func ValidateAddress(address string) error {
	if len(address) > maxAddressLength {
		return invalid(ErrInvalidAddress, fmt.Sprintf("address exceeds %d characters", maxAddressLength))
	}
	return nil
}

// ValidateNewHome validates a home before it is created.
func ValidateNewHome(h NewHome) error {
	if err := ValidateName(h.Name); err != nil {
		return err
	}
	if err := ValidateAddress(h.Address); err != nil {
		return err
	}
	if strings.TrimSpace(h.UserID) == "" {
		return invalid(ErrMissingParent, "userId is required")
	}
	return nil
}

// ValidateHomeUpdate validates the fields present in an update.
func ValidateHomeUpdate(u HomeUpdate) error {
	if u.Name != nil {
		if err := ValidateName(*u.Name); err != nil {
			return err
		}
	}
	if u.Address != nil {
		return ValidateAddress(*u.Address)
	}
	return nil
}

// ValidateNewRoom validates a room before it is created.
func ValidateNewRoom(r NewRoom) error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if strings.TrimSpace(r.HomeID) == "" {
		return invalid(ErrMissingParent, "homeId is required")
	}
	return nil
}

// ValidateRoomUpdate validates the fields present in an update.
func ValidateRoomUpdate(u RoomUpdate) error {
	if u.Name != nil {
		return ValidateName(*u.Name)
	}
	return nil
}

// invalid classifies a validation failure under both the package sentinel
// and docstore.ErrValidation.
func invalid(kind error, msg string) error {
	return fmt.Errorf("%w: %w: %s", docstore.ErrValidation, kind, msg)
}
