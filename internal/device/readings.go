package device

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

const (
	// DefaultReadingsLimit is used when a caller passes a non-positive limit.
	DefaultReadingsLimit = 100

	// MaxReadingsLimit caps a single Readings query.
	MaxReadingsLimit = 1000
)

// AppendReading stores a new reading for an existing device and returns its
// id. A zero Timestamp is set to the current time. Readings are never
// updated.
func (r *Repository) AppendReading(ctx context.Context, deviceID string, reading VoltageReading) (string, error) {
	if err := ValidateReading(reading); err != nil {
		return "", err
	}
	if _, err := r.store.Get(ctx, docstore.CollectionDevices, deviceID); err != nil {
		return "", r.wrap("appending reading", deviceID, err)
	}
	if reading.Timestamp == 0 {
		reading.Timestamp = time.Now().UnixMilli()
	}

	rec, err := r.store.Create(ctx, docstore.CollectionVoltageReadings, docstore.Fields{
		FieldDeviceID:  deviceID,
		FieldTimestamp: reading.Timestamp,
		FieldVoltage:   reading.Voltage,
		FieldCurrent:   reading.Current,
		FieldPower:     reading.Power,
	})
	if err != nil {
		r.logger.Error("appending reading failed", "device_id", deviceID, "error", err)
		return "", fmt.Errorf("appending reading: %w", err)
	}
	return rec.ID, nil
}

// Readings returns up to limit readings for the device, most recent first.
// A non-positive limit means DefaultReadingsLimit; larger limits are clamped
// to MaxReadingsLimit.
func (r *Repository) Readings(ctx context.Context, deviceID string, limit int) ([]VoltageReading, error) {
	recs, err := r.store.Query(ctx, docstore.CollectionVoltageReadings, docstore.Query{
		Field:   FieldDeviceID,
		Value:   deviceID,
		OrderBy: FieldTimestamp,
		Limit:   clampLimit(limit),
	})
	if err != nil {
		r.logger.Error("reading history failed", "device_id", deviceID, "error", err)
		return nil, fmt.Errorf("reading history: %w", err)
	}

	readings := make([]VoltageReading, len(recs))
	for i, rec := range recs {
		readings[i] = readingFromRecord(rec)
	}
	return readings, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultReadingsLimit
	case limit > MaxReadingsLimit:
		return MaxReadingsLimit
	default:
		return limit
	}
}
