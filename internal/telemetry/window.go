package telemetry

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// Window is a chart range.
type Window string

// Chart windows.
const (
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// ParseWindow validates a window name. An empty name means daily.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case "":
		return WindowDaily, nil
	case WindowDaily, WindowWeekly, WindowMonthly:
		return w, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
}

// Points returns how many samples the window holds.
func (w Window) Points() int {
	switch w {
	case WindowWeekly:
		return 7
	case WindowMonthly:
		return 30
	default:
		return 24
	}
}

// Step returns the spacing between samples.
func (w Window) Step() time.Duration {
	if w == WindowDaily || w == "" {
		return time.Hour
	}
	return 24 * time.Hour
}

// Span returns the time covered by the window.
func (w Window) Span() time.Duration {
	return time.Duration(w.Points()) * w.Step()
}

// Backfill builds a chart series for deviceID from src: Points() samples
// spaced Step() apart and ending at end, oldest first. Readings are not
// stored.
func Backfill(ctx context.Context, src Source, deviceID string, w Window, end time.Time) ([]device.VoltageReading, error) {
	n, step := w.Points(), w.Step()
	readings := make([]device.VoltageReading, 0, n)
	for i := n - 1; i >= 0; i-- {
		at := end.Add(-time.Duration(i) * step)
		sample, err := src.Sample(ctx, deviceID, at)
		if err != nil {
			return nil, fmt.Errorf("backfilling %s at %s: %w", deviceID, at.Format(time.RFC3339), err)
		}
		sample.At = at
		readings = append(readings, sample.Reading(deviceID))
	}
	return readings, nil
}

// InWindow returns the readings that fall within the window ending at end,
// oldest first. readings may be in any order.
func InWindow(readings []device.VoltageReading, w Window, end time.Time) []device.VoltageReading {
	start := end.Add(-w.Span()).UnixMilli()
	stop := end.UnixMilli()

	out := make([]device.VoltageReading, 0, len(readings))
	for _, r := range readings {
		if r.Timestamp > start && r.Timestamp <= stop {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b device.VoltageReading) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out
}
