package telemetry

import "github.com/nerrad567/smarthome-core/internal/device"

// Summary aggregates a series of readings for chart headers.
type Summary struct {
	Count      int     `json:"count"`
	AvgVoltage float64 `json:"avgVoltage"`
	AvgCurrent float64 `json:"avgCurrent"`
	AvgPower   float64 `json:"avgPower"`
	PeakPower  float64 `json:"peakPower"`
}

// Summarize computes averages and peak power. An empty series gives a zero
// Summary.
func Summarize(readings []device.VoltageReading) Summary {
	if len(readings) == 0 {
		return Summary{}
	}

	var s Summary
	for _, r := range readings {
		s.AvgVoltage += r.Voltage
		s.AvgCurrent += r.Current
		s.AvgPower += r.Power
		if r.Power > s.PeakPower {
			s.PeakPower = r.Power
		}
	}
	n := float64(len(readings))
	s.Count = len(readings)
	s.AvgVoltage /= n
	s.AvgCurrent /= n
	s.AvgPower /= n
	return s
}
