package telemetry

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"time"
)

// Synthetic ranges.
const (
	minVoltage   = 110.0
	voltageRange = 20.0
	minCurrent   = 0.5
	currentRange = 2.0
	minPower     = 50.0
	powerRange   = 200.0
)

// SyntheticSource generates plausible samples for demos and charts. The
// same seed, device and instant always give the same sample.
type SyntheticSource struct {
	seed uint64
}

// NewSyntheticSource creates a generator.
func NewSyntheticSource(seed uint64) *SyntheticSource {
	return &SyntheticSource{seed: seed}
}

// Sample returns a sample with voltage in [110,130) V, current in
// [0.5,2.5) A and power in [50,250) W.
func (s *SyntheticSource) Sample(ctx context.Context, deviceID string, at time.Time) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(deviceID))
	stream := h.Sum64() ^ uint64(at.UnixMilli()) //nolint:gosec // sign bit is irrelevant to mixing
	r := rand.New(rand.NewPCG(s.seed, stream))

	return Sample{
		Voltage: minVoltage + r.Float64()*voltageRange,
		Current: minCurrent + r.Float64()*currentRange,
		Power:   minPower + r.Float64()*powerRange,
		At:      at,
	}, nil
}
