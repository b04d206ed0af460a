package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// Logger defines the logging interface used by the Sampler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Devices is the part of the device repository the Sampler needs.
type Devices interface {
	ListAll(ctx context.Context) ([]device.Device, error)
	AppendReading(ctx context.Context, deviceID string, reading device.VoltageReading) (string, error)
	RecordTelemetry(ctx context.Context, id string, voltage, current, power float64) error
}

// Mirror receives a copy of every recorded sample. influxdb.Client
// satisfies it.
type Mirror interface {
	WriteReading(deviceID string, voltage, current, power float64, at time.Time)
}

// Sampler records a reading for every powered-on device on each tick.
type Sampler struct {
	devices  Devices
	source   Source
	interval time.Duration
	mirror   Mirror
	logger   Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// NewSampler creates a sampler. interval must be positive for Run.
func NewSampler(devices Devices, source Source, interval time.Duration) *Sampler {
	return &Sampler{
		devices:  devices,
		source:   source,
		interval: interval,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the sampler.
func (s *Sampler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMirror sets where samples are copied to. nil disables mirroring.
func (s *Sampler) SetMirror(m Mirror) {
	s.mirror = m
}

// Run samples on every tick until ctx is cancelled. It returns ctx.Err().
// Running a sampler twice concurrently is a no-op for the second call.
func (s *Sampler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("telemetry sampler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("telemetry sampler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SampleOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("telemetry sampling failed", "error", err)
			}
		}
	}
}

// SampleOnce records one reading for every powered-on device and returns
// how many were recorded. Per-device failures are logged and skipped; only
// a failure to list devices is returned.
func (s *Sampler) SampleOnce(ctx context.Context) (int, error) {
	devices, err := s.devices.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	at := s.now()
	recorded := 0
	for _, d := range devices {
		if !d.IsOn {
			continue
		}
		if err := s.sampleDevice(ctx, d.ID, at); err != nil {
			if errors.Is(err, ErrNoSample) {
				s.logger.Debug("no telemetry for device", "device_id", d.ID)
			} else {
				s.logger.Warn("recording telemetry failed", "device_id", d.ID, "error", err)
			}
			continue
		}
		recorded++
	}
	return recorded, nil
}

func (s *Sampler) sampleDevice(ctx context.Context, deviceID string, at time.Time) error {
	sample, err := s.source.Sample(ctx, deviceID, at)
	if err != nil {
		return err
	}
	if _, err := s.devices.AppendReading(ctx, deviceID, sample.Reading(deviceID)); err != nil {
		return err
	}
	if err := s.devices.RecordTelemetry(ctx, deviceID, sample.Voltage, sample.Current, sample.Power); err != nil {
		return err
	}
	if s.mirror != nil {
		s.mirror.WriteReading(deviceID, sample.Voltage, sample.Current, sample.Power, sample.At)
	}
	return nil
}
