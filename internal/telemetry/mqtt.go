package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
)

// Subscriber is the part of the MQTT client MQTTSource needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Message is the JSON a device publishes on its telemetry topic. Timestamp
// is Unix epoch milliseconds and defaults to the arrival time. Power
// defaults to voltage × current.
type Message struct {
	Voltage   float64  `json:"voltage"`
	Current   float64  `json:"current"`
	Power     *float64 `json:"power,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// MQTTSource keeps the latest sample each device published.
type MQTTSource struct {
	sub    Subscriber
	maxAge time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	latest map[string]Sample
}

// NewMQTTSource creates a source that treats samples older than maxAge as
// missing. A zero maxAge keeps samples forever.
func NewMQTTSource(sub Subscriber, maxAge time.Duration) *MQTTSource {
	return &MQTTSource{
		sub:    sub,
		maxAge: maxAge,
		now:    time.Now,
		latest: make(map[string]Sample),
	}
}

// Start subscribes to every device's telemetry topic.
func (s *MQTTSource) Start() error {
	if err := s.sub.Subscribe(mqtt.Topics{}.AllTelemetry(), 1, s.handle); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	return nil
}

// Stop unsubscribes. Samples already received stay available.
func (s *MQTTSource) Stop() error {
	if err := s.sub.Unsubscribe(mqtt.Topics{}.AllTelemetry()); err != nil {
		return fmt.Errorf("unsubscribing from telemetry: %w", err)
	}
	return nil
}

// Sample returns the latest sample from deviceID, stamped with its arrival
// or publish time.
func (s *MQTTSource) Sample(ctx context.Context, deviceID string, _ time.Time) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	s.mu.RLock()
	sample, ok := s.latest[deviceID]
	s.mu.RUnlock()

	if !ok || (s.maxAge > 0 && s.now().Sub(sample.At) > s.maxAge) {
		return Sample{}, fmt.Errorf("%w: %s", ErrNoSample, deviceID)
	}
	return sample, nil
}

func (s *MQTTSource) handle(topic string, payload []byte) error {
	deviceID, ok := mqtt.Topics{}.ParseTelemetry(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidPayload, topic)
	}
	sample, err := decodeMessage(payload, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.latest[deviceID] = sample
	s.mu.Unlock()
	return nil
}

func decodeMessage(payload []byte, received time.Time) (Sample, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	sample := Sample{Voltage: msg.Voltage, Current: msg.Current, At: received}
	if msg.Power != nil {
		sample.Power = *msg.Power
	} else {
		sample.Power = msg.Voltage * msg.Current
	}
	if msg.Timestamp > 0 {
		sample.At = time.UnixMilli(msg.Timestamp)
	}

	for _, v := range []float64{sample.Voltage, sample.Current, sample.Power} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, fmt.Errorf("%w: measurement out of range", ErrInvalidPayload)
		}
	}
	return sample, nil
}
