package replication

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
)

// outboxSize bounds changes waiting to be published. The feed calls the
// relay synchronously, so publishing happens on a separate goroutine.
const outboxSize = 256

// Transport is the part of the MQTT client the relay needs.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Logger defines the logging interface used by the Relay.
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

// Stats counts relay traffic.
type Stats struct {
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
	Echoes   uint64 `json:"echoes"`
	Dropped  uint64 `json:"dropped"`
}

// Relay forwards local feed changes to peers and injects peer changes into
// the local feed.
type Relay struct {
	feed      *docstore.Feed
	transport Transport
	origin    string
	logger    Logger

	mu      sync.Mutex
	started bool
	cancel  func()
	outbox  chan docstore.Change
	done    chan struct{}
	wg      sync.WaitGroup

	sent, received, echoes, dropped atomic.Uint64
}

// NewRelay creates a relay for feed. An empty origin is replaced with a
// random id.
func NewRelay(feed *docstore.Feed, transport Transport, origin string) *Relay {
	if origin == "" {
		origin = uuid.NewString()
	}
	return &Relay{
		feed:      feed,
		transport: transport,
		origin:    origin,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the relay.
func (r *Relay) SetLogger(logger Logger) {
	r.logger = logger
}

// Origin returns the id stamped on every change this relay sends.
func (r *Relay) Origin() string {
	return r.origin
}

// Start subscribes to peer changes and begins forwarding local ones.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}

	if err := r.transport.Subscribe(mqtt.Topics{}.AllChanges(), r.transport.QoS(), r.handleRemote); err != nil {
		return fmt.Errorf("subscribing to changes: %w", err)
	}

	r.outbox = make(chan docstore.Change, outboxSize)
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.publishLoop(r.outbox, r.done)
	r.cancel = r.feed.Watch("", r.enqueue)
	r.started = true

	r.logger.Info("change relay started", "origin", r.origin)
	return nil
}

// Stop stops forwarding, unsubscribes and waits for in-flight publishes.
// Changes still queued are discarded. Stop is idempotent.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.cancel()
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	if err := r.transport.Unsubscribe(mqtt.Topics{}.AllChanges()); err != nil {
		r.logger.Warn("unsubscribing from changes failed", "error", err)
	}
	r.logger.Info("change relay stopped", "origin", r.origin)
}

// Stats returns traffic counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Sent:     r.sent.Load(),
		Received: r.received.Load(),
		Echoes:   r.echoes.Load(),
		Dropped:  r.dropped.Load(),
	}
}

// enqueue runs on the writer's goroutine and must not block.
func (r *Relay) enqueue(c docstore.Change) {
	if c.Origin != "" {
		return
	}
	c.Origin = r.origin

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	select {
	case r.outbox <- c:
	default:
		r.dropped.Add(1)
		r.logger.Warn("change relay outbox full, dropping change",
			"collection", c.Collection, "id", c.ID)
	}
}

func (r *Relay) publishLoop(outbox <-chan docstore.Change, done <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-done:
			return
		case c := <-outbox:
			r.publish(c)
		}
	}
}

func (r *Relay) publish(c docstore.Change) {
	payload, err := json.Marshal(c)
	if err != nil {
		r.logger.Error("encoding change failed", "collection", c.Collection, "id", c.ID, "error", err)
		return
	}
	topic := mqtt.Topics{}.Changes(c.Collection)
	if err := r.transport.Publish(topic, payload, r.transport.QoS(), false); err != nil {
		r.dropped.Add(1)
		r.logger.Warn("publishing change failed", "topic", topic, "error", err)
		return
	}
	r.sent.Add(1)
	r.logger.Debug("change relayed", "topic", topic, "op", c.Op)
}

func (r *Relay) handleRemote(topic string, payload []byte) error {
	collection, ok := mqtt.Topics{}.ParseChanges(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidChange, topic)
	}

	c, err := decodeChange(payload)
	if err != nil {
		return err
	}
	if c.Collection != collection {
		return fmt.Errorf("%w: collection %q published on %s", ErrInvalidChange, c.Collection, topic)
	}
	if c.Origin == r.origin {
		r.echoes.Add(1)
		return nil
	}

	r.received.Add(1)
	r.feed.Publish(c)
	return nil
}

func decodeChange(payload []byte) (docstore.Change, error) {
	var c docstore.Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return docstore.Change{}, fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}
	switch {
	case c.Collection == "" || c.ID == "":
		return docstore.Change{}, fmt.Errorf("%w: missing collection or id", ErrInvalidChange)
	case c.Origin == "":
		return docstore.Change{}, fmt.Errorf("%w: missing origin", ErrInvalidChange)
	}
	switch c.Op {
	case docstore.OpCreate, docstore.OpUpdate, docstore.OpDelete:
	default:
		return docstore.Change{}, fmt.Errorf("%w: unknown op %q", ErrInvalidChange, c.Op)
	}
	return c, nil
}
