package mqtt

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
)

// Broker is an in-process MQTT broker for deployments without an external
// one. It accepts every client.
type Broker struct {
	mu      sync.Mutex
	server  *mochi.Server
	address string
}

// StartBroker starts an embedded broker listening on cfg.Address.
//
// Parameters:
//   - cfg: Embedded broker settings
//   - logger: Destination for broker logs; nil discards them
//
// Returns:
//   - *Broker: Running broker; call Close to stop it
//   - error: ErrBrokerFailed if the listener cannot be opened
func StartBroker(cfg config.MQTTEmbeddedConfig, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	server := mochi.New(&mochi.Options{
		Logger: logger,
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("%w: adding auth hook: %w", ErrBrokerFailed, err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Address: cfg.Address,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("%w: listening on %s: %w", ErrBrokerFailed, cfg.Address, err)
	}
	if err := server.Serve(); err != nil {
		server.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("%w: serving: %w", ErrBrokerFailed, err)
	}

	return &Broker{server: server, address: cfg.Address}, nil
}

// Address returns the listen address.
func (b *Broker) Address() string {
	return b.address
}

// ClientConfig returns base with its broker host and port pointed at this
// broker, without TLS or credentials.
func (b *Broker) ClientConfig(base config.MQTTConfig) (config.MQTTConfig, error) {
	host, portStr, err := net.SplitHostPort(b.address)
	if err != nil {
		return base, fmt.Errorf("parsing broker address %q: %w", b.address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return base, fmt.Errorf("parsing broker port %q: %w", portStr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	cfg := base
	cfg.Broker.Host = host
	cfg.Broker.Port = port
	cfg.Broker.TLS = false
	cfg.Auth = config.MQTTAuthConfig{}
	return cfg, nil
}

// Clients returns the number of connected clients, or 0 after Close.
func (b *Broker) Clients() int {
	b.mu.Lock()
	server := b.server
	b.mu.Unlock()
	if server == nil {
		return 0
	}
	return server.Clients.Len()
}

// Close stops the broker and disconnects every client. It is safe to call
// more than once.
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	server := b.server
	b.server = nil
	b.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Close(); err != nil {
		return fmt.Errorf("closing embedded broker: %w", err)
	}
	return nil
}
