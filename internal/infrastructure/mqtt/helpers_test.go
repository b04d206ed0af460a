package mqtt

import (
	"net"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
)

const waitTimeout = 5 * time.Second

// freeAddress returns a loopback address with a port nothing listens on.
func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// startTestBroker starts an embedded broker on a free loopback port.
func startTestBroker(t *testing.T) *Broker {
	t.Helper()
	b, err := StartBroker(config.MQTTEmbeddedConfig{Enabled: true, Address: freeAddress(t)}, nil)
	if err != nil {
		t.Fatalf("StartBroker() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func testConfig(t *testing.T, b *Broker, clientID string) config.MQTTConfig {
	t.Helper()
	cfg, err := b.ClientConfig(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{ClientID: clientID},
		QoS:    1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	})
	if err != nil {
		t.Fatalf("ClientConfig() error = %v", err)
	}
	return cfg
}

// connectTestClient connects a client to b and closes it on cleanup.
func connectTestClient(t *testing.T, b *Broker, clientID string) *Client {
	t.Helper()
	c, err := Connect(testConfig(t, b, clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
