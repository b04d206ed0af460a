package viewmodel

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/location"
	"github.com/nerrad567/smarthome-core/internal/smarthome"
	_ "github.com/nerrad567/smarthome-core/migrations" // registers embedded schema
)

const waitTimeout = 5 * time.Second

func openClient(t *testing.T) *smarthome.Client {
	t.Helper()
	cfg := &config.Config{
		Store:    config.StoreConfig{Driver: config.StoreDriverSQLite},
		Database: config.DatabaseConfig{Path: database.MemoryPath},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: "test-secret-key-at-least-32-chars!", AccessTokenTTL: 60},
		},
	}
	c, err := smarthome.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("smarthome.Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func createHome(t *testing.T, c *smarthome.Client, name, userID string) string {
	t.Helper()
	id, err := c.Homes.Create(context.Background(), location.NewHome{Name: name, Address: "1 Main St", UserID: userID})
	if err != nil {
		t.Fatalf("Create(home) error = %v", err)
	}
	return id
}

func createRoom(t *testing.T, c *smarthome.Client, name, homeID string) string {
	t.Helper()
	id, err := c.Rooms.Create(context.Background(), location.NewRoom{Name: name, HomeID: homeID})
	if err != nil {
		t.Fatalf("Create(room) error = %v", err)
	}
	return id
}

func createDevice(t *testing.T, c *smarthome.Client, name, roomID string) string {
	t.Helper()
	id, err := c.Devices.Create(context.Background(), device.NewDevice{Name: name, Type: device.TypeLight, RoomID: roomID})
	if err != nil {
		t.Fatalf("Create(device) error = %v", err)
	}
	return id
}

// recorder buffers every state an observer sees.
type recorder[T any] struct {
	ch     chan State[T]
	cancel func()
}

func record[T any](t *testing.T, observe func(func(State[T])) func()) *recorder[T] {
	t.Helper()
	r := &recorder[T]{ch: make(chan State[T], 256)}
	r.cancel = observe(func(s State[T]) { r.ch <- s })
	t.Cleanup(r.cancel)
	return r
}

// waitFor reads states until one satisfies ok.
func (r *recorder[T]) waitFor(t *testing.T, what string, ok func(State[T]) bool) State[T] {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case s := <-r.ch:
			if ok(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

// expectQuiet fails if a state arrives within d.
func (r *recorder[T]) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case s := <-r.ch:
		t.Fatalf("unexpected state %+v", s)
	case <-time.After(d):
	}
}

func loaded[T any](n int) func(State[T]) bool {
	return func(s State[T]) bool { return !s.Loading && s.Err == nil && len(s.Items) == n }
}

func (m *liveModel[T]) hasSubscription() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub != nil
}
