package telemetry

import (
	"context"
	"testing"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	"github.com/nerrad567/smarthome-core/internal/location"
	_ "github.com/nerrad567/smarthome-core/migrations" // registers embedded schema
)

type fixture struct {
	store   *docstore.SQLiteStore
	devices *device.Repository
	roomID  string
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	store := docstore.NewSQLiteStore(db.DB, nil)
	rooms := location.NewRoomRepository(store)
	devices := device.NewRepository(store, rooms)
	homes := location.NewHomeRepository(store, rooms)

	homeID, err := homes.Create(ctx, location.NewHome{Name: "Main House", UserID: "u1"})
	if err != nil {
		t.Fatalf("Create(home) error = %v", err)
	}
	roomID, err := rooms.Create(ctx, location.NewRoom{Name: "Kitchen", HomeID: homeID})
	if err != nil {
		t.Fatalf("Create(room) error = %v", err)
	}
	return &fixture{store: store, devices: devices, roomID: roomID}
}

func (f *fixture) createDevice(t *testing.T, name string, isOn bool) string {
	t.Helper()
	id, err := f.devices.Create(context.Background(), device.NewDevice{
		Name: name, Type: device.TypeLight, RoomID: f.roomID, IsOn: isOn,
	})
	if err != nil {
		t.Fatalf("Create(device) error = %v", err)
	}
	return id
}
