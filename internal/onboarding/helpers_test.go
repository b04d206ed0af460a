package onboarding

import (
	"context"
	"testing"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	"github.com/nerrad567/smarthome-core/internal/location"
	_ "github.com/nerrad567/smarthome-core/migrations" // registers embedded schema
)

// setupDevices returns a device repository and the id of an empty room.
func setupDevices(t *testing.T) (*device.Repository, string) {
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
	homes := location.NewHomeRepository(store, rooms)
	homeID, err := homes.Create(ctx, location.NewHome{Name: "Main House", UserID: "u1"})
	if err != nil {
		t.Fatalf("Create(home) error = %v", err)
	}
	roomID, err := rooms.Create(ctx, location.NewRoom{Name: "Kitchen", HomeID: homeID})
	if err != nil {
		t.Fatalf("Create(room) error = %v", err)
	}
	return device.NewRepository(store, rooms), roomID
}

// resolverFunc adapts a function to Resolver.
type resolverFunc func(ctx context.Context, ssid string) (string, error)

func (f resolverFunc) Resolve(ctx context.Context, ssid string) (string, error) {
	return f(ctx, ssid)
}
