package docstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newMongoTestStore connects to the server named by SMARTHOME_TEST_MONGODB_URI
// using a throwaway database. Tests skip when the variable is unset.
func newMongoTestStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("SMARTHOME_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("SMARTHOME_TEST_MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := ConnectMongo(ctx, MongoConfig{URI: uri, Database: "smarthome_test_" + uuid.NewString()[:8]}, nil)
	if err != nil {
		t.Fatalf("ConnectMongo() error = %v", err)
	}
	t.Cleanup(func() {
		s.db.Drop(context.Background()) //nolint:errcheck // best effort test cleanup
		s.Close()
	})
	return s
}

func TestConnectMongo_RequiresSettings(t *testing.T) {
	_, err := ConnectMongo(context.Background(), MongoConfig{}, nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ConnectMongo() error = %v, want ErrValidation", err)
	}
}

func TestRecordFromBSON(t *testing.T) {
	doc := map[string]any{
		mongoKeyID:      "abc",
		mongoKeySeq:     int64(2000),
		mongoKeyRev:     int64(3000),
		mongoKeyCreated: time.Now(),
		"name":          "Lamp",
		"isOn":          true,
	}
	rec := recordFromBSON(doc)

	if rec.ID != "abc" {
		t.Errorf("ID = %q", rec.ID)
	}
	if rec.CreatedAt.UnixNano() != 2000 || rec.UpdatedAt.UnixNano() != 3000 {
		t.Errorf("stamps = %v, %v", rec.CreatedAt, rec.UpdatedAt)
	}
	if rec.Fields.Has(mongoKeyCreated) || rec.Fields.Has(mongoKeyID) {
		t.Errorf("bookkeeping leaked into fields: %v", rec.Fields)
	}
	if rec.Fields.String("name") != "Lamp" || !rec.Fields.Bool("isOn") {
		t.Errorf("fields = %v", rec.Fields)
	}
}

func TestMongoStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newMongoTestStore(t)

	a, err := s.Create(ctx, CollectionRooms, Fields{"name": "Kitchen", "homeId": "h1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	b, err := s.Create(ctx, CollectionRooms, Fields{"name": "Hall", "homeId": "h1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Query(ctx, CollectionRooms, Query{Field: "homeId", Value: "h1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("Query() order = %+v, want newest first", got)
	}

	if err := s.Update(ctx, CollectionRooms, a.ID, Fields{"name": "Big Kitchen"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	rec, err := s.Get(ctx, CollectionRooms, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Fields.String("name") != "Big Kitchen" || rec.Fields.String("homeId") != "h1" {
		t.Errorf("Get() after update = %v", rec.Fields)
	}

	if err := s.Update(ctx, CollectionRooms, "missing", Fields{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, CollectionUsers, "u1", Fields{"email": "a@example.com"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	n, err := s.DeleteWhere(ctx, CollectionRooms, Query{Field: "homeId", Value: "h1"})
	if err != nil || n != 2 {
		t.Errorf("DeleteWhere() = %d, %v, want 2, nil", n, err)
	}
	if err := s.Delete(ctx, CollectionRooms, a.ID); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
}
