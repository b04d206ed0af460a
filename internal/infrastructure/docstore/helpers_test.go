package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	_ "github.com/nerrad567/smarthome-core/migrations" // registers embedded schema
)

const waitTimeout = 2 * time.Second

// newTestStore returns a SQLite-backed store on a migrated in-memory database.
func newTestStore(t *testing.T) *SQLiteStore {
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
	return NewSQLiteStore(db.DB, nil)
}

// recorder collects subscription deliveries on channels.
type recorder struct {
	snapshots chan []Record
	errs      chan error
}

func newRecorder() *recorder {
	return &recorder{
		snapshots: make(chan []Record, 64),
		errs:      make(chan error, 4),
	}
}

func (r *recorder) fn(records []Record, err error) {
	if err != nil {
		r.errs <- err
		return
	}
	r.snapshots <- records
}

func (r *recorder) next(t *testing.T) []Record {
	t.Helper()
	select {
	case s := <-r.snapshots:
		return s
	case err := <-r.errs:
		t.Fatalf("unexpected subscription error: %v", err)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}

func (r *recorder) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case s := <-r.snapshots:
		t.Fatalf("unexpected snapshot with %d records", len(s))
	case err := <-r.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(d):
	}
}
