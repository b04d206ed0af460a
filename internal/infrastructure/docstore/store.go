package docstore

import (
	"context"
	"fmt"
	"time"
)

// Logical collection names.
const (
	CollectionUsers           = "users"
	CollectionHomes           = "homes"
	CollectionRooms           = "rooms"
	CollectionDevices         = "devices"
	CollectionVoltageReadings = "voltage_readings"
)

// Record is one stored document.
type Record struct {
	ID        string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Query selects documents from a collection, newest first.
type Query struct {
	// Field and Value form an optional equality filter on a string field.
	// An empty Field selects every document in the collection.
	Field string
	Value string

	// OrderBy names a numeric field to sort by, descending. Empty sorts by
	// creation stamp. Ties always fall back to creation stamp.
	OrderBy string

	// Limit caps the result size in the backend query. Zero means unbounded.
	Limit int
}

// Matches reports whether fields satisfy the query's filter.
func (q Query) Matches(fields Fields) bool {
	if q.Field == "" {
		return true
	}
	return fields.String(q.Field) == q.Value
}

// Validate rejects queries the backends cannot express safely.
func (q Query) Validate() error {
	if q.Field != "" && !identifierPattern.MatchString(q.Field) {
		return fmt.Errorf("%w: invalid filter field %q", ErrValidation, q.Field)
	}
	if q.OrderBy != "" && !identifierPattern.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: invalid order field %q", ErrValidation, q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrValidation, q.Limit)
	}
	return nil
}

// Store is the persistence contract shared by all backends.
//
// Every successful write is published on Feed after it is durable.
type Store interface {
	// Create inserts a document with a store-assigned id and creation stamp.
	Create(ctx context.Context, collection string, fields Fields) (Record, error)

	// Get returns one document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)

	// Query returns matching documents ordered newest first. No match is an
	// empty slice, not an error.
	Query(ctx context.Context, collection string, q Query) ([]Record, error)

	// Update merges fields into an existing document and stamps updatedAt.
	// Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fields Fields) error

	// Set merges fields into the document with the given id, creating it if
	// it does not exist.
	Set(ctx context.Context, collection, id string, fields Fields) error

	// Delete removes a document. Deleting a missing id succeeds.
	Delete(ctx context.Context, collection, id string) error

	// DeleteWhere removes every document matching q's filter and returns
	// how many were removed.
	DeleteWhere(ctx context.Context, collection string, q Query) (int, error)

	// Feed returns the change feed for this store.
	Feed() *Feed

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources the store owns.
	Close() error
}
