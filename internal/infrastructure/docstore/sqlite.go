package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SQLiteStore keeps every collection in the documents table created by the
// initial schema migration. The database handle is owned by the caller.
type SQLiteStore struct {
	db    *sql.DB
	feed  *Feed
	clock *stamper
	newID func() string
}

// NewSQLiteStore creates a store over an open, migrated database.
// A nil feed gets a fresh one.
func NewSQLiteStore(db *sql.DB, feed *Feed) *SQLiteStore {
	if feed == nil {
		feed = NewFeed()
	}
	return &SQLiteStore{
		db:    db,
		feed:  feed,
		clock: newStamper(),
		newID: uuid.NewString,
	}
}

// Feed returns the store's change feed.
func (s *SQLiteStore) Feed() *Feed {
	return s.feed
}

// Create inserts a new document.
func (s *SQLiteStore) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	if err := validateCollection(collection); err != nil {
		return Record{}, err
	}
	if err := validateWrite(fields, false); err != nil {
		return Record{}, err
	}
	clean := withoutNil(fields)
	data, err := json.Marshal(clean)
	if err != nil {
		return Record{}, fmt.Errorf("%w: encoding %s document: %v", ErrValidation, collection, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, storeErr("begin create", collection, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	// Seed from persisted stamps so ordering survives restarts.
	var floor int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(created_at), 0) FROM documents WHERE collection = ?", collection,
	).Scan(&floor); err != nil {
		return Record{}, storeErr("read stamp", collection, err)
	}
	stamp := s.clock.next(floor)
	id := s.newID()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		collection, id, string(data), stamp, stamp,
	); err != nil {
		return Record{}, storeErr("insert", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, storeErr("commit create", collection, err)
	}

	s.feed.Publish(Change{Collection: collection, ID: id, Op: OpCreate, After: clean.Clone()})
	return Record{ID: id, Fields: clean, CreatedAt: fromStamp(stamp), UpdatedAt: fromStamp(stamp)}, nil
}

// Get returns a single document.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := validateCollection(collection); err != nil {
		return Record{}, err
	}
	if err := validateID(id); err != nil {
		return Record{}, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return Record{}, storeErr("get", collection, err)
	}
	return rec, nil
}

// Query returns matching documents, newest first, with the limit applied in SQL.
func (s *SQLiteStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	where, args := whereClause(collection, q)
	var b strings.Builder
	b.WriteString("SELECT id, data, created_at, updated_at FROM documents WHERE ")
	b.WriteString(where)
	b.WriteString(" ORDER BY ")
	if q.OrderBy != "" {
		// Field names are validated identifiers.
		fmt.Fprintf(&b, "json_extract(data, '$.%s') DESC, ", q.OrderBy)
	}
	b.WriteString("created_at DESC, rowid DESC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, storeErr("query", collection, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr("scan", collection, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate", collection, err)
	}
	return records, nil
}

// Update merges fields into an existing document.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return s.merge(ctx, collection, id, fields, false)
}

// Set merges fields into a document, creating it under id if absent.
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	return s.merge(ctx, collection, id, fields, true)
}

func (s *SQLiteStore) merge(ctx context.Context, collection, id string, fields Fields, upsert bool) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateWrite(fields, true); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin update", collection, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&raw)

	var change Change
	switch {
	case errors.Is(err, sql.ErrNoRows) && !upsert:
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	case errors.Is(err, sql.ErrNoRows):
		after := withoutNil(fields)
		data, err := json.Marshal(after)
		if err != nil {
			return fmt.Errorf("%w: encoding %s document: %v", ErrValidation, collection, err)
		}
		var floor int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(created_at), 0) FROM documents WHERE collection = ?", collection,
		).Scan(&floor); err != nil {
			return storeErr("read stamp", collection, err)
		}
		stamp := s.clock.next(floor)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			collection, id, string(data), stamp, stamp,
		); err != nil {
			return storeErr("insert", collection, err)
		}
		change = Change{Collection: collection, ID: id, Op: OpCreate, After: after}
	case err != nil:
		return storeErr("read", collection, err)
	default:
		before, err := decodeFields(raw)
		if err != nil {
			return storeErr("decode", collection, err)
		}
		after := before.Merge(fields)
		data, err := json.Marshal(after)
		if err != nil {
			return fmt.Errorf("%w: encoding %s document: %v", ErrValidation, collection, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?",
			string(data), s.clock.next(0), collection, id,
		); err != nil {
			return storeErr("update", collection, err)
		}
		change = Change{Collection: collection, ID: id, Op: OpUpdate, Before: before, After: after}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit update", collection, err)
	}
	s.feed.Publish(change)
	return nil
}

// Delete removes a document if it exists.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin delete", collection, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return storeErr("read", collection, err)
	}
	before, err := decodeFields(raw)
	if err != nil {
		return storeErr("decode", collection, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id,
	); err != nil {
		return storeErr("delete", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit delete", collection, err)
	}

	s.feed.Publish(Change{Collection: collection, ID: id, Op: OpDelete, Before: before})
	return nil
}

// DeleteWhere removes every document matching q's filter.
func (s *SQLiteStore) DeleteWhere(ctx context.Context, collection string, q Query) (int, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin delete", collection, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	where, args := whereClause(collection, q)
	rows, err := tx.QueryContext(ctx, "SELECT id, data FROM documents WHERE "+where, args...)
	if err != nil {
		return 0, storeErr("select for delete", collection, err)
	}
	var changes []Change
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, storeErr("scan", collection, err)
		}
		before, err := decodeFields(raw)
		if err != nil {
			rows.Close()
			return 0, storeErr("decode", collection, err)
		}
		changes = append(changes, Change{Collection: collection, ID: id, Op: OpDelete, Before: before})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, storeErr("iterate", collection, err)
	}
	if len(changes) == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE "+where, args...); err != nil {
		return 0, storeErr("delete", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit delete", collection, err)
	}

	for _, c := range changes {
		s.feed.Publish(c)
	}
	return len(changes), nil
}

// HealthCheck runs a trivial query.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return storeErr("health check", "documents", err)
	}
	return nil
}

// Close is a no-op; the database handle belongs to the caller.
func (s *SQLiteStore) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec              Record
		raw              string
		created, updated int64
	)
	if err := row.Scan(&rec.ID, &raw, &created, &updated); err != nil {
		return Record{}, err
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Record{}, err
	}
	rec.Fields = fields
	rec.CreatedAt = fromStamp(created)
	rec.UpdatedAt = fromStamp(updated)
	return rec, nil
}

func decodeFields(raw string) (Fields, error) {
	fields := Fields{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return fields, nil
}

func whereClause(collection string, q Query) (string, []any) {
	if q.Field == "" {
		return "collection = ?", []any{collection}
	}
	// The literal JSON path lets SQLite use the expression indexes.
	return fmt.Sprintf("collection = ? AND json_extract(data, '$.%s') = ?", q.Field),
		[]any{collection, q.Value}
}

func storeErr(op, collection string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStore, op, collection, err)
}
