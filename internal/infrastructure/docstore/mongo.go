package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Reserved MongoDB keys. Caller fields may not start with "_", so they
// never collide.
const (
	mongoKeyID      = "_id"
	mongoKeySeq     = "_seq" // creation stamp, unix nanoseconds
	mongoKeyRev     = "_rev" // update stamp, unix nanoseconds
	mongoKeyCreated = "createdAt"
	mongoKeyUpdated = "updatedAt"

	defaultMongoConnectTimeout = 10 * time.Second
	mongoCloseTimeout          = 5 * time.Second
)

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// MongoStore maps each collection to a MongoDB collection of flat documents.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	feed   *Feed
	clock  *stamper
	newID  func() string
}

// ConnectMongo connects to MongoDB and verifies the primary is reachable.
func ConnectMongo(ctx context.Context, cfg MongoConfig, feed *Feed) (*MongoStore, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, fmt.Errorf("%w: mongodb uri and database are required", ErrValidation)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultMongoConnectTimeout
	}

	opts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to mongodb: %w", ErrStore, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("%w: pinging mongodb: %w", ErrStore, err)
	}

	if feed == nil {
		feed = NewFeed()
	}
	return &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
		feed:   feed,
		clock:  newStamper(),
		newID:  uuid.NewString,
	}, nil
}

// Feed returns the store's change feed.
func (s *MongoStore) Feed() *Feed {
	return s.feed
}

// Create inserts a new document.
func (s *MongoStore) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	if err := validateCollection(collection); err != nil {
		return Record{}, err
	}
	if err := validateWrite(fields, false); err != nil {
		return Record{}, err
	}
	clean := withoutNil(fields)
	stamp := s.clock.next(0)
	id := s.newID()

	doc := bson.M{mongoKeyID: id, mongoKeySeq: stamp, mongoKeyRev: stamp,
		mongoKeyCreated: fromStamp(stamp), mongoKeyUpdated: fromStamp(stamp)}
	for k, v := range clean {
		doc[k] = v
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return Record{}, storeErr("insert", collection, err)
	}

	s.feed.Publish(Change{Collection: collection, ID: id, Op: OpCreate, After: clean.Clone()})
	return Record{ID: id, Fields: clean, CreatedAt: fromStamp(stamp), UpdatedAt: fromStamp(stamp)}, nil
}

// Get returns a single document.
func (s *MongoStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := validateCollection(collection); err != nil {
		return Record{}, err
	}
	if err := validateID(id); err != nil {
		return Record{}, err
	}

	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{mongoKeyID: id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return Record{}, storeErr("get", collection, err)
	}
	return recordFromBSON(doc), nil
}

// Query returns matching documents, newest first, with the limit applied by the server.
func (s *MongoStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sort := bson.D{}
	if q.OrderBy != "" {
		sort = append(sort, bson.E{Key: q.OrderBy, Value: -1})
	}
	sort = append(sort, bson.E{Key: mongoKeySeq, Value: -1})
	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, mongoFilter(q), opts)
	if err != nil {
		return nil, storeErr("query", collection, err)
	}
	defer cur.Close(ctx)

	records := []Record{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, storeErr("decode", collection, err)
		}
		records = append(records, recordFromBSON(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, storeErr("iterate", collection, err)
	}
	return records, nil
}

// Update merges fields into an existing document.
func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return s.merge(ctx, collection, id, fields, false)
}

// Set merges fields into a document, creating it under id if absent.
func (s *MongoStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	return s.merge(ctx, collection, id, fields, true)
}

func (s *MongoStore) merge(ctx context.Context, collection, id string, fields Fields, upsert bool) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateWrite(fields, true); err != nil {
		return err
	}

	stamp := s.clock.next(0)
	set := bson.M{mongoKeyRev: stamp, mongoKeyUpdated: fromStamp(stamp)}
	unset := bson.M{}
	for k, v := range fields {
		if v == nil {
			unset[k] = ""
			continue
		}
		set[k] = v
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if upsert {
		update["$setOnInsert"] = bson.M{mongoKeySeq: stamp, mongoKeyCreated: fromStamp(stamp)}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before).SetUpsert(upsert)
	var doc bson.M
	err := s.db.Collection(collection).FindOneAndUpdate(ctx, bson.M{mongoKeyID: id}, update, opts).Decode(&doc)

	var change Change
	switch {
	case errors.Is(err, mongo.ErrNoDocuments) && !upsert:
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	case errors.Is(err, mongo.ErrNoDocuments):
		// Upserted: there was no previous document.
		change = Change{Collection: collection, ID: id, Op: OpCreate, After: withoutNil(fields)}
	case err != nil:
		return storeErr("update", collection, err)
	default:
		before := recordFromBSON(doc).Fields
		change = Change{Collection: collection, ID: id, Op: OpUpdate, Before: before, After: before.Merge(fields)}
	}

	s.feed.Publish(change)
	return nil
}

// Delete removes a document if it exists.
func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	var doc bson.M
	err := s.db.Collection(collection).FindOneAndDelete(ctx, bson.M{mongoKeyID: id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	if err != nil {
		return storeErr("delete", collection, err)
	}

	s.feed.Publish(Change{Collection: collection, ID: id, Op: OpDelete, Before: recordFromBSON(doc).Fields})
	return nil
}

// DeleteWhere removes every document matching q's filter.
func (s *MongoStore) DeleteWhere(ctx context.Context, collection string, q Query) (int, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	matched, err := s.Query(ctx, collection, Query{Field: q.Field, Value: q.Value})
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		return 0, nil
	}
	ids := make([]string, len(matched))
	for i, rec := range matched {
		ids[i] = rec.ID
	}

	res, err := s.db.Collection(collection).DeleteMany(ctx, bson.M{mongoKeyID: bson.M{"$in": ids}})
	if err != nil {
		return 0, storeErr("delete", collection, err)
	}
	for _, rec := range matched {
		s.feed.Publish(Change{Collection: collection, ID: rec.ID, Op: OpDelete, Before: rec.Fields})
	}
	return int(res.DeletedCount), nil
}

// HealthCheck pings the primary.
func (s *MongoStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return storeErr("health check", s.db.Name(), err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("%w: disconnecting mongodb: %w", ErrStore, err)
	}
	return nil
}

func mongoFilter(q Query) bson.M {
	if q.Field == "" {
		return bson.M{}
	}
	return bson.M{q.Field: q.Value}
}

// recordFromBSON splits a raw document into bookkeeping and caller fields.
func recordFromBSON(doc bson.M) Record {
	rec := Record{Fields: Fields{}}
	for k, v := range doc {
		switch k {
		case mongoKeyID:
			rec.ID, _ = v.(string) //nolint:errcheck // ids are always written as strings
		case mongoKeySeq:
			rec.CreatedAt = fromStamp(Fields{k: v}.Int64(k))
		case mongoKeyRev:
			rec.UpdatedAt = fromStamp(Fields{k: v}.Int64(k))
		case mongoKeyCreated, mongoKeyUpdated:
		default:
			rec.Fields[k] = normalizeBSON(v)
		}
	}
	return rec
}

// normalizeBSON converts driver container types to plain Go values.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeBSON(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
