// Package mongo reads and writes pipeline records in a MongoDB collection
// using the official driver.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
)

// insertBatchSize bounds the documents sent per InsertMany call.
const insertBatchSize = 1000

// collection is the subset of *driver.Collection the store uses.
type collection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*driver.Cursor, error)
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*driver.InsertManyResult, error)
}

// Store is a record source and sink backed by a MongoDB deployment.
type Store struct {
	client  *driver.Client
	timeout time.Duration
	logger  log.Logger

	collection func(database, name string) collection
}

// Connect dials uri and verifies the deployment answers a ping.
func Connect(ctx context.Context, uri string, timeout time.Duration, logger log.Logger) (*Store, error) {
	if uri == "" {
		return nil, errors.NewConfigError("MONGO_DB_URL", 0, errors.New("connection URL is not set"))
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetTimeout(timeout).SetServerSelectionTimeout(timeout)
	}

	client, err := driver.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}
	pingCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongodb")
	}

	s := &Store{client: client, timeout: timeout, logger: logger}
	s.collection = func(database, name string) collection {
		return client.Database(database).Collection(name)
	}
	return s, nil
}

// FetchAll returns every document of database.name as a record. BSON
// values are converted to plain Go values (see toRecord).
func (s *Store) FetchAll(ctx context.Context, database, name string) ([]map[string]any, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	cur, err := s.collection(database, name).Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrapf(err, "find in %s.%s", database, name)
	}
	defer cur.Close(ctx)

	var records []map[string]any
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrapf(err, "decode document from %s.%s", database, name)
		}
		records = append(records, toRecord(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate %s.%s", database, name)
	}

	s.logger.Info("fetched records",
		"collection", database+"."+name,
		log.SamplesKey, len(records),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return records, nil
}

// InsertRecords appends records to database.name in batches and returns
// the number inserted.
func (s *Store) InsertRecords(ctx context.Context, database, name string, records []map[string]any) (int, error) {
	coll := s.collection(database, name)
	inserted := 0
	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))
		docs := make([]interface{}, 0, end-start)
		for _, r := range records[start:end] {
			docs = append(docs, bson.M(r))
		}

		batchCtx, cancel := withTimeout(ctx, s.timeout)
		res, err := coll.InsertMany(batchCtx, docs)
		cancel()
		if err != nil {
			return inserted, errors.Wrapf(err, "insert into %s.%s", database, name)
		}
		inserted += len(res.InsertedIDs)
	}
	s.logger.Info("inserted records", "collection", database+"."+name, log.SamplesKey, inserted)
	return inserted, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return errors.Wrap(s.client.Disconnect(ctx), "disconnect from mongodb")
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
