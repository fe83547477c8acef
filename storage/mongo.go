package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo namespace shared with earlier deployments of the catalog.
const (
	mongoDatabase   = "yt"
	mongoCollection = "DATA"
)

// MongoStore implements Store on a MongoDB collection, one document per
// video with the platform id as _id.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

// OpenMongo connects to MongoDB with the given connection string and
// verifies the connection with a ping.
func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &StorageError{Op: "connect", Entity: "mongo", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &StorageError{Op: "ping", Entity: "mongo", Err: err}
	}
	return &MongoStore{
		client: client,
		col:    client.Database(mongoDatabase).Collection(mongoCollection),
	}, nil
}

// ListAll returns every record in the collection.
func (s *MongoStore) ListAll(ctx context.Context) ([]VideoRecord, error) {
	cur, err := s.col.Find(ctx, bson.D{})
	if err != nil {
		return nil, &StorageError{Op: "list", Entity: "video", Err: err}
	}
	var recs []VideoRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, &StorageError{Op: "list", Entity: "video", Err: err}
	}
	return recs, nil
}

// Upsert applies a $set update to the record, creating it when absent.
func (s *MongoStore) Upsert(ctx context.Context, id string, fields Fields) error {
	if id == "" {
		return &StorageError{Op: "upsert", Entity: "video", Err: ErrInvalidInput}
	}
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.Update().SetUpsert(true))
	if err != nil {
		return &StorageError{Op: "upsert", Entity: "video", ID: id, Err: err}
	}
	return nil
}

// InsertMany inserts records unordered so duplicate-key failures on some
// documents do not abort the rest of the batch.
func (s *MongoStore) InsertMany(ctx context.Context, recs []VideoRecord) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]any, 0, len(recs))
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
		docs = append(docs, r)
	}
	_, err := s.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicateKeys(err) {
		return &StorageError{Op: "insert", Entity: "video", Err: err}
	}
	return nil
}

// ReplaceAll rewrites the full collection. Only used for parity with the
// blob backend; Mongo callers normally go through Upsert/InsertMany.
func (s *MongoStore) ReplaceAll(ctx context.Context, recs []VideoRecord) error {
	if _, err := s.col.DeleteMany(ctx, bson.D{}); err != nil {
		return &StorageError{Op: "replace", Entity: "video", Err: err}
	}
	return s.InsertMany(ctx, recs)
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// onlyDuplicateKeys reports whether every write error in a bulk failure is
// a duplicate-key error (code 11000).
func onlyDuplicateKeys(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			for _, we := range bwe.WriteErrors {
				if we.Code != 11000 {
					return false
				}
			}
		}
		return true
	}
	return false
}

var _ Store = (*MongoStore)(nil)

// String describes the backend for log lines.
func (s *MongoStore) String() string {
	return fmt.Sprintf("mongodb %s.%s", mongoDatabase, mongoCollection)
}
