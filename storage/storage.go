// Package storage provides a uniform document-store adapter over the two
// interchangeable catalog backends: a MongoDB collection and a JSONBin
// single-blob store. An in-memory implementation backs tests.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNoBackend indicates no storage backend credential is configured.
	ErrNoBackend = errors.New("storage: no storage backend secret configured")
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
)

// StorageError wraps storage errors with operation and record context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("list", "upsert", "insert", "replace").
	Op string
	// Entity is the entity type ("video", "bin", "collection").
	Entity string
	// ID is the record or bin ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// Store is the document-store adapter shared by the catalog synchronizer,
// the reconciliation engine, and the scheduler. Implementations must be
// safe for concurrent use, and every mutation must be visible to a
// subsequent ListAll by the same process.
type Store interface {
	// ListAll returns every video record in the catalog.
	ListAll(ctx context.Context) ([]VideoRecord, error)
	// Upsert applies a partial update to the record with the given id,
	// creating the record when the id is absent.
	Upsert(ctx context.Context, id string, fields Fields) error
	// InsertMany adds records, silently skipping any whose id already
	// exists. A duplicate never aborts the rest of the batch.
	InsertMany(ctx context.Context, recs []VideoRecord) error
	// ReplaceAll overwrites the entire catalog. Blob backends have no
	// per-record update, so this is their native write.
	ReplaceAll(ctx context.Context, recs []VideoRecord) error
	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}

// Options selects and configures a backend. MongoDB takes precedence when
// both credentials are present.
type Options struct {
	// MongoURI is the MongoDB connection string.
	MongoURI string
	// JSONBinKey is the JSONBin master key.
	JSONBinKey string
}

// Open connects to the configured backend. It returns ErrNoBackend before
// attempting any network operation when neither credential is set.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch {
	case opts.MongoURI != "":
		return OpenMongo(ctx, opts.MongoURI)
	case opts.JSONBinKey != "":
		return OpenJSONBin(ctx, opts.JSONBinKey)
	default:
		return nil, ErrNoBackend
	}
}
