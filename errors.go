package ytarchive

import (
	"ytarchive/catalog"
	"ytarchive/ia"
	"ytarchive/media"
	"ytarchive/storage"
)

// Error types and sentinels re-exported for library users, so callers
// branching on pipeline outcomes only need this package.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, ytarchive.ErrUnavailable) {
//		fmt.Println("video gone from the source")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var storErr *ytarchive.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("failed to %s %s: %v\n", storErr.Op, storErr.Entity, storErr.Err)
//	}

// StorageError wraps storage failures with operation and record context.
type StorageError = storage.StorageError

// Sentinel errors exported from sub-packages.
var (
	// ErrNoBackend indicates no storage backend secret is configured.
	ErrNoBackend = storage.ErrNoBackend
	// ErrNotFound indicates a record was not found in storage.
	ErrNotFound = storage.ErrNotFound
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = storage.ErrInvalidInput

	// ErrInvalidChannelURL indicates a channel URL whose platform cannot
	// be inferred.
	ErrInvalidChannelURL = catalog.ErrInvalidChannelURL

	// ErrUnavailable indicates the source reports the video private or
	// removed.
	ErrUnavailable = media.ErrUnavailable
	// ErrNoSpace indicates the local disk is full.
	ErrNoSpace = media.ErrNoSpace
	// ErrYtdlpNotInstalled indicates the yt-dlp binary was not found.
	ErrYtdlpNotInstalled = media.ErrYtdlpNotInstalled

	// ErrRateLimited indicates the archive asked us to slow down.
	ErrRateLimited = ia.ErrRateLimited
	// ErrItemTakenOffline indicates the target item was removed by a
	// moderator.
	ErrItemTakenOffline = ia.ErrItemTakenOffline
	// ErrMissingCredentials indicates no archive keypair is configured.
	ErrMissingCredentials = ia.ErrMissingCredentials
)
