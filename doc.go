// Package ytarchive mirrors YouTube and Twitch channels into the
// Internet Archive, keeping a document store as the durable ledger of
// what has been downloaded and uploaded so far.
//
// # Overview
//
// A run has two phases:
//
//   - Catalog synchronization: each configured channel's upload list is
//     diffed against the store and new videos are appended as pending
//     records (catalog package).
//   - Reconciliation: every record that still needs work is downloaded
//     with yt-dlp and uploaded to archive.org, with each completed
//     transition persisted immediately (engine and scheduler packages).
//
// Because every transition is persisted, a run interrupted at any point
// resumes exactly where it stopped; records are never deleted, so a
// fully processed catalog doubles as an audit trail.
//
// # Quick Start
//
// Open a store and synchronize a channel:
//
//	ctx := context.Background()
//	store, err := storage.Open(ctx, storage.Options{MongoURI: uri})
//	if err != nil {
//		log.Fatal(err)
//	}
//	sync := catalog.NewSynchronizer(store, catalog.NewYtdlpLister())
//	if err := sync.Sync(ctx, "my_channel", channelURL); err != nil {
//		log.Fatal(err)
//	}
//
// Then reconcile everything pending:
//
//	eng := engine.New(store, media.NewFetcher(media.Options{}), iaClient, engine.Options{})
//	summary, err := scheduler.New(store, eng, scheduler.Options{}).Run(ctx)
//
// # Configuration
//
// The cli command loads everything from environment variables:
//
//   - MONGODB_CONNECTION_STRING: MongoDB backend (takes precedence)
//   - JSONBIN_KEY: JSONBin blob backend
//   - CHANNELS: channels as a YAML mapping, a file path, or a URL
//   - PRIORITIZE_CHANNELS: channel names to process first
//   - ARCHIVE_USER_EMAIL, IA_ACCESS_KEY, IA_SECRET_KEY: archive.org account
//   - YOUTUBE_API_KEY: optional Data API catalog listing
//
// # Error Handling
//
// Packages export sentinel errors for the conditions callers branch on:
//
//	if errors.Is(err, media.ErrNoSpace) {
//		// disk full, stop the whole run
//	}
//
// Storage failures carry operation context:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("failed to %s %s: %v\n", storErr.Op, storErr.Entity, storErr.Err)
//	}
//
// # Dependencies
//
// ytarchive requires yt-dlp installed and reachable on PATH, and an
// archive.org account with S3 keys (https://archive.org/account/s3.php).
package ytarchive
