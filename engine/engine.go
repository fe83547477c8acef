// Package engine drives one video record through the download/upload
// state machine, persisting each completed transition so an interrupted
// run resumes where it stopped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ytarchive/ia"
	"ytarchive/media"
	"ytarchive/naming"
	"ytarchive/storage"
)

// Fetcher downloads source videos. Implemented by media.Fetcher.
type Fetcher interface {
	Probe(ctx context.Context, url string) (string, error)
	Fetch(ctx context.Context, url, output string) error
	CleanupPartial(dir, base string) error
}

// Uploader pushes files into archive items. Implemented by ia.Client.
type Uploader interface {
	ItemMetadata(ctx context.Context, identifier string) (*ia.ItemMetadata, error)
	Upload(ctx context.Context, identifier, filePath string, md ia.Metadata) (int, error)
}

// Outcome summarizes what Process did with a record.
type Outcome int

const (
	// OutcomeNoop means the record needed no work or was skipped.
	OutcomeNoop Outcome = iota
	// OutcomeUnavailable means the source reported the video gone and the
	// record was retired.
	OutcomeUnavailable
	// OutcomeUploaded means the video reached the archive this pass.
	OutcomeUploaded
	// OutcomeFailed means a soft failure; the record keeps its state and
	// a later run retries.
	OutcomeFailed
)

// maxUploadAttempts bounds the rate-limit retry loop for one record.
const maxUploadAttempts = 3

// Options configures an Engine.
type Options struct {
	// WorkDir is where downloads land before upload. Defaults to the
	// current directory.
	WorkDir string
	// ArchiveEmail is the account that owns uploaded items. When a
	// colliding identifier belongs to this account the upload is treated
	// as already done.
	ArchiveEmail string
	// SkipList entries are matched as substrings of the cleaned base
	// name; matching videos are never processed.
	SkipList []string
	// IgnoreVideoIDs are exact record ids to leave untouched.
	IgnoreVideoIDs []string
	// KeepFailedUploads retains the downloaded file when every upload
	// attempt fails, instead of deleting it.
	KeepFailedUploads bool
	// PostDownloadPause is the settle delay between a finished download
	// and the upload.
	PostDownloadPause time.Duration
	// RateLimitCooldown is how long to wait after the first rate-limit
	// rejection before retrying the same identifier.
	RateLimitCooldown time.Duration
	// Quiet suppresses progress logging.
	Quiet bool
}

// Engine reconciles single records. Safe for concurrent use; each
// Process call touches only its own record and files.
type Engine struct {
	store    storage.Store
	fetcher  Fetcher
	uploader Uploader
	opts     Options

	ignored map[string]bool
}

// New returns an Engine. Pause and cooldown durations get production
// defaults when zero.
func New(store storage.Store, fetcher Fetcher, uploader Uploader, opts Options) *Engine {
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	if opts.PostDownloadPause == 0 {
		opts.PostDownloadPause = 3 * time.Second
	}
	if opts.RateLimitCooldown == 0 {
		opts.RateLimitCooldown = time.Minute
	}
	ignored := make(map[string]bool, len(opts.IgnoreVideoIDs))
	for _, id := range opts.IgnoreVideoIDs {
		ignored[id] = true
	}
	return &Engine{store: store, fetcher: fetcher, uploader: uploader, opts: opts, ignored: ignored}
}

// Process advances one record as far as it can go this pass. A non-nil
// error is fatal for the whole run (disk full, canceled context);
// per-video failures come back as OutcomeFailed with a nil error.
func (e *Engine) Process(ctx context.Context, rec storage.VideoRecord) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeNoop, err
	}
	if rec.Terminal() {
		return OutcomeNoop, nil
	}
	if e.ignored[rec.ID] {
		e.logf("engine: %s: ignored by id", rec.ID)
		return OutcomeNoop, nil
	}

	base := naming.BaseName(rec.UploadDate, rec.Title)
	if e.skipped(base) {
		e.logf("engine: %s: on skip list", base)
		return OutcomeNoop, nil
	}

	ext, err := e.fetcher.Probe(ctx, rec.URL)
	if err != nil {
		if errors.Is(err, media.ErrUnavailable) {
			return e.retire(ctx, rec.ID)
		}
		if ctx.Err() != nil {
			return OutcomeNoop, ctx.Err()
		}
		e.logf("engine: %s: probe failed: %v", rec.ID, err)
		return OutcomeFailed, nil
	}

	file := filepath.Join(e.opts.WorkDir, base+ext)

	// A record marked downloaded without the file on disk means a prior
	// run lost its artifact; reset in memory and fetch again.
	if rec.Downloaded == storage.StatusDone {
		if _, err := os.Stat(file); err != nil {
			e.logf("engine: %s: downloaded but %s is missing, refetching", rec.ID, file)
			rec.Downloaded = storage.StatusPending
		}
	}

	if rec.Downloaded != storage.StatusDone {
		if err := e.download(ctx, rec, base, file); err != nil {
			if errors.Is(err, media.ErrNoSpace) || ctx.Err() != nil {
				return OutcomeNoop, err
			}
			e.logf("engine: %s: download failed: %v", rec.ID, err)
			return OutcomeFailed, nil
		}
	}

	return e.upload(ctx, rec, file)
}

// download fetches the file and persists the transition.
func (e *Engine) download(ctx context.Context, rec storage.VideoRecord, base, file string) error {
	e.logf("engine: %s: downloading %s", rec.ID, rec.URL)
	if err := e.fetcher.Fetch(ctx, rec.URL, file); err != nil {
		if cleanupErr := e.fetcher.CleanupPartial(e.opts.WorkDir, base); cleanupErr != nil {
			e.logf("engine: %s: partial cleanup failed: %v", rec.ID, cleanupErr)
		}
		return err
	}
	if err := e.store.Upsert(ctx, rec.ID, storage.Fields{"downloaded": storage.StatusDone}); err != nil {
		return err
	}
	// Let the filesystem settle before streaming the file out again.
	return sleep(ctx, e.opts.PostDownloadPause)
}

// upload pushes the file into the archive, handling identifier
// collisions and rate limiting, then retires the local file.
func (e *Engine) upload(ctx context.Context, rec storage.VideoRecord, file string) (Outcome, error) {
	identifier := naming.Identifier(rec.UploadDate, rec.ChannelName, rec.Title)

	existing, err := e.uploader.ItemMetadata(ctx, identifier)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeNoop, ctx.Err()
		}
		e.logf("engine: %s: metadata check failed: %v", rec.ID, err)
		return OutcomeFailed, nil
	}
	if existing != nil {
		if e.opts.ArchiveEmail != "" && existing.Uploader == e.opts.ArchiveEmail {
			// Our own earlier upload; the record just never got marked.
			e.logf("engine: %s: item %s already uploaded", rec.ID, identifier)
			if err := e.store.Upsert(ctx, rec.ID, storage.Fields{"uploaded": storage.StatusDone}); err != nil {
				return OutcomeNoop, err
			}
			e.removeFile(file)
			return OutcomeUploaded, nil
		}
		// Someone else owns the identifier; a random one avoids the clash.
		identifier = uuid.NewString()
		e.logf("engine: %s: identifier collision, using %s", rec.ID, identifier)
	}

	md := ia.MetadataFor(rec)
	retriedOffline := false
	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		status, err := e.uploader.Upload(ctx, identifier, file, md)
		switch {
		case err == nil && status == http.StatusOK:
			if err := e.store.Upsert(ctx, rec.ID, storage.Fields{"uploaded": storage.StatusDone}); err != nil {
				return OutcomeNoop, err
			}
			e.logf("engine: %s: uploaded as %s", rec.ID, identifier)
			e.removeFile(file)
			return OutcomeUploaded, nil

		case errors.Is(err, ia.ErrRateLimited):
			if attempt == 1 {
				// First rejection is usually transient; wait it out.
				e.logf("engine: %s: rate limited, cooling down %s", rec.ID, e.opts.RateLimitCooldown)
				if err := sleep(ctx, e.opts.RateLimitCooldown); err != nil {
					return OutcomeNoop, err
				}
			} else {
				// Per-identifier throttling; a fresh identifier resets it.
				identifier = uuid.NewString()
				e.logf("engine: %s: still rate limited, retrying as %s", rec.ID, identifier)
			}

		case errors.Is(err, ia.ErrItemTakenOffline) && !retriedOffline:
			retriedOffline = true
			identifier = identifier + "-" + uuid.NewString()[:4]
			if len(identifier) > naming.MaxIdentifierLen {
				identifier = identifier[:naming.MaxIdentifierLen]
			}
			e.logf("engine: %s: identifier taken offline, retrying as %s", rec.ID, identifier)

		default:
			if ctx.Err() != nil {
				return OutcomeNoop, ctx.Err()
			}
			if err == nil {
				err = fmt.Errorf("engine: unexpected upload status %d", status)
			}
			e.logf("engine: %s: upload failed: %v", rec.ID, err)
			return e.giveUp(file), nil
		}
	}

	e.logf("engine: %s: upload attempts exhausted", rec.ID)
	return e.giveUp(file), nil
}

// retire marks both statuses unavailable. Terminal.
func (e *Engine) retire(ctx context.Context, id string) (Outcome, error) {
	e.logf("engine: %s: source reports video unavailable", id)
	err := e.store.Upsert(ctx, id, storage.Fields{
		"downloaded": storage.StatusUnavailable,
		"uploaded":   storage.StatusUnavailable,
	})
	if err != nil {
		return OutcomeNoop, err
	}
	return OutcomeUnavailable, nil
}

// giveUp disposes of the local file per policy. The record stays
// downloaded-but-not-uploaded so a later run retries.
func (e *Engine) giveUp(file string) Outcome {
	if !e.opts.KeepFailedUploads {
		e.removeFile(file)
	}
	return OutcomeFailed
}

func (e *Engine) removeFile(file string) {
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		e.logf("engine: remove %s: %v", file, err)
	}
}

func (e *Engine) skipped(base string) bool {
	for _, entry := range e.opts.SkipList {
		if entry != "" && strings.Contains(base, entry) {
			return true
		}
	}
	return false
}

func (e *Engine) logf(format string, args ...any) {
	if !e.opts.Quiet {
		log.Printf(format, args...)
	}
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
