// Package catalog keeps the document store's video list for a channel
// current with the source platform, without re-scanning full channel
// history on every run.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"ytarchive/storage"
)

// ErrInvalidChannelURL is returned when the platform cannot be inferred
// from a channel URL. Raised before any network call.
var ErrInvalidChannelURL = errors.New("catalog: invalid channel url")

// DefaultProbeWindow is the number of most recent uploads fetched to
// cheaply detect that a channel has nothing new.
const DefaultProbeWindow = 10

// Entry is one listed upload as reported by a Lister.
type Entry struct {
	// URL is the watch URL built by the lister.
	URL string
	// Title is the raw video title.
	Title string
	// UploadDate is the publish date, YYYYMMDD.
	UploadDate string
}

// Lister fetches a channel's upload list. limit bounds the number of most
// recent entries; 0 requests the complete history.
type Lister interface {
	List(ctx context.Context, channelURL string, limit int) ([]Entry, error)
}

// Platform is a supported source platform.
type Platform int

const (
	// PlatformYouTube identifies youtube.com channels.
	PlatformYouTube Platform = iota
	// PlatformTwitch identifies twitch.tv video listings.
	PlatformTwitch
)

// PlatformFor infers the platform from a channel URL. Twitch channel URLs
// must point at the /videos listing.
func PlatformFor(channelURL string) (Platform, error) {
	lower := strings.ToLower(channelURL)
	switch {
	case strings.Contains(lower, "youtube"):
		return PlatformYouTube, nil
	case strings.Contains(lower, "twitch"):
		if !strings.Contains(lower, "/videos") {
			return 0, fmt.Errorf("%w: twitch channels need a /videos URL, got %s",
				ErrInvalidChannelURL, channelURL)
		}
		return PlatformTwitch, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidChannelURL, channelURL)
	}
}

// WatchURLBase returns the prefix watch URLs are built from for the
// platform.
func (p Platform) WatchURLBase() string {
	if p == PlatformTwitch {
		return "https://www.twitch.tv/videos/"
	}
	return "https://www.youtube.com/watch?v="
}

// DeriveID extracts the stable video id from a watch URL and returns the
// canonical URL to store. For YouTube the id is the watch?v= query value;
// for Twitch it is the trailing path segment with a single leading "v"
// stripped, and the URL is rewritten to the prefix-free form.
func DeriveID(p Platform, watchURL string) (id, canonicalURL string, err error) {
	switch p {
	case PlatformYouTube:
		_, after, found := strings.Cut(watchURL, "watch?v=")
		if !found || after == "" {
			return "", "", fmt.Errorf("%w: no watch?v= in %s", ErrInvalidChannelURL, watchURL)
		}
		if i := strings.IndexByte(after, '&'); i >= 0 {
			after = after[:i]
		}
		return after, watchURL, nil
	case PlatformTwitch:
		trimmed := strings.TrimRight(watchURL, "/")
		i := strings.LastIndexByte(trimmed, '/')
		if i < 0 || i == len(trimmed)-1 {
			return "", "", fmt.Errorf("%w: no video segment in %s", ErrInvalidChannelURL, watchURL)
		}
		id = trimmed[i+1:]
		if strings.HasPrefix(id, "v") {
			id = id[1:]
		}
		return id, trimmed[:i+1] + id, nil
	default:
		return "", "", fmt.Errorf("%w: unknown platform", ErrInvalidChannelURL)
	}
}

// Synchronizer diffs a channel's remote upload list against the stored
// catalog and appends only new records.
type Synchronizer struct {
	store  storage.Store
	lister Lister

	// ProbeWindow is the size of the recent-uploads probe.
	ProbeWindow int
	// SnapshotDir is where the per-channel JSON snapshot is written.
	// Empty disables snapshots.
	SnapshotDir string
	// Quiet suppresses progress logging.
	Quiet bool
}

// NewSynchronizer returns a Synchronizer with the default probe window,
// writing snapshots to the current directory.
func NewSynchronizer(store storage.Store, lister Lister) *Synchronizer {
	return &Synchronizer{
		store:       store,
		lister:      lister,
		ProbeWindow: DefaultProbeWindow,
		SnapshotDir: ".",
	}
}

// Sync reconciles one channel. It probes the most recent uploads first
// and only falls back to a full history scan when the probe is saturated
// with unseen videos, meaning more than a probe window's worth may be
// missing. Existing records are never overwritten.
func (s *Synchronizer) Sync(ctx context.Context, channelName, channelURL string) error {
	platform, err := PlatformFor(channelURL)
	if err != nil {
		return err
	}

	all, err := s.store.ListAll(ctx)
	if err != nil {
		return err
	}
	existingIDs := make(map[string]bool)
	var channelRecs []storage.VideoRecord
	for _, r := range all {
		existingIDs[r.ID] = true
		if r.ChannelName == channelName {
			channelRecs = append(channelRecs, r)
		}
	}

	probe, err := s.lister.List(ctx, channelURL, s.ProbeWindow)
	if err != nil {
		return fmt.Errorf("catalog: probe %s: %w", channelName, err)
	}
	candidates, err := s.toRecords(platform, channelName, channelURL, probe)
	if err != nil {
		return err
	}

	probeIDs := make(map[string]bool, len(candidates))
	for _, r := range candidates {
		probeIDs[r.ID] = true
	}
	upToDate := true
	for _, r := range channelRecs {
		if !probeIDs[r.ID] {
			upToDate = false
			break
		}
	}
	if upToDate && len(channelRecs) > 0 {
		s.logf("catalog: %s is up to date", channelName)
		return nil
	}

	fresh := 0
	for _, r := range candidates {
		if !existingIDs[r.ID] {
			fresh++
		}
	}
	// A saturated probe means the gap may extend past the window; only
	// then is the full history scan worth its cost.
	if fresh >= s.ProbeWindow {
		s.logf("catalog: probe saturated for %s, scanning full history", channelName)
		full, err := s.lister.List(ctx, channelURL, 0)
		if err != nil {
			return fmt.Errorf("catalog: full scan %s: %w", channelName, err)
		}
		candidates, err = s.toRecords(platform, channelName, channelURL, full)
		if err != nil {
			return err
		}
	} else {
		s.logf("catalog: found %d new videos for %s", fresh, channelName)
	}

	candidates = dedupe(candidates)

	var toAdd []storage.VideoRecord
	for _, r := range candidates {
		if !existingIDs[r.ID] {
			toAdd = append(toAdd, r)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}
	if err := s.store.InsertMany(ctx, toAdd); err != nil {
		return err
	}
	if err := s.writeSnapshot(channelName, append(channelRecs, toAdd...)); err != nil {
		s.logf("catalog: snapshot for %s failed: %v", channelName, err)
	}
	return nil
}

// toRecords derives ids and provenance for listed entries.
func (s *Synchronizer) toRecords(p Platform, channelName, channelURL string, entries []Entry) ([]storage.VideoRecord, error) {
	recs := make([]storage.VideoRecord, 0, len(entries))
	for _, e := range entries {
		id, canonical, err := DeriveID(p, e.URL)
		if err != nil {
			return nil, err
		}
		recs = append(recs, storage.VideoRecord{
			ID:          id,
			URL:         canonical,
			Title:       e.Title,
			UploadDate:  e.UploadDate,
			ChannelName: channelName,
			ChannelURL:  channelURL,
			Downloaded:  storage.StatusPending,
			Uploaded:    storage.StatusPending,
		})
	}
	return recs, nil
}

// dedupe drops entries that are identical in every field, guarding
// against the source returning the same record twice.
func dedupe(recs []storage.VideoRecord) []storage.VideoRecord {
	type key struct {
		id, url, title, date, chName, chURL string
	}
	seen := make(map[key]bool, len(recs))
	out := recs[:0]
	for _, r := range recs {
		k := key{r.ID, r.URL, r.Title, r.UploadDate, r.ChannelName, r.ChannelURL}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// writeSnapshot dumps the channel's record set to a pretty-printed JSON
// file for audit and debugging. The core never reads it back.
func (s *Synchronizer) writeSnapshot(channelName string, recs []storage.VideoRecord) error {
	if s.SnapshotDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(recs, "", "    ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.SnapshotDir, channelName+"_channel.json")
	return os.WriteFile(path, data, 0o644)
}

func (s *Synchronizer) logf(format string, args ...any) {
	if !s.Quiet {
		log.Printf(format, args...)
	}
}
