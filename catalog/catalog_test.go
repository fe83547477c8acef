package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ytarchive/storage"
)

// fakeLister serves canned listings and records the limits requested.
type fakeLister struct {
	entries []Entry
	limits  []int
	err     error
}

func (f *fakeLister) List(ctx context.Context, channelURL string, limit int) ([]Entry, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit == 0 || limit >= len(f.entries) {
		return f.entries, nil
	}
	return f.entries[:limit], nil
}

func ytEntry(id, title, date string) Entry {
	return Entry{
		URL:        "https://www.youtube.com/watch?v=" + id,
		Title:      title,
		UploadDate: date,
	}
}

func newTestSync(t *testing.T, lister Lister) (*Synchronizer, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	s := NewSynchronizer(store, lister)
	s.SnapshotDir = t.TempDir()
	s.Quiet = true
	return s, store
}

func TestPlatformFor(t *testing.T) {
	tests := []struct {
		url     string
		want    Platform
		wantErr bool
	}{
		{"https://www.youtube.com/c/somechannel", PlatformYouTube, false},
		{"https://www.twitch.tv/somechannel/videos", PlatformTwitch, false},
		{"https://www.twitch.tv/somechannel", 0, true},
		{"https://vimeo.com/somechannel", 0, true},
	}
	for _, tt := range tests {
		got, err := PlatformFor(tt.url)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidChannelURL) {
				t.Errorf("PlatformFor(%q) error = %v, want ErrInvalidChannelURL", tt.url, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("PlatformFor(%q) error = %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PlatformFor(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestDeriveID(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		url      string
		wantID   string
		wantURL  string
	}{
		{
			name:     "youtube plain",
			platform: PlatformYouTube,
			url:      "https://www.youtube.com/watch?v=abc123",
			wantID:   "abc123",
			wantURL:  "https://www.youtube.com/watch?v=abc123",
		},
		{
			name:     "youtube with extra params",
			platform: PlatformYouTube,
			url:      "https://www.youtube.com/watch?v=abc123&t=42s",
			wantID:   "abc123",
			wantURL:  "https://www.youtube.com/watch?v=abc123&t=42s",
		},
		{
			name:     "twitch v prefix",
			platform: PlatformTwitch,
			url:      "https://www.twitch.tv/videos/v123456789",
			wantID:   "123456789",
			wantURL:  "https://www.twitch.tv/videos/123456789",
		},
		{
			name:     "twitch bare id",
			platform: PlatformTwitch,
			url:      "https://www.twitch.tv/videos/123456789",
			wantID:   "123456789",
			wantURL:  "https://www.twitch.tv/videos/123456789",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, canonical, err := DeriveID(tt.platform, tt.url)
			if err != nil {
				t.Fatalf("DeriveID() error = %v", err)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
			if canonical != tt.wantURL {
				t.Errorf("canonical = %q, want %q", canonical, tt.wantURL)
			}
		})
	}
}

func TestDeriveIDMalformed(t *testing.T) {
	if _, _, err := DeriveID(PlatformYouTube, "https://www.youtube.com/playlist?list=x"); !errors.Is(err, ErrInvalidChannelURL) {
		t.Errorf("DeriveID() error = %v, want ErrInvalidChannelURL", err)
	}
}

func TestSyncFirstRunScansFullHistory(t *testing.T) {
	lister := &fakeLister{entries: []Entry{
		ytEntry("v1", "one", "20230101"),
		ytEntry("v2", "two", "20230102"),
		ytEntry("v3", "three", "20230103"),
		ytEntry("v4", "four", "20230104"),
	}}
	s, store := newTestSync(t, lister)
	s.ProbeWindow = 2

	if err := s.Sync(context.Background(), "chan", "https://www.youtube.com/c/chan"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	recs, _ := store.ListAll(context.Background())
	if len(recs) != 4 {
		t.Fatalf("records = %d, want 4", len(recs))
	}
	// Empty catalog saturates the probe, so a full scan must follow it.
	if len(lister.limits) != 2 || lister.limits[0] != 2 || lister.limits[1] != 0 {
		t.Errorf("lister limits = %v, want [2 0]", lister.limits)
	}
	if recs[0].Downloaded != storage.StatusPending || recs[0].Uploaded != storage.StatusPending {
		t.Errorf("new record statuses = %v/%v, want pending/pending", recs[0].Downloaded, recs[0].Uploaded)
	}
}

func TestSyncUpToDateStopsAfterProbe(t *testing.T) {
	lister := &fakeLister{entries: []Entry{
		ytEntry("v1", "one", "20230101"),
		ytEntry("v2", "two", "20230102"),
	}}
	s, store := newTestSync(t, lister)
	s.ProbeWindow = 5

	ctx := context.Background()
	if err := s.Sync(ctx, "chan", "https://www.youtube.com/c/chan"); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	before := store.Mutations()
	lister.limits = nil

	if err := s.Sync(ctx, "chan", "https://www.youtube.com/c/chan"); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if got := store.Mutations(); got != before {
		t.Errorf("second sync performed %d mutations, want 0", got-before)
	}
	if len(lister.limits) != 1 {
		t.Errorf("lister calls = %v, want a single probe", lister.limits)
	}
}

func TestSyncFewNewSkipsFullScan(t *testing.T) {
	lister := &fakeLister{entries: []Entry{
		ytEntry("v1", "one", "20230101"),
		ytEntry("v2", "two", "20230102"),
		ytEntry("v3", "three", "20230103"),
		ytEntry("v4", "four", "20230104"),
		ytEntry("v5", "five", "20230105"),
	}}
	s, store := newTestSync(t, lister)
	s.ProbeWindow = 3

	ctx := context.Background()
	if err := s.Sync(ctx, "chan", "https://www.youtube.com/c/chan"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	// One new upload appears; fewer new than the window means no full scan.
	lister.entries = append([]Entry{ytEntry("v6", "six", "20230106")}, lister.entries...)
	lister.limits = nil
	if err := s.Sync(ctx, "chan", "https://www.youtube.com/c/chan"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if len(lister.limits) != 1 {
		t.Errorf("lister calls = %v, want probe only", lister.limits)
	}
	if _, ok := store.Get("v6"); !ok {
		t.Error("new video v6 not inserted")
	}
	recs, _ := store.ListAll(ctx)
	if len(recs) != 6 {
		t.Errorf("records = %d, want 6", len(recs))
	}
}

func TestSyncPreservesExistingRecords(t *testing.T) {
	lister := &fakeLister{entries: []Entry{
		ytEntry("v1", "one", "20230101"),
		ytEntry("v2", "two", "20230102"),
	}}
	s, store := newTestSync(t, lister)
	s.ProbeWindow = 5

	ctx := context.Background()
	// v0 sits outside the probe window so the channel is not up to date.
	seed := []storage.VideoRecord{
		{
			ID:          "v0",
			URL:         "https://www.youtube.com/watch?v=v0",
			Title:       "zero",
			UploadDate:  "20221231",
			ChannelName: "chan",
			ChannelURL:  "https://www.youtube.com/c/chan",
		},
		{
			ID:          "v1",
			URL:         "https://www.youtube.com/watch?v=v1",
			Title:       "one",
			UploadDate:  "20230101",
			ChannelName: "chan",
			ChannelURL:  "https://www.youtube.com/c/chan",
			Downloaded:  storage.StatusDone,
			Uploaded:    storage.StatusDone,
		},
	}
	if err := store.InsertMany(ctx, seed); err != nil {
		t.Fatal(err)
	}

	if err := s.Sync(ctx, "chan", "https://www.youtube.com/c/chan"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	got, _ := store.Get("v1")
	if got.Downloaded != storage.StatusDone || got.Uploaded != storage.StatusDone {
		t.Errorf("existing record overwritten: %v/%v, want done/done", got.Downloaded, got.Uploaded)
	}
	if _, ok := store.Get("v2"); !ok {
		t.Error("new video v2 not inserted")
	}
}

func TestSyncDeduplicatesListing(t *testing.T) {
	dup := ytEntry("v1", "one", "20230101")
	lister := &fakeLister{entries: []Entry{dup, dup, ytEntry("v2", "two", "20230102")}}
	s, store := newTestSync(t, lister)
	s.ProbeWindow = 5

	if err := s.Sync(context.Background(), "chan", "https://www.youtube.com/c/chan"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	recs, _ := store.ListAll(context.Background())
	if len(recs) != 2 {
		t.Errorf("records = %d, want 2 after dedupe", len(recs))
	}
}

func TestSyncWritesSnapshot(t *testing.T) {
	lister := &fakeLister{entries: []Entry{ytEntry("v1", "one", "20230101")}}
	s, _ := newTestSync(t, lister)
	s.ProbeWindow = 5

	if err := s.Sync(context.Background(), "chan", "https://www.youtube.com/c/chan"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	path := filepath.Join(s.SnapshotDir, "chan_channel.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	var recs []storage.VideoRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "v1" {
		t.Errorf("snapshot = %+v, want single v1 record", recs)
	}
}

func TestSyncInvalidChannelURL(t *testing.T) {
	s, store := newTestSync(t, &fakeLister{})

	err := s.Sync(context.Background(), "chan", "https://vimeo.com/chan")
	if !errors.Is(err, ErrInvalidChannelURL) {
		t.Fatalf("Sync() error = %v, want ErrInvalidChannelURL", err)
	}
	if store.Mutations() != 0 {
		t.Error("invalid URL must not touch the store")
	}
}

func TestSyncListerError(t *testing.T) {
	wantErr := errors.New("network down")
	s, _ := newTestSync(t, &fakeLister{err: wantErr})

	err := s.Sync(context.Background(), "chan", "https://www.youtube.com/c/chan")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Sync() error = %v, want wrapped lister error", err)
	}
}

func TestParseListing(t *testing.T) {
	out := "20230101\tv1\tfirst video\n20230102\tv2\ttitle\twith\ttabs\n\n"
	entries, err := parseListing(PlatformYouTube, out)
	if err != nil {
		t.Fatalf("parseListing() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].URL != "https://www.youtube.com/watch?v=v1" {
		t.Errorf("URL = %q", entries[0].URL)
	}
	if entries[1].Title != "title\twith\ttabs" {
		t.Errorf("tabbed title = %q", entries[1].Title)
	}
}

func TestParseListingMalformed(t *testing.T) {
	if _, err := parseListing(PlatformYouTube, "just-one-field\n"); err == nil {
		t.Error("parseListing() = nil error for malformed line")
	}
}

func TestApiDate(t *testing.T) {
	if got := apiDate("2023-06-15T10:30:00Z", ""); got != "20230615" {
		t.Errorf("apiDate() = %q, want 20230615", got)
	}
	if got := apiDate("", "2023-06-16T00:00:00Z"); got != "20230616" {
		t.Errorf("apiDate() fallback = %q, want 20230616", got)
	}
	if got := apiDate("garbage", ""); got != "" {
		t.Errorf("apiDate() = %q, want empty for unparsable input", got)
	}
}
