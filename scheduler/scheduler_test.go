package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ytarchive/engine"
	"ytarchive/storage"
)

// fakeProcessor records the order records arrive in and replays scripted
// outcomes.
type fakeProcessor struct {
	mu       sync.Mutex
	ids      []string
	outcomes map[string]engine.Outcome
	errs     map[string]error
}

func (p *fakeProcessor) Process(ctx context.Context, rec storage.VideoRecord) (engine.Outcome, error) {
	p.mu.Lock()
	p.ids = append(p.ids, rec.ID)
	p.mu.Unlock()
	if err := p.errs[rec.ID]; err != nil {
		return engine.OutcomeNoop, err
	}
	return p.outcomes[rec.ID], nil
}

func (p *fakeProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func rec(id, channel string) storage.VideoRecord {
	return storage.VideoRecord{
		ID:          id,
		URL:         "https://www.youtube.com/watch?v=" + id,
		Title:       id,
		UploadDate:  "20230101",
		ChannelName: channel,
		ChannelURL:  "https://www.youtube.com/c/" + channel,
	}
}

func seedStore(t *testing.T, recs ...storage.VideoRecord) *storage.MemStore {
	t.Helper()
	store := storage.NewMemStore()
	if err := store.InsertMany(context.Background(), recs); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestPrioritize(t *testing.T) {
	recs := []storage.VideoRecord{
		rec("1", "alpha"), rec("2", "beta"), rec("3", "alpha"), rec("4", "gamma"),
	}
	got := Prioritize(recs, []string{"Gamma"})

	want := []string{"4", "1", "2", "3"}
	for i, r := range got {
		if r.ID != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

func TestPrioritizeMultipleChannels(t *testing.T) {
	recs := []storage.VideoRecord{
		rec("1", "alpha"), rec("2", "beta"), rec("3", "alpha"), rec("4", "gamma"),
	}
	got := Prioritize(recs, []string{"beta", "alpha"})

	want := []string{"2", "1", "3", "4"}
	for i, r := range got {
		if r.ID != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

func TestFilterDropsTerminal(t *testing.T) {
	done := rec("done", "alpha")
	done.Downloaded = storage.StatusDone
	done.Uploaded = storage.StatusDone
	gone := rec("gone", "alpha")
	gone.Downloaded = storage.StatusUnavailable
	gone.Uploaded = storage.StatusUnavailable
	half := rec("half", "alpha")
	half.Downloaded = storage.StatusDone

	got := Filter([]storage.VideoRecord{done, gone, half, rec("new", "alpha")})
	want := []string{"half", "new"}
	if len(got) != len(want) {
		t.Fatalf("filtered = %v, want %v", ids(got), want)
	}
	for i, r := range got {
		if r.ID != want[i] {
			t.Fatalf("filtered = %v, want %v", ids(got), want)
		}
	}
}

func TestRunSequentialOrderAndSummary(t *testing.T) {
	store := seedStore(t, rec("1", "alpha"), rec("2", "beta"), rec("3", "alpha"), rec("4", "gamma"))
	proc := &fakeProcessor{outcomes: map[string]engine.Outcome{
		"1": engine.OutcomeUploaded,
		"2": engine.OutcomeFailed,
		"3": engine.OutcomeUploaded,
		"4": engine.OutcomeUnavailable,
	}}
	s := New(store, proc, Options{Threads: 1, PrioritizeChannels: []string{"gamma"}, Quiet: true})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"4", "1", "2", "3"}
	got := proc.processed()
	for i, id := range got {
		if id != want[i] {
			t.Fatalf("processing order = %v, want %v", got, want)
		}
	}
	if summary.Processed != 4 || summary.Uploaded != 2 || summary.Unavailable != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 4/2/1/1", summary)
	}
}

func TestRunPoolProcessesAll(t *testing.T) {
	var recs []storage.VideoRecord
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		recs = append(recs, rec(id, "alpha"))
	}
	store := seedStore(t, recs...)
	proc := &fakeProcessor{}
	s := New(store, proc, Options{Threads: 4, Quiet: true})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Processed != len(recs) {
		t.Errorf("processed = %d, want %d", summary.Processed, len(recs))
	}
	if got := len(proc.processed()); got != len(recs) {
		t.Errorf("engine calls = %d, want %d", got, len(recs))
	}
}

func TestRunFatalErrorStopsRun(t *testing.T) {
	store := seedStore(t, rec("1", "alpha"), rec("2", "alpha"), rec("3", "alpha"))
	fatal := errors.New("no space left on device")
	proc := &fakeProcessor{errs: map[string]error{"1": fatal}}
	s := New(store, proc, Options{Threads: 1, Quiet: true})

	_, err := s.Run(context.Background())
	if !errors.Is(err, fatal) {
		t.Fatalf("Run() error = %v, want the fatal error", err)
	}
	if got := len(proc.processed()); got == 3 {
		t.Error("run did not stop after the fatal error")
	}
}

// raceStore simulates a concurrent run finishing record "1" right after
// the scheduler takes its initial listing.
type raceStore struct {
	*storage.MemStore
	once sync.Once
}

func (s *raceStore) ListAll(ctx context.Context) ([]storage.VideoRecord, error) {
	recs, err := s.MemStore.ListAll(ctx)
	s.once.Do(func() {
		s.MemStore.Upsert(ctx, "1", storage.Fields{
			"downloaded": storage.StatusDone,
			"uploaded":   storage.StatusDone,
		})
	})
	return recs, err
}

func TestRunForceRefreshSkipsFreshlyTerminal(t *testing.T) {
	store := &raceStore{MemStore: seedStore(t, rec("1", "alpha"), rec("2", "alpha"))}
	proc := &fakeProcessor{}
	s := New(store, proc, Options{Threads: 1, ForceRefresh: true, Quiet: true})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := proc.processed()
	if len(got) != 1 || got[0] != "2" {
		t.Errorf("processed = %v, want [2]", got)
	}
	if summary.Processed != 1 {
		t.Errorf("summary.Processed = %d, want 1", summary.Processed)
	}
}

func TestPoolSize(t *testing.T) {
	tests := []struct {
		requested, queued, want int
	}{
		{1, 100, 1},
		{8, 100, 8},
		{64, 100, maxPoolSize},
		{8, 3, 3},
		{0, 1, 1},
	}
	for _, tt := range tests {
		if got := poolSize(tt.requested, tt.queued); got != tt.want {
			t.Errorf("poolSize(%d, %d) = %d, want %d", tt.requested, tt.queued, got, tt.want)
		}
	}
}

func ids(recs []storage.VideoRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
