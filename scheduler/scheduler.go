// Package scheduler orders pending video records and fans them out to
// the reconciliation engine, sequentially or over a bounded worker pool.
package scheduler

import (
	"context"
	"log"
	"math/rand"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ytarchive/engine"
	"ytarchive/storage"
)

// maxPoolSize caps the worker pool regardless of CPU count; the work is
// network-bound, not CPU-bound.
const maxPoolSize = 32

// Processor advances a single record. Implemented by engine.Engine.
type Processor interface {
	Process(ctx context.Context, rec storage.VideoRecord) (engine.Outcome, error)
}

// Options configures a run.
type Options struct {
	// Threads is the worker pool size. 0 picks a size from the CPU
	// count; 1 runs sequentially.
	Threads int
	// PrioritizeChannels moves records from these channels to the front
	// of the queue, in the order given. Matching ignores case.
	PrioritizeChannels []string
	// Shuffle randomizes the queue before prioritizing, spreading load
	// across channels between runs.
	Shuffle bool
	// ForceRefresh reloads each record from the store right before
	// processing, picking up writes from concurrent runs.
	ForceRefresh bool
	// Quiet suppresses progress logging.
	Quiet bool
}

// Summary counts what one run did.
type Summary struct {
	// Processed is the number of records handed to the engine.
	Processed int
	// Uploaded is how many videos reached the archive this run.
	Uploaded int
	// Unavailable is how many records were retired as gone from the
	// source.
	Unavailable int
	// Failed is how many records hit a soft failure and will be retried
	// on a later run.
	Failed int
}

// Scheduler runs the engine over every actionable record.
type Scheduler struct {
	store storage.Store
	proc  Processor
	opts  Options
}

// New returns a Scheduler.
func New(store storage.Store, proc Processor, opts Options) *Scheduler {
	return &Scheduler{store: store, proc: proc, opts: opts}
}

// Run loads the catalog, drops finished records, orders the rest and
// processes them. The first fatal engine error (disk full, canceled
// context) stops the pool and is returned with the partial summary.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		return Summary{}, err
	}

	queue := Filter(recs)
	if s.opts.Shuffle {
		rand.Shuffle(len(queue), func(i, j int) {
			queue[i], queue[j] = queue[j], queue[i]
		})
	}
	queue = Prioritize(queue, s.opts.PrioritizeChannels)

	if len(queue) == 0 {
		s.logf("scheduler: nothing to do")
		return Summary{}, nil
	}
	workers := poolSize(s.opts.Threads, len(queue))
	s.logf("scheduler: processing %d videos with %d workers", len(queue), workers)

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range queue {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if s.opts.ForceRefresh {
				fresh, ok, err := s.refresh(gctx, rec.ID)
				if err != nil {
					return err
				}
				if !ok || fresh.Terminal() {
					return nil
				}
				rec = fresh
			}
			outcome, err := s.proc.Process(gctx, rec)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			switch outcome {
			case engine.OutcomeUploaded:
				summary.Uploaded++
			case engine.OutcomeUnavailable:
				summary.Unavailable++
			case engine.OutcomeFailed:
				summary.Failed++
			}
			return nil
		})
	}
	err = g.Wait()
	return summary, err
}

// refresh reloads one record by id. ok is false when a concurrent run
// removed it.
func (s *Scheduler) refresh(ctx context.Context, id string) (storage.VideoRecord, bool, error) {
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		return storage.VideoRecord{}, false, err
	}
	for _, r := range recs {
		if r.ID == id {
			return r, true, nil
		}
	}
	return storage.VideoRecord{}, false, nil
}

// Filter drops records that need no further work.
func Filter(recs []storage.VideoRecord) []storage.VideoRecord {
	out := make([]storage.VideoRecord, 0, len(recs))
	for _, r := range recs {
		if !r.Terminal() {
			out = append(out, r)
		}
	}
	return out
}

// Prioritize stably moves records whose channel appears in channels to
// the front, keeping the channels' given order and each channel's
// internal order.
func Prioritize(recs []storage.VideoRecord, channels []string) []storage.VideoRecord {
	if len(channels) == 0 {
		return recs
	}
	rank := make(map[string]int, len(channels))
	for i, c := range channels {
		rank[strings.ToLower(c)] = i
	}

	out := make([]storage.VideoRecord, 0, len(recs))
	for i := range channels {
		for _, r := range recs {
			if pos, ok := rank[strings.ToLower(r.ChannelName)]; ok && pos == i {
				out = append(out, r)
			}
		}
	}
	for _, r := range recs {
		if _, ok := rank[strings.ToLower(r.ChannelName)]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// poolSize resolves the worker count: an explicit request is clamped to
// the cap, otherwise the size scales with the CPU count the way a
// network-bound pool wants.
func poolSize(requested, queued int) int {
	n := requested
	if n <= 0 {
		n = runtime.NumCPU() + 4
	}
	if n > maxPoolSize {
		n = maxPoolSize
	}
	if n > queued {
		n = queued
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (s *Scheduler) logf(format string, args ...any) {
	if !s.opts.Quiet {
		log.Printf(format, args...)
	}
}
