// Command ytarchive synchronizes channel catalogs into the document
// store and reconciles every pending video: download with yt-dlp, upload
// to archive.org, record the transition.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"ytarchive/catalog"
	"ytarchive/config"
	"ytarchive/engine"
	"ytarchive/ia"
	"ytarchive/media"
	"ytarchive/scheduler"
	"ytarchive/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("ytarchive: %v", err)
	}
}

func run() error {
	var (
		prioritize        = flag.String("prioritize", "", "comma-separated channel names to process first")
		skipList          = flag.String("skip-list", "", "comma-separated base-name substrings to never process")
		ignoreVideoIDs    = flag.String("ignore-video-ids", "", "comma-separated video ids to skip, or a path to a file with one id per line")
		forceRefresh      = flag.Bool("force-refresh", false, "reload each record from the store right before processing")
		threads           = flag.Int("threads", 0, "worker pool size (0 = derive from CPU count, 1 = sequential)")
		keepFailedUploads = flag.Bool("keep-failed-uploads", false, "keep downloaded files whose upload failed")
		useAria2c         = flag.Bool("use-aria2c", false, "download through the aria2c external downloader")
		createCollection  = flag.Bool("create-collection", false, "synchronize catalogs only, skip download/upload")
		addChannel        = flag.String("add-channel", "", "append name=url to the channels file and exit")
		showChannels      = flag.Bool("show-channels", false, "print the configured channels and exit")
		channelsFile      = flag.String("channels-file", "channels.yaml", "YAML channels file (name: url per line)")
		timeout           = flag.Duration("timeout", 0, "wall-clock limit for the whole run (0 = none)")
		noShuffle         = flag.Bool("no-shuffle", false, "process videos in catalog order instead of shuffling")
		quiet             = flag.Bool("quiet", false, "suppress progress output")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *addChannel != "" {
		return cmdAddChannel(*channelsFile, *addChannel)
	}
	if len(cfg.Channels) == 0 {
		channels, err := config.LoadChannelsFile(*channelsFile)
		if err != nil {
			return err
		}
		cfg.Channels = channels
	}
	if *showChannels {
		return cmdShowChannels(cfg.Channels)
	}

	if *prioritize != "" {
		cfg.Prioritize = splitFlag(*prioritize)
	}
	if *skipList != "" {
		cfg.SkipList = splitFlag(*skipList)
	}
	if *ignoreVideoIDs != "" {
		ids, err := resolveIDList(*ignoreVideoIDs)
		if err != nil {
			return err
		}
		cfg.IgnoreVideoIDs = ids
	}
	if *threads != 0 {
		cfg.Threads = *threads
	}
	cfg.ForceRefresh = cfg.ForceRefresh || *forceRefresh
	cfg.KeepFailedUploads = cfg.KeepFailedUploads || *keepFailedUploads
	cfg.UseAria2c = cfg.UseAria2c || *useAria2c
	cfg.Quiet = cfg.Quiet || *quiet
	if *noShuffle {
		cfg.Shuffle = false
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	store, err := storage.Open(ctx, storage.Options{
		MongoURI:   cfg.MongoURI,
		JSONBinKey: cfg.JSONBinKey,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Printf("ytarchive: close store: %v", err)
		}
	}()

	if err := syncCatalogs(ctx, cfg, store); err != nil {
		return err
	}
	if *createCollection {
		return nil
	}

	fetcher := media.NewFetcher(media.Options{
		UseAria2c: cfg.UseAria2c,
		Quiet:     cfg.Quiet,
	})
	uploader, err := ia.NewClient(cfg.ArchiveAccessKey, cfg.ArchiveSecretKey)
	if err != nil {
		return err
	}
	eng := engine.New(store, fetcher, uploader, engine.Options{
		ArchiveEmail:      cfg.ArchiveEmail,
		SkipList:          cfg.SkipList,
		IgnoreVideoIDs:    cfg.IgnoreVideoIDs,
		KeepFailedUploads: cfg.KeepFailedUploads,
		Quiet:             cfg.Quiet,
	})
	sched := scheduler.New(store, eng, scheduler.Options{
		Threads:            cfg.Threads,
		PrioritizeChannels: cfg.Prioritize,
		Shuffle:            cfg.Shuffle,
		ForceRefresh:       cfg.ForceRefresh,
		Quiet:              cfg.Quiet,
	})

	summary, err := sched.Run(ctx)
	if err != nil && !cfg.KeepFailedUploads &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// Interrupted mid-download; half-written files must not pass for
		// finished ones on the next run.
		if sweepErr := media.SweepPartials("."); sweepErr != nil {
			log.Printf("ytarchive: sweep partials: %v", sweepErr)
		}
	}
	log.Printf("ytarchive: processed %d videos: %d uploaded, %d unavailable, %d failed",
		summary.Processed, summary.Uploaded, summary.Unavailable, summary.Failed)
	return err
}

// syncCatalogs brings the stored catalog up to date for every channel.
// YouTube channels use the Data API when a key is configured; everything
// else lists through yt-dlp.
func syncCatalogs(ctx context.Context, cfg *config.Config, store storage.Store) error {
	ytdlp := catalog.NewYtdlpLister()
	var api catalog.Lister
	if cfg.YouTubeAPIKey != "" {
		l, err := catalog.NewAPILister(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			return err
		}
		api = l
	}

	for _, ch := range cfg.Channels {
		if err := ctx.Err(); err != nil {
			return err
		}
		lister := catalog.Lister(ytdlp)
		if platform, err := catalog.PlatformFor(ch.URL); err == nil && platform == catalog.PlatformYouTube && api != nil {
			lister = api
		}
		sync := catalog.NewSynchronizer(store, lister)
		sync.Quiet = cfg.Quiet
		if err := sync.Sync(ctx, ch.Name, ch.URL); err != nil {
			return fmt.Errorf("sync %s: %w", ch.Name, err)
		}
	}
	return nil
}

// cmdAddChannel parses "name=url" and appends it to the channels file.
func cmdAddChannel(path, entry string) error {
	name, url, found := strings.Cut(entry, "=")
	if !found {
		return fmt.Errorf("-add-channel wants name=url, got %q", entry)
	}
	ch := config.Channel{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)}
	if err := config.AppendChannel(path, ch); err != nil {
		return err
	}
	fmt.Printf("added %s to %s\n", ch.Name, path)
	return nil
}

// cmdShowChannels prints the configured channels.
func cmdShowChannels(channels []config.Channel) error {
	if len(channels) == 0 {
		fmt.Println("no channels configured")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tURL")
	for _, ch := range channels {
		fmt.Fprintf(w, "%s\t%s\n", ch.Name, ch.URL)
	}
	return w.Flush()
}

// resolveIDList treats the value as a file path when one exists,
// otherwise as an inline comma-separated list.
func resolveIDList(value string) ([]string, error) {
	data, err := os.ReadFile(value)
	if err != nil {
		if os.IsNotExist(err) {
			return splitFlag(value), nil
		}
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}

func splitFlag(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
