// Package media wraps yt-dlp as the opaque "fetch media for URL" capability
// consumed by the reconciliation engine.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Sentinel errors for fetch outcomes the engine must distinguish.
var (
	// ErrUnavailable means the source reports the video as private or
	// removed. Permanent for this video.
	ErrUnavailable = errors.New("media: video unavailable")
	// ErrNoSpace means the local disk is full. Fatal for the whole run.
	ErrNoSpace = errors.New("media: no space left on device")
	// ErrYtdlpNotInstalled means the yt-dlp binary was not found.
	ErrYtdlpNotInstalled = errors.New("media: yt-dlp not installed")
)

// partialSuffixes are the temporary artifacts yt-dlp (and aria2c) leave
// behind when a download is interrupted.
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".aria2"}

// Options configures fetch behavior.
type Options struct {
	// YtdlpPath is the path to the yt-dlp executable ("yt-dlp" from PATH
	// when empty).
	YtdlpPath string
	// Format is a yt-dlp format preference string. Empty selects the
	// default best format.
	Format string
	// UseAria2c routes the transfer through the aria2c external
	// downloader.
	UseAria2c bool
	// Quiet suppresses yt-dlp progress output.
	Quiet bool
}

// Fetcher downloads source videos with yt-dlp.
type Fetcher struct {
	opts Options
}

// NewFetcher returns a Fetcher with the given options.
func NewFetcher(opts Options) *Fetcher {
	if opts.YtdlpPath == "" {
		opts.YtdlpPath = "yt-dlp"
	}
	return &Fetcher{opts: opts}
}

// Probe asks the source for the video's container extension without
// downloading. It returns ErrUnavailable when the source reports the
// video private or removed.
func (f *Fetcher) Probe(ctx context.Context, url string) (string, error) {
	args := []string{"--skip-download", "--no-warnings", "--print", "ext", url}
	out, err := f.run(ctx, args)
	if err != nil {
		return "", err
	}
	ext := strings.TrimSpace(out)
	if ext == "" {
		return "", fmt.Errorf("media: probe %s: empty extension", url)
	}
	return "." + ext, nil
}

// Fetch downloads the video to the exact output path. The error is one of
// the package sentinels when classifiable, otherwise a soft failure the
// caller may retry on a later run.
func (f *Fetcher) Fetch(ctx context.Context, url, output string) error {
	args := []string{"-o", output, "--no-warnings"}
	if f.opts.Format != "" {
		args = append(args, "-f", f.opts.Format)
	}
	if f.opts.Quiet {
		args = append(args, "-q", "--no-progress")
	}
	if f.opts.UseAria2c {
		args = append(args, "--downloader", "aria2c")
	}
	args = append(args, url)

	_, err := f.run(ctx, args)
	return err
}

// run executes yt-dlp and classifies failures.
func (f *Fetcher) run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, f.opts.YtdlpPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrYtdlpNotInstalled
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classify(err, stderr.String())
	}
	return stdout.String(), nil
}

// classify maps a yt-dlp failure to a package sentinel based on the
// error text the tool emits.
func classify(err error, stderr string) error {
	msg := stderr
	if msg == "" {
		msg = err.Error()
	}
	switch {
	case strings.Contains(msg, "Private video"),
		strings.Contains(msg, "Video unavailable"):
		return fmt.Errorf("%w: %s", ErrUnavailable, firstLine(msg))
	case strings.Contains(msg, "No space left on device"):
		return fmt.Errorf("%w: %s", ErrNoSpace, firstLine(msg))
	default:
		return fmt.Errorf("media: fetch failed: %w: %s", err, firstLine(msg))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// CleanupPartial removes temporary artifacts left behind for the given
// base name after a failed download.
func (f *Fetcher) CleanupPartial(dir, base string) error {
	return removeMatching(dir, func(name string) bool {
		return strings.Contains(name, base) && hasPartialSuffix(name)
	})
}

// SweepPartials removes every partial artifact and stray media file in
// dir. Used on interrupt so half-downloaded files don't masquerade as
// completed downloads on the next run.
func SweepPartials(dir string) error {
	return removeMatching(dir, func(name string) bool {
		return hasPartialSuffix(name) || strings.HasSuffix(name, ".mp4")
	})
}

func hasPartialSuffix(name string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func removeMatching(dir string, match func(string) bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() || !match(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
