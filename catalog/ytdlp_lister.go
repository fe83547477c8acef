package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrYtdlpNotInstalled means the yt-dlp binary was not found on PATH.
var ErrYtdlpNotInstalled = errors.New("catalog: yt-dlp not installed")

// listSeparator joins the printed fields of one playlist entry. A tab
// cannot appear in upload dates or video ids, and yt-dlp strips newlines
// from titles.
const listSeparator = "\t"

// YtdlpLister lists channel uploads with a yt-dlp subprocess. It works
// for every platform yt-dlp supports and is the fallback when no Data
// API key is configured.
type YtdlpLister struct {
	// Path is the yt-dlp executable ("yt-dlp" from PATH when empty).
	Path string
}

// NewYtdlpLister returns a lister using yt-dlp from PATH.
func NewYtdlpLister() *YtdlpLister {
	return &YtdlpLister{Path: "yt-dlp"}
}

// List prints one line per upload and parses it back. limit > 0 stops
// after the most recent limit entries.
func (l *YtdlpLister) List(ctx context.Context, channelURL string, limit int) ([]Entry, error) {
	platform, err := PlatformFor(channelURL)
	if err != nil {
		return nil, err
	}

	path := l.Path
	if path == "" {
		path = "yt-dlp"
	}
	args := []string{
		"--skip-download",
		"--ignore-errors",
		"--no-warnings",
		"--print", strings.Join([]string{"%(upload_date)s", "%(id)s", "%(title)s"}, listSeparator),
	}
	if limit > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(limit))
	}
	args = append(args, channelURL)

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrYtdlpNotInstalled
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// --ignore-errors makes partial failures exit non-zero even when
		// some entries printed; only a fully empty listing is fatal.
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("catalog: list %s: %w: %s", channelURL, err, firstLine(stderr.String()))
		}
	}

	return parseListing(platform, stdout.String())
}

// parseListing converts printed lines into entries.
func parseListing(p Platform, out string) ([]Entry, error) {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, listSeparator, 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("catalog: malformed listing line %q", line)
		}
		entries = append(entries, Entry{
			UploadDate: parts[0],
			URL:        p.WatchURLBase() + parts[1],
			Title:      parts[2],
		})
	}
	return entries, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
