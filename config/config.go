// Package config manages application configuration.
package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel is one source channel to archive.
type Channel struct {
	// Name is the operator-chosen channel label, used in identifiers and
	// snapshot file names.
	Name string
	// URL is the channel's upload listing URL.
	URL string
}

// Config holds all application configuration for archival runs.
type Config struct {
	// MongoURI is the MongoDB connection string. Takes precedence over
	// JSONBinKey when both are set.
	MongoURI string
	// JSONBinKey is the JSONBin master key for the blob backend.
	JSONBinKey string

	// Channels are the source channels to synchronize and archive.
	Channels []Channel
	// Prioritize lists channel names whose videos are processed first.
	Prioritize []string
	// SkipList entries match videos to never process, by base-name
	// substring.
	SkipList []string
	// IgnoreVideoIDs are exact record ids to leave untouched.
	IgnoreVideoIDs []string

	// ArchiveEmail is the archive.org account email owning the items.
	ArchiveEmail string
	// ArchiveAccessKey and ArchiveSecretKey are the archive.org S3-style
	// credentials.
	ArchiveAccessKey string
	ArchiveSecretKey string
	// YouTubeAPIKey enables the Data API catalog lister. Empty falls back
	// to listing with yt-dlp.
	YouTubeAPIKey string

	// Threads is the worker pool size (0 = derive from CPU count).
	Threads int
	// ForceRefresh reloads each record from the store before processing.
	ForceRefresh bool
	// KeepFailedUploads retains downloaded files whose upload failed.
	KeepFailedUploads bool
	// UseAria2c routes downloads through the aria2c external downloader.
	UseAria2c bool
	// Shuffle randomizes processing order between runs.
	Shuffle bool
	// Quiet suppresses progress logging.
	Quiet bool
	// Timeout is the wall-clock watchdog for the whole run (0 = none).
	Timeout time.Duration
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		Shuffle: true,
	}
}

// Load builds configuration from environment variables.
// Priority: env vars > defaults. Flags are applied on top by the caller.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() error {
	c.MongoURI = os.Getenv("MONGODB_CONNECTION_STRING")
	c.JSONBinKey = os.Getenv("JSONBIN_KEY")
	c.ArchiveEmail = os.Getenv("ARCHIVE_USER_EMAIL")
	c.ArchiveAccessKey = os.Getenv("IA_ACCESS_KEY")
	c.ArchiveSecretKey = os.Getenv("IA_SECRET_KEY")
	c.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")

	if v := os.Getenv("PRIORITIZE_CHANNELS"); v != "" {
		c.Prioritize = splitList(v)
	}
	if v := os.Getenv("SCAN_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Threads = n
		}
	}
	if v := os.Getenv("CHANNELS"); v != "" {
		channels, err := ResolveChannels(v)
		if err != nil {
			return err
		}
		c.Channels = channels
	}
	return nil
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.MongoURI == "" && c.JSONBinKey == "" {
		return fmt.Errorf("either MONGODB_CONNECTION_STRING or JSONBIN_KEY must be set")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("no channels configured")
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must be non-negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" || ch.URL == "" {
			return fmt.Errorf("channel entries need both a name and a URL, got %q: %q", ch.Name, ch.URL)
		}
		if seen[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = true
	}
	return nil
}

// ResolveChannels turns the CHANNELS setting into a channel list. The
// value may be an http(s) URL to fetch, a path to a local YAML file, or
// the YAML document itself.
func ResolveChannels(value string) ([]Channel, error) {
	switch {
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		resp, err := http.Get(value)
		if err != nil {
			return nil, fmt.Errorf("fetch channels %s: %w", value, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch channels %s: status %d", value, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return ParseChannels(data)
	default:
		if data, err := os.ReadFile(value); err == nil {
			return ParseChannels(data)
		}
		return ParseChannels([]byte(value))
	}
}

// ParseChannels parses a YAML mapping of channel name to URL, keeping
// the document's order so prioritization and logs stay predictable.
func ParseChannels(data []byte) ([]Channel, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse channels: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse channels: expected a name-to-url mapping")
	}

	channels := make([]Channel, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("parse channels: %s: expected a URL string", key.Value)
		}
		channels = append(channels, Channel{Name: key.Value, URL: val.Value})
	}
	return channels, nil
}

// AppendChannel adds one channel to a YAML channels file, creating the
// file when missing. Duplicate names are rejected.
func AppendChannel(path string, ch Channel) error {
	if ch.Name == "" || ch.URL == "" {
		return fmt.Errorf("channel needs both a name and a URL")
	}
	existing, err := loadChannelsFile(path)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Name == ch.Name {
			return fmt.Errorf("channel %q already in %s", ch.Name, path)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s: %s\n", ch.Name, ch.URL)
	return err
}

// LoadChannelsFile reads a YAML channels file. A missing file yields an
// empty list.
func LoadChannelsFile(path string) ([]Channel, error) {
	return loadChannelsFile(path)
}

func loadChannelsFile(path string) ([]Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return ParseChannels(data)
}

// splitList splits a comma- or whitespace-separated env value.
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
