package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseChannelsKeepsOrder(t *testing.T) {
	data := []byte(`first_channel: https://www.youtube.com/c/first
second_channel: https://www.youtube.com/c/second
third_channel: https://www.twitch.tv/third/videos
`)
	channels, err := ParseChannels(data)
	if err != nil {
		t.Fatalf("ParseChannels() error = %v", err)
	}
	want := []Channel{
		{"first_channel", "https://www.youtube.com/c/first"},
		{"second_channel", "https://www.youtube.com/c/second"},
		{"third_channel", "https://www.twitch.tv/third/videos"},
	}
	if len(channels) != len(want) {
		t.Fatalf("channels = %d, want %d", len(channels), len(want))
	}
	for i, ch := range channels {
		if ch != want[i] {
			t.Errorf("channels[%d] = %+v, want %+v", i, ch, want[i])
		}
	}
}

func TestParseChannelsRejectsNonMapping(t *testing.T) {
	if _, err := ParseChannels([]byte("- just\n- a\n- list\n")); err == nil {
		t.Error("ParseChannels() = nil error for a YAML sequence")
	}
}

func TestResolveChannelsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	if err := os.WriteFile(path, []byte("chan: https://www.youtube.com/c/chan\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	channels, err := ResolveChannels(path)
	if err != nil {
		t.Fatalf("ResolveChannels() error = %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "chan" {
		t.Errorf("channels = %+v, want single chan entry", channels)
	}
}

func TestResolveChannelsInline(t *testing.T) {
	channels, err := ResolveChannels("chan: https://www.youtube.com/c/chan")
	if err != nil {
		t.Fatalf("ResolveChannels() error = %v", err)
	}
	if len(channels) != 1 || channels[0].URL != "https://www.youtube.com/c/chan" {
		t.Errorf("channels = %+v", channels)
	}
}

func TestAppendChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")

	if err := AppendChannel(path, Channel{Name: "a", URL: "https://www.youtube.com/c/a"}); err != nil {
		t.Fatalf("AppendChannel() error = %v", err)
	}
	if err := AppendChannel(path, Channel{Name: "b", URL: "https://www.youtube.com/c/b"}); err != nil {
		t.Fatalf("AppendChannel() error = %v", err)
	}

	channels, err := LoadChannelsFile(path)
	if err != nil {
		t.Fatalf("LoadChannelsFile() error = %v", err)
	}
	if len(channels) != 2 || channels[0].Name != "a" || channels[1].Name != "b" {
		t.Errorf("channels = %+v, want a then b", channels)
	}
}

func TestAppendChannelRejectsDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	ch := Channel{Name: "a", URL: "https://www.youtube.com/c/a"}
	if err := AppendChannel(path, ch); err != nil {
		t.Fatal(err)
	}
	if err := AppendChannel(path, ch); err == nil || !strings.Contains(err.Error(), "already") {
		t.Errorf("AppendChannel() error = %v, want duplicate rejection", err)
	}
}

func TestLoadChannelsFileMissing(t *testing.T) {
	channels, err := LoadChannelsFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadChannelsFile() error = %v", err)
	}
	if channels != nil {
		t.Errorf("channels = %+v, want nil for missing file", channels)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MONGODB_CONNECTION_STRING", "mongodb://localhost:27017")
	t.Setenv("JSONBIN_KEY", "")
	t.Setenv("ARCHIVE_USER_EMAIL", "me@example.com")
	t.Setenv("IA_ACCESS_KEY", "access")
	t.Setenv("IA_SECRET_KEY", "secret")
	t.Setenv("YOUTUBE_API_KEY", "yt-key")
	t.Setenv("PRIORITIZE_CHANNELS", "alpha, beta")
	t.Setenv("CHANNELS", "alpha: https://www.youtube.com/c/alpha")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("MongoURI = %q", cfg.MongoURI)
	}
	if cfg.ArchiveEmail != "me@example.com" || cfg.ArchiveAccessKey != "access" {
		t.Errorf("archive fields = %q/%q", cfg.ArchiveEmail, cfg.ArchiveAccessKey)
	}
	if len(cfg.Prioritize) != 2 || cfg.Prioritize[0] != "alpha" || cfg.Prioritize[1] != "beta" {
		t.Errorf("Prioritize = %v", cfg.Prioritize)
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0].Name != "alpha" {
		t.Errorf("Channels = %+v", cfg.Channels)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			MongoURI: "mongodb://localhost",
			Channels: []Channel{{Name: "a", URL: "https://www.youtube.com/c/a"}},
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config: Validate() error = %v", err)
	}

	c := base()
	c.MongoURI = ""
	if err := c.Validate(); err == nil {
		t.Error("no backend secret: Validate() = nil error")
	}

	c = base()
	c.Channels = nil
	if err := c.Validate(); err == nil {
		t.Error("no channels: Validate() = nil error")
	}

	c = base()
	c.Channels = append(c.Channels, Channel{Name: "a", URL: "https://www.youtube.com/c/other"})
	if err := c.Validate(); err == nil {
		t.Error("duplicate channel name: Validate() = nil error")
	}

	c = base()
	c.Threads = -1
	if err := c.Validate(); err == nil {
		t.Error("negative threads: Validate() = nil error")
	}
}
