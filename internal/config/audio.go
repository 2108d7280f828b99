package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/glizzus/terminus/internal/audio"
	"github.com/glizzus/terminus/internal/opus"
	"github.com/sethvargo/go-envconfig"
)

type AudioConfig struct {
	// FfmpegCommand is the transcoder template. A bare name such as ffmpeg or
	// ffmpeg.exe gets the standard arguments.
	FfmpegCommand string `env:"AUDIO_FFMPEG_COMMAND, default=ffmpeg"`
	Format        string `env:"AUDIO_FORMAT, default=ogg"`

	ChannelID     string `env:"AUDIO_CHANNEL_ID"`
	WeedChannelID string `env:"AUDIO_WEED_CHANNEL_ID"`

	AssetsDir   string `env:"AUDIO_ASSETS_DIR, default=assets"`
	ClipCatalog string `env:"AUDIO_CLIP_CATALOG, default=assets/clips.yaml"`
	ClipPolicy  string `env:"AUDIO_CLIP_POLICY, default=append"`

	// ClipRate is the minimum gap between regex-triggered clips per guild.
	ClipRate        time.Duration `env:"AUDIO_CLIP_RATE, default=10s"`
	StallTimeout    time.Duration `env:"AUDIO_STALL_TIMEOUT, default=15s"`
	ConnectTimeout  time.Duration `env:"AUDIO_CONNECT_TIMEOUT, default=10s"`
	ConnectAttempts int           `env:"AUDIO_CONNECT_ATTEMPTS, default=3"`
	IdleTimeout     time.Duration `env:"AUDIO_IDLE_TIMEOUT, default=5m"`
	SendTimeout     time.Duration `env:"AUDIO_SEND_TIMEOUT, default=1m"`

	// ClipStore is "dir" or "minio".
	ClipStore string `env:"AUDIO_CLIP_STORE, default=dir"`
	// History is "memory" or "postgres".
	History string `env:"AUDIO_HISTORY, default=memory"`
	// Blacklist is "memory" or "redis".
	Blacklist         string   `env:"AUDIO_BLACKLIST, default=memory"`
	BlacklistChannels []string `env:"BLACKLIST_CHANNELS"`

	policy audio.ClipPolicy
	format opus.Format
}

func NewAudioConfigFromEnv() (*AudioConfig, error) {
	var cfg AudioConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AudioConfig) validate() error {
	var err error
	if c.policy, err = audio.ParseClipPolicy(c.ClipPolicy); err != nil {
		return fmt.Errorf("AUDIO_CLIP_POLICY: %w", err)
	}
	if c.format, err = opus.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("AUDIO_FORMAT: %w", err)
	}
	if c.ConnectAttempts < 1 {
		return fmt.Errorf("AUDIO_CONNECT_ATTEMPTS must be at least 1, got %d", c.ConnectAttempts)
	}

	for _, b := range []struct {
		env, value string
		allowed    []string
	}{
		{"AUDIO_CLIP_STORE", c.ClipStore, []string{"dir", "minio"}},
		{"AUDIO_HISTORY", c.History, []string{"memory", "postgres"}},
		{"AUDIO_BLACKLIST", c.Blacklist, []string{"memory", "redis"}},
	} {
		if !slices.Contains(b.allowed, b.value) {
			return fmt.Errorf("%s: unknown backend %q, want one of %v", b.env, b.value, b.allowed)
		}
	}
	return nil
}

// Engine returns the playback engine settings.
func (c *AudioConfig) Engine() audio.Config {
	return audio.Config{
		TranscoderCommand: c.FfmpegCommand,
		DefaultChannelID:  c.ChannelID,
		ClipPolicy:        c.policy,
		ConnectTimeout:    c.ConnectTimeout,
		ConnectAttempts:   c.ConnectAttempts,
		IdleTimeout:       c.IdleTimeout,
	}
}

// TranscoderOptions returns the options for opus.NewTranscoder.
func (c *AudioConfig) TranscoderOptions() []opus.TranscoderOption {
	return []opus.TranscoderOption{
		opus.WithFormat(c.format),
		opus.WithStallTimeout(c.StallTimeout),
	}
}

// AssetPath resolves a file name relative to the assets directory.
func (c *AudioConfig) AssetPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.AssetsDir, name)
}
