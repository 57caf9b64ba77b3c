// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Lyrics   LyricsConfig   `yaml:"lyrics"`
	Scan     ScanConfig     `yaml:"scan"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Policy   PolicyConfig   `yaml:"policy"`
}

// ServerConfig represents the dashboard API server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
}

// DatabaseConfig represents the sqlite database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" default:"ocd_saver.db"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
}

// LyricsConfig represents the lyrics provider configuration.
type LyricsConfig struct {
	BaseURL    string `yaml:"base_url" default:"https://lrclib.net"`
	UserAgent  string `yaml:"user_agent" default:"spotify-ocd-saver/0.1.0"`
	TimeoutSec int    `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
}

// ScanConfig represents lyrics scanning configuration.
type ScanConfig struct {
	// Tail span applied to the final lyrics line when the track
	// duration is unknown.
	TailMs           int64 `yaml:"tail_ms" default:"5000" validate:"gte=0"`
	QueueIntervalSec int   `yaml:"queue_interval_sec" default:"300" validate:"gte=10"`
	RetryNoResults   bool  `yaml:"retry_no_results"`
}

// MonitorConfig represents playback monitoring configuration.
type MonitorConfig struct {
	PollIntervalMs     int   `yaml:"poll_interval_ms" default:"1000" validate:"gte=100"`
	MinPollIntervalMs  int   `yaml:"min_poll_interval_ms" default:"250" validate:"gte=50"`
	IdlePollIntervalMs int   `yaml:"idle_poll_interval_ms" default:"5000" validate:"gte=500"`
	PreSkipBufferMs    int64 `yaml:"pre_skip_buffer_ms" default:"3000" validate:"gte=0,lte=30000"`
	GapToleranceMs     int64 `yaml:"gap_tolerance_ms" default:"5000" validate:"gte=0,lte=60000"`
	LandingPadMs       int64 `yaml:"landing_pad_ms" default:"100" validate:"gte=0,lte=5000"`
}

// PolicyConfig represents the default playback policy. Settings holds
// per-key overrides decoded by the policy package.
type PolicyConfig struct {
	Mode          string         `yaml:"mode" default:"skip_windows" validate:"oneof=skip_windows skip_song"`
	UnknownLyrics string         `yaml:"unknown_lyrics" default:"dont_skip" validate:"oneof=skip dont_skip skip_if_plain"`
	Settings      map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("OCD_SAVER_DB_PATH"); v != "" {
		c.Database.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Monitor.MinPollIntervalMs > c.Monitor.PollIntervalMs {
		return errors.Newf("min_poll_interval_ms (%d) must not exceed poll_interval_ms (%d)",
			c.Monitor.MinPollIntervalMs, c.Monitor.PollIntervalMs)
	}
	if c.Monitor.PollIntervalMs > c.Monitor.IdlePollIntervalMs {
		return errors.Newf("poll_interval_ms (%d) must not exceed idle_poll_interval_ms (%d)",
			c.Monitor.PollIntervalMs, c.Monitor.IdlePollIntervalMs)
	}

	return nil
}
