package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Storage  StorageConfig  `toml:"storage"`
	Audio    AudioConfig    `toml:"audio"`
	Realtime RealtimeConfig `toml:"realtime"`
	Polish   PolishConfig   `toml:"polish"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	StaticFilesDir     string   `toml:"static_files_dir"`
	MaxConnections     int      `toml:"max_connections"`
	ShutdownTimeoutSec int      `toml:"shutdown_timeout_sec"`
}

// LoggingConfig contains logger configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StorageConfig contains SQLite configuration
type StorageConfig struct {
	Path string `toml:"path"`
}

// AudioConfig contains microphone capture configuration
type AudioConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate int     `toml:"sample_rate"`
	FrameSize  int     `toml:"frame_size"`
	LevelGain  float64 `toml:"level_gain"`
}

// RealtimeConfig contains the OpenAI realtime transcription configuration.
// These values are sent once at credential-issuance time and are fixed for
// the lifetime of a session.
type RealtimeConfig struct {
	APIKey            string  `toml:"api_key"`
	URL               string  `toml:"url"`
	TokenURL          string  `toml:"token_url"`
	Model             string  `toml:"model"`
	Language          string  `toml:"language"`
	VADThreshold      float64 `toml:"vad_threshold"`
	PrefixPaddingMs   int     `toml:"prefix_padding_ms"`
	SilenceDurationMs int     `toml:"silence_duration_ms"`
	StopGraceMs       int     `toml:"stop_grace_ms"`
	ErrorCooldownMs   int     `toml:"error_cooldown_ms"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// PolishConfig contains transcript post-processing configuration
type PolishConfig struct {
	Enabled         bool   `toml:"enabled"`
	Model           string `toml:"model"`
	IntervalSeconds int    `toml:"interval_seconds"`
	BatchSize       int    `toml:"batch_size"`
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               8800,
			CORSAllowedOrigins: []string{"*"},
			StaticFilesDir:     "web",
			MaxConnections:     256,
			ShutdownTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Path: "voxnote.db",
		},
		Audio: AudioConfig{
			Enabled:    true,
			SampleRate: 24000,
			FrameSize:  4096,
			LevelGain:  35.0,
		},
		Realtime: RealtimeConfig{
			URL:               "wss://api.openai.com/v1/realtime",
			TokenURL:          "https://api.openai.com/v1/realtime/client_secrets",
			Model:             "gpt-4o-transcribe",
			Language:          "en",
			VADThreshold:      0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
			StopGraceMs:       1000,
			ErrorCooldownMs:   3000,
			TimeoutSeconds:    30,
		},
		Polish: PolishConfig{
			Enabled:         false,
			Model:           "gpt-4o-mini",
			IntervalSeconds: 30,
			BatchSize:       10,
		},
	}
}

// Load reads the configuration file at path, applying defaults for anything
// the file does not set. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// The API key is usually supplied via the environment, not the file
	if cfg.Realtime.APIKey == "" {
		cfg.Realtime.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio sample rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("invalid audio frame size: %d", c.Audio.FrameSize)
	}
	if c.Realtime.StopGraceMs < 0 {
		return fmt.Errorf("invalid stop grace: %d", c.Realtime.StopGraceMs)
	}
	return nil
}

// StopGrace returns the stop grace window as a duration
func (c *RealtimeConfig) StopGrace() time.Duration {
	return time.Duration(c.StopGraceMs) * time.Millisecond
}

// ErrorCooldown returns the error cooldown as a duration
func (c *RealtimeConfig) ErrorCooldown() time.Duration {
	return time.Duration(c.ErrorCooldownMs) * time.Millisecond
}
