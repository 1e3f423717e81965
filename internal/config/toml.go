// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultHost     = "https://keyrace.app"
	DefaultDebounce = 2 * time.Second
	DefaultTimeout  = 10 * time.Second
	DefaultListen   = "127.0.0.1:7744"
	DefaultLogLevel = "info"

	// TokenEnv overrides the sync token from the config file.
	TokenEnv = "KEYRACE_TOKEN"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Sync   SyncConfig   `toml:"sync"`
	Track  TrackConfig  `toml:"track"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

// SyncConfig maps leaderboard settings.
type SyncConfig struct {
	Host        *string `toml:"host"`
	Token       *string `toml:"token"`
	OnlyFollows *bool   `toml:"only-follows"`
	Debounce    *string `toml:"debounce"`
	Timeout     *string `toml:"timeout"`
}

// TrackConfig maps key capture settings.
type TrackConfig struct {
	Device *string `toml:"device"`
}

// ServerConfig maps the local HTTP API settings.
type ServerConfig struct {
	Listen *string `toml:"listen"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
}

// Settings is the resolved runtime configuration.
type Settings struct {
	Host        string
	Token       string
	OnlyFollows bool
	Debounce    time.Duration
	Timeout     time.Duration
	Device      string
	Listen      string
	LogLevel    string
}

// Defaults returns settings used when neither config nor flags provide a value.
func Defaults() Settings {
	return Settings{
		Host:     DefaultHost,
		Debounce: DefaultDebounce,
		Timeout:  DefaultTimeout,
		Listen:   DefaultListen,
		LogLevel: DefaultLogLevel,
	}
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Apply overlays the file config onto s.
func (fc FileConfig) Apply(s Settings) (Settings, error) {
	if fc.Sync.Host != nil {
		s.Host = *fc.Sync.Host
	}
	if fc.Sync.Token != nil {
		s.Token = *fc.Sync.Token
	}
	if fc.Sync.OnlyFollows != nil {
		s.OnlyFollows = *fc.Sync.OnlyFollows
	}
	if fc.Sync.Debounce != nil {
		d, err := time.ParseDuration(*fc.Sync.Debounce)
		if err != nil {
			return s, fmt.Errorf("invalid sync.debounce: %w", err)
		}
		s.Debounce = d
	}
	if fc.Sync.Timeout != nil {
		d, err := time.ParseDuration(*fc.Sync.Timeout)
		if err != nil {
			return s, fmt.Errorf("invalid sync.timeout: %w", err)
		}
		s.Timeout = d
	}
	if fc.Track.Device != nil {
		s.Device = *fc.Track.Device
	}
	if fc.Server.Listen != nil {
		s.Listen = *fc.Server.Listen
	}
	if fc.Log.Level != nil {
		s.LogLevel = *fc.Log.Level
	}
	if v := strings.TrimSpace(os.Getenv(TokenEnv)); v != "" {
		s.Token = v
	}
	return s, nil
}

// Validate checks resolved settings.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("--host must not be empty")
	}
	if s.Debounce <= 0 {
		return fmt.Errorf("--debounce must be > 0")
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("--timeout must be > 0")
	}
	return nil
}
