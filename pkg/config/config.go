// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the solderstat TOML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/solderstat/pkg/session"
	"github.com/Thermoquad/solderstat/pkg/station"
)

const (
	AppName    = "solderstat"
	ConfigFile = "config.toml"
	LogFile    = "solderstat.log"
)

// Duration is a time.Duration written as a string such as "500ms"
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", text)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Serial holds the serial port settings
type Serial struct {
	Port         string   `toml:"port"`
	BaudRate     int      `toml:"baud_rate"`
	DataBits     int      `toml:"data_bits"`
	Parity       string   `toml:"parity"`
	StopBits     int      `toml:"stop_bits"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// WebSocket holds the serial bridge settings. The password is never stored.
type WebSocket struct {
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify bool   `toml:"no_ssl_verify"`
}

// Session holds the engine timing settings
type Session struct {
	DrainInterval Duration `toml:"drain_interval"`
	CloseGrace    Duration `toml:"close_grace"`
	IdleDelay     Duration `toml:"idle_delay"`
	MaxFrameSize  int      `toml:"max_frame_size"`
}

// Log holds the logging settings
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Config is the whole configuration file
type Config struct {
	Serial    Serial    `toml:"serial"`
	WebSocket WebSocket `toml:"websocket"`
	Session   Session   `toml:"session"`
	Log       Log       `toml:"log"`
}

// Default returns the configuration used when no file exists
func Default() Config {
	port := session.DefaultPortOptions()
	return Config{
		Serial: Serial{
			BaudRate:     port.BaudRate,
			DataBits:     port.DataBits,
			Parity:       port.Parity,
			StopBits:     port.StopBits,
			ReadTimeout:  Duration(port.ReadTimeout),
			WriteTimeout: Duration(port.WriteTimeout),
		},
		Session: Session{
			DrainInterval: Duration(session.DefaultDrainInterval),
			CloseGrace:    Duration(session.DefaultCloseGrace),
			IdleDelay:     Duration(session.DefaultIdleDelay),
			MaxFrameSize:  station.DefaultMaxFrameSize,
		},
		Log: Log{
			Level: zerolog.InfoLevel.String(),
		},
	}
}

// DefaultPath returns where the configuration file is written by default
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, ConfigFile)
}

// DefaultLogPath returns the default log file location
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, AppName, LogFile)
}

// Find searches the XDG config directories for the configuration file
func Find() (string, bool) {
	path, err := xdg.SearchConfigFile(filepath.Join(AppName, ConfigFile))
	if err != nil {
		return "", false
	}
	return path, true
}

// Load reads the configuration at path over the defaults. An empty path
// searches the XDG config directories, and finding nothing there is not an
// error. An explicit path must exist.
func Load(path string) (Config, string, error) {
	if path == "" {
		found, ok := Find()
		if !ok {
			return Default(), "", nil
		}
		path = found
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, path, fmt.Errorf("config file %s not found", path)
		}
		return Config{}, path, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, path, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

// Parse decodes TOML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return Config{}, fmt.Errorf("unknown config keys:\n%s", strictErr.String())
		}
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed
func Save(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks values the decoder cannot
func (c Config) Validate() error {
	if _, err := c.PortOptions().Normalize(); err != nil {
		return fmt.Errorf("[serial]: %w", err)
	}

	if c.WebSocket.URL != "" {
		u, err := url.Parse(c.WebSocket.URL)
		if err != nil {
			return fmt.Errorf("[websocket] url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("[websocket] url: unsupported scheme %q (use ws:// or wss://)", u.Scheme)
		}
	}

	if c.Session.MaxFrameSize < 0 {
		return fmt.Errorf("[session] max_frame_size: must not be negative")
	}

	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("[log] level: %w", err)
		}
	}

	return nil
}

// PortOptions returns the serial line options
func (c Config) PortOptions() session.PortOptions {
	return session.PortOptions{
		BaudRate:     c.Serial.BaudRate,
		DataBits:     c.Serial.DataBits,
		StopBits:     c.Serial.StopBits,
		Parity:       c.Serial.Parity,
		ReadTimeout:  c.Serial.ReadTimeout.Std(),
		WriteTimeout: c.Serial.WriteTimeout.Std(),
	}
}
