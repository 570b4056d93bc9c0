// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Thermoquad/solderstat/pkg/config"
)

// annotationTUI marks commands that own the terminal, so logs must go to a file
const annotationTUI = "tui"

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Configuration and logging flags
	configPath string
	logLevel   string
	logFile    string

	// Loaded in PersistentPreRunE
	cfg    = config.Default()
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "solderstat",
	Short: "Soldering station monitor and controller",
	Long: `Solderstat - A CLI tool for monitoring and controlling a three-zone soldering
station (soldering iron, SMD hot air rework, LCD repair plate with vacuum pump)
over its line-based serial protocol.

Telemetry arrives as one line of nine comma-separated values; commands are
sent as ZONE,ACTION,VALUE lines.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Settings are read from $XDG_CONFIG_HOME/solderstat/config.toml (or --config);
command line flags override the file.

For WebSocket authentication, the password is read from the SOLDERSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Configuration and logging
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: search XDG config dirs)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
}

// loadSettings loads the config file, applies explicit flags over it and
// configures logging
func loadSettings(cmd *cobra.Command, args []string) error {
	loaded, path, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = applyFlags(cmd, loaded)

	if err := setupLogging(cfg.Log, usesTerminal(cmd)); err != nil {
		return err
	}
	if path != "" {
		logger.Debug().Str("path", path).Msg("loaded config")
	}
	return nil
}

// applyFlags overrides config values with flags the user set explicitly
func applyFlags(cmd *cobra.Command, c config.Config) config.Config {
	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Serial.Port = portName
	}
	if flags.Changed("baud") {
		c.Serial.BaudRate = baudRate
	}
	if flags.Changed("url") {
		c.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		c.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		c.Log.File = logFile
	}
	return c
}

// usesTerminal reports whether the command runs a full screen TUI
func usesTerminal(cmd *cobra.Command) bool {
	if f := cmd.Flags().Lookup("tui"); f != nil {
		return f.Value.String() == "true"
	}
	return cmd.Annotations[annotationTUI] == "true"
}

// setupLogging points the global logger at stderr, or at a rotated log file
// when one is configured or the command owns the terminal
func setupLogging(c config.Log, tui bool) error {
	level := zerolog.InfoLevel
	if c.Level != "" {
		parsed, err := zerolog.ParseLevel(c.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		level = parsed
	}

	file := c.File
	if file == "" && tui {
		file = config.DefaultLogPath()
	}

	var w io.Writer
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		w = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    1,
			MaxBackups: 2,
		}
	} else {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}

	logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
