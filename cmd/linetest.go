// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solderstat/pkg/session"
	"github.com/Thermoquad/solderstat/pkg/station"
)

var (
	lineTestTimeout int
)

var lineTestCmd = &cobra.Command{
	Use:   "line_test",
	Short: "Test connection by waiting for a valid telemetry line",
	Long: `Wait for a valid telemetry line on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
telemetry line that decodes to nine numeric fields. Malformed lines are
skipped and counted.

Exit codes:
  0 - Telemetry received before timeout
  1 - Timeout reached without receiving a valid line
  2 - Connection error

Useful for checking wiring and baud rate before starting the control TUI.`,
	RunE: runLineTest,
}

func init() {
	rootCmd.AddCommand(lineTestCmd)
	lineTestCmd.Flags().IntVar(&lineTestTimeout, "timeout", 10, "Timeout in seconds to wait for a line")
}

func runLineTest(cmd *cobra.Command, args []string) error {
	readErr := make(chan error, 1)
	onEvent := func(e session.Event) {
		if e.Kind == session.EventReadFailed {
			select {
			case readErr <- e.Err:
			default:
			}
		}
	}

	// Open connection (serial or WebSocket)
	s, connInfo, err := OpenSession(onEvent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Solderstat - Line Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", lineTestTimeout)
	fmt.Printf("Waiting for valid telemetry...\n\n")

	ctx, cancel := context.WithCancel(cmd.Context())
	received := make(chan station.DeviceState, 1)
	go s.Run(ctx, cfg.Session.DrainInterval.Std(), func(states []station.DeviceState) {
		select {
		case received <- states[0]:
		default:
		}
	})

	finish := func(code int) {
		cancel()
		s.Disconnect()
		os.Exit(code)
	}

	// Wait for telemetry or timeout
	select {
	case state := <-received:
		if skipped := s.Stats().Errors(); skipped > 0 {
			fmt.Printf("(skipped %d malformed lines)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid telemetry\n")
		fmt.Print(station.FormatState(state))
		finish(0)

	case err := <-readErr:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		finish(2)

	case <-time.After(time.Duration(lineTestTimeout) * time.Second):
		stats := s.Stats()
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid telemetry received within %d seconds (%d malformed lines)\n",
			lineTestTimeout, stats.Errors())
		finish(1)
	}

	return nil
}
