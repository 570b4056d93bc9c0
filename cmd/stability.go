// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solderstat/pkg/session"
)

var stabilityDuration int

var stabilityCmd = &cobra.Command{
	Use:   "stability",
	Short: "Test connection stability over a fixed duration",
	Long: `Hold a connection open for a fixed duration without sending commands.

This command connects to the serial port or WebSocket bridge and just
listens, logging every drained batch of telemetry and any read failure.
Useful for debugging cables, USB adapters and bridge timeouts.

Exit codes:
  0 - Connection stayed up for the whole duration
  1 - Connection lost during the test
  2 - Connection error`,
	RunE: runStability,
}

func init() {
	rootCmd.AddCommand(stabilityCmd)
	stabilityCmd.Flags().IntVar(&stabilityDuration, "duration", 30, "Test duration in seconds")
}

func runStability(cmd *cobra.Command, args []string) error {
	lost := make(chan error, 1)
	onEvent := func(e session.Event) {
		if e.Kind == session.EventReadFailed {
			select {
			case lost <- e.Err:
			default:
			}
		}
	}

	s, connInfo, err := OpenSession(onEvent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Disconnect()

	fmt.Printf("Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", stabilityDuration)
	fmt.Printf("Listening for data...\n\n")

	start := time.Now()
	endTime := start.Add(time.Duration(stabilityDuration) * time.Second)
	drain := time.NewTicker(cfg.Session.DrainInterval.Std())
	defer drain.Stop()
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	statesReceived := 0
	results := func(result string) {
		stats := s.Stats()
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Lines received: %d\n", stats.TotalLines)
		fmt.Printf("Valid states: %d\n", statesReceived)
		fmt.Printf("Malformed lines: %d\n", stats.Errors())
		fmt.Printf("Result: %s\n", result)
	}

	for time.Now().Before(endTime) {
		select {
		case <-drain.C:
			if states := s.Drain(); len(states) > 0 {
				statesReceived += len(states)
				fmt.Printf("[%s] Received %d telemetry line(s)\n",
					time.Now().Format("15:04:05.000"), len(states))
			}

		case err := <-lost:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			results("FAILED (connection error)")
			s.Disconnect()
			os.Exit(1)

		case <-heartbeat.C:
			// Just a heartbeat to show the test is running
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	results("PASSED (connection stable)")
	return nil
}
