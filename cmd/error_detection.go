// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/solderstat/pkg/session"
	"github.com/Thermoquad/solderstat/pkg/station"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed telemetry and anomalous values",
	Long: `Track malformed telemetry lines and anomalous values with statistics.

This command decodes and validates each telemetry line and detects:
  - Malformed lines (wrong field count, unparseable fields)
  - Lines exceeding the maximum frame size
  - Anomalous values (power or airflow outside 0-100%, implausible
    temperatures, on/off flags other than 0 or 1)
  - Statistics and trends (line rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid lines too.

Lines are validated as they are drained, with errors highlighted immediately
and periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all lines (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %d", statsInterval)
	}

	events := newEventFeed()
	s, connInfo, err := OpenSession(events.push)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	if useTUI {
		return runTUIMode(s, events, connInfo)
	}
	return runTextMode(cmd.Context(), s, events, connInfo)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(e session.Event) {
	timestamp := e.Time.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, e.Err)
	if e.Record != "" {
		fmt.Printf("  Line: %q\n", e.Record)
	}

	var decodeErr *station.DecodeError
	if errors.As(e.Err, &decodeErr) {
		if errors.Is(decodeErr, station.ErrFieldCountMismatch) {
			fmt.Printf("    fields=%d (expected %d)\n", decodeErr.Count, station.TelemetryFieldCount)
		} else {
			fmt.Printf("    field %d (%s)=%q\n", decodeErr.Index, station.FieldName(decodeErr.Index), decodeErr.Field)
		}
	}
	fmt.Printf("  >>> LINE REJECTED <<<\n\n")
}

// printValidationErrors prints the anomalies found in one line
func printValidationErrors(record string, ts time.Time, anomalies []*station.ValidationError) {
	timestamp := ts.Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %q\n", timestamp, record)
	fmt.Printf("  Fields: \033[1;32mOK\033[0m\n")

	for i, err := range anomalies {
		switch err.Type {
		case station.AnomalyTemperatureRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if temp, ok := err.Details["value"].(float64); ok {
				fmt.Printf("    Temperature=%.1f°C (valid: %.0f to %.0f°C)\n", temp, station.MinTemperatureC, station.MaxTemperatureC)
			}

		case station.AnomalyPowerRange, station.AnomalyAirFlowRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if v, ok := err.Details["value"].(float64); ok {
				fmt.Printf("    %s=%g (valid: %d-%d%%)\n", station.FieldName(err.Field), v, station.MinPercent, station.MaxPercent)
			}

		case station.AnomalyFlagValue:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  >>> LINE KEPT <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(s *session.Session, events eventFeed, connInfo string) error {
	m := initialModel(s, events, connInfo, cfg.Session.DrainInterval.Std(), showAll)
	p := tea.NewProgram(m)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(parent context.Context, s *session.Session, events eventFeed, connInfo string) error {
	fmt.Printf("Solderstat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All lines\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	drainTicker := time.NewTicker(cfg.Session.DrainInterval.Std())
	defer drainTicker.Stop()
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Decode errors before the first valid line are a partial first line
	synchronized := false
	skippedBeforeSync := 0

	for {
		select {
		case <-ctx.Done():
			stats := s.Stats()
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case <-drainTicker.C:
			states := s.Drain()

			var (
				anomalies []*station.ValidationError
				record    string
				at        time.Time
			)
			flush := func() {
				if len(anomalies) > 0 {
					printValidationErrors(record, at, anomalies)
					anomalies = nil
				}
			}

			for _, e := range events.drain() {
				switch e.Kind {
				case session.EventDecodeFailed:
					flush()
					if !synchronized && len(states) == 0 {
						skippedBeforeSync++
						continue
					}
					printDecodeError(e)

				case session.EventAnomaly:
					// Anomalies of one line arrive back to back
					if e.Record != record {
						flush()
					}
					var verr *station.ValidationError
					if errors.As(e.Err, &verr) {
						anomalies = append(anomalies, verr)
						record, at = e.Record, e.Time
					}

				case session.EventFrameTooLong:
					flush()
					fmt.Printf("[%s] \033[1;31mFRAME ERROR:\033[0m %v\n\n", e.Time.Format("15:04:05.000"), e.Err)

				case session.EventReadFailed:
					flush()
					return fmt.Errorf("%w: %v", errConnectionLost, e.Err)
				}
			}
			flush()

			if len(states) > 0 && !synchronized {
				synchronized = true
				if skippedBeforeSync > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d malformed lines\n\n", skippedBeforeSync)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			if showAll {
				for _, state := range states {
					fmt.Printf("[%s] %s\n", state.ReceivedAt.Format("15:04:05.000"), station.FormatStateLine(state))
				}
			}

		case <-statsTicker.C:
			stats := s.Stats()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
