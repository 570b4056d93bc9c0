// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solderstat/pkg/metrics"
	"github.com/Thermoquad/solderstat/pkg/session"
	"github.com/Thermoquad/solderstat/pkg/station"
)

var (
	monitorFormat      string
	monitorShowErrors  bool
	monitorMetricsAddr string
)

var errConnectionLost = errors.New("connection lost")

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display decoded telemetry as it arrives",
	Long: `Continuously decode and display soldering station telemetry.

Every drain interval the queued telemetry lines are decoded and each state is
written to stdout in the selected format:
  text - human-readable zone summary (default)
  json - one JSON object per line
  cbor - a stream of CBOR maps keyed by wire field index

Malformed lines are skipped; use --show-errors to report them, and any
anomalous values, on stderr.

With --metrics-addr the session statistics and the latest zone readings are
also served in the Prometheus text format on /metrics.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVarP(&monitorFormat, "format", "f", station.FormatText, "Output format (text, json, cbor)")
	monitorCmd.Flags().BoolVar(&monitorShowErrors, "show-errors", false, "Report malformed telemetry lines on stderr")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9105)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	out, err := station.NewStateWriter(os.Stdout, monitorFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lost := make(chan error, 1)
	onEvent := func(e session.Event) {
		switch e.Kind {
		case session.EventDecodeFailed, session.EventFrameTooLong:
			if monitorShowErrors {
				fmt.Fprintf(os.Stderr, "[ERROR] %v\n", e.Err)
			}
		case session.EventAnomaly:
			if monitorShowErrors {
				fmt.Fprintf(os.Stderr, "[WARN] %v\n", e.Err)
			}
		case session.EventReadFailed:
			select {
			case lost <- e.Err:
			default:
			}
			stop()
		}
	}

	s, connInfo, err := OpenSession(onEvent)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	// Keep stdout clean for the binary and JSON formats
	fmt.Fprintf(os.Stderr, "Solderstat - Telemetry Monitor\n")
	fmt.Fprintf(os.Stderr, "Connection: %s\n", connInfo)
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to exit\n\n")

	var collector *metrics.Collector
	metricsErr := make(chan error, 1)
	if monitorMetricsAddr != "" {
		collector = metrics.NewCollector(s)
		go func() {
			if err := metrics.Serve(ctx, monitorMetricsAddr, metrics.NewRegistry(collector), logger); err != nil {
				metricsErr <- err
				stop()
			}
		}()
	}

	var writeErr error
	runErr := s.Run(ctx, cfg.Session.DrainInterval.Std(), func(states []station.DeviceState) {
		if collector != nil {
			collector.Observe(states[len(states)-1])
		}
		for _, state := range states {
			if err := out.Write(state); err != nil {
				writeErr = err
				stop()
				return
			}
		}
	})

	select {
	case err := <-lost:
		return fmt.Errorf("%w: %v", errConnectionLost, err)
	default:
	}
	select {
	case err := <-metricsErr:
		return fmt.Errorf("metrics server failed: %w", err)
	default:
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write telemetry: %w", writeErr)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if monitorShowErrors {
		stats := s.Stats()
		fmt.Fprintf(os.Stderr, "\n%s", stats.String())
	}
	return nil
}
