// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/solderstat/pkg/session"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the soldering station",
	Long: `Control the soldering station via an interactive terminal UI.

This command provides a TUI for monitoring and controlling the station
connected via serial port or through a WebSocket bridge.

Features:
  - Serial port picker when no --port or --url is given
  - Live zone panels (soldering iron, SMD rework, LCD repair)
  - Power, setpoint, airflow and vacuum control
  - Raw ZONE,ACTION,VALUE command entry
  - Statistics tracking
  - Event logging

Connections are never retried automatically; press c to connect or
disconnect. Logs go to the log file because the TUI owns the terminal.`,
	Annotations: map[string]string{annotationTUI: "true"},
	RunE:        runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget()
	picker := errors.Is(err, errNoTarget)
	if err != nil && !picker {
		return err
	}

	var ports []session.PortInfo
	if picker {
		target = connectionTarget{factory: session.SerialPortFactory}
		ports, err = session.ListPorts()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to list serial ports")
		}
	}

	events := newEventFeed()
	s := newSession(target.factory, events.push)
	defer s.Disconnect()

	m := initialControlModel(s, events, target, ports, cfg.Session.DrainInterval.Std())

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
