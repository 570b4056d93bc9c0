// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solderstat/pkg/session"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports present on this system.

USB adapters are shown with their vendor and product IDs to help pick the
soldering station's port for --port.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := session.ListPorts()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	for _, p := range ports {
		fmt.Println(formatPortInfo(p))
	}
	return nil
}

// formatPortInfo renders one port line, with USB details when known
func formatPortInfo(p session.PortInfo) string {
	if !p.IsUSB {
		return p.Name
	}

	line := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		line += fmt.Sprintf("  serial=%s", p.SerialNumber)
	}
	if p.Product != "" {
		line += fmt.Sprintf("  %s", p.Product)
	}
	return line
}
