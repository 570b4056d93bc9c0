// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solderstat/pkg/station"
)

var sendTimeout int

var sendCmd = &cobra.Command{
	Use:   "send ZONE ACTION VALUE",
	Short: "Send one command to the station",
	Long: `Validate and send a single command, then wait for the write to finish.

Zones:   SI (soldering iron), SMD (hot air rework), LCD (LCD repair plate)
Actions: PWR 0|1    power off/on
         SET 0-100  setpoint percent
         AIR 0-100  airflow percent (SMD only)
         VAC 0|1    vacuum pump off/on (LCD only)

Examples:
  solderstat send SI SET 42 --port /dev/ttyUSB0
  solderstat send LCD VAC 1 --port /dev/ttyUSB0`,
	Args: cobra.ExactArgs(3),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 5, "Timeout in seconds for the write")
}

func runSend(cmd *cobra.Command, args []string) error {
	command, err := station.ParseCommandFields(args[0], args[1], args[2])
	if err != nil {
		return err
	}

	s, connInfo, err := OpenSession(nil)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(sendTimeout)*time.Second)
	defer cancel()

	if err := s.SendWait(ctx, command); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Sent %s (%s)\n", station.Encode(command), station.FormatCommand(command))
	return nil
}
