// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Solderstat - Soldering Station Monitor and Controller
//
// A CLI tool for monitoring and controlling a three-zone soldering station
// over its line-based serial protocol.

package main

import (
	"os"

	"github.com/Thermoquad/solderstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
