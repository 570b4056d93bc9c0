// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session runs a connection to a soldering station: the channel
// that owns the port and its background reader, and the session state
// machine that drains telemetry and sends commands.
package session

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Station defaults
const (
	DefaultBaudRate      = 9600
	DefaultDataBits      = 8
	DefaultStopBits      = 1
	DefaultParity        = "N"
	DefaultTimeout       = 500 * time.Millisecond
	DefaultCloseGrace    = 1000 * time.Millisecond
	DefaultIdleDelay     = 10 * time.Millisecond
	DefaultDrainInterval = 100 * time.Millisecond
)

// PortOptions describes the serial line parameters used when opening a port
type PortOptions struct {
	BaudRate     int
	DataBits     int
	StopBits     int
	Parity       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultPortOptions returns 9600 8N1 with 500ms timeouts
func DefaultPortOptions() PortOptions {
	return PortOptions{
		BaudRate:     DefaultBaudRate,
		DataBits:     DefaultDataBits,
		StopBits:     DefaultStopBits,
		Parity:       DefaultParity,
		ReadTimeout:  DefaultTimeout,
		WriteTimeout: DefaultTimeout,
	}
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = DefaultDataBits
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = DefaultStopBits
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultTimeout
	}

	return opts, nil
}

// SerialMode converts the options into the go.bug.st/serial mode
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}

// String renders the options the way they are usually written, e.g. "9600 8N1"
func (o PortOptions) String() string {
	opts, err := o.Normalize()
	if err != nil {
		return fmt.Sprintf("%d %d%s%d (invalid)", o.BaudRate, o.DataBits, o.Parity, o.StopBits)
	}
	return fmt.Sprintf("%d %d%s%d", opts.BaudRate, opts.DataBits, opts.Parity, opts.StopBits)
}
