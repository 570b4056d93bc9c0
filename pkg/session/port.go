// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"io"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the byte stream a channel reads telemetry from and writes
// commands to. A Read that returns (0, nil) means no data yet.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// PortFactory opens the port identified by portID.
// Failures should be returned as *OpenError; other errors are classified
// as OsError.
type PortFactory func(portID string, opts PortOptions) (Port, error)

// SerialPortFactory opens a local serial port with go.bug.st/serial.
// The read timeout bounds each blocking read so the reader can observe
// cancellation. The library exposes no write timeout, so WriteTimeout is
// not applied to serial ports.
func SerialPortFactory(portID string, opts PortOptions) (Port, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, &OpenError{Port: portID, Kind: OsError, Err: err}
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, &OpenError{Port: portID, Kind: OsError, Err: err}
	}

	port, err := serial.Open(portID, mode)
	if err != nil {
		return nil, classifyOpenError(portID, err)
	}

	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, classifyOpenError(portID, err)
	}

	return port, nil
}

// PortInfo describes a serial port found on the system
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts returns the serial ports currently present on the system
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		return ports, nil
	}

	// Detailed enumeration is not available everywhere
	names, listErr := serial.GetPortsList()
	if listErr != nil {
		return nil, listErr
	}
	ports := make([]PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortInfo{Name: name})
	}
	return ports, nil
}
