// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// session's current connection state
	ErrInvalidState = errors.New("invalid session state")

	// ErrChannelClosed is returned by channel operations after Close
	ErrChannelClosed = errors.New("channel closed")

	// ErrReaderRunning is returned when StartReading is called twice
	ErrReaderRunning = errors.New("reader already running")

	// ErrWriteDropped is returned by SendWait when another write was in flight
	ErrWriteDropped = errors.New("write dropped: another write in progress")

	// ErrCloseTimeout is reported when the reader did not stop within the
	// close grace period and the port was released anyway
	ErrCloseTimeout = errors.New("reader did not stop within grace period")
)

// OpenErrorKind classifies why a port could not be opened
type OpenErrorKind int

const (
	PortUnavailable OpenErrorKind = iota
	PortAlreadyOpen
	OsError
)

func (k OpenErrorKind) String() string {
	switch k {
	case PortUnavailable:
		return "port unavailable"
	case PortAlreadyOpen:
		return "port already open"
	case OsError:
		return "os error"
	default:
		return fmt.Sprintf("OpenErrorKind(%d)", int(k))
	}
}

// OpenError is returned when a channel cannot be opened
type OpenError struct {
	Port string
	Kind OpenErrorKind
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open %s: %s: %v", e.Port, e.Kind, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// WriteError is returned when a command line could not be written
type WriteError struct {
	Line string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %q: %v", e.Line, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadLoopError is delivered on the reader's terminal channel when the port
// fails. Cancellation is not an error and is never reported this way.
type ReadLoopError struct {
	Port string
	Err  error
}

func (e *ReadLoopError) Error() string {
	return fmt.Sprintf("read from %s failed: %v", e.Port, e.Err)
}

func (e *ReadLoopError) Unwrap() error {
	return e.Err
}

// classifyOpenError maps go.bug.st/serial port error codes onto open error kinds
func classifyOpenError(port string, err error) *OpenError {
	var openErr *OpenError
	if errors.As(err, &openErr) {
		return openErr
	}

	code, ok := serialErrorCode(err)
	if !ok {
		return &OpenError{Port: port, Kind: OsError, Err: err}
	}

	switch code {
	case serial.PortNotFound, serial.InvalidSerialPort:
		return &OpenError{Port: port, Kind: PortUnavailable, Err: err}
	case serial.PortBusy:
		return &OpenError{Port: port, Kind: PortAlreadyOpen, Err: err}
	default:
		return &OpenError{Port: port, Kind: OsError, Err: err}
	}
}

// serialErrorCode extracts the code of a serial.PortError, which the
// library returns by pointer
func serialErrorCode(err error) (serial.PortErrorCode, bool) {
	var portErrPtr *serial.PortError
	if errors.As(err, &portErrPtr) && portErrPtr != nil {
		return portErrPtr.Code(), true
	}
	var portErr serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code(), true
	}
	return 0, false
}
