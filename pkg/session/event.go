// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"time"

	"github.com/Thermoquad/solderstat/pkg/station"
)

// EventKind identifies what a session is reporting
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventOpenFailed
	EventCommandSent
	EventWriteFailed
	EventWriteDropped
	EventDecodeFailed
	EventAnomaly
	EventFrameTooLong
	EventReadFailed
	EventCloseFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventOpenFailed:
		return "open_failed"
	case EventCommandSent:
		return "command_sent"
	case EventWriteFailed:
		return "write_failed"
	case EventWriteDropped:
		return "write_dropped"
	case EventDecodeFailed:
		return "decode_failed"
	case EventAnomaly:
		return "anomaly"
	case EventFrameTooLong:
		return "frame_too_long"
	case EventReadFailed:
		return "read_failed"
	case EventCloseFailed:
		return "close_failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one report from a session. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Port    string
	State   State           // EventStateChanged
	Record  string          // EventDecodeFailed, EventAnomaly
	Command station.Command // command events
	Err     error
}

// IsError reports whether the event describes a failure
func (e Event) IsError() bool {
	return e.Err != nil
}

func (e Event) String() string {
	switch e.Kind {
	case EventStateChanged:
		return fmt.Sprintf("%s: %s", e.Port, e.State)
	case EventCommandSent:
		return fmt.Sprintf("sent %s", station.FormatCommand(e.Command))
	case EventWriteDropped:
		return fmt.Sprintf("dropped %s: write in progress", station.FormatCommand(e.Command))
	case EventWriteFailed:
		return fmt.Sprintf("failed to send %s: %v", station.FormatCommand(e.Command), e.Err)
	case EventDecodeFailed:
		return fmt.Sprintf("bad telemetry: %v", e.Err)
	case EventAnomaly:
		return fmt.Sprintf("anomaly: %v", e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
}
