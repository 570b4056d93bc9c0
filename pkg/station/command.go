// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Zone identifies a controlled subsystem on the wire
type Zone string

// Zones
const (
	ZoneSolderingIron Zone = "SI"
	ZoneSMDRework     Zone = "SMD"
	ZoneLCDRepair     Zone = "LCD"
)

// Action identifies what a command changes
type Action string

// Actions
const (
	ActionPower    Action = "PWR" // 0/1
	ActionSetpoint Action = "SET" // Power percent
	ActionAirFlow  Action = "AIR" // Airflow percent, SMD only
	ActionVacuum   Action = "VAC" // Vacuum pump 0/1, sent under LCD
)

// ErrInvalidCommand is returned by Validate and ParseCommand
var ErrInvalidCommand = errors.New("invalid command")

// Command is one host to device instruction
type Command struct {
	Zone   Zone
	Action Action
	Value  int
}

// Encode renders a command in wire format, without the line delimiter.
// No validation is performed.
func Encode(c Command) string {
	return string(c.Zone) + FieldDelimiter + string(c.Action) + FieldDelimiter + strconv.Itoa(c.Value)
}

// String returns the wire rendering of the command
func (c Command) String() string {
	return Encode(c)
}

// PowerCommand switches a zone's heater on or off
func PowerCommand(zone Zone, on bool) Command {
	return Command{Zone: zone, Action: ActionPower, Value: boolValue(on)}
}

// SetpointCommand sets a zone's power percent
func SetpointCommand(zone Zone, percent int) Command {
	return Command{Zone: zone, Action: ActionSetpoint, Value: percent}
}

// AirFlowCommand sets the SMD rework airflow percent
func AirFlowCommand(percent int) Command {
	return Command{Zone: ZoneSMDRework, Action: ActionAirFlow, Value: percent}
}

// VacuumCommand switches the vacuum pump. The pump is addressed through the
// LCD zone.
func VacuumCommand(on bool) Command {
	return Command{Zone: ZoneLCDRepair, Action: ActionVacuum, Value: boolValue(on)}
}

// Validate checks that a command is meaningful to the device
func (c Command) Validate() error {
	switch c.Zone {
	case ZoneSolderingIron, ZoneSMDRework, ZoneLCDRepair:
	default:
		return fmt.Errorf("%w: unknown zone %q", ErrInvalidCommand, c.Zone)
	}

	switch c.Action {
	case ActionPower:
		if c.Value != 0 && c.Value != 1 {
			return fmt.Errorf("%w: %s value must be 0 or 1, got %d", ErrInvalidCommand, c.Action, c.Value)
		}
	case ActionVacuum:
		if c.Zone != ZoneLCDRepair {
			return fmt.Errorf("%w: %s is only valid for zone %s", ErrInvalidCommand, c.Action, ZoneLCDRepair)
		}
		if c.Value != 0 && c.Value != 1 {
			return fmt.Errorf("%w: %s value must be 0 or 1, got %d", ErrInvalidCommand, c.Action, c.Value)
		}
	case ActionAirFlow:
		if c.Zone != ZoneSMDRework {
			return fmt.Errorf("%w: %s is only valid for zone %s", ErrInvalidCommand, c.Action, ZoneSMDRework)
		}
		fallthrough
	case ActionSetpoint:
		if c.Value < MinPercent || c.Value > MaxPercent {
			return fmt.Errorf("%w: %s value must be %d-%d, got %d", ErrInvalidCommand, c.Action, MinPercent, MaxPercent, c.Value)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	}

	return nil
}

// ParseCommand parses "ZONE,ACTION,VALUE" (case-insensitive zone and
// action) and validates the result
func ParseCommand(s string) (Command, error) {
	parts := strings.Split(strings.TrimSpace(s), FieldDelimiter)
	if len(parts) != 3 {
		return Command{}, fmt.Errorf("%w: expected ZONE,ACTION,VALUE, got %q", ErrInvalidCommand, s)
	}
	return ParseCommandFields(parts[0], parts[1], parts[2])
}

// ParseCommandFields is ParseCommand for already separated fields
func ParseCommandFields(zone, action, value string) (Command, error) {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return Command{}, fmt.Errorf("%w: value %q is not an integer", ErrInvalidCommand, value)
	}

	c := Command{
		Zone:   Zone(strings.ToUpper(strings.TrimSpace(zone))),
		Action: Action(strings.ToUpper(strings.TrimSpace(action))),
		Value:  v,
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
