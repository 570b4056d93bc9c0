// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Decode error classes, matched with errors.Is
var (
	ErrFieldCountMismatch = errors.New("field count mismatch")
	ErrFieldParse         = errors.New("field parse error")
)

// DecodeError describes why a telemetry record was rejected
type DecodeError struct {
	Record string
	Count  int    // Number of fields found (count mismatch)
	Index  int    // Offending field index (parse error), -1 otherwise
	Field  string // Offending field text (parse error)
	Err    error  // ErrFieldCountMismatch or ErrFieldParse
	cause  error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrFieldCountMismatch) {
		return fmt.Sprintf("%v: got %d fields, want %d", e.Err, e.Count, TelemetryFieldCount)
	}
	if e.cause != nil {
		return fmt.Sprintf("%v: field %d (%s) %q: %v", e.Err, e.Index, FieldName(e.Index), e.Field, e.cause)
	}
	return fmt.Sprintf("%v: field %d (%s) %q", e.Err, e.Index, FieldName(e.Index), e.Field)
}

// Unwrap returns the error class
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HeaterZone holds the soldering iron or LCD repair heater readings
type HeaterZone struct {
	TemperatureC float64
	Power        float64
	On           bool // Derived: Power != 0
}

// SMDZone holds the SMD rework station readings. On is transmitted
// explicitly and is independent of Power.
type SMDZone struct {
	TemperatureC float64
	Power        float64
	On           bool
	AirFlow      float64
}

// DeviceState is one decoded telemetry record
type DeviceState struct {
	SolderingIron HeaterZone
	SMDRework     SMDZone
	LCDRepair     HeaterZone
	VacuumPumpOn  bool

	// ReceivedAt is stamped by the consumer that drained the record.
	// Decode leaves it zero.
	ReceivedAt time.Time
}

// Values returns the nine wire values in positional order
func (s DeviceState) Values() [TelemetryFieldCount]float64 {
	return [TelemetryFieldCount]float64{
		FieldSITemp:     s.SolderingIron.TemperatureC,
		FieldSIPower:    s.SolderingIron.Power,
		FieldSMDTemp:    s.SMDRework.TemperatureC,
		FieldSMDPower:   s.SMDRework.Power,
		FieldSMDOn:      flagValue(s.SMDRework.On),
		FieldSMDAirFlow: s.SMDRework.AirFlow,
		FieldLCDTemp:    s.LCDRepair.TemperatureC,
		FieldLCDPower:   s.LCDRepair.Power,
		FieldVacuum:     flagValue(s.VacuumPumpOn),
	}
}

// Decode parses one trimmed telemetry record.
// The record must contain exactly TelemetryFieldCount comma-separated
// decimal numbers; anything else is rejected without a partial result.
func Decode(record string) (DeviceState, error) {
	values, err := DecodeValues(record)
	if err != nil {
		return DeviceState{}, err
	}
	return StateFromValues(values), nil
}

// DecodeValues parses a telemetry record into its nine positional values
// without interpreting them
func DecodeValues(record string) ([TelemetryFieldCount]float64, error) {
	var values [TelemetryFieldCount]float64

	fields := strings.Split(record, FieldDelimiter)
	if len(fields) != TelemetryFieldCount {
		return values, &DecodeError{
			Record: record,
			Count:  len(fields),
			Index:  -1,
			Err:    ErrFieldCountMismatch,
		}
	}

	for i, field := range fields {
		field = strings.TrimSpace(field)
		v, err := strconv.ParseFloat(field, 64)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = errors.New("not a finite decimal")
		}
		if err != nil {
			return [TelemetryFieldCount]float64{}, &DecodeError{
				Record: record,
				Count:  len(fields),
				Index:  i,
				Field:  field,
				Err:    ErrFieldParse,
				cause:  unwrapNumError(err),
			}
		}
		values[i] = v
	}

	return values, nil
}

// StateFromValues maps positional values onto a DeviceState.
// SI and LCD On are derived from power; SMD On and the vacuum pump are
// explicit flags where only 1 means on.
func StateFromValues(values [TelemetryFieldCount]float64) DeviceState {
	return DeviceState{
		SolderingIron: HeaterZone{
			TemperatureC: values[FieldSITemp],
			Power:        values[FieldSIPower],
			On:           values[FieldSIPower] != 0,
		},
		SMDRework: SMDZone{
			TemperatureC: values[FieldSMDTemp],
			Power:        values[FieldSMDPower],
			On:           values[FieldSMDOn] == 1,
			AirFlow:      values[FieldSMDAirFlow],
		},
		LCDRepair: HeaterZone{
			TemperatureC: values[FieldLCDTemp],
			Power:        values[FieldLCDPower],
			On:           values[FieldLCDPower] != 0,
		},
		VacuumPumpOn: values[FieldVacuum] == 1,
	}
}

// EncodeTelemetry renders a state as a telemetry record, without the line
// delimiter. Decode(EncodeTelemetry(s)) reproduces s apart from ReceivedAt
// and the derived On flags.
func EncodeTelemetry(s DeviceState) string {
	values := s.Values()
	parts := make([]string, TelemetryFieldCount)
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, FieldDelimiter)
}

func flagValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// unwrapNumError drops strconv's "strconv.ParseFloat: parsing ..." prefix,
// the field text is already part of DecodeError
func unwrapNumError(err error) error {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return numErr.Err
	}
	return err
}
