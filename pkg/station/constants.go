// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package station implements the line protocol spoken by the three-zone
// soldering station (soldering iron, SMD rework, LCD repair heater and
// vacuum pump).
//
// The device streams one telemetry line per update:
//
//	siTemp,siPower,smdTemp,smdPower,smdOn,smdAir,lcdTemp,lcdPower,vacuum\n
//
// and accepts one command per line:
//
//	ZONE,ACTION,VALUE\n
//
// This package provides line framing, telemetry decoding, command encoding,
// value validation, statistics and formatting. It performs no I/O of its own.
package station

// Line framing
const (
	LineDelimiter  = '\n'
	FieldDelimiter = ","
)

// Telemetry record layout
const (
	TelemetryFieldCount = 9

	FieldSITemp     = 0
	FieldSIPower    = 1
	FieldSMDTemp    = 2
	FieldSMDPower   = 3
	FieldSMDOn      = 4
	FieldSMDAirFlow = 5
	FieldLCDTemp    = 6
	FieldLCDPower   = 7
	FieldVacuum     = 8
)

// Percent limits for power and airflow values
const (
	MinPercent = 0
	MaxPercent = 100
)

// Plausible temperature range in degrees Celsius
const (
	MinTemperatureC = -50.0
	MaxTemperatureC = 600.0
)

// DefaultMaxFrameSize bounds a single line. Telemetry lines are well under
// 64 bytes; anything longer than this is line noise.
const DefaultMaxFrameSize = 256

var fieldNames = [TelemetryFieldCount]string{
	"si_temperature",
	"si_power",
	"smd_temperature",
	"smd_power",
	"smd_on",
	"smd_air_flow",
	"lcd_temperature",
	"lcd_power",
	"vacuum_pump_on",
}

// FieldName returns the name of a telemetry field index
func FieldName(index int) string {
	if index < 0 || index >= TelemetryFieldCount {
		return "unknown"
	}
	return fieldNames[index]
}
