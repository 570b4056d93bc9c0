// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import "fmt"

// AnomalyType represents different types of telemetry anomalies
type AnomalyType int

const (
	AnomalyPowerRange AnomalyType = iota
	AnomalyAirFlowRange
	AnomalyTemperatureRange
	AnomalyFlagValue
)

// ValidationError represents a decoded record with an implausible value.
// Validation never rejects a record; it only flags it.
type ValidationError struct {
	Type    AnomalyType
	Field   int
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateValues checks positional telemetry values against the device's
// documented ranges. Returns a slice of validation errors (empty if valid)
func ValidateValues(values [TelemetryFieldCount]float64) []ValidationError {
	errors := []ValidationError{}

	for _, field := range []int{FieldSITemp, FieldSMDTemp, FieldLCDTemp} {
		if err := validateTemperature(field, values[field]); err != nil {
			errors = append(errors, *err)
		}
	}

	for _, field := range []int{FieldSIPower, FieldSMDPower, FieldLCDPower} {
		if err := validatePercent(AnomalyPowerRange, field, values[field]); err != nil {
			errors = append(errors, *err)
		}
	}

	if err := validatePercent(AnomalyAirFlowRange, FieldSMDAirFlow, values[FieldSMDAirFlow]); err != nil {
		errors = append(errors, *err)
	}

	for _, field := range []int{FieldSMDOn, FieldVacuum} {
		if err := validateFlag(field, values[field]); err != nil {
			errors = append(errors, *err)
		}
	}

	return errors
}

// ValidateState checks a decoded state. Flags are already booleans at this
// point, so only ranges are checked.
func ValidateState(s DeviceState) []ValidationError {
	return ValidateValues(s.Values())
}

func validateTemperature(field int, v float64) *ValidationError {
	if v >= MinTemperatureC && v <= MaxTemperatureC {
		return nil
	}
	return &ValidationError{
		Type:    AnomalyTemperatureRange,
		Field:   field,
		Message: fmt.Sprintf("Invalid %s=%.1f°C (valid %.0f to %.0f)", FieldName(field), v, MinTemperatureC, MaxTemperatureC),
		Details: map[string]interface{}{"value": v, "min": MinTemperatureC, "max": MaxTemperatureC},
	}
}

func validatePercent(anomaly AnomalyType, field int, v float64) *ValidationError {
	if v >= MinPercent && v <= MaxPercent {
		return nil
	}
	return &ValidationError{
		Type:    anomaly,
		Field:   field,
		Message: fmt.Sprintf("Invalid %s=%g (valid %d-%d)", FieldName(field), v, MinPercent, MaxPercent),
		Details: map[string]interface{}{"value": v, "min": MinPercent, "max": MaxPercent},
	}
}

func validateFlag(field int, v float64) *ValidationError {
	if v == 0 || v == 1 {
		return nil
	}
	return &ValidationError{
		Type:    AnomalyFlagValue,
		Field:   field,
		Message: fmt.Sprintf("Invalid %s=%g (expected 0 or 1, read as off)", FieldName(field), v),
		Details: map[string]interface{}{"value": v},
	}
}
