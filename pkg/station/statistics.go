// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Statistics tracks telemetry line statistics and error rates.
// It is not safe for concurrent use.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalLines      uint64
	ValidLines      uint64
	FieldCountErrs  uint64
	FieldParseErrs  uint64
	FrameErrors     uint64
	AnomalousValues uint64
	PowerRange      uint64
	AirFlowRange    uint64
	TemperatureOdd  uint64
	FlagValues      uint64

	// Command path
	CommandsSent    uint64
	CommandsDropped uint64
	CommandsFailed  uint64

	// Rates (calculated)
	LineRate  float64 // lines/sec
	ErrorRate float64 // errors/sec

	clock clockwork.Clock
}

// NewStatistics creates a new statistics tracker on the wall clock
func NewStatistics() *Statistics {
	return NewStatisticsWithClock(clockwork.NewRealClock())
}

// NewStatisticsWithClock creates a statistics tracker whose timestamps and
// rates are taken from clock
func NewStatisticsWithClock(clock clockwork.Clock) *Statistics {
	now := clock.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		clock:          clock,
	}
}

func (s *Statistics) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

// Update updates statistics for one line given its decode result
func (s *Statistics) Update(decodeErr error, validationErrors []ValidationError) {
	s.TotalLines++
	s.LastUpdateTime = s.now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrFieldCountMismatch):
			s.FieldCountErrs++
		case errors.Is(decodeErr, ErrFrameTooLong):
			s.FrameErrors++
		default:
			s.FieldParseErrs++
		}
		return
	}

	if len(validationErrors) == 0 {
		s.ValidLines++
		return
	}

	s.AnomalousValues++
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyPowerRange:
			s.PowerRange++
		case AnomalyAirFlowRange:
			s.AirFlowRange++
		case AnomalyTemperatureRange:
			s.TemperatureOdd++
		case AnomalyFlagValue:
			s.FlagValues++
		}
	}
}

// Errors returns the number of lines that failed framing or decoding
func (s Statistics) Errors() uint64 {
	return s.FieldCountErrs + s.FieldParseErrs + s.FrameErrors
}

// CalculateRates calculates line and error rates
func (s *Statistics) CalculateRates() {
	elapsed := s.now().Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.LineRate = float64(s.TotalLines) / elapsed
		s.ErrorRate = float64(s.Errors()+s.AnomalousValues) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, countPercent, parsePercent, framePercent, anomalousPercent float64
	if s.TotalLines > 0 {
		total := float64(s.TotalLines)
		validPercent = float64(s.ValidLines) * 100.0 / total
		countPercent = float64(s.FieldCountErrs) * 100.0 / total
		parsePercent = float64(s.FieldParseErrs) * 100.0 / total
		framePercent = float64(s.FrameErrors) * 100.0 / total
		anomalousPercent = float64(s.AnomalousValues) * 100.0 / total
	}

	elapsed := s.now().Sub(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", s.TotalLines)
	result += fmt.Sprintf("Valid Lines:     %8d (%.1f%%)\n", s.ValidLines, validPercent)

	if s.FieldCountErrs > 0 {
		result += fmt.Sprintf("Field Count:     %8d (%.1f%%)\n", s.FieldCountErrs, countPercent)
	}
	if s.FieldParseErrs > 0 {
		result += fmt.Sprintf("Parse Errors:    %8d (%.1f%%)\n", s.FieldParseErrs, parsePercent)
	}
	if s.FrameErrors > 0 {
		result += fmt.Sprintf("Frame Too Long:  %8d (%.1f%%)\n", s.FrameErrors, framePercent)
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Lines: %8d (%.1f%%)\n", s.AnomalousValues, anomalousPercent)
		if s.PowerRange > 0 {
			result += fmt.Sprintf("  Power Range:      %5d\n", s.PowerRange)
		}
		if s.AirFlowRange > 0 {
			result += fmt.Sprintf("  Airflow Range:    %5d\n", s.AirFlowRange)
		}
		if s.TemperatureOdd > 0 {
			result += fmt.Sprintf("  Temperature:      %5d\n", s.TemperatureOdd)
		}
		if s.FlagValues > 0 {
			result += fmt.Sprintf("  Flag Values:      %5d\n", s.FlagValues)
		}
	}
	if s.CommandsSent+s.CommandsDropped+s.CommandsFailed > 0 {
		result += fmt.Sprintf("Commands:        %8d sent, %d dropped, %d failed\n", s.CommandsSent, s.CommandsDropped, s.CommandsFailed)
	}

	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters and restarts the clock
func (s *Statistics) Reset() {
	clock := s.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	*s = *NewStatisticsWithClock(clock)
}
