// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// exportRecord is the stream form of a DeviceState.
// CBOR keys are the wire field indexes; key 9 is the receive time in
// Unix milliseconds.
type exportRecord struct {
	SITemperature  float64 `json:"si_temperature" cbor:"0,keyasint"`
	SIPower        float64 `json:"si_power" cbor:"1,keyasint"`
	SMDTemperature float64 `json:"smd_temperature" cbor:"2,keyasint"`
	SMDPower       float64 `json:"smd_power" cbor:"3,keyasint"`
	SMDOn          bool    `json:"smd_on" cbor:"4,keyasint"`
	SMDAirFlow     float64 `json:"smd_air_flow" cbor:"5,keyasint"`
	LCDTemperature float64 `json:"lcd_temperature" cbor:"6,keyasint"`
	LCDPower       float64 `json:"lcd_power" cbor:"7,keyasint"`
	VacuumPumpOn   bool    `json:"vacuum_pump_on" cbor:"8,keyasint"`
	ReceivedAtMs   int64   `json:"received_at_ms,omitempty" cbor:"9,keyasint,omitempty"`
	SIOn           bool    `json:"si_on" cbor:"10,keyasint"`
	LCDOn          bool    `json:"lcd_on" cbor:"11,keyasint"`
}

func toExportRecord(s DeviceState) exportRecord {
	r := exportRecord{
		SITemperature:  s.SolderingIron.TemperatureC,
		SIPower:        s.SolderingIron.Power,
		SIOn:           s.SolderingIron.On,
		SMDTemperature: s.SMDRework.TemperatureC,
		SMDPower:       s.SMDRework.Power,
		SMDOn:          s.SMDRework.On,
		SMDAirFlow:     s.SMDRework.AirFlow,
		LCDTemperature: s.LCDRepair.TemperatureC,
		LCDPower:       s.LCDRepair.Power,
		LCDOn:          s.LCDRepair.On,
		VacuumPumpOn:   s.VacuumPumpOn,
	}
	if !s.ReceivedAt.IsZero() {
		r.ReceivedAtMs = s.ReceivedAt.UnixMilli()
	}
	return r
}

func (r exportRecord) state() DeviceState {
	s := DeviceState{
		SolderingIron: HeaterZone{TemperatureC: r.SITemperature, Power: r.SIPower, On: r.SIOn},
		SMDRework:     SMDZone{TemperatureC: r.SMDTemperature, Power: r.SMDPower, On: r.SMDOn, AirFlow: r.SMDAirFlow},
		LCDRepair:     HeaterZone{TemperatureC: r.LCDTemperature, Power: r.LCDPower, On: r.LCDOn},
		VacuumPumpOn:  r.VacuumPumpOn,
	}
	if r.ReceivedAtMs != 0 {
		s.ReceivedAt = time.UnixMilli(r.ReceivedAtMs)
	}
	return s
}

// MarshalStateCBOR encodes a state as a CBOR map keyed by field index
func MarshalStateCBOR(s DeviceState) ([]byte, error) {
	data, err := cbor.Marshal(toExportRecord(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR state: %w", err)
	}
	return data, nil
}

// UnmarshalStateCBOR decodes a state produced by MarshalStateCBOR
func UnmarshalStateCBOR(data []byte) (DeviceState, error) {
	var r exportRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return DeviceState{}, fmt.Errorf("failed to decode CBOR state: %w", err)
	}
	return r.state(), nil
}

// StateWriter writes a stream of states to w in one of the export formats
type StateWriter struct {
	w       io.Writer
	format  string
	jsonEnc *json.Encoder
	cborEnc *cbor.Encoder
}

// Export formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// NewStateWriter creates a writer for format (text, json or cbor)
func NewStateWriter(w io.Writer, format string) (*StateWriter, error) {
	sw := &StateWriter{w: w, format: format}
	switch format {
	case FormatText:
	case FormatJSON:
		sw.jsonEnc = json.NewEncoder(w)
	case FormatCBOR:
		sw.cborEnc = cbor.NewEncoder(w)
	default:
		return nil, fmt.Errorf("unsupported format %q (use %s, %s or %s)", format, FormatText, FormatJSON, FormatCBOR)
	}
	return sw, nil
}

// Write writes one state
func (sw *StateWriter) Write(s DeviceState) error {
	switch sw.format {
	case FormatJSON:
		return sw.jsonEnc.Encode(toExportRecord(s))
	case FormatCBOR:
		return sw.cborEnc.Encode(toExportRecord(s))
	default:
		_, err := io.WriteString(sw.w, FormatState(s))
		return err
	}
}
