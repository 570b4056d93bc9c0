// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"fmt"
	"strings"
)

// FormatState formats a state into a human-readable multi-line string
func FormatState(s DeviceState) string {
	var b strings.Builder

	if !s.ReceivedAt.IsZero() {
		b.WriteString(fmt.Sprintf("[%s] ", s.ReceivedAt.Format("15:04:05.000")))
	}
	b.WriteString("TELEMETRY\n")
	b.WriteString(fmt.Sprintf("  Soldering Iron: %6.1f°C  power=%3.0f%%  %s\n",
		s.SolderingIron.TemperatureC, s.SolderingIron.Power, FormatOnOff(s.SolderingIron.On)))
	b.WriteString(fmt.Sprintf("  SMD Rework:     %6.1f°C  power=%3.0f%%  %s  air=%3.0f%%\n",
		s.SMDRework.TemperatureC, s.SMDRework.Power, FormatOnOff(s.SMDRework.On), s.SMDRework.AirFlow))
	b.WriteString(fmt.Sprintf("  LCD Repair:     %6.1f°C  power=%3.0f%%  %s  vacuum=%s\n",
		s.LCDRepair.TemperatureC, s.LCDRepair.Power, FormatOnOff(s.LCDRepair.On), FormatOnOff(s.VacuumPumpOn)))

	return b.String()
}

// FormatStateLine formats a state on a single line
func FormatStateLine(s DeviceState) string {
	return fmt.Sprintf("SI %.1f°C %.0f%% %s | SMD %.1f°C %.0f%% %s air %.0f%% | LCD %.1f°C %.0f%% %s vac %s",
		s.SolderingIron.TemperatureC, s.SolderingIron.Power, FormatOnOff(s.SolderingIron.On),
		s.SMDRework.TemperatureC, s.SMDRework.Power, FormatOnOff(s.SMDRework.On), s.SMDRework.AirFlow,
		s.LCDRepair.TemperatureC, s.LCDRepair.Power, FormatOnOff(s.LCDRepair.On), FormatOnOff(s.VacuumPumpOn))
}

// FormatZone returns the human-readable name for a zone
func FormatZone(z Zone) string {
	switch z {
	case ZoneSolderingIron:
		return "Soldering Iron"
	case ZoneSMDRework:
		return "SMD Rework"
	case ZoneLCDRepair:
		return "LCD Repair"
	default:
		return "UNKNOWN"
	}
}

// FormatCommand describes a command for event logs
func FormatCommand(c Command) string {
	switch c.Action {
	case ActionPower:
		return fmt.Sprintf("%s power %s", FormatZone(c.Zone), FormatOnOff(c.Value != 0))
	case ActionSetpoint:
		return fmt.Sprintf("%s setpoint %d%%", FormatZone(c.Zone), c.Value)
	case ActionAirFlow:
		return fmt.Sprintf("%s airflow %d%%", FormatZone(c.Zone), c.Value)
	case ActionVacuum:
		return fmt.Sprintf("Vacuum pump %s", FormatOnOff(c.Value != 0))
	default:
		return Encode(c)
	}
}

// FormatOnOff renders a flag as ON/OFF
func FormatOnOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
