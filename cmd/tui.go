// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/solderstat/pkg/session"
	"github.com/Thermoquad/solderstat/pkg/station"
)

const maxLogEntries = 100

// Log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// eventLog keeps the most recent entries for the Recent Events box
type eventLog struct {
	entries []logEntry
	max     int
}

func newEventLog(max int) eventLog {
	return eventLog{entries: make([]logEntry, 0), max: max}
}

func (l *eventLog) add(ts time.Time, message string, isError bool) {
	l.entries = append(l.entries, logEntry{timestamp: ts, message: message, isError: isError})

	// Keep only last N entries
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// tail returns at most n of the newest entries
func (l eventLog) tail(n int) []logEntry {
	if n >= len(l.entries) {
		return l.entries
	}
	return l.entries[len(l.entries)-n:]
}

// eventFeed carries session events into the bubbletea loop. Sessions report
// from their own goroutines and from inside Drain, which runs in Update, so
// events are buffered and collected on the next tick instead of p.Send.
type eventFeed chan session.Event

func newEventFeed() eventFeed {
	return make(eventFeed, 256)
}

// push never blocks; events beyond the buffer are dropped
func (f eventFeed) push(e session.Event) {
	select {
	case f <- e:
	default:
	}
}

func (f eventFeed) drain() []session.Event {
	var events []session.Event
	for {
		select {
		case e := <-f:
			events = append(events, e)
		default:
			return events
		}
	}
}

// Messages
type drainTickMsg time.Time

func drainTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return drainTickMsg(t)
	})
}

// tuiStyles is the shared palette of the TUIs
type tuiStyles struct {
	title       lipgloss.Style
	header      lipgloss.Style
	label       lipgloss.Style
	value       lipgloss.Style
	err         lipgloss.Style
	warning     lipgloss.Style
	box         lipgloss.Style
	focusedBox  lipgloss.Style
	button      lipgloss.Style
	focusButton lipgloss.Style
}

func newTUIStyles() tuiStyles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	button := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		err: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")),
		box:         box,
		focusedBox:  box.BorderForeground(lipgloss.Color("12")),
		button:      button,
		focusButton: button.Background(lipgloss.Color("10")),
	}
}

// formatUptime formats a duration to a human-friendly string
func formatUptime(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}

	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

// renderStats renders the statistics box content
func renderStats(st tuiStyles, stats station.Statistics) string {
	var validPercent, errorPercent float64
	bad := stats.Errors() + stats.AnomalousValues
	if stats.TotalLines > 0 {
		validPercent = float64(stats.ValidLines) * 100.0 / float64(stats.TotalLines)
		errorPercent = float64(bad) * 100.0 / float64(stats.TotalLines)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.label.Render("Total:"), st.value.Render(fmt.Sprintf("%d", stats.TotalLines)),
		st.label.Render("Valid:"), st.value.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidLines, validPercent)),
		st.label.Render("Errors:"), st.err.Render(fmt.Sprintf("%d (%.1f%%)", bad, errorPercent)),
	))

	if stats.Errors() > 0 {
		b.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			st.label.Render("Malformed:"), st.err.Render(fmt.Sprintf("%d", stats.Errors())),
			st.header.Render("field count"), stats.FieldCountErrs,
			st.header.Render("parse"), stats.FieldParseErrs,
			st.header.Render("too long"), stats.FrameErrors,
		))
	}

	if stats.AnomalousValues > 0 {
		b.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			st.label.Render("Anomalous:"), st.warning.Render(fmt.Sprintf("%d", stats.AnomalousValues)),
			st.header.Render("power"), stats.PowerRange,
			st.header.Render("airflow"), stats.AirFlowRange,
			st.header.Render("temperature"), stats.TemperatureOdd,
			st.header.Render("flags"), stats.FlagValues,
		))
	}

	if stats.CommandsSent+stats.CommandsDropped+stats.CommandsFailed > 0 {
		b.WriteString(fmt.Sprintf("%s %s   %s %d   %s %d\n",
			st.label.Render("Commands:"), st.value.Render(fmt.Sprintf("%d sent", stats.CommandsSent)),
			st.label.Render("Dropped:"), stats.CommandsDropped,
			st.label.Render("Failed:"), stats.CommandsFailed,
		))
	}

	errRate := st.value.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errRate = st.err.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s",
		st.label.Render("Line Rate:"), st.value.Render(fmt.Sprintf("%.1f lines/s", stats.LineRate)),
		st.label.Render("Error Rate:"), errRate,
	))

	return b.String()
}

// renderZones renders the three zones of the latest state
func renderZones(st tuiStyles, s station.DeviceState) string {
	onOff := func(on bool) string {
		if on {
			return st.value.Render("ON")
		}
		return st.header.Render("OFF")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s  %s %3.0f%%  %s\n",
		st.label.Render("Soldering Iron:"), st.value.Render(fmt.Sprintf("%6.1f°C", s.SolderingIron.TemperatureC)),
		st.label.Render("Power:"), s.SolderingIron.Power, onOff(s.SolderingIron.On),
	))
	b.WriteString(fmt.Sprintf("%s %s  %s %3.0f%%  %s  %s %3.0f%%\n",
		st.label.Render("SMD Rework:    "), st.value.Render(fmt.Sprintf("%6.1f°C", s.SMDRework.TemperatureC)),
		st.label.Render("Power:"), s.SMDRework.Power, onOff(s.SMDRework.On),
		st.label.Render("Air:"), s.SMDRework.AirFlow,
	))
	b.WriteString(fmt.Sprintf("%s %s  %s %3.0f%%  %s  %s %s",
		st.label.Render("LCD Repair:    "), st.value.Render(fmt.Sprintf("%6.1f°C", s.LCDRepair.TemperatureC)),
		st.label.Render("Power:"), s.LCDRepair.Power, onOff(s.LCDRepair.On),
		st.label.Render("Vacuum:"), onOff(s.VacuumPumpOn),
	))
	return b.String()
}

// renderLog renders the newest entries that fit in height lines
func renderLog(st tuiStyles, log eventLog, height int, timeFormat string) string {
	if len(log.entries) == 0 {
		return st.header.Render("  (no events yet)")
	}

	var b strings.Builder
	for _, entry := range log.tail(height) {
		timestamp := entry.timestamp.Format(timeFormat)
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s\n",
				st.header.Render(timestamp),
				st.err.Render("✗ "+entry.message),
			))
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n",
				st.header.Render(timestamp),
				st.warning.Render("ℹ "+entry.message),
			))
		}
	}
	return b.String()
}

//////////////////////////////////////////////////////////////
// Error detection model
//////////////////////////////////////////////////////////////

// model is the error detection TUI
type model struct {
	session       *session.Session
	events        eventFeed
	connInfo      string
	drainInterval time.Duration
	showAll       bool

	stats         station.Statistics
	log           eventLog
	lastState     *station.DeviceState
	synchronized  bool
	skippedLines  int
	connected     bool
	connectedAt   time.Time
	width, height int
	quitting      bool
	styles        tuiStyles
}

func initialModel(s *session.Session, events eventFeed, connInfo string, drainInterval time.Duration, showAll bool) model {
	return model{
		session:       s,
		events:        events,
		connInfo:      connInfo,
		drainInterval: drainInterval,
		showAll:       showAll,
		stats:         s.Stats(),
		log:           newEventLog(maxLogEntries),
		connected:     s.State() == session.Connected,
		connectedAt:   time.Now(),
		width:         80,
		height:        24,
		styles:        newTUIStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		drainTickCmd(m.drainInterval),
		tea.EnterAltScreen,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.session.ResetStats()
			m.stats = m.session.Stats()
			m.log.add(time.Now(), "Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case drainTickMsg:
		m.apply(m.session.Drain(), m.events.drain())
		m.stats = m.session.Stats()
		return m, drainTickCmd(m.drainInterval)
	}

	return m, nil
}

// apply folds one drain worth of states and events into the model
func (m *model) apply(states []station.DeviceState, events []session.Event) {
	for _, e := range events {
		m.handleEvent(e)
	}

	for i := range states {
		if !m.synchronized {
			m.synchronized = true
			if m.skippedLines > 0 {
				m.log.add(states[i].ReceivedAt, fmt.Sprintf("Synchronized after skipping %d malformed lines", m.skippedLines), false)
			} else {
				m.log.add(states[i].ReceivedAt, "Synchronized", false)
			}
		}
		if m.showAll {
			m.log.add(states[i].ReceivedAt, station.FormatStateLine(states[i]), false)
		}
	}
	if len(states) > 0 {
		last := states[len(states)-1]
		m.lastState = &last
	}
}

func (m *model) handleEvent(e session.Event) {
	switch e.Kind {
	case session.EventDecodeFailed:
		// The first line after connecting is usually a partial one
		if !m.synchronized {
			m.skippedLines++
			return
		}
		m.log.add(e.Time, fmt.Sprintf("DECODE ERROR: %v", e.Err), true)

	case session.EventAnomaly:
		m.log.add(e.Time, fmt.Sprintf("ANOMALY: %v", e.Err), true)

	case session.EventFrameTooLong:
		m.log.add(e.Time, fmt.Sprintf("FRAME ERROR: %v", e.Err), true)

	case session.EventStateChanged:
		switch e.State {
		case session.Connected:
			m.connected = true
			m.connectedAt = e.Time
		case session.Disconnected:
			m.connected = false
		}
		m.log.add(e.Time, e.String(), false)

	default:
		m.log.add(e.Time, e.String(), e.IsError())
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.styles

	mode := "Errors only"
	if m.showAll {
		mode = "All lines"
	}

	// Header
	var s strings.Builder
	s.WriteString(st.title.Render("SOLDERSTAT - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit, 'r' to reset", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Connection and sync status
	switch {
	case !m.connected:
		s.WriteString(st.err.Render("✗ Disconnected"))
	case !m.synchronized:
		s.WriteString(st.warning.Render("⏳ Waiting for telemetry..."))
	default:
		s.WriteString(st.value.Render("✓ Synchronized"))
		if m.skippedLines > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d malformed lines)", m.skippedLines)))
		}
		s.WriteString(st.header.Render(fmt.Sprintf(" | connected %s", formatUptime(time.Since(m.connectedAt)))))
	}
	s.WriteString("\n\n")

	// Statistics
	s.WriteString(st.box.Render(renderStats(st, m.stats)))
	s.WriteString("\n\n")

	// Telemetry section (only shown if telemetry received)
	if m.lastState != nil {
		s.WriteString(st.label.Render("Latest Telemetry:"))
		s.WriteString("\n")
		s.WriteString(st.box.Render(renderZones(st, *m.lastState)))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20 // Reserve space for header, stats and telemetry
	if logHeight < 5 {
		logHeight = 5
	}
	s.WriteString(st.box.Width(m.width - 4).Render(renderLog(st, m.log, logHeight, "01/02/06 15:04:05.000")))

	return s.String()
}
