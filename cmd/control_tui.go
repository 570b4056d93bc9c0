// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/solderstat/pkg/session"
	"github.com/Thermoquad/solderstat/pkg/station"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	controlLogHeight = 8
	portListWidth    = 30
)

// Focus states
const (
	focusPortList = iota
	focusZones
	focusButton
)

// Input modes
const (
	inputNone = iota
	inputSetpoint
	inputAirFlow
	inputCommand
)

// controlZones is the panel order
var controlZones = []station.Zone{
	station.ZoneSolderingIron,
	station.ZoneSMDRework,
	station.ZoneLCDRepair,
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// portItem is a serial port in the picker
type portItem struct {
	info session.PortInfo
}

// Implement list.Item interface
func (p portItem) Title() string { return p.info.Name }
func (p portItem) Description() string {
	if !p.info.IsUSB {
		return "serial port"
	}
	desc := fmt.Sprintf("USB %s:%s", p.info.VID, p.info.PID)
	if p.info.Product != "" {
		desc += " " + p.info.Product
	}
	return desc
}
func (p portItem) FilterValue() string { return p.info.Name }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	session       *session.Session
	events        eventFeed
	target        connectionTarget
	drainInterval time.Duration

	// Port picker, only when no port or URL is configured
	picker   bool
	portList list.Model

	// Monitoring
	stats     station.Statistics
	log       eventLog
	lastState *station.DeviceState

	// Control
	input        textinput.Model
	inputMode    int
	focusedField int
	selectedZone int

	// UI state
	state    session.State
	busy     bool // connect or disconnect in progress
	width    int
	height   int
	quitting bool
	styles   tuiStyles
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type connectResultMsg struct {
	err error
}

type disconnectedMsg struct{}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(s *session.Session, events eventFeed, target connectionTarget, ports []session.PortInfo, drainInterval time.Duration) controlModel {
	ti := textinput.New()
	ti.CharLimit = 16
	ti.Width = 16

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	portList := list.New(portItems(ports), delegate, portListWidth-2, 10)
	portList.Title = "Serial Ports"
	portList.SetShowStatusBar(false)
	portList.SetShowHelp(false)
	portList.SetFilteringEnabled(false)

	picker := target.portID == ""
	focus := focusZones
	if picker {
		focus = focusPortList
	}

	return controlModel{
		session:       s,
		events:        events,
		target:        target,
		drainInterval: drainInterval,
		picker:        picker,
		portList:      portList,
		stats:         s.Stats(),
		log:           newEventLog(maxLogEntries),
		input:         ti,
		focusedField:  focus,
		state:         s.State(),
		width:         80,
		height:        24,
		styles:        newTUIStyles(),
	}
}

func portItems(ports []session.PortInfo) []list.Item {
	items := make([]list.Item, len(ports))
	for i, p := range ports {
		items[i] = portItem{info: p}
	}
	return items
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	cmds := []tea.Cmd{drainTickCmd(m.drainInterval)}
	if !m.picker {
		// A configured target is dialed once at startup
		cmds = append(cmds, connectCmd(m.session, m.target.portID))
	}
	return tea.Batch(cmds...)
}

func connectCmd(s *session.Session, portID string) tea.Cmd {
	return func() tea.Msg {
		return connectResultMsg{err: s.Connect(portID)}
	}
}

func disconnectCmd(s *session.Session) tea.Cmd {
	return func() tea.Msg {
		s.Disconnect()
		return disconnectedMsg{}
	}
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.inputMode != inputNone {
			return m.handleInputKey(msg)
		}
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if m.picker {
			var cmd tea.Cmd
			m.portList, cmd = m.portList.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case drainTickMsg:
		m.apply(m.session.Drain(), m.events.drain())
		m.stats = m.session.Stats()
		m.state = m.session.State()
		return m, drainTickCmd(m.drainInterval)

	case connectResultMsg:
		m.busy = false
		m.state = m.session.State()
		if msg.err == nil {
			m.lastState = nil
		}

	case disconnectedMsg:
		m.busy = false
		m.state = m.session.State()
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "c":
		return m.toggleConnection()

	case "enter":
		if m.focusedField == focusButton || (m.focusedField == focusPortList && m.state == session.Disconnected) {
			return m.toggleConnection()
		}

	case "r":
		if m.picker {
			m.refreshPorts()
		}
		return m, nil

	case "up", "k":
		if m.focusedField == focusZones {
			m.selectedZone = (m.selectedZone + len(controlZones) - 1) % len(controlZones)
			return m, nil
		}

	case "down", "j":
		if m.focusedField == focusZones {
			m.selectedZone = (m.selectedZone + 1) % len(controlZones)
			return m, nil
		}

	case "p":
		zone := controlZones[m.selectedZone]
		m.send(station.PowerCommand(zone, !m.zoneOn(zone)))
		return m, nil

	case "v":
		on := m.lastState != nil && m.lastState.VacuumPumpOn
		m.send(station.VacuumCommand(!on))
		return m, nil

	case "s":
		return m.openInput(inputSetpoint)

	case "a":
		m.selectedZone = 1
		return m.openInput(inputAirFlow)

	case ":":
		return m.openInput(inputCommand)
	}

	// Pass through to the port list
	if m.picker && m.focusedField == focusPortList {
		var cmd tea.Cmd
		m.portList, cmd = m.portList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m controlModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.closeInput()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			value = m.input.Placeholder
		}
		mode := m.inputMode
		m.closeInput()

		cmd, err := m.buildCommand(mode, value)
		if err != nil {
			m.log.add(time.Now(), err.Error(), true)
			return m, nil
		}
		m.send(cmd)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *controlModel) cycleFocus(delta int) {
	first := focusPortList
	if !m.picker {
		first = focusZones
	}
	n := focusButton - first + 1
	m.focusedField = first + (m.focusedField-first+delta+n)%n
}

func (m controlModel) openInput(mode int) (tea.Model, tea.Cmd) {
	m.inputMode = mode
	m.input.SetValue("")

	zone := controlZones[m.selectedZone]
	switch mode {
	case inputSetpoint:
		m.input.Prompt = fmt.Sprintf("%s setpoint %%: ", station.FormatZone(zone))
		m.input.Placeholder = "50"
		if m.lastState != nil {
			m.input.Placeholder = fmt.Sprintf("%.0f", m.zonePower(zone))
		}
	case inputAirFlow:
		m.input.Prompt = "SMD airflow %: "
		m.input.Placeholder = "50"
		if m.lastState != nil {
			m.input.Placeholder = fmt.Sprintf("%.0f", m.lastState.SMDRework.AirFlow)
		}
	case inputCommand:
		m.input.Prompt = "Command: "
		m.input.Placeholder = "SI,SET,40"
	}
	return m, m.input.Focus()
}

func (m *controlModel) closeInput() {
	m.inputMode = inputNone
	m.input.Blur()
	m.input.SetValue("")
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// buildCommand turns input text into a validated command
func (m controlModel) buildCommand(mode int, value string) (station.Command, error) {
	var cmd station.Command
	switch mode {
	case inputCommand:
		parsed, err := station.ParseCommand(value)
		if err != nil {
			return station.Command{}, err
		}
		cmd = parsed

	case inputSetpoint, inputAirFlow:
		percent, err := strconv.Atoi(value)
		if err != nil {
			return station.Command{}, fmt.Errorf("invalid percent value: %s", value)
		}
		if mode == inputAirFlow {
			cmd = station.AirFlowCommand(percent)
		} else {
			cmd = station.SetpointCommand(controlZones[m.selectedZone], percent)
		}
	}

	if err := cmd.Validate(); err != nil {
		return station.Command{}, err
	}
	return cmd, nil
}

// send queues cmd on the session; the outcome is reported as an event
func (m *controlModel) send(cmd station.Command) {
	if m.state != session.Connected {
		m.log.add(time.Now(), "Cannot send command: not connected", true)
		return
	}
	if !m.session.Send(cmd) {
		logger.Debug().Str("command", cmd.String()).Msg("command not accepted")
	}
}

func (m controlModel) toggleConnection() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	switch m.state {
	case session.Connected:
		m.busy = true
		return m, disconnectCmd(m.session)

	case session.Disconnected:
		portID := m.target.portID
		if m.picker {
			item, ok := m.portList.SelectedItem().(portItem)
			if !ok {
				m.log.add(time.Now(), "No serial port selected", true)
				return m, nil
			}
			portID = item.info.Name
		}
		m.busy = true
		return m, connectCmd(m.session, portID)
	}
	return m, nil
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

// apply folds one drain worth of states and events into the model
func (m *controlModel) apply(states []station.DeviceState, events []session.Event) {
	for _, e := range events {
		switch e.Kind {
		case session.EventDecodeFailed, session.EventAnomaly, session.EventFrameTooLong:
			// Counted in the statistics bar
			logger.Debug().Str("kind", e.Kind.String()).Err(e.Err).Msg("telemetry issue")
		default:
			m.log.add(e.Time, e.String(), e.IsError())
		}
	}

	if len(states) > 0 {
		last := states[len(states)-1]
		m.lastState = &last
	}
}

func (m controlModel) zoneOn(zone station.Zone) bool {
	if m.lastState == nil {
		return false
	}
	switch zone {
	case station.ZoneSolderingIron:
		return m.lastState.SolderingIron.On
	case station.ZoneSMDRework:
		return m.lastState.SMDRework.On
	default:
		return m.lastState.LCDRepair.On
	}
}

func (m controlModel) zonePower(zone station.Zone) float64 {
	switch zone {
	case station.ZoneSolderingIron:
		return m.lastState.SolderingIron.Power
	case station.ZoneSMDRework:
		return m.lastState.SMDRework.Power
	default:
		return m.lastState.LCDRepair.Power
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.styles

	var s strings.Builder

	// Header
	helpText := "q=quit c=connect Tab=switch"
	s.WriteString(st.title.Render("SOLDERSTAT CONTROL"))
	s.WriteString(" ")
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | %s | %s", m.connInfo(), m.renderState(), helpText)))
	s.WriteString("\n\n")

	// Layout: left panel (ports) | right panel (zones)
	rightWidth := m.width - 4
	controlPanel := m.renderControlPanel()
	if m.picker {
		rightWidth = m.width - portListWidth - 6
		listStyle := st.box.Width(portListWidth)
		if m.focusedField == focusPortList {
			listStyle = st.focusedBox.Width(portListWidth)
		}
		portPanel := listStyle.Render(m.portList.View())
		zonePanel := m.zoneBoxStyle().Width(rightWidth).Render(controlPanel)
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, portPanel, " ", zonePanel))
	} else {
		s.WriteString(m.zoneBoxStyle().Width(rightWidth).Render(controlPanel))
	}
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(st.box.Width(m.width - 4).Render(renderStats(st, m.stats)))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(st.label.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(st.box.Width(m.width - 4).Render(renderLog(st, m.log, controlLogHeight, "15:04:05.000")))

	return s.String()
}

func (m controlModel) zoneBoxStyle() lipgloss.Style {
	if m.focusedField == focusZones || m.focusedField == focusButton {
		return m.styles.focusedBox
	}
	return m.styles.box
}

func (m controlModel) connInfo() string {
	if m.target.info != "" {
		return m.target.info
	}
	if port := m.session.Port(); port != "" {
		return fmt.Sprintf("Serial: %s @ %s", port, cfg.PortOptions())
	}
	return "No port selected"
}

func (m controlModel) renderState() string {
	st := m.styles
	switch m.state {
	case session.Connected:
		return st.value.Render("CONNECTED")
	case session.Connecting, session.Disconnecting:
		return st.warning.Render(strings.ToUpper(m.state.String()) + "...")
	default:
		return st.err.Render("DISCONNECTED")
	}
}

func (m controlModel) renderControlPanel() string {
	st := m.styles
	var s strings.Builder

	if m.lastState == nil {
		s.WriteString(st.header.Render("No telemetry data"))
		s.WriteString("\n\n")
	} else {
		for i, zone := range controlZones {
			marker := "  "
			if i == m.selectedZone {
				marker = st.label.Render("▸ ")
			}
			s.WriteString(marker)
			s.WriteString(m.renderZoneLine(zone))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	// Input line
	if m.inputMode != inputNone {
		s.WriteString(m.input.View())
		s.WriteString("\n")
		s.WriteString(st.header.Render("Enter=send Esc=cancel"))
	} else {
		s.WriteString(st.header.Render("↑/↓=zone p=power s=setpoint a=airflow v=vacuum :=command"))
	}
	s.WriteString("\n\n")

	// Connect button
	btnText := "[ Connect ]"
	if m.state == session.Connected {
		btnText = "[ Disconnect ]"
	}
	if m.focusedField == focusButton {
		s.WriteString(st.focusButton.Render(btnText))
	} else {
		s.WriteString(st.button.Render(btnText))
	}

	return s.String()
}

func (m controlModel) renderZoneLine(zone station.Zone) string {
	st := m.styles
	onOff := func(on bool) string {
		if on {
			return st.value.Render("ON ")
		}
		return st.header.Render("OFF")
	}

	state := m.lastState
	name := st.label.Render(fmt.Sprintf("%-15s", station.FormatZone(zone)))
	switch zone {
	case station.ZoneSolderingIron:
		return fmt.Sprintf("%s %s %s  power %3.0f%%",
			name, st.value.Render(fmt.Sprintf("%6.1f°C", state.SolderingIron.TemperatureC)),
			onOff(state.SolderingIron.On), state.SolderingIron.Power)
	case station.ZoneSMDRework:
		return fmt.Sprintf("%s %s %s  power %3.0f%%  air %3.0f%%",
			name, st.value.Render(fmt.Sprintf("%6.1f°C", state.SMDRework.TemperatureC)),
			onOff(state.SMDRework.On), state.SMDRework.Power, state.SMDRework.AirFlow)
	default:
		return fmt.Sprintf("%s %s %s  power %3.0f%%  vacuum %s",
			name, st.value.Render(fmt.Sprintf("%6.1f°C", state.LCDRepair.TemperatureC)),
			onOff(state.LCDRepair.On), state.LCDRepair.Power, onOff(state.VacuumPumpOn))
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) refreshPorts() {
	ports, err := session.ListPorts()
	if err != nil {
		m.log.add(time.Now(), fmt.Sprintf("Failed to list serial ports: %v", err), true)
		return
	}
	m.portList.SetItems(portItems(ports))
	m.log.add(time.Now(), fmt.Sprintf("Found %d serial port(s)", len(ports)), false)
}

func (m *controlModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.portList.SetSize(portListWidth-2, listHeight)
}
