// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/solderstat/pkg/station"
)

// State is the connection state of a session
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a session. Zero values select the defaults.
type Options struct {
	Factory      PortFactory // Defaults to SerialPortFactory
	PortOptions  PortOptions
	Logger       zerolog.Logger
	Clock        clockwork.Clock
	CloseGrace   time.Duration
	IdleDelay    time.Duration
	MaxFrameSize int

	// OnEvent receives every report. It is called from the caller's
	// goroutine, the reader and write goroutines, and must not block.
	OnEvent func(Event)
}

// Session drives one station connection through
// Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected.
// Drain must not be called concurrently with itself.
type Session struct {
	opts  Options
	log   zerolog.Logger
	clock clockwork.Clock
	queue *Queue

	mu      sync.Mutex
	state   State
	portID  string
	channel *Channel

	statsMu sync.Mutex
	stats   *station.Statistics
}

// New creates a disconnected session
func New(opts Options) *Session {
	if opts.Factory == nil {
		opts.Factory = SerialPortFactory
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PortOptions == (PortOptions{}) {
		opts.PortOptions = DefaultPortOptions()
	}

	return &Session{
		opts:  opts,
		log:   opts.Logger,
		clock: opts.Clock,
		queue: NewQueue(),
		stats: station.NewStatisticsWithClock(opts.Clock),
	}
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the port of the current or most recent connection
func (s *Session) Port() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portID
}

// Stats returns a snapshot of the session statistics
func (s *Session) Stats() station.Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.CalculateRates()
	return *s.stats
}

// ResetStats clears the session statistics
func (s *Session) ResetStats() {
	s.statsMu.Lock()
	s.stats.Reset()
	s.statsMu.Unlock()
}

// Connect opens portID and starts reading. It is only valid while
// Disconnected. On failure the session returns to Disconnected and the
// *OpenError is returned.
func (s *Session) Connect(portID string) error {
	s.mu.Lock()
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot connect while %s", ErrInvalidState, state)
	}
	s.state = Connecting
	s.portID = portID
	s.mu.Unlock()
	s.emitState(Connecting)

	// Records from a previous connection are not carried over
	s.queue.DrainAll()

	ch, err := OpenChannel(s.opts.Factory, portID, s.opts.PortOptions, ChannelOptions{
		Logger:       s.log,
		Clock:        s.clock,
		CloseGrace:   s.opts.CloseGrace,
		IdleDelay:    s.opts.IdleDelay,
		MaxFrameSize: s.opts.MaxFrameSize,
		OnFrameError: s.frameError,
	})
	if err != nil {
		s.log.Error().Err(err).Str("port", portID).Msg("connect failed")
		s.emit(Event{Kind: EventOpenFailed, Err: err})
		s.setState(Disconnected)
		return err
	}

	terminal, err := ch.StartReading(s.queue)
	if err != nil {
		ch.Close()
		s.emit(Event{Kind: EventOpenFailed, Err: err})
		s.setState(Disconnected)
		return err
	}

	s.mu.Lock()
	s.channel = ch
	s.state = Connected
	s.mu.Unlock()
	s.log.Info().Str("port", portID).Msg("connected")
	s.emitState(Connected)

	go s.watch(ch, terminal)
	return nil
}

// Disconnect closes the current connection. It always ends Disconnected;
// close failures are reported as events. It is a no-op unless Connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	ch := s.channel
	connected := s.state == Connected
	s.mu.Unlock()

	if connected {
		s.teardown(ch)
	}
}

// watch turns a read loop failure into a disconnect
func (s *Session) watch(ch *Channel, terminal <-chan error) {
	err, ok := <-terminal
	if !ok {
		return
	}
	s.log.Warn().Err(err).Str("port", ch.PortID()).Msg("read loop failed, disconnecting")
	s.emit(Event{Kind: EventReadFailed, Err: err})
	s.teardown(ch)
}

// teardown runs Connected -> Disconnecting -> Disconnected for ch. Only
// the first caller for a given channel does anything.
func (s *Session) teardown(ch *Channel) {
	s.mu.Lock()
	if s.channel != ch || s.state != Connected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnecting
	s.mu.Unlock()
	s.emitState(Disconnecting)

	if err := ch.Close(); err != nil {
		s.log.Warn().Err(err).Str("port", ch.PortID()).Msg("close reported an error")
		s.emit(Event{Kind: EventCloseFailed, Err: err})
	}

	s.mu.Lock()
	s.channel = nil
	s.state = Disconnected
	s.mu.Unlock()
	s.log.Info().Str("port", ch.PortID()).Msg("disconnected")
	s.emitState(Disconnected)
}

// Drain decodes every queued record in arrival order. Malformed records
// are reported and skipped; implausible values are reported but kept.
// Each returned state is stamped with the drain time.
func (s *Session) Drain() []station.DeviceState {
	records := s.queue.DrainAll()
	if len(records) == 0 {
		return nil
	}

	now := s.clock.Now()
	states := make([]station.DeviceState, 0, len(records))
	var failures []Event

	s.statsMu.Lock()
	for _, record := range records {
		values, err := station.DecodeValues(record)
		if err != nil {
			s.stats.Update(err, nil)
			s.log.Debug().Err(err).Str("record", record).Msg("discarding telemetry")
			failures = append(failures, Event{Kind: EventDecodeFailed, Record: record, Err: err})
			continue
		}

		anomalies := station.ValidateValues(values)
		s.stats.Update(nil, anomalies)
		for i := range anomalies {
			failures = append(failures, Event{Kind: EventAnomaly, Record: record, Err: &anomalies[i]})
		}

		state := station.StateFromValues(values)
		state.ReceivedAt = now
		states = append(states, state)
	}
	s.statsMu.Unlock()

	for _, e := range failures {
		s.emit(e)
	}
	return states
}

// Send writes cmd without waiting. It returns false when the session is
// not connected or another write is in flight; the outcome of an accepted
// write is reported as an event. Commands are written as encoded, so
// callers check legality with cmd.Validate first.
func (s *Session) Send(cmd station.Command) bool {
	ch, err := s.sendChannel()
	if err != nil {
		return false
	}

	line := station.Encode(cmd)
	accepted := ch.WriteAsync(line, func(sent bool, err error) {
		s.writeDone(cmd, sent, err)
	})
	return accepted
}

// SendWait writes cmd and waits for the write to complete
func (s *Session) SendWait(ctx context.Context, cmd station.Command) error {
	ch, err := s.sendChannel()
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	ch.WriteAsync(station.Encode(cmd), func(sent bool, err error) {
		s.writeDone(cmd, sent, err)
		if err == nil && !sent {
			err = ErrWriteDropped
		}
		result <- err
	})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) sendChannel() (*Channel, error) {
	s.mu.Lock()
	ch, state := s.channel, s.state
	s.mu.Unlock()

	if state != Connected || ch == nil {
		return nil, fmt.Errorf("%w: cannot send while %s", ErrInvalidState, state)
	}
	return ch, nil
}

func (s *Session) writeDone(cmd station.Command, sent bool, err error) {
	s.statsMu.Lock()
	switch {
	case err != nil:
		s.stats.CommandsFailed++
	case sent:
		s.stats.CommandsSent++
	default:
		s.stats.CommandsDropped++
	}
	s.statsMu.Unlock()

	switch {
	case err != nil:
		s.log.Error().Err(err).Str("command", cmd.String()).Msg("write failed")
		s.emit(Event{Kind: EventWriteFailed, Command: cmd, Err: err})
	case sent:
		s.log.Debug().Str("command", cmd.String()).Msg("command sent")
		s.emit(Event{Kind: EventCommandSent, Command: cmd})
	default:
		s.log.Debug().Str("command", cmd.String()).Msg("command dropped")
		s.emit(Event{Kind: EventWriteDropped, Command: cmd})
	}
}

func (s *Session) frameError(err error) {
	s.statsMu.Lock()
	s.stats.Update(err, nil)
	s.statsMu.Unlock()
	s.emit(Event{Kind: EventFrameTooLong, Err: err})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.emitState(state)
}

func (s *Session) emitState(state State) {
	s.emit(Event{Kind: EventStateChanged, State: state})
}

func (s *Session) emit(e Event) {
	if s.opts.OnEvent == nil {
		return
	}
	e.Time = s.clock.Now()
	if e.Port == "" {
		s.mu.Lock()
		e.Port = s.portID
		s.mu.Unlock()
	}
	s.opts.OnEvent(e)
}
