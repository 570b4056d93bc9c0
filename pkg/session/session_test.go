// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/solderstat/pkg/station"
)

func newTestSession(t *testing.T, port *mockPort) (*Session, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	s := New(Options{
		Factory:    factoryFor(port, nil),
		CloseGrace: testGrace,
		IdleDelay:  testIdleDelay,
		OnEvent:    rec.record,
	})
	return s, rec
}

func TestSession_ConnectDisconnect(t *testing.T) {
	t.Parallel()

	port := newMockPort()
	s, rec := newTestSession(t, port)
	assert.Equal(t, Disconnected, s.State())

	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	assert.Equal(t, Connected, s.State())
	assert.Equal(t, "/dev/ttyUSB0", s.Port())

	s.Disconnect()
	assert.Equal(t, Disconnected, s.State())
	assert.True(t, port.IsClosed())

	assert.Equal(t, []State{Connecting, Connected, Disconnecting, Disconnected}, rec.states())

	// Disconnect is a no-op once disconnected
	s.Disconnect()
	assert.Len(t, rec.states(), 4)
}

func TestSession_ConnectOnlyFromDisconnected(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, newMockPort())
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	defer s.Disconnect()

	err := s.Connect("/dev/ttyUSB1")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "/dev/ttyUSB0", s.Port())
}

func TestSession_OpenFailureReturnsToDisconnected(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	s := New(Options{
		Factory: func(portID string, _ PortOptions) (Port, error) {
			return nil, &OpenError{Port: portID, Kind: PortUnavailable, Err: errors.New("no such device")}
		},
		OnEvent: rec.record,
	})

	err := s.Connect("/dev/ttyMISSING")
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, PortUnavailable, openErr.Kind)

	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, []State{Connecting, Disconnected}, rec.states())
	assert.Equal(t, 1, rec.count(EventOpenFailed), "open failures are reported once and not retried")
}

func TestSession_ReadFailureForcesDisconnect(t *testing.T) {
	t.Parallel()

	port := newMockPort()
	s, rec := newTestSession(t, port)
	require.NoError(t, s.Connect("/dev/ttyUSB0"))

	port.Fail(errors.New("input/output error"))

	require.Eventually(t, func() bool { return len(rec.states()) == 4 }, waitFor, tick)
	assert.Equal(t, Disconnected, s.State())
	assert.True(t, port.IsClosed())
	assert.Equal(t, 1, rec.count(EventReadFailed))
	assert.Equal(t, []State{Connecting, Connected, Disconnecting, Disconnected}, rec.states())

	// The session can reconnect afterwards
	port2 := newMockPort()
	s.opts.Factory = factoryFor(port2, nil)
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	s.Disconnect()
}

func TestSession_DisconnectWithStuckReader(t *testing.T) {
	t.Parallel()

	port := newStuckPort()
	s, rec := newTestSession(t, port)
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	port.waitEntered(t)

	start := time.Now()
	s.Disconnect()
	elapsed := time.Since(start)

	assert.Equal(t, Disconnected, s.State())
	assert.GreaterOrEqual(t, elapsed, testGrace)
	assert.Less(t, elapsed, waitFor)
	assert.True(t, port.IsClosed())
	assert.Equal(t, 1, rec.count(EventCloseFailed))

	close(port.stuck)
}

func TestSession_StatsUseSessionClock(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC))
	s := New(Options{Clock: clock})
	assert.Equal(t, clock.Now(), s.Stats().StartTime)

	s.queue.Push("25,0,30,10,1,50,40,0,1")
	s.queue.Push("26,0,30,10,1,50,40,0,1")
	clock.Advance(4 * time.Second)
	require.Len(t, s.Drain(), 2)

	stats := s.Stats()
	assert.Equal(t, clock.Now(), stats.LastUpdateTime)
	assert.InDelta(t, 0.5, stats.LineRate, 1e-9)

	clock.Advance(time.Minute)
	s.ResetStats()
	assert.Equal(t, clock.Now(), s.Stats().StartTime)
}

func TestSession_DrainSkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC))
	rec := &eventRecorder{}
	port := newMockPort()
	s := New(Options{
		Factory:    factoryFor(port, nil),
		Clock:      clock,
		CloseGrace: testGrace,
		IdleDelay:  testIdleDelay,
		OnEvent:    rec.record,
	})

	s.queue.Push("25,0,30,10,1,50,40,0,1")
	s.queue.Push("25,0,30,oops,1,50,40,0,1")
	s.queue.Push("300,45,250,80,0,60,120,15,0")

	states := s.Drain()
	require.Len(t, states, 2)
	assert.Equal(t, 25.0, states[0].SolderingIron.TemperatureC)
	assert.True(t, states[0].VacuumPumpOn)
	assert.Equal(t, 300.0, states[1].SolderingIron.TemperatureC)
	assert.True(t, states[1].LCDRepair.On)
	for _, st := range states {
		assert.Equal(t, clock.Now(), st.ReceivedAt)
	}

	require.Equal(t, 1, rec.count(EventDecodeFailed))
	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.TotalLines)
	assert.Equal(t, uint64(2), stats.ValidLines)
	assert.Equal(t, uint64(1), stats.FieldParseErrs)

	assert.Nil(t, s.Drain(), "queue is empty after a drain")
}

func TestSession_DrainReportsAnomalies(t *testing.T) {
	t.Parallel()

	s, rec := newTestSession(t, newMockPort())
	s.queue.Push("25,150,30,10,1,50,40,0,1")

	states := s.Drain()
	require.Len(t, states, 1, "anomalous records are still delivered")
	assert.Equal(t, 150.0, states[0].SolderingIron.Power)

	anomalies := rec.find(EventAnomaly)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "25,150,30,10,1,50,40,0,1", anomalies[0].Record)
	var verr *station.ValidationError
	require.ErrorAs(t, anomalies[0].Err, &verr)
	assert.Equal(t, station.AnomalyPowerRange, verr.Type)
	assert.Equal(t, uint64(1), s.Stats().PowerRange)
}

func TestSession_DrainAfterConnect(t *testing.T) {
	t.Parallel()

	port := newMockPort()
	s, _ := newTestSession(t, port)
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	defer s.Disconnect()

	port.Feed("25,0,30,10,1,50,40,0,1\n1,2,3\n26,0,30,10,1,50,40,0,1\n")

	var states []station.DeviceState
	require.Eventually(t, func() bool {
		states = append(states, s.Drain()...)
		return len(states) == 2
	}, waitFor, tick)
	assert.Equal(t, 25.0, states[0].SolderingIron.TemperatureC)
	assert.Equal(t, 26.0, states[1].SolderingIron.TemperatureC)
	assert.Equal(t, uint64(1), s.Stats().FieldCountErrs)
}

func TestSession_FrameTooLongIsCounted(t *testing.T) {
	t.Parallel()

	port := newMockPort()
	rec := &eventRecorder{}
	s := New(Options{
		Factory:      factoryFor(port, nil),
		IdleDelay:    testIdleDelay,
		CloseGrace:   testGrace,
		MaxFrameSize: 24,
		OnEvent:      rec.record,
	})
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	defer s.Disconnect()

	port.Feed("12345678901234567890123456789\n25,0,30,10,1,50,40,0,1\n")

	require.Eventually(t, func() bool { return rec.count(EventFrameTooLong) == 1 }, waitFor, tick)
	assert.Equal(t, Connected, s.State(), "framing errors never tear down the connection")
	assert.Equal(t, uint64(1), s.Stats().FrameErrors)
}

func TestSession_SendRequiresConnection(t *testing.T) {
	t.Parallel()

	s, rec := newTestSession(t, newMockPort())
	assert.False(t, s.Send(station.VacuumCommand(true)))
	assert.ErrorIs(t, s.SendWait(context.Background(), station.VacuumCommand(true)), ErrInvalidState)
	assert.Empty(t, rec.kinds())
}

func TestSession_Send(t *testing.T) {
	t.Parallel()

	port := newMockPort()
	s, rec := newTestSession(t, port)
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	defer s.Disconnect()

	assert.True(t, s.Send(station.SetpointCommand(station.ZoneSolderingIron, 42)))
	require.Eventually(t, func() bool { return rec.count(EventCommandSent) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"SI,SET,42\n"}, port.Writes())

	require.NoError(t, s.SendWait(context.Background(), station.VacuumCommand(true)))
	assert.Equal(t, []string{"SI,SET,42\n", "LCD,VAC,1\n"}, port.Writes())
	assert.Equal(t, uint64(2), s.Stats().CommandsSent)
}

func TestSession_SendDropsWhileBusy(t *testing.T) {
	t.Parallel()

	port := newMockPort()
	port.writeGate = make(chan struct{})
	s, rec := newTestSession(t, port)
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	defer s.Disconnect()

	assert.True(t, s.Send(station.PowerCommand(station.ZoneSMDRework, true)))
	assert.False(t, s.Send(station.AirFlowCommand(80)))
	assert.ErrorIs(t, s.SendWait(context.Background(), station.AirFlowCommand(80)), ErrWriteDropped)
	assert.Equal(t, 2, rec.count(EventWriteDropped))

	close(port.writeGate)
	require.Eventually(t, func() bool { return rec.count(EventCommandSent) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"SMD,PWR,1\n"}, port.Writes())

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.CommandsSent)
	assert.Equal(t, uint64(2), stats.CommandsDropped)
}

func TestSession_SendWritesCommandAsEncoded(t *testing.T) {
	t.Parallel()

	port := newMockPort()
	s, rec := newTestSession(t, port)
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	defer s.Disconnect()

	// Range checks belong to the caller; the session only encodes and writes
	cmd := station.Command{Zone: station.ZoneSolderingIron, Action: station.ActionSetpoint, Value: 150}
	require.ErrorIs(t, cmd.Validate(), station.ErrInvalidCommand)

	require.NoError(t, s.SendWait(context.Background(), cmd))
	assert.Equal(t, []string{"SI,SET,150\n"}, port.Writes())
	assert.Equal(t, 1, rec.count(EventCommandSent))
	assert.Zero(t, rec.count(EventWriteFailed))
	assert.Equal(t, uint64(1), s.Stats().CommandsSent)
}

func TestSession_SendWriteFailure(t *testing.T) {
	t.Parallel()

	port := newMockPort()
	port.writeErr = errors.New("i/o timeout")
	s, rec := newTestSession(t, port)
	require.NoError(t, s.Connect("/dev/ttyUSB0"))
	defer s.Disconnect()

	err := s.SendWait(context.Background(), station.PowerCommand(station.ZoneLCDRepair, false))
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "LCD,PWR,0", writeErr.Line)
	assert.Equal(t, 1, rec.count(EventWriteFailed))
	assert.Equal(t, Connected, s.State(), "write failures do not disconnect")
}

func TestSession_Run(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := New(Options{Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	batches := make(chan []station.DeviceState, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, 0, func(states []station.DeviceState) {
			batches <- states
		})
	}()

	s.queue.Push("25,0,30,10,1,50,40,0,1")
	s.queue.Push("26,0,30,10,1,50,40,0,1")

	var got []station.DeviceState
	require.Eventually(t, func() bool {
		clock.Advance(DefaultDrainInterval)
		select {
		case got = <-batches:
			return true
		default:
			return false
		}
	}, waitFor, tick)
	assert.Len(t, got, 2)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSession_StateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnecting", Disconnecting.String())
}
