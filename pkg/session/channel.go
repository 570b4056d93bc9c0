// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/solderstat/pkg/station"
)

const readBufferSize = 256

// readCanceler is implemented by ports whose Read blocks without a timeout
type readCanceler interface {
	CancelRead() error
}

// ChannelOptions tunes a channel. Zero values select the defaults.
type ChannelOptions struct {
	Logger       zerolog.Logger
	Clock        clockwork.Clock
	CloseGrace   time.Duration
	IdleDelay    time.Duration
	MaxFrameSize int

	// OnFrameError is called from the reader goroutine for every
	// oversized frame. The frame is skipped and reading continues.
	OnFrameError func(err error)
}

// Channel owns an open port: a background reader feeding a Queue, and a
// write path that allows one write in flight and drops the rest.
type Channel struct {
	portID string
	opts   ChannelOptions
	log    zerolog.Logger

	// mu guards port against a write landing mid-close. The reader does
	// not hold it while blocked in Read.
	mu   sync.Mutex
	port Port

	writing atomic.Bool

	cancel     context.CancelFunc
	readerDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// OpenChannel opens portID through factory
func OpenChannel(factory PortFactory, portID string, opts PortOptions, copts ChannelOptions) (*Channel, error) {
	if factory == nil {
		factory = SerialPortFactory
	}

	normalized, err := opts.Normalize()
	if err != nil {
		return nil, &OpenError{Port: portID, Kind: OsError, Err: err}
	}

	port, err := factory(portID, normalized)
	if err != nil {
		return nil, classifyOpenError(portID, err)
	}

	if copts.Clock == nil {
		copts.Clock = clockwork.NewRealClock()
	}
	if copts.CloseGrace <= 0 {
		copts.CloseGrace = DefaultCloseGrace
	}
	if copts.IdleDelay <= 0 {
		copts.IdleDelay = DefaultIdleDelay
	}

	c := &Channel{
		portID: portID,
		opts:   copts,
		log:    copts.Logger.With().Str("port", portID).Logger(),
		port:   port,
	}
	c.log.Debug().Str("mode", normalized.String()).Msg("port opened")
	return c, nil
}

// PortID returns the identifier the channel was opened with
func (c *Channel) PortID() string {
	return c.portID
}

// StartReading starts the background reader, pushing every record onto q.
// The returned channel receives a single *ReadLoopError if the port fails
// and is closed when the reader exits. It is closed without a value when
// the reader is cancelled by Close.
func (c *Channel) StartReading(q *Queue) (<-chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil, ErrChannelClosed
	}
	if c.cancel != nil {
		return nil, ErrReaderRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.readerDone = make(chan struct{})
	done := make(chan error, 1)

	go c.readLoop(ctx, c.port, q, done)
	return done, nil
}

func (c *Channel) readLoop(ctx context.Context, port Port, q *Queue, done chan<- error) {
	defer close(c.readerDone)
	defer close(done)

	frames := station.NewFrameReader(c.opts.MaxFrameSize)
	buf := make([]byte, readBufferSize)

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := port.Read(buf)

		// Errors after cancellation come from Close releasing the port
		if ctx.Err() != nil {
			return
		}

		for i := 0; i < n; i++ {
			record, frameErr := frames.DecodeByte(buf[i])
			if frameErr != nil {
				c.log.Warn().Err(frameErr).Msg("oversized frame discarded")
				if c.opts.OnFrameError != nil {
					c.opts.OnFrameError(frameErr)
				}
				continue
			}
			if record != "" {
				q.Push(record)
			}
		}

		if err != nil {
			c.log.Error().Err(err).Msg("read failed")
			done <- &ReadLoopError{Port: c.portID, Err: err}
			return
		}

		if n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-c.opts.Clock.After(c.opts.IdleDelay):
			}
		}
	}
}

// Write sends line followed by the line delimiter.
// If another write is in flight the line is dropped and Write returns
// (false, nil). A failed or closed write returns (false, *WriteError).
func (c *Channel) Write(line string) (bool, error) {
	if !c.writing.CompareAndSwap(false, true) {
		return false, nil
	}
	defer c.writing.Store(false)
	return c.write(line)
}

// WriteAsync starts writing line on a new goroutine and reports whether it
// was accepted. A dropped line is reported to done as (false, nil) before
// WriteAsync returns. done may be nil.
func (c *Channel) WriteAsync(line string, done func(sent bool, err error)) bool {
	if !c.writing.CompareAndSwap(false, true) {
		if done != nil {
			done(false, nil)
		}
		return false
	}

	go func() {
		sent, err := c.write(line)
		c.writing.Store(false)
		if done != nil {
			done(sent, err)
		}
	}()
	return true
}

// Busy reports whether a write is in flight
func (c *Channel) Busy() bool {
	return c.writing.Load()
}

func (c *Channel) write(line string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return false, &WriteError{Line: line, Err: ErrChannelClosed}
	}
	if _, err := io.WriteString(c.port, line+string(station.LineDelimiter)); err != nil {
		return false, &WriteError{Line: line, Err: err}
	}
	return true, nil
}

// Close stops the reader and releases the port. It waits up to the close
// grace period for the reader to exit and releases the port regardless.
// Close is idempotent; the returned error is a report only, the channel
// is closed either way.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cancel, readerDone := c.cancel, c.readerDone
		rc, _ := c.port.(readCanceler)
		c.mu.Unlock()

		var errs []error
		if cancel != nil {
			cancel()
			if rc != nil {
				rc.CancelRead()
			}
			select {
			case <-readerDone:
			case <-c.opts.Clock.After(c.opts.CloseGrace):
				c.log.Warn().Dur("grace", c.opts.CloseGrace).Msg("reader still running, releasing port")
				errs = append(errs, ErrCloseTimeout)
			}
		}

		c.mu.Lock()
		port := c.port
		c.port = nil
		if port != nil {
			if err := port.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close port: %w", err))
			}
		}
		c.mu.Unlock()

		c.closeErr = errors.Join(errs...)
		c.log.Debug().Msg("port closed")
	})
	return c.closeErr
}
