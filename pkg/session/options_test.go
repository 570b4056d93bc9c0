// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{name: "defaults", in: PortOptions{}, want: DefaultPortOptions()},
		{
			name: "parity words",
			in:   PortOptions{BaudRate: 115200, Parity: " even "},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E", ReadTimeout: DefaultTimeout, WriteTimeout: DefaultTimeout},
		},
		{name: "data bits", in: PortOptions{DataBits: 4}, wantErr: true},
		{name: "stop bits", in: PortOptions{StopBits: 3}, wantErr: true},
		{name: "parity", in: PortOptions{Parity: "mark"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	t.Parallel()

	mode, err := PortOptions{BaudRate: 19200, Parity: "O", StopBits: 2}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 19200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)

	mode, err = DefaultPortOptions().SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
}

func TestPortOptions_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "9600 8N1", DefaultPortOptions().String())
	assert.Equal(t, "9600 7E2", PortOptions{DataBits: 7, Parity: "even", StopBits: 2}.String())
}

func TestClassifyOpenError(t *testing.T) {
	t.Parallel()

	cause := errors.New("no such file or directory")
	openErr := classifyOpenError("/dev/ttyACM0", cause)
	assert.Equal(t, OsError, openErr.Kind)
	assert.ErrorIs(t, openErr, cause)
	assert.Contains(t, openErr.Error(), "/dev/ttyACM0")

	typed := &OpenError{Port: "/dev/ttyACM0", Kind: PortAlreadyOpen, Err: cause}
	wrapped := fmt.Errorf("connect: %w", typed)
	assert.Same(t, typed, classifyOpenError("/dev/ttyACM0", wrapped))
}

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	assert.Nil(t, q.DrainAll())

	q.Push("a")
	q.Push("b")
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []string{"a", "b"}, q.DrainAll())
	assert.Equal(t, 0, q.Len())

	q.Push("c")
	assert.Equal(t, []string{"c"}, q.DrainAll())
}

func TestEvent_String(t *testing.T) {
	t.Parallel()

	e := Event{Kind: EventStateChanged, Port: "COM4", State: Connected}
	assert.Equal(t, "COM4: connected", e.String())
	assert.False(t, e.IsError())

	e = Event{Kind: EventReadFailed, Err: errors.New("unplugged")}
	assert.Equal(t, "read_failed: unplugged", e.String())
	assert.True(t, e.IsError())
}
