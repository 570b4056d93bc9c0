// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/solderstat/pkg/station"
)

// startBridge runs a WebSocket bridge that sends lines to the client and
// forwards every client message to received
func startBridge(t *testing.T, lines []string, received chan<- string) (string, <-chan string) {
	t.Helper()

	auth := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, line := range lines {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), auth
}

func TestWebSocketPort_Session(t *testing.T) {
	t.Parallel()

	received := make(chan string, 1)
	url, auth := startBridge(t, []string{"25,0,30,10,", "1,50,40,0,1\n"}, received)

	s := New(Options{
		Factory:    WebSocketPortFactory(WebSocketOptions{Username: "admin", Password: "secret"}),
		IdleDelay:  testIdleDelay,
		CloseGrace: testGrace,
	})
	require.NoError(t, s.Connect(url))

	var got int
	require.Eventually(t, func() bool {
		got += len(s.Drain())
		return got == 1
	}, waitFor, tick)
	assert.Equal(t, "Basic YWRtaW46c2VjcmV0", <-auth)

	require.True(t, s.Send(station.AirFlowCommand(65)))
	assert.Equal(t, "SMD,AIR,65\n", <-received)

	s.Disconnect()
	assert.Equal(t, Disconnected, s.State())
	assert.Zero(t, s.Stats().CommandsFailed)
}

func TestOpenWebSocket_RejectsScheme(t *testing.T) {
	t.Parallel()

	_, err := WebSocketPortFactory(WebSocketOptions{})("http://localhost:1", PortOptions{})
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, PortUnavailable, openErr.Kind)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}
