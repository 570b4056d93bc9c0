// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketOptions configures the WebSocket serial bridge transport
type WebSocketOptions struct {
	Username         string
	Password         string
	SkipTLSVerify    bool
	HandshakeTimeout time.Duration
}

// WebSocketPort carries the station's line stream over a WebSocket bridge.
// Incoming text and binary messages are passed through as raw bytes;
// writes are sent as one text message each.
type WebSocketPort struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	buf          []byte
	bufOffset    int
	closed       bool // Set once a read has failed
}

func (w *WebSocketPort) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}

		w.buf = data
		w.bufOffset = copy(p, w.buf)
		return w.bufOffset, nil
	}
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return 0, err
		}
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CancelRead unblocks a pending Read. The connection is unusable for
// reading afterwards.
func (w *WebSocketPort) CancelRead() error {
	return w.conn.SetReadDeadline(time.Now())
}

func (w *WebSocketPort) Close() error {
	return w.conn.Close()
}

// WebSocketPortFactory returns a factory that treats the port ID as a
// ws:// or wss:// URL and dials it with HTTP Basic auth
func WebSocketPortFactory(wsOpts WebSocketOptions) PortFactory {
	return func(portID string, opts PortOptions) (Port, error) {
		return OpenWebSocket(context.Background(), portID, opts, wsOpts)
	}
}

// OpenWebSocket dials a WebSocket bridge
func OpenWebSocket(ctx context.Context, wsURL string, opts PortOptions, wsOpts WebSocketOptions) (*WebSocketPort, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, &OpenError{Port: wsURL, Kind: PortUnavailable, Err: fmt.Errorf("invalid URL: %w", err)}
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, &OpenError{
			Port: wsURL,
			Kind: PortUnavailable,
			Err:  fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme),
		}
	}

	handshakeTimeout := wsOpts.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: wsOpts.SkipTLSVerify,
		}
	}

	headers := http.Header{}
	if wsOpts.Username != "" && wsOpts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(wsOpts.Username + ":" + wsOpts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout+5*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusConflict {
				return nil, &OpenError{Port: wsURL, Kind: PortAlreadyOpen, Err: err}
			}
			return nil, &OpenError{Port: wsURL, Kind: PortUnavailable, Err: fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)}
		}
		return nil, &OpenError{Port: wsURL, Kind: PortUnavailable, Err: err}
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultTimeout
	}
	return &WebSocketPort{conn: conn, writeTimeout: writeTimeout}, nil
}
