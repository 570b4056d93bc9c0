// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/solderstat/pkg/session"
)

// passwordEnv holds the WebSocket bridge password
const passwordEnv = "SOLDERSTAT_PASSWORD"

// errNoTarget is returned when neither a serial port nor a URL is configured
var errNoTarget = errors.New("either --port or --url must be specified")

// connectionTarget describes where a session connects
type connectionTarget struct {
	portID  string
	factory session.PortFactory
	info    string
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// resolveTarget picks the WebSocket bridge when a URL is configured and the
// serial port otherwise
func resolveTarget() (connectionTarget, error) {
	if cfg.WebSocket.URL != "" {
		password := ""
		if cfg.WebSocket.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return connectionTarget{}, err
			}
		}

		factory := session.WebSocketPortFactory(session.WebSocketOptions{
			Username:      cfg.WebSocket.Username,
			Password:      password,
			SkipTLSVerify: cfg.WebSocket.NoSSLVerify,
		})
		return connectionTarget{
			portID:  cfg.WebSocket.URL,
			factory: factory,
			info:    fmt.Sprintf("WebSocket: %s", cfg.WebSocket.URL),
		}, nil
	}

	if cfg.Serial.Port != "" {
		return connectionTarget{
			portID:  cfg.Serial.Port,
			factory: session.SerialPortFactory,
			info:    fmt.Sprintf("Serial: %s @ %s", cfg.Serial.Port, cfg.PortOptions()),
		}, nil
	}

	return connectionTarget{}, errNoTarget
}

// newSession builds a session from the loaded configuration
func newSession(factory session.PortFactory, onEvent func(session.Event)) *session.Session {
	if factory == nil {
		factory = session.SerialPortFactory
	}
	return session.New(session.Options{
		Factory:      factory,
		PortOptions:  cfg.PortOptions(),
		Logger:       logger,
		CloseGrace:   cfg.Session.CloseGrace.Std(),
		IdleDelay:    cfg.Session.IdleDelay.Std(),
		MaxFrameSize: cfg.Session.MaxFrameSize,
		OnEvent:      onEvent,
	})
}

// OpenSession resolves the connection target and connects a new session
func OpenSession(onEvent func(session.Event)) (*session.Session, string, error) {
	target, err := resolveTarget()
	if err != nil {
		return nil, "", err
	}

	s := newSession(target.factory, onEvent)
	if err := s.Connect(target.portID); err != nil {
		return nil, "", err
	}
	return s, target.info, nil
}
