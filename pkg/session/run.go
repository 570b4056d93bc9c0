// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"time"

	"github.com/Thermoquad/solderstat/pkg/station"
)

// Run drains the session every interval until ctx is done, passing each
// non-empty batch to fn. fn runs on the caller's goroutine, so drains never
// overlap. An interval of 0 selects DefaultDrainInterval.
func (s *Session) Run(ctx context.Context, interval time.Duration, fn func([]station.DeviceState)) error {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if states := s.Drain(); len(states) > 0 {
				fn(states)
			}
		}
	}
}
