// go-bcmnfc
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-bcmnfc.
//
// go-bcmnfc is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-bcmnfc is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-bcmnfc; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.


package bcmnfc

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultIdleTimeout is how long the link must be quiet before NFC_WAKE is
// released in snooze mode.
const DefaultIdleTimeout = 100 * time.Millisecond

// PowerMode selects who manages controller power.
type PowerMode uint32

const (
	// PowerModeFull lets the built-in snooze controller manage NFC_WAKE
	PowerModeFull PowerMode = iota
	// PowerModeVendor hands all power decisions to the vendor PowerHandler
	PowerModeVendor
)

func (m PowerMode) String() string {
	switch m {
	case PowerModeFull:
		return "full"
	case PowerModeVendor:
		return "vendor"
	default:
		return fmt.Sprintf("PowerMode(%d)", uint32(m))
	}
}

// WakeMode is the NFC_WAKE polarity.
type WakeMode uint8

const (
	// WakeActiveLow asserts NFC_WAKE by pulling it low
	WakeActiveLow WakeMode = 0
	// WakeActiveHigh asserts NFC_WAKE by pulling it high
	WakeActiveHigh WakeMode = 1
)

func (m WakeMode) String() string {
	if m == WakeActiveHigh {
		return "active-high"
	}
	return "active-low"
}

type wakeAction uint8

const (
	wakeAssert   wakeAction = 0
	wakeDeassert wakeAction = 1
)

// wakeLevel returns the line level for action:
//
//	polarity     action    level
//	active-low   assert    low
//	active-low   deassert  high
//	active-high  assert    high
//	active-high  deassert  low
func wakeLevel(action wakeAction, mode WakeMode) (high bool) {
	return uint8(action) != uint8(mode)
}

// snoozeController is the built-in PowerHandler used in full power mode.
// Idle timer expiry may arrive on the timer's own goroutine, so all state
// is guarded by mu.
type snoozeController struct {
	wake       WakeLine
	timer      Timer
	logger     zerolog.Logger
	idle       time.Duration
	mu         sync.Mutex
	activeMode WakeMode
	enabled    bool
}

func newSnoozeController(wake WakeLine, factory TimerFactory, idle time.Duration,
	logger zerolog.Logger, onTimeout func(),
) *snoozeController {
	return &snoozeController{
		wake:   wake,
		timer:  factory(onTimeout),
		idle:   idle,
		logger: logger,
	}
}

func (s *snoozeController) setWake(action wakeAction) {
	high := wakeLevel(action, s.activeMode)
	s.logger.Debug().
		Bool("assert", action == wakeAssert).
		Stringer("polarity", s.activeMode).
		Bool("high", high).
		Msg("set NFC_WAKE")
	if s.wake == nil {
		return
	}
	if err := s.wake.Set(high); err != nil {
		s.logger.Error().Err(err).Msg("failed to drive NFC_WAKE")
	}
}

func (s *snoozeController) isEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *snoozeController) enable(mode WakeMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = true
	s.activeMode = mode
	s.setWake(wakeAssert)
	s.timer.Start(s.idle)
}

func (s *snoozeController) disable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = false
	s.setWake(wakeAssert)
	s.timer.Stop()
}

// terminate leaves NFC_WAKE asserted if snooze was driving it, then turns
// snooze off.
func (s *snoozeController) terminate(holdWake bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holdWake && s.enabled {
		s.setWake(wakeAssert)
	}
	s.enabled = false
	s.timer.Stop()
}

// HandlePowerEvent keeps NFC_WAKE asserted while the link is busy and
// releases it once the idle timer expires.
func (s *snoozeController) HandlePowerEvent(evt PowerEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return true
	}

	switch evt {
	case PowerEventTX, PowerEventRX:
		if !s.timer.Running() {
			s.setWake(wakeAssert)
		}
		s.timer.Start(s.idle)
	case PowerEventTimeout:
		// A stale expiry that lost the race with a restart.
		if s.timer.Running() {
			return true
		}
		s.setWake(wakeDeassert)
	}
	return true
}

var _ PowerHandler = (*snoozeController)(nil)
