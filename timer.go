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
	"sync"
	"time"
)

// Timer is a restartable one-shot timer.
type Timer interface {
	// Start arms the timer, replacing any pending expiry
	Start(d time.Duration)

	// Stop disarms the timer. Stopping a stopped timer does nothing.
	Stop()

	// Running reports whether an expiry is pending
	Running() bool
}

// TimerFactory creates a Timer that calls fire on expiry.
type TimerFactory func(fire func()) Timer

// afterFuncTimer runs fire on its own goroutine. Session replaces it with
// a timer that posts into the event loop.
type afterFuncTimer struct {
	t       *time.Timer
	fire    func()
	gen     uint64
	mu      sync.Mutex
	running bool
}

// NewAfterFuncTimer returns a Timer backed by time.AfterFunc.
func NewAfterFuncTimer(fire func()) Timer {
	return &afterFuncTimer{fire: fire}
}

func (a *afterFuncTimer) Start(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.t != nil {
		a.t.Stop()
	}
	a.gen++
	a.running = true
	gen := a.gen
	a.t = time.AfterFunc(d, func() {
		a.mu.Lock()
		if a.gen != gen || !a.running {
			a.mu.Unlock()
			return
		}
		a.running = false
		a.mu.Unlock()
		a.fire()
	})
}

func (a *afterFuncTimer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++
	a.running = false
	if a.t != nil {
		a.t.Stop()
	}
}

func (a *afterFuncTimer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
