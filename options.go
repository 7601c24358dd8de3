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
	"time"

	"github.com/rs/zerolog"
)

// Option is a functional option for configuring a Controller
type Option func(*Controller) error

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) error {
		c.logger = logger
		return nil
	}
}

// WithDevInitCallback registers the callback run once the controller has
// reported its hardware id. Bring-up waits in InitWaitAppComplete until
// DevInitDone is called.
func WithDevInitCallback(fn func(hwID uint32)) Option {
	return func(c *Controller) error {
		c.devInit = fn
		return nil
	}
}

// WithVendorHandler sets the receiver of proprietary bring-up traffic
func WithVendorHandler(h VendorHandler) Option {
	return func(c *Controller) error {
		c.vendor = h
		return nil
	}
}

// WithVendorPowerHandler sets the handler used in PowerModeVendor
func WithVendorPowerHandler(h PowerHandler) Option {
	return func(c *Controller) error {
		c.vendorPower = h
		return nil
	}
}

// WithWakeLine sets the NFC_WAKE output
func WithWakeLine(w WakeLine) Option {
	return func(c *Controller) error {
		c.wake = w
		return nil
	}
}

// WithTimerFactory replaces the idle timer implementation
func WithTimerFactory(f TimerFactory) Option {
	return func(c *Controller) error {
		if f == nil {
			return fmt.Errorf("timer factory must not be nil")
		}
		c.timers = f
		return nil
	}
}

// WithIdleTimeout sets how long the link must be idle before NFC_WAKE is
// released in snooze mode
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return fmt.Errorf("idle timeout must be positive, got %v", d)
		}
		c.idle = d
		return nil
	}
}

// WithCommandTimeout sets the command timeout handed to the stack once
// bring-up is done
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return fmt.Errorf("command timeout must be positive, got %v", d)
		}
		c.cmdTimeout = d
		return nil
	}
}

// WithFrameCapacity limits the size of a received packet
func WithFrameCapacity(n int) Option {
	return func(c *Controller) error {
		if n < 4 {
			return fmt.Errorf("frame capacity too small: %d", n)
		}
		c.capacity = n
		return nil
	}
}

// WithPowerMode sets the initial power mode
func WithPowerMode(mode PowerMode) Option {
	return func(c *Controller) error {
		c.power.Store(uint32(mode))
		return nil
	}
}
