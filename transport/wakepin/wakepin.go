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


// Package wakepin drives the controller's NFC_WAKE input from a GPIO.
package wakepin

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	bcmnfc "github.com/ZaparooProject/go-bcmnfc"
)

// ErrPinNotFound is returned when the named GPIO does not exist
var ErrPinNotFound = errors.New("GPIO pin not found")

// Pin is a bcmnfc.WakeLine on a GPIO output.
type Pin struct {
	pin gpio.PinOut
}

// Open looks up the GPIO called name, such as "GPIO17".
func Open(name string) (*Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return New(p), nil
}

// New wraps an output pin.
func New(p gpio.PinOut) *Pin {
	return &Pin{pin: p}
}

// Set drives the line high or low.
func (p *Pin) Set(high bool) error {
	if err := p.pin.Out(gpio.Level(high)); err != nil {
		return fmt.Errorf("set %s %s: %w", p.pin, gpio.Level(high), err)
	}
	return nil
}

// Close stops driving the pin.
func (p *Pin) Close() error {
	if err := p.pin.Halt(); err != nil {
		return fmt.Errorf("halt %s: %w", p.pin, err)
	}
	return nil
}

var _ bcmnfc.WakeLine = (*Pin)(nil)
