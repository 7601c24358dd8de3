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


// Package i2c provides an I2C Link to a Broadcom NFC controller.
package i2c

import (
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	bcmnfc "github.com/ZaparooProject/go-bcmnfc"
	"github.com/ZaparooProject/go-bcmnfc/internal/frame"
	"github.com/ZaparooProject/go-bcmnfc/internal/transport"
)

const (
	// DefaultAddress is the usual 7-bit address of BCM2079x parts
	DefaultAddress = 0x77

	// DefaultClock is the bus clock used until SetBaudRate changes it
	DefaultClock = 400 * physic.KiloHertz

	// headerSize covers the packet type and the longest preamble
	headerSize = 1 + frame.NCIPreambleSize

	defaultTimeout = 50 * time.Millisecond
	pollInterval   = time.Millisecond
	writeRetries   = 2
)

// Transport is a Link over an I2C bus. The controller is polled: a read
// that starts with an unknown packet type means nothing is queued.
type Transport struct {
	bus     i2c.BusCloser
	dev     *i2c.Dev
	busName string
	pending []byte
	timeout time.Duration
	readMu  sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// New opens busName and talks to the controller at addr.
func New(busName string, addr uint16) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	// Ignore error, continue with default speed
	_ = bus.SetSpeed(DefaultClock)

	return NewWithBus(bus, addr, busName), nil
}

// NewWithBus uses an already opened bus.
func NewWithBus(bus i2c.BusCloser, addr uint16, busName string) *Transport {
	return &Transport{
		bus:     bus,
		dev:     &i2c.Dev{Addr: addr, Bus: bus},
		busName: busName,
		timeout: defaultTimeout,
	}
}

// SetTimeout sets how long Read polls before returning zero bytes.
func (t *Transport) SetTimeout(timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
}

// Read returns the next packet, or the rest of one that did not fit in p
// on the previous call. It returns zero bytes when the controller has
// nothing queued within the timeout.
func (t *Transport) Read(p []byte) (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	timeout, ok := t.state()
	if !ok {
		return 0, io.EOF
	}

	if len(t.pending) == 0 {
		pkt, err := transport.TimeoutRetry(timeout, pollInterval, t.readPacket)
		if err != nil {
			if bcmnfc.GetErrorType(err) == bcmnfc.ErrorTypeTimeout {
				return 0, nil
			}
			return 0, err
		}
		t.pending = pkt
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// readPacket performs one header read and, when a packet is waiting, a
// second read for the rest of it.
func (t *Transport) readPacket() ([]byte, bool, error) {
	hdr := make([]byte, headerSize)
	if err := t.dev.Tx(nil, hdr); err != nil {
		return nil, false, bcmnfc.NewTransportError("read", t.busName,
			fmt.Errorf("%w: %w", bcmnfc.ErrTransportRead, err), bcmnfc.ErrorTypeTransient)
	}

	var total int
	switch hdr[0] {
	case frame.PacketNCI:
		total = 1 + frame.NCIPreambleSize + int(hdr[3])
	case frame.PacketHCIEvent:
		total = 1 + frame.HCIEventPreambleSize + int(hdr[2])
	default:
		return nil, true, nil
	}

	if total <= headerSize {
		return hdr[:total], false, nil
	}

	pkt := make([]byte, total)
	copy(pkt, hdr)
	if err := t.dev.Tx(nil, pkt[headerSize:]); err != nil {
		return nil, false, bcmnfc.NewTransportError("read", t.busName,
			fmt.Errorf("%w: %w", bcmnfc.ErrTransportRead, err), bcmnfc.ErrorTypeTransient)
	}
	return pkt, false, nil
}

// Write sends one packet. The first transfer after a snooze may be
// NACKed while the controller wakes, so failures are retried.
func (t *Transport) Write(p []byte) (int, error) {
	if _, ok := t.state(); !ok {
		return 0, bcmnfc.NewTransportError("write", t.busName, bcmnfc.ErrTransportClosed,
			bcmnfc.ErrorTypePermanent)
	}

	var lastErr error
	_, err := transport.WithRetry(transport.RetryConfig{
		Description: "write",
		Port:        t.busName,
		MaxRetries:  writeRetries,
		RetryDelay:  pollInterval,
	}, func() (struct{}, bool, error) {
		lastErr = t.dev.Tx(p, nil)
		return struct{}{}, lastErr != nil, nil
	})
	if err != nil {
		return 0, bcmnfc.NewTransportError("write", t.busName,
			fmt.Errorf("%w: %w", bcmnfc.ErrTransportWrite, lastErr), bcmnfc.ErrorTypeTransient)
	}
	return len(p), nil
}

// SetBaudRate changes the bus clock to baud hertz.
func (t *Transport) SetBaudRate(baud int) error {
	if baud <= 0 {
		return fmt.Errorf("%w: %d", bcmnfc.ErrInvalidBaudRate, baud)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.bus == nil {
		return bcmnfc.NewTransportError("setBaudRate", t.busName, bcmnfc.ErrTransportClosed,
			bcmnfc.ErrorTypePermanent)
	}
	if err := t.bus.SetSpeed(physic.Frequency(baud) * physic.Hertz); err != nil {
		return fmt.Errorf("I2C set speed %d Hz failed: %w", baud, err)
	}
	return nil
}

// Close closes the bus
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.bus == nil {
		return nil
	}
	t.closed = true
	if err := t.bus.Close(); err != nil {
		return fmt.Errorf("I2C close failed: %w", err)
	}
	return nil
}

func (t *Transport) state() (timeout time.Duration, open bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout, t.dev != nil && !t.closed
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil && !t.closed
}

// Type returns the transport type
func (*Transport) Type() bcmnfc.TransportType {
	return bcmnfc.TransportI2C
}

var _ bcmnfc.Link = (*Transport)(nil)
