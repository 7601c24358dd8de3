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


// Package uart provides a serial Link to a Broadcom NFC controller.
package uart

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	bcmnfc "github.com/ZaparooProject/go-bcmnfc"
	"github.com/ZaparooProject/go-bcmnfc/internal/transport"
)

const (
	// DefaultBaudRate is the controller's rate after power-on
	DefaultBaudRate = 115200

	defaultWriteRetries = 3
)

// port is the part of serial.Port the link uses.
type port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Drain() error
}

// Transport is a Link over a serial port.
type Transport struct {
	port         port
	portName     string
	readTimeout  time.Duration
	writeRetries int
	baud         int
	mu           sync.Mutex
	closed       bool
}

// Option configures a Transport
type Option func(*Transport)

// WithBaudRate sets the rate the port is opened at.
func WithBaudRate(baud int) Option {
	return func(t *Transport) {
		t.baud = baud
	}
}

// WithReadTimeout sets how long a Read waits for data before returning
// zero bytes.
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.readTimeout = d
	}
}

// WithWriteRetries sets how often an interrupted write is retried.
func WithWriteRetries(n int) Option {
	return func(t *Transport) {
		t.writeRetries = n
	}
}

// defaultReadTimeout returns the platform read timeout
func defaultReadTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

func newTransport(portName string, opts ...Option) *Transport {
	t := &Transport{
		portName:     portName,
		baud:         DefaultBaudRate,
		readTimeout:  defaultReadTimeout(),
		writeRetries: defaultWriteRetries,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// New opens portName.
func New(portName string, opts ...Option) (*Transport, error) {
	t := newTransport(portName, opts...)
	if t.baud <= 0 {
		return nil, fmt.Errorf("%w: %d", bcmnfc.ErrInvalidBaudRate, t.baud)
	}

	p, err := serial.Open(portName, serialMode(t.baud))
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}
	if err := p.SetReadTimeout(t.readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t.port = p
	return t, nil
}

// Read returns whatever arrived within the read timeout, possibly nothing.
// Once the port is closed Read returns io.EOF.
func (t *Transport) Read(buf []byte) (int, error) {
	if t.port == nil {
		return 0, io.EOF
	}

	n, err := t.port.Read(buf)
	if err == nil {
		return n, nil
	}

	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
		return n, io.EOF
	}
	if t.isClosed() {
		return n, io.EOF
	}
	if isInterruptedSystemCall(err) {
		return n, bcmnfc.NewTransportError("read", t.portName,
			fmt.Errorf("%w: %w", bcmnfc.ErrTransportRead, err), bcmnfc.ErrorTypeTransient)
	}
	return n, bcmnfc.NewTransportError("read", t.portName,
		fmt.Errorf("%w: %w", bcmnfc.ErrTransportRead, err), bcmnfc.ErrorTypePermanent)
}

// Write sends p completely, retrying interrupted system calls.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil || t.closed {
		return 0, bcmnfc.NewTransportError("write", t.portName, bcmnfc.ErrTransportClosed,
			bcmnfc.ErrorTypePermanent)
	}

	written := 0
	_, err := transport.WithRetry(transport.RetryConfig{
		Description: "write",
		Port:        t.portName,
		MaxRetries:  t.writeRetries,
		RetryDelay:  time.Millisecond,
	}, func() (struct{}, bool, error) {
		n, err := t.port.Write(p[written:])
		written += n
		if err != nil {
			if isInterruptedSystemCall(err) {
				return struct{}{}, true, nil
			}
			return struct{}{}, false, bcmnfc.NewTransportError("write", t.portName,
				fmt.Errorf("%w: %w", bcmnfc.ErrTransportWrite, err), bcmnfc.ErrorTypePermanent)
		}
		return struct{}{}, written < len(p), nil
	})
	if err != nil {
		return written, err
	}

	return written, t.drainWithRetry("write")
}

// SetBaudRate reprograms the local UART. The input buffer is flushed since
// anything received during the switch is garbage.
func (t *Transport) SetBaudRate(baud int) error {
	if baud <= 0 {
		return fmt.Errorf("%w: %d", bcmnfc.ErrInvalidBaudRate, baud)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil || t.closed {
		return bcmnfc.NewTransportError("setBaudRate", t.portName, bcmnfc.ErrTransportClosed,
			bcmnfc.ErrorTypePermanent)
	}
	if err := t.port.SetMode(serialMode(baud)); err != nil {
		return fmt.Errorf("UART set baud rate %d failed: %w", baud, err)
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART input flush failed: %w", err)
	}
	t.baud = baud
	return nil
}

// BaudRate returns the current line speed
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baud
}

// Close closes the port. Pending reads return io.EOF.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil || t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// IsConnected returns true if the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil && !t.closed
}

// Type returns the transport type
func (*Transport) Type() bcmnfc.TransportType {
	return bcmnfc.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for the output buffer to empty, retrying EINTR
// with backoff.
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) {
			if attempt < maxRetries-1 {
				time.Sleep(baseDelay * time.Duration(1<<attempt))
				continue
			}
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

var _ bcmnfc.Link = (*Transport)(nil)
