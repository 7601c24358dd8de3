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
	"io"
	"time"
)

// Link is the byte stream to the controller. UART and I2C backends
// implement it.
type Link interface {
	io.ReadWriter

	// Close closes the link
	Close() error

	// SetBaudRate changes the local line speed after the controller has
	// switched to it
	SetBaudRate(baud int) error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// WakeLine drives the controller's NFC_WAKE input.
type WakeLine interface {
	Set(high bool) error
}

// Stack is the generic NCI layer above the controller.
type Stack interface {
	// ReceiveNCI delivers a complete NCI message, header included
	ReceiveNCI(msg []byte)

	// ReceiveVendor delivers an HCI event the controller did not consume
	ReceiveVendor(evt []byte)

	// VendorInitDone reports that vendor bring-up has finished
	VendorInitDone()

	// SetCommandTimeout sets the NCI command completion timeout
	SetCommandTimeout(d time.Duration)
}

// VendorHandler receives the proprietary traffic seen during bring-up,
// typically the patch download service.
type VendorHandler interface {
	// ResetNotification reports a CORE_RESET notification
	ResetNotification(reason, resetType byte)

	// VendorEvent reports a proprietary message. event is the opcode
	// with the response or notification bit set.
	VendorEvent(event byte, msg []byte)
}

// PowerEvent is transport activity seen by a PowerHandler.
type PowerEvent uint8

// Power events
const (
	PowerEventTX PowerEvent = iota
	PowerEventRX
	PowerEventTimeout
)

func (e PowerEvent) String() string {
	switch e {
	case PowerEventTX:
		return "tx"
	case PowerEventRX:
		return "rx"
	case PowerEventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// PowerHandler decides how transport activity affects controller power.
// It reports whether the host may talk to the controller now.
type PowerHandler interface {
	HandlePowerEvent(evt PowerEvent) bool
}

// RXFilter is optionally implemented by a vendor PowerHandler to decide
// whether an NCI message received in vendor power mode goes up the stack.
type RXFilter interface {
	ForwardNCI(msg []byte) bool
}
