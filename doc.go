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


/*
Package bcmnfc provides the vendor transport and firmware bring-up layer for
Broadcom NCI NFC controllers such as the BCM2079x family.

It sits below a generic NCI stack and handles what is specific to the chip:

  - NCI packets and vendor HCI events share one link and are told apart by a
    one byte packet type
  - bring-up resets the controller, reads its hardware id and hands control
    to a callback that loads the firmware patch (see package patch)
  - vendor HCI commands such as the UART baud rate update
  - snooze mode, which releases NFC_WAKE once the link has been idle

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-bcmnfc"
	    "github.com/ZaparooProject/go-bcmnfc/transport/uart"
	)

	link, err := uart.New("/dev/ttyS1")
	if err != nil {
	    log.Fatal(err)
	}

	var session *bcmnfc.Session
	session, err = bcmnfc.NewSession(link, stack,
	    bcmnfc.WithDevInitCallback(func(hwID uint32) {
	        go func() {
	            loader.PostResetInit(ctx, hwID, patch.NVMEEPROM)
	            _ = session.DevInitDone()
	        }()
	    }),
	)
	if err != nil {
	    log.Fatal(err)
	}

	_ = session.Start()
	if err := session.Run(ctx); err != nil {
	    log.Fatal(err)
	}

Transport Selection:

  - UART: the usual connection, baud rate can be raised after reset
  - I2C: for boards wiring the controller to an I2C bus

Error Handling:

Link failures are reported as *TransportError and can be inspected with
errors.Is and IsRetryable:

	if errors.Is(err, bcmnfc.ErrNotFullPower) {
	    // snooze mode cannot be changed in vendor power mode
	}

Thread Safety:

Controller is not thread-safe. Session runs a Controller on its own
goroutine and may be used from any goroutine.
*/
package bcmnfc
