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


package testing

import (
	"errors"
	"io"
	"sync"
)

// ErrControllerClosed is returned by a closed VirtualController.
var ErrControllerClosed = errors.New("virtual controller closed")

// VirtualController simulates the controller end of the link. It answers
// CORE_RESET, GET_BUILD_INFO and vendor HCI commands the way a freshly
// powered chip does and records everything the host wrote.
type VirtualController struct {
	cond      *sync.Cond
	pending   []byte
	written   [][]byte
	HWID      uint32
	ResetNtf  bool
	HCIStatus byte
	mu        sync.Mutex
	closed    bool
}

// NewVirtualController creates a controller reporting hwID.
func NewVirtualController(hwID uint32) *VirtualController {
	vc := &VirtualController{HWID: hwID}
	vc.cond = sync.NewCond(&vc.mu)
	return vc
}

// Inject queues raw bytes for the host to read.
func (vc *VirtualController) Inject(data ...byte) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.pending = append(vc.pending, data...)
	vc.cond.Broadcast()
}

// InjectNCI queues an NCI packet with its packet type tag.
func (vc *VirtualController) InjectNCI(msg []byte) {
	vc.Inject(append([]byte{0x10}, msg...)...)
}

// InjectHCIEvent queues an HCI event with its packet type tag.
func (vc *VirtualController) InjectHCIEvent(evt []byte) {
	vc.Inject(append([]byte{0x04}, evt...)...)
}

// Written returns copies of every packet the host wrote.
func (vc *VirtualController) Written() [][]byte {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	out := make([][]byte, len(vc.written))
	for i, w := range vc.written {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Read blocks until bytes are queued or the controller is closed.
func (vc *VirtualController) Read(p []byte) (int, error) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	for len(vc.pending) == 0 && !vc.closed {
		vc.cond.Wait()
	}
	if vc.closed && len(vc.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, vc.pending)
	vc.pending = vc.pending[n:]
	return n, nil
}

// Write records p and queues the reply a real controller would send.
func (vc *VirtualController) Write(p []byte) (int, error) {
	vc.mu.Lock()
	if vc.closed {
		vc.mu.Unlock()
		return 0, ErrControllerClosed
	}
	vc.written = append(vc.written, append([]byte(nil), p...))
	vc.mu.Unlock()

	if reply := vc.reply(p); reply != nil {
		vc.Inject(reply...)
	}
	return len(p), nil
}

func (vc *VirtualController) reply(p []byte) []byte {
	if len(p) < 3 {
		return nil
	}
	switch p[0] {
	case 0x10:
		switch {
		case p[1] == 0x20 && p[2] == 0x00:
			out := append([]byte{0x10}, BuildCoreResetRsp(0x00)...)
			if vc.ResetNtf {
				out = append(out, 0x10)
				out = append(out, BuildCoreResetNtf(0x02, 0x01)...)
			}
			return out
		case p[1] == 0x2F && p[2] == 0x04:
			return append([]byte{0x10}, BuildBuildInfoRsp(vc.HWID)...)
		}
	case 0x01:
		if len(p) < 4 {
			return nil
		}
		opcode := uint16(p[1]) | uint16(p[2])<<8
		return append([]byte{0x04}, BuildCommandComplete(opcode, vc.HCIStatus)...)
	}
	return nil
}

// Close unblocks pending reads.
func (vc *VirtualController) Close() error {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.closed = true
	vc.cond.Broadcast()
	return nil
}
