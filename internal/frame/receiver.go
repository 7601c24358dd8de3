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


package frame

import (
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when an advertised length does not fit the
// receive buffer. The receiver is back in StateIdle when it is returned.
var ErrFrameTooLarge = errors.New("frame: advertised length exceeds buffer capacity")

// State is the receive state of a Receiver.
type State uint8

// Receiver states
const (
	StateIdle State = iota
	StateHeader
	StatePayload
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeader:
		return "header"
	case StatePayload:
		return "payload"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Message is one reassembled packet. Data holds the preamble followed by
// the payload; it is only valid until Release is called.
type Message struct {
	buf      []byte
	Data     []byte
	Kind     byte
	Preamble int
}

// Payload returns the bytes after the preamble.
func (m *Message) Payload() []byte {
	return m.Data[m.Preamble:]
}

// Release hands the buffer back to the pool.
func (m *Message) Release() {
	if m.buf == nil {
		return
	}
	PutBuffer(m.buf)
	m.buf = nil
	m.Data = nil
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithCapacity limits the number of bytes a single message may occupy,
// reserved space included. Values above DefaultCapacity are clamped.
func WithCapacity(n int) ReceiverOption {
	return func(r *Receiver) {
		if n > 0 && n <= DefaultCapacity {
			r.capacity = n
		}
	}
}

// WithReserve keeps n bytes free in front of every message so a lower layer
// can prepend its own header without copying.
func WithReserve(n int) ReceiverOption {
	return func(r *Receiver) {
		if n >= 0 {
			r.reserve = n
		}
	}
}

// Receiver reassembles one kind of packet, one byte at a time.
type Receiver struct {
	buf       []byte
	kind      byte
	preamble  int
	remaining int
	capacity  int
	reserve   int
	state     State
}

// NewReceiver creates a receiver for packets tagged kind whose header is
// preamble bytes long, the last of which is the payload length.
func NewReceiver(kind byte, preamble int, opts ...ReceiverOption) *Receiver {
	if preamble < 1 {
		preamble = 1
	}
	r := &Receiver{
		kind:     kind,
		preamble: preamble,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current receive state.
func (r *Receiver) State() State {
	return r.state
}

// Remaining returns the number of bytes still expected in the current state.
func (r *Receiver) Remaining() int {
	return r.remaining
}

// Reset drops any partial message.
func (r *Receiver) Reset() {
	if r.buf != nil {
		PutBuffer(r.buf)
		r.buf = nil
	}
	r.state = StateIdle
	r.remaining = 0
}

// Feed consumes b. When the payload phase needs more than one byte, the
// rest is read from more in a single call, if more is not nil. A message
// is returned once it is complete; the caller owns it and must Release it.
func (r *Receiver) Feed(b byte, more io.Reader) (*Message, error) {
	switch r.state {
	case StateIdle:
		r.buf = GetBuffer()
		r.buf = append(r.buf[:r.reserve], b)
		r.remaining = r.preamble - 1
		r.state = StateHeader
		if r.remaining == 0 {
			return r.endHeader(b)
		}
		return nil, nil

	case StateHeader:
		r.buf = append(r.buf, b)
		r.remaining--
		if r.remaining > 0 {
			return nil, nil
		}
		return r.endHeader(b)

	case StatePayload:
		r.buf = append(r.buf, b)
		r.remaining--
		if r.remaining > 0 && more != nil {
			if err := r.bulkRead(more); err != nil {
				return nil, err
			}
		}
		if r.remaining > 0 {
			return nil, nil
		}
		return r.emit(), nil

	default:
		r.Reset()
		return nil, fmt.Errorf("frame: invalid receiver state %d", r.state)
	}
}

func (r *Receiver) endHeader(length byte) (*Message, error) {
	size := r.reserve + r.preamble + int(length)
	if size > r.capacity {
		r.Reset()
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, r.capacity)
	}
	if length == 0 {
		return r.emit(), nil
	}
	r.remaining = int(length)
	r.state = StatePayload
	return nil, nil
}

func (r *Receiver) bulkRead(more io.Reader) error {
	start := len(r.buf)
	n, err := more.Read(r.buf[start : start+r.remaining])
	r.buf = r.buf[:start+n]
	r.remaining -= n
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("frame: payload read: %w", err)
	}
	return nil
}

func (r *Receiver) emit() *Message {
	msg := &Message{
		buf:      r.buf,
		Data:     r.buf[r.reserve:],
		Kind:     r.kind,
		Preamble: r.preamble,
	}
	r.buf = nil
	r.state = StateIdle
	r.remaining = 0
	return msg
}
