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
	"sync"
	"time"
)

// MockLink is an in-memory Link. Reads block until data is injected or the
// link is closed; writes are recorded and may be answered by ResponseFunc.
type MockLink struct {
	cond         *sync.Cond
	ResponseFunc func(pkt []byte) []byte
	WriteErr     error
	BaudErr      error
	pending      []byte
	written      [][]byte
	bauds        []int
	mu           sync.Mutex
	closed       bool
}

// NewMockLink creates a new mock link
func NewMockLink() *MockLink {
	m := &MockLink{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Inject queues bytes for Read
func (m *MockLink) Inject(data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, data...)
	m.cond.Broadcast()
}

// Read implements io.Reader
func (m *MockLink) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.pending) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

// Write implements io.Writer
func (m *MockLink) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrTransportClosed
	}
	if m.WriteErr != nil {
		err := m.WriteErr
		m.mu.Unlock()
		return 0, err
	}
	m.written = append(m.written, append([]byte(nil), p...))
	respond := m.ResponseFunc
	m.mu.Unlock()

	if respond != nil {
		if reply := respond(p); len(reply) > 0 {
			m.Inject(reply...)
		}
	}
	return len(p), nil
}

// Written returns copies of all written packets
func (m *MockLink) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	for i, w := range m.written {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// ClearWritten forgets recorded writes
func (m *MockLink) ClearWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = nil
}

// SetBaudRate records the requested rate
func (m *MockLink) SetBaudRate(baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BaudErr != nil {
		return m.BaudErr
	}
	m.bauds = append(m.bauds, baud)
	return nil
}

// BaudRates returns every rate passed to SetBaudRate
func (m *MockLink) BaudRates() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.bauds...)
}

// Close unblocks readers
func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

// Type returns TransportMock
func (*MockLink) Type() TransportType {
	return TransportMock
}

// readWriteLink adapts any io.ReadWriteCloser, such as a simulated
// controller, to Link.
type readWriteLink struct {
	io.ReadWriteCloser
	mu    sync.Mutex
	bauds []int
}

// NewReadWriteLink wraps rw as a mock Link
func NewReadWriteLink(rw io.ReadWriteCloser) Link {
	return &readWriteLink{ReadWriteCloser: rw}
}

func (l *readWriteLink) SetBaudRate(baud int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bauds = append(l.bauds, baud)
	return nil
}

func (*readWriteLink) Type() TransportType {
	return TransportMock
}

// RecordingStack is a Stack that records every call
type RecordingStack struct {
	OnVendorInitDone func()
	nci              [][]byte
	vendor           [][]byte
	timeouts         []time.Duration
	initDone         int
	mu               sync.Mutex
}

// ReceiveNCI implements Stack
func (r *RecordingStack) ReceiveNCI(msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nci = append(r.nci, msg)
}

// ReceiveVendor implements Stack
func (r *RecordingStack) ReceiveVendor(evt []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vendor = append(r.vendor, evt)
}

// VendorInitDone implements Stack
func (r *RecordingStack) VendorInitDone() {
	r.mu.Lock()
	r.initDone++
	fn := r.OnVendorInitDone
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetCommandTimeout implements Stack
func (r *RecordingStack) SetCommandTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = append(r.timeouts, d)
}

// NCI returns the received NCI messages
func (r *RecordingStack) NCI() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.nci...)
}

// Vendor returns the received HCI events
func (r *RecordingStack) Vendor() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.vendor...)
}

// InitDoneCount returns how often VendorInitDone was called
func (r *RecordingStack) InitDoneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initDone
}

// Timeouts returns the command timeouts set
func (r *RecordingStack) Timeouts() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.timeouts...)
}

// FakeWakeLine records every level driven on it
type FakeWakeLine struct {
	levels []bool
	mu     sync.Mutex
}

// Set implements WakeLine
func (w *FakeWakeLine) Set(high bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.levels = append(w.levels, high)
	return nil
}

// Levels returns the driven levels, oldest first
func (w *FakeWakeLine) Levels() []bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bool(nil), w.levels...)
}

// FakeTimer is a Timer fired by hand
type FakeTimer struct {
	fire    func()
	starts  []time.Duration
	stops   int
	running bool
}

// Start implements Timer
func (f *FakeTimer) Start(d time.Duration) {
	f.starts = append(f.starts, d)
	f.running = true
}

// Stop implements Timer
func (f *FakeTimer) Stop() {
	f.stops++
	f.running = false
}

// Running implements Timer
func (f *FakeTimer) Running() bool {
	return f.running
}

// Fire expires the timer if it is running
func (f *FakeTimer) Fire() bool {
	if !f.running {
		return false
	}
	f.running = false
	f.fire()
	return true
}

// Starts returns the durations the timer was started with
func (f *FakeTimer) Starts() []time.Duration {
	return append([]time.Duration(nil), f.starts...)
}

// FakeTimerFactory hands out FakeTimers and remembers them
type FakeTimerFactory struct {
	Timers []*FakeTimer
}

// New implements TimerFactory
func (f *FakeTimerFactory) New(fire func()) Timer {
	t := &FakeTimer{fire: fire}
	f.Timers = append(f.Timers, t)
	return t
}
