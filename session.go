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
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-bcmnfc/patch"
)

const (
	sessionQueueSize = 128
	readChunkSize    = 512
)

// SessionMetrics tracks link activity
type SessionMetrics struct {
	BytesRead   int64
	Chunks      int64
	ReadErrors  int64
	WriteErrors int64
}

// Session owns a Controller and runs it on a single event-loop goroutine.
// Bytes from the link, idle timer expiry and API calls are all handled
// there in arrival order. Callbacks registered with the Controller run on
// the loop and must not block.
type Session struct {
	ctrl        *Controller
	link        Link
	events      chan func()
	done        chan struct{}
	closeOnce   sync.Once
	running     atomic.Bool
	bytesRead   int64
	chunks      int64
	readErrors  int64
	writeErrors int64
}

// NewSession creates a Session on link. Options apply to the Controller;
// the idle timer is always replaced by one that fires on the loop.
func NewSession(link Link, stack Stack, opts ...Option) (*Session, error) {
	s := &Session{
		link:   link,
		events: make(chan func(), sessionQueueSize),
		done:   make(chan struct{}),
	}

	opts = append(opts, WithTimerFactory(s.newLoopTimer))
	ctrl, err := NewController(link, stack, opts...)
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl
	return s, nil
}

// Run processes events until ctx is done, the link fails or Close is
// called. The link is closed on return.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, chunks, readErr)

	defer func() {
		s.ctrl.Terminate()
		s.shutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("session stopped: %w", ctx.Err())
		case <-s.done:
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case chunk := <-chunks:
			atomic.AddInt64(&s.chunks, 1)
			atomic.AddInt64(&s.bytesRead, int64(len(chunk)))
			s.ctrl.FeedBytes(chunk)
		case fn := <-s.events:
			fn()
		}
	}
}

func (s *Session) readLoop(ctx context.Context, chunks chan<- []byte, readErr chan<- error) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := s.link.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if IsRetryable(err) {
				atomic.AddInt64(&s.readErrors, 1)
				continue
			}
			readErr <- err
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.link.Close(); err != nil {
			s.ctrl.logger.Debug().Err(err).Msg("link close")
		}
	})
}

// Close stops the loop and closes the link.
func (s *Session) Close() error {
	s.shutdown()
	return nil
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// post queues fn for the loop without waiting for it to run.
func (s *Session) post(fn func()) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.events <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Exec runs fn on the loop and waits for its result. It must not be
// called from a callback that is itself running on the loop.
func (s *Session) Exec(ctx context.Context, fn func(*Controller) error) error {
	result := make(chan error, 1)
	if err := s.post(func() { result <- fn(s.ctrl) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) logWriteErr(op string) func(err error) {
	return func(err error) {
		if err != nil {
			atomic.AddInt64(&s.writeErrors, 1)
			s.ctrl.logger.Error().Err(err).Str("op", op).Msg("send failed")
		}
	}
}

// Start begins vendor bring-up.
func (s *Session) Start() error {
	report := s.logWriteErr("start")
	return s.post(func() { report(s.ctrl.Start()) })
}

// DevInitDone ends bring-up. Call it once the device-init callback's work,
// typically the patch download, is finished.
func (s *Session) DevInitDone() error {
	return s.post(s.ctrl.DevInitDone)
}

// SendNCI queues an NCI message for transmission.
func (s *Session) SendNCI(msg []byte) error {
	report := s.logWriteErr("nci")
	msg = append([]byte(nil), msg...)
	return s.post(func() { report(s.ctrl.SendNCI(msg)) })
}

// SendHCICommand queues a vendor HCI command. done runs on the loop.
func (s *Session) SendHCICommand(opcode uint16, params []byte, done func(CommandComplete)) error {
	report := s.logWriteErr("hci")
	params = append([]byte(nil), params...)
	return s.post(func() { report(s.ctrl.SendHCICommand(opcode, params, done)) })
}

// SetBaudRate queues a baud rate change. done runs on the loop.
func (s *Session) SetBaudRate(baud int, done func(status byte)) error {
	if baud <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, baud)
	}
	report := s.logWriteErr("baud")
	return s.post(func() { report(s.ctrl.SetBaudRate(baud, done)) })
}

// EnableSnooze starts snooze mode. The power mode is checked immediately.
func (s *Session) EnableSnooze(mode WakeMode) error {
	if s.ctrl.PowerMode() != PowerModeFull {
		return ErrNotFullPower
	}
	return s.post(func() {
		if err := s.ctrl.EnableSnooze(mode); err != nil {
			s.ctrl.logger.Error().Err(err).Msg("enable snooze")
		}
	})
}

// DisableSnooze stops snooze mode. The power mode is checked immediately.
func (s *Session) DisableSnooze() error {
	if s.ctrl.PowerMode() != PowerModeFull {
		return ErrNotFullPower
	}
	return s.post(func() {
		if err := s.ctrl.DisableSnooze(); err != nil {
			s.ctrl.logger.Error().Err(err).Msg("disable snooze")
		}
	})
}

// SetSnoozeMode applies the snooze settings loaded with a patch.
func (s *Session) SetSnoozeMode(cfg patch.SnoozeConfig) error {
	if !cfg.Enabled() {
		return s.DisableSnooze()
	}
	mode := WakeActiveLow
	if cfg.NFCWakeActiveHigh {
		mode = WakeActiveHigh
	}
	return s.EnableSnooze(mode)
}

// SetPowerMode switches power management.
func (s *Session) SetPowerMode(mode PowerMode) {
	s.ctrl.SetPowerMode(mode)
}

// Terminate queues the shutdown preparation.
func (s *Session) Terminate() error {
	return s.post(s.ctrl.Terminate)
}

// GetMetrics returns current link metrics
func (s *Session) GetMetrics() SessionMetrics {
	return SessionMetrics{
		BytesRead:   atomic.LoadInt64(&s.bytesRead),
		Chunks:      atomic.LoadInt64(&s.chunks),
		ReadErrors:  atomic.LoadInt64(&s.readErrors),
		WriteErrors: atomic.LoadInt64(&s.writeErrors),
	}
}

// loopTimer is only touched on the loop; its AfterFunc callback posts
// the expiry back to the loop.
type loopTimer struct {
	s       *Session
	t       *time.Timer
	fire    func()
	gen     uint64
	running bool
}

func (s *Session) newLoopTimer(fire func()) Timer {
	return &loopTimer{s: s, fire: fire}
}

func (lt *loopTimer) Start(d time.Duration) {
	if lt.t != nil {
		lt.t.Stop()
	}
	lt.gen++
	lt.running = true
	gen := lt.gen
	lt.t = time.AfterFunc(d, func() {
		_ = lt.s.post(func() {
			if lt.gen != gen || !lt.running {
				return
			}
			lt.running = false
			lt.fire()
		})
	})
}

func (lt *loopTimer) Stop() {
	lt.gen++
	lt.running = false
	if lt.t != nil {
		lt.t.Stop()
	}
}

func (lt *loopTimer) Running() bool {
	return lt.running
}

var _ patch.SnoozeSetter = (*Session)(nil)
