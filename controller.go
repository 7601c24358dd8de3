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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-bcmnfc/internal/frame"
)

// DefaultCommandTimeout is handed to the NCI layer once bring-up is done.
const DefaultCommandTimeout = 2 * time.Second

// InitState tracks vendor bring-up.
type InitState uint8

// Bring-up states
const (
	InitIdle InitState = iota
	InitWaitResetRsp
	InitWaitBuildInfo
	InitWaitAppComplete
)

func (s InitState) String() string {
	switch s {
	case InitIdle:
		return "idle"
	case InitWaitResetRsp:
		return "wait reset rsp"
	case InitWaitBuildInfo:
		return "wait build info"
	case InitWaitAppComplete:
		return "wait app complete"
	default:
		return fmt.Sprintf("InitState(%d)", uint8(s))
	}
}

// CommandComplete is a decoded HCI Command Complete event.
type CommandComplete struct {
	Params  []byte
	Opcode  uint16
	Packets byte
}

// Status returns the first parameter, the HCI status code.
func (c CommandComplete) Status() byte {
	if len(c.Params) == 0 {
		return 0xFF
	}
	return c.Params[0]
}

type pendingCommand struct {
	done   func(CommandComplete)
	opcode uint16
}

// Controller drives a Broadcom NCI controller over a Link: it splits the
// incoming byte stream into NCI and vendor HCI packets, runs the reset and
// identification sequence and manages NFC_WAKE.
//
// A Controller is not safe for concurrent use. Session serialises access
// for live links; tests drive it directly. Idle timer expiry may arrive on
// another goroutine and only touches the snooze state, which is locked.
type Controller struct {
	link        Link
	stack       Stack
	vendor      VendorHandler
	vendorPower PowerHandler
	wake        WakeLine
	timers      TimerFactory
	devInit     func(hwID uint32)
	nciRx       *frame.Receiver
	hciRx       *frame.Receiver
	active      *frame.Receiver
	snooze      *snoozeController
	pending     *pendingCommand
	logger      zerolog.Logger
	idle        time.Duration
	cmdTimeout  time.Duration
	capacity    int
	power       atomic.Uint32
	hwID        uint32
	initState   InitState
}

// NewController creates a Controller on link reporting to stack.
func NewController(link Link, stack Stack, opts ...Option) (*Controller, error) {
	c := &Controller{
		link:       link,
		stack:      stack,
		timers:     NewAfterFuncTimer,
		logger:     zerolog.Nop(),
		idle:       DefaultIdleTimeout,
		cmdTimeout: DefaultCommandTimeout,
		capacity:   frame.DefaultCapacity,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.nciRx = frame.NewReceiver(frame.PacketNCI, frame.NCIPreambleSize, frame.WithCapacity(c.capacity))
	c.hciRx = frame.NewReceiver(frame.PacketHCIEvent, frame.HCIEventPreambleSize, frame.WithCapacity(c.capacity))
	c.snooze = newSnoozeController(c.wake, c.timers, c.idle, c.logger, c.onIdleTimeout)
	return c, nil
}

// InitState returns the bring-up state.
func (c *Controller) InitState() InitState {
	return c.initState
}

// HardwareID returns the id reported by the last build-info response.
func (c *Controller) HardwareID() uint32 {
	return c.hwID
}

// PowerMode returns the current power mode. Safe for concurrent use.
func (c *Controller) PowerMode() PowerMode {
	return PowerMode(c.power.Load())
}

// SetPowerMode switches between built-in and vendor power management.
func (c *Controller) SetPowerMode(mode PowerMode) {
	c.logger.Debug().Stringer("mode", mode).Msg("power mode")
	c.power.Store(uint32(mode))
}

// SnoozeEnabled reports whether snooze mode is on.
func (c *Controller) SnoozeEnabled() bool {
	return c.snooze.isEnabled()
}

// ReceiverIdle reports whether the controller is between packets.
func (c *Controller) ReceiverIdle() bool {
	return c.active == nil
}

func (c *Controller) setInitState(s InitState) {
	c.logger.Debug().Stringer("from", c.initState).Stringer("to", s).Msg("init state")
	c.initState = s
}

// Start begins vendor bring-up. Without a device-init callback there is
// nothing to do and the stack is told immediately.
func (c *Controller) Start() error {
	if c.devInit == nil {
		c.logger.Debug().Msg("no device init callback, vendor init done")
		c.stack.VendorInitDone()
		return nil
	}

	c.setInitState(InitWaitResetRsp)
	return c.SendNCI(frame.CoreResetCmd)
}

// DevInitDone ends bring-up after the device-init callback has finished
// its work. It is ignored unless bring-up is waiting for it.
func (c *Controller) DevInitDone() {
	if c.initState != InitWaitAppComplete {
		c.logger.Debug().Stringer("state", c.initState).Msg("device init done ignored")
		return
	}

	c.setInitState(InitIdle)
	c.stack.SetCommandTimeout(c.cmdTimeout)
	c.stack.VendorInitDone()
}

// FeedBytes feeds a chunk read from the link.
func (c *Controller) FeedBytes(data []byte) {
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		b, _ := r.ReadByte()
		c.Feed(b, r)
	}
}

// Feed consumes one byte. When a payload is being received the rest of it
// may be taken from more in one read.
func (c *Controller) Feed(b byte, more io.Reader) {
	if c.active == nil {
		switch b {
		case frame.PacketNCI:
			c.active = c.nciRx
		case frame.PacketHCIEvent:
			c.active = c.hciRx
		default:
			c.logger.Error().Hex("type", []byte{b}).Msg("unknown packet type, dropped")
		}
		return
	}

	rx := c.active
	msg, err := rx.Feed(b, more)
	if err != nil {
		c.logger.Error().Err(err).Msg("receive failed")
		if rx.State() == frame.StateIdle {
			c.active = nil
		}
		return
	}
	if msg == nil {
		return
	}

	c.active = nil
	defer msg.Release()
	if msg.Kind == frame.PacketNCI {
		c.handleNCI(msg.Data)
	} else {
		c.handleHCIEvent(msg.Data)
	}
}

func (c *Controller) handleNCI(msg []byte) {
	if len(msg) < frame.NCIPreambleSize {
		c.logger.Error().Hex("msg", msg).Msg("short NCI message")
		return
	}

	if c.initState != InitIdle {
		c.handleInitMessage(msg)
		return
	}

	if c.PowerMode() == PowerModeFull {
		c.snooze.HandlePowerEvent(PowerEventRX)
	} else if f, ok := c.vendorPower.(RXFilter); ok && !f.ForwardNCI(msg) {
		return
	}

	c.stack.ReceiveNCI(bytes.Clone(msg))
}

// handleInitMessage consumes core and proprietary messages during bring-up.
func (c *Controller) handleInitMessage(msg []byte) {
	mt := frame.MessageType(msg[0])
	gid := frame.GroupID(msg[0])
	oid := frame.OpcodeID(msg[1])

	c.logger.Debug().Hex("msg", msg).Stringer("state", c.initState).Msg("bring-up message")

	switch gid {
	case frame.GIDCore:
		if oid != frame.OIDCoreReset {
			return
		}
		if mt == frame.MTRsp {
			c.setInitState(InitWaitBuildInfo)
			if err := c.SendNCI(frame.GetBuildInfoCmd); err != nil {
				c.logger.Error().Err(err).Msg("failed to send build info query")
			}
			return
		}
		if len(msg) < 5 {
			c.logger.Error().Hex("msg", msg).Msg("short reset notification")
			return
		}
		if c.vendor != nil {
			c.vendor.ResetNotification(msg[3], msg[4])
		}

	case frame.GIDProp:
		event := oid
		if mt == frame.MTNtf {
			event |= frame.PropNtfBit
		} else {
			event |= frame.PropRspBit
		}

		if event == frame.PropRspBit|frame.OIDPropGetBuildInfo && c.initState == InitWaitBuildInfo {
			c.handleBuildInfo(msg)
			return
		}
		if c.vendor != nil {
			c.vendor.VendorEvent(event, bytes.Clone(msg))
		}
	}
}

func (c *Controller) handleBuildInfo(msg []byte) {
	off := 2 + frame.BuildInfoHWIDOffset
	if len(msg) < off+4 {
		c.logger.Error().Int("len", len(msg)).Msg("build info response too short, hardware id unknown")
		c.hwID = 0
	} else {
		c.hwID = binary.LittleEndian.Uint32(msg[off : off+4])
	}

	c.logger.Info().Str("hw_id", fmt.Sprintf("%08x", c.hwID)).Msg("controller identified")
	c.setInitState(InitWaitAppComplete)
	c.devInit(c.hwID)
}

func (c *Controller) handleHCIEvent(evt []byte) {
	if len(evt) >= 5 && evt[0] == frame.HCIEventCommandComplete {
		cc := decodeCommandComplete(evt)
		if c.pending != nil && c.pending.opcode == cc.Opcode {
			done := c.pending.done
			c.pending = nil
			if done != nil {
				done(cc)
			}
			// Outside bring-up the stack still sees the event.
			if c.initState == InitWaitAppComplete {
				return
			}
			c.stack.ReceiveVendor(bytes.Clone(evt))
			return
		}
		if c.initState == InitWaitAppComplete {
			c.logger.Debug().Uint16("opcode", cc.Opcode).Msg("unclaimed command complete during bring-up")
			return
		}
	} else if c.initState == InitWaitAppComplete {
		c.logger.Debug().Hex("evt", evt).Msg("HCI event dropped during bring-up")
		return
	}

	c.stack.ReceiveVendor(bytes.Clone(evt))
}

func decodeCommandComplete(evt []byte) CommandComplete {
	paramLen := int(evt[1])
	cc := CommandComplete{
		Packets: evt[2],
		Opcode:  binary.LittleEndian.Uint16(evt[3:5]),
	}
	n := paramLen - 3
	if n > 0 {
		if n > len(evt)-5 {
			n = len(evt) - 5
		}
		cc.Params = bytes.Clone(evt[5 : 5+n])
	}
	return cc
}

// powerEvent runs the active power handler. It reports whether the
// controller may be talked to.
func (c *Controller) powerEvent(evt PowerEvent) bool {
	if c.PowerMode() == PowerModeFull {
		return c.snooze.HandlePowerEvent(evt)
	}
	if c.vendorPower == nil {
		return false
	}
	return c.vendorPower.HandlePowerEvent(evt)
}

func (c *Controller) onIdleTimeout() {
	c.powerEvent(PowerEventTimeout)
}

func (c *Controller) write(packetType byte, payload []byte) error {
	if !c.powerEvent(PowerEventTX) {
		return ErrTransmitHeld
	}

	pkt := make([]byte, 0, 1+len(payload))
	pkt = append(pkt, packetType)
	pkt = append(pkt, payload...)

	c.logger.Debug().Hex("tx", pkt).Msg("send")
	if _, err := c.link.Write(pkt); err != nil {
		return NewTransportError("write", string(c.link.Type()), fmt.Errorf("%w: %w", ErrTransportWrite, err),
			ErrorTypeTransient)
	}
	return nil
}

// SendNCI sends an NCI message, header included.
func (c *Controller) SendNCI(msg []byte) error {
	return c.write(frame.PacketNCI, msg)
}

// SendHCICommand sends a vendor HCI command. done, if not nil, receives the
// matching Command Complete.
func (c *Controller) SendHCICommand(opcode uint16, params []byte, done func(CommandComplete)) error {
	if len(params) > 0xFF {
		return ErrPayloadTooLarge
	}
	if c.pending != nil {
		return ErrCommandPending
	}

	cmd := make([]byte, 3, 3+len(params))
	binary.LittleEndian.PutUint16(cmd, opcode)
	cmd[2] = byte(len(params))
	cmd = append(cmd, params...)

	c.pending = &pendingCommand{opcode: opcode, done: done}
	if err := c.write(frame.PacketHCICommand, cmd); err != nil {
		c.pending = nil
		return err
	}
	return nil
}

// SetBaudRate asks the controller to change its UART speed and follows
// with the local side once it confirms. done receives the HCI status.
func (c *Controller) SetBaudRate(baud int, done func(status byte)) error {
	if baud <= 0 || int64(baud) > math.MaxUint32 {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, baud)
	}

	params := make([]byte, 6)
	binary.LittleEndian.PutUint32(params[2:], uint32(baud))

	return c.SendHCICommand(frame.HCIOpcodeUpdateBaudRate, params, func(cc CommandComplete) {
		status := cc.Status()
		if status == 0 {
			if err := c.link.SetBaudRate(baud); err != nil {
				c.logger.Error().Err(err).Int("baud", baud).Msg("failed to change local baud rate")
			} else {
				c.logger.Info().Int("baud", baud).Msg("baud rate updated")
			}
		} else {
			c.logger.Error().Uint8("status", status).Msg("controller refused baud rate")
		}
		if done != nil {
			done(status)
		}
	})
}

// EnableSnooze starts driving NFC_WAKE with the given polarity.
func (c *Controller) EnableSnooze(mode WakeMode) error {
	if c.PowerMode() != PowerModeFull {
		return ErrNotFullPower
	}
	c.logger.Debug().Stringer("polarity", mode).Msg("enable snooze")
	c.snooze.enable(mode)
	return nil
}

// DisableSnooze keeps NFC_WAKE asserted and stops the idle timer.
func (c *Controller) DisableSnooze() error {
	if c.PowerMode() != PowerModeFull {
		return ErrNotFullPower
	}
	c.logger.Debug().Msg("disable snooze")
	c.snooze.disable()
	return nil
}

// Terminate prepares the controller for shutdown: the wake line is left
// asserted and power management is reset.
func (c *Controller) Terminate() {
	c.snooze.terminate(c.PowerMode() == PowerModeFull)
	c.SetPowerMode(PowerModeFull)
	c.pending = nil
	c.nciRx.Reset()
	c.hciRx.Reset()
	c.active = nil
}
