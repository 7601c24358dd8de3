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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeLevelTruthTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		action   wakeAction
		mode     WakeMode
		wantHigh bool
	}{
		{name: "active low assert", action: wakeAssert, mode: WakeActiveLow, wantHigh: false},
		{name: "active low deassert", action: wakeDeassert, mode: WakeActiveLow, wantHigh: true},
		{name: "active high assert", action: wakeAssert, mode: WakeActiveHigh, wantHigh: true},
		{name: "active high deassert", action: wakeDeassert, mode: WakeActiveHigh, wantHigh: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantHigh, wakeLevel(tt.action, tt.mode))
		})
	}
}

func TestSnoozeRequiresFullPower(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, false, WithPowerMode(PowerModeVendor))

	require.ErrorIs(t, f.ctrl.EnableSnooze(WakeActiveLow), ErrNotFullPower)
	assert.False(t, f.ctrl.SnoozeEnabled())
	require.ErrorIs(t, f.ctrl.DisableSnooze(), ErrNotFullPower)
	assert.Empty(t, f.wake.Levels())
	assert.Empty(t, f.idleTimer().Starts())

	f.ctrl.SetPowerMode(PowerModeFull)
	require.NoError(t, f.ctrl.EnableSnooze(WakeActiveLow))
	f.ctrl.SetPowerMode(PowerModeVendor)
	require.ErrorIs(t, f.ctrl.DisableSnooze(), ErrNotFullPower)
	assert.True(t, f.ctrl.SnoozeEnabled(), "a refused disable leaves snooze on")
}

func TestSnoozeEnableDisable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mode       WakeMode
		assertHigh bool
	}{
		{name: "active low", mode: WakeActiveLow, assertHigh: false},
		{name: "active high", mode: WakeActiveHigh, assertHigh: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newControllerFixture(t, false)
			timer := f.idleTimer()

			require.NoError(t, f.ctrl.EnableSnooze(tt.mode))
			assert.True(t, f.ctrl.SnoozeEnabled())
			assert.Equal(t, []bool{tt.assertHigh}, f.wake.Levels())
			assert.True(t, timer.Running())
			assert.Equal(t, DefaultIdleTimeout, timer.Starts()[0])

			require.True(t, timer.Fire())
			assert.Equal(t, []bool{tt.assertHigh, !tt.assertHigh}, f.wake.Levels())

			require.NoError(t, f.ctrl.DisableSnooze())
			assert.False(t, f.ctrl.SnoozeEnabled())
			assert.False(t, timer.Running())
			assert.Equal(t, []bool{tt.assertHigh, !tt.assertHigh, tt.assertHigh}, f.wake.Levels())
		})
	}
}

func TestSnoozeActivity(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, false)
	timer := f.idleTimer()
	require.NoError(t, f.ctrl.EnableSnooze(WakeActiveLow))
	assert.Len(t, f.wake.Levels(), 1)

	// Timer running: activity only extends it.
	require.NoError(t, f.ctrl.SendNCI([]byte{0x20, 0x01, 0x00}))
	f.ctrl.FeedBytes([]byte{0x10, 0x61, 0x05, 0x00})
	assert.Len(t, f.wake.Levels(), 1)
	assert.Len(t, timer.Starts(), 3)
	assert.True(t, timer.Running())

	// Idle timeout releases the line.
	require.True(t, timer.Fire())
	assert.Equal(t, []bool{false, true}, f.wake.Levels())

	// Timer stopped: activity asserts again before restarting it.
	require.NoError(t, f.ctrl.SendNCI([]byte{0x20, 0x01, 0x00}))
	assert.Equal(t, []bool{false, true, false}, f.wake.Levels())
	assert.Len(t, timer.Starts(), 4)
	assert.True(t, timer.Running())

	require.True(t, timer.Fire())
	f.ctrl.FeedBytes([]byte{0x10, 0x61, 0x05, 0x00})
	assert.Equal(t, []bool{false, true, false, true, false}, f.wake.Levels())
}

func TestActivityWithoutSnooze(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, false)
	require.NoError(t, f.ctrl.SendNCI([]byte{0x20, 0x01, 0x00}))
	f.ctrl.FeedBytes([]byte{0x10, 0x61, 0x05, 0x00})

	assert.Empty(t, f.wake.Levels())
	assert.Empty(t, f.idleTimer().Starts())
}

type fakeVendorPower struct {
	events  []PowerEvent
	allow   bool
	forward bool
}

func (v *fakeVendorPower) HandlePowerEvent(evt PowerEvent) bool {
	v.events = append(v.events, evt)
	return v.allow
}

func (v *fakeVendorPower) ForwardNCI([]byte) bool {
	return v.forward
}

func TestVendorPowerMode(t *testing.T) {
	t.Parallel()

	t.Run("handler holds transmit", func(t *testing.T) {
		t.Parallel()

		vp := &fakeVendorPower{}
		f := newControllerFixture(t, false, WithPowerMode(PowerModeVendor), WithVendorPowerHandler(vp))

		require.ErrorIs(t, f.ctrl.SendNCI([]byte{0x20, 0x01, 0x00}), ErrTransmitHeld)
		assert.Empty(t, f.link.Written())
		assert.Equal(t, []PowerEvent{PowerEventTX}, vp.events)
	})

	t.Run("handler allows transmit", func(t *testing.T) {
		t.Parallel()

		vp := &fakeVendorPower{allow: true, forward: true}
		f := newControllerFixture(t, false, WithPowerMode(PowerModeVendor), WithVendorPowerHandler(vp))

		require.NoError(t, f.ctrl.SendNCI([]byte{0x20, 0x01, 0x00}))
		assert.Len(t, f.link.Written(), 1)

		f.ctrl.FeedBytes([]byte{0x10, 0x61, 0x05, 0x00})
		assert.Len(t, f.stack.NCI(), 1)
		assert.Empty(t, f.wake.Levels(), "vendor mode never touches the built-in snooze logic")
	})

	t.Run("rx filter drops", func(t *testing.T) {
		t.Parallel()

		vp := &fakeVendorPower{allow: true, forward: false}
		f := newControllerFixture(t, false, WithPowerMode(PowerModeVendor), WithVendorPowerHandler(vp))

		f.ctrl.FeedBytes([]byte{0x10, 0x61, 0x05, 0x00})
		assert.Empty(t, f.stack.NCI())
	})

	t.Run("no handler", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, false, WithPowerMode(PowerModeVendor))
		require.ErrorIs(t, f.ctrl.SendNCI([]byte{0x20, 0x01, 0x00}), ErrTransmitHeld)
	})
}

func TestTerminate(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, false)
	timer := f.idleTimer()
	require.NoError(t, f.ctrl.EnableSnooze(WakeActiveHigh))
	require.True(t, timer.Fire())
	f.ctrl.FeedBytes([]byte{0x10, 0x61})

	f.ctrl.Terminate()

	assert.Equal(t, []bool{true, false, true}, f.wake.Levels(), "terminate leaves NFC_WAKE asserted")
	assert.False(t, f.ctrl.SnoozeEnabled())
	assert.False(t, timer.Running())
	assert.Equal(t, PowerModeFull, f.ctrl.PowerMode())
	assert.True(t, f.ctrl.ReceiverIdle())

	f.ctrl.Terminate()
	assert.Len(t, f.wake.Levels(), 3, "no wake change once snooze is off")
}

func TestTerminateResetsVendorPowerMode(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, false, WithPowerMode(PowerModeVendor))
	f.ctrl.Terminate()

	assert.Equal(t, PowerModeFull, f.ctrl.PowerMode())
	assert.Empty(t, f.wake.Levels())
	require.NoError(t, f.ctrl.EnableSnooze(WakeActiveLow))
}

func TestPowerStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "full", PowerModeFull.String())
	assert.Equal(t, "vendor", PowerModeVendor.String())
	assert.Equal(t, "active-high", WakeActiveHigh.String())
	assert.Equal(t, "timeout", PowerEventTimeout.String())
}

func TestSnoozeWithDefaultTimer(t *testing.T) {
	t.Parallel()

	wake := &FakeWakeLine{}
	ctrl, err := NewController(NewMockLink(), &RecordingStack{},
		WithWakeLine(wake), WithIdleTimeout(time.Microsecond))
	require.NoError(t, err)

	// Expiry runs on the timer goroutine while this one keeps changing
	// snooze state.
	for i := 0; i < 200; i++ {
		require.NoError(t, ctrl.EnableSnooze(WakeActiveLow))
		require.NoError(t, ctrl.SendNCI([]byte{0x20, 0x01, 0x00}))
		time.Sleep(time.Microsecond)
		assert.True(t, ctrl.SnoozeEnabled())
		require.NoError(t, ctrl.DisableSnooze())
	}
	ctrl.Terminate()

	time.Sleep(5 * time.Millisecond)
	levels := wake.Levels()
	require.NotEmpty(t, levels)
	assert.False(t, levels[len(levels)-1], "NFC_WAKE stays asserted once snooze is off")
	assert.False(t, ctrl.SnoozeEnabled())
}

func TestSnoozeIgnoresStaleExpiry(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, false)
	require.NoError(t, f.ctrl.EnableSnooze(WakeActiveLow))
	timer := f.idleTimer()

	// The timer has already been restarted by activity when a late expiry
	// is delivered.
	require.True(t, timer.Running())
	f.ctrl.onIdleTimeout()

	assert.Equal(t, []bool{false}, f.wake.Levels())
}
