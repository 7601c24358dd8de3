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


package patch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-bcmnfc/config"
	testutil "github.com/ZaparooProject/go-bcmnfc/internal/testing"
)

type mapFS map[string][]byte

func (m mapFS) ReadFile(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s: file does not exist", ErrIO, name)
	}
	return data, nil
}

type fakeDownloader struct {
	startErr error
	i2cFix   []byte
	data     []byte
	events   []DownloadEvent
	mu       sync.Mutex
	format   Format
	started  bool
}

func (d *fakeDownloader) SetI2CPatch(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.i2cFix = data
	return nil
}

func (d *fakeDownloader) StartDownload(format Format, data []byte, events chan<- DownloadEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	d.format = format
	d.data = data
	for _, evt := range d.events {
		events <- evt
	}
	return nil
}

type fakeHost struct {
	calls   []string
	preInit []Status
	credits []int
	reInit  int
	mu      sync.Mutex
}

func (h *fakeHost) PreInitDone(status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.preInit = append(h.preInit, status)
	h.calls = append(h.calls, "pre-init-done")
}

func (h *fakeHost) ReInit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reInit++
	h.calls = append(h.calls, "re-init")
}

func (h *fakeHost) SetMaxRFCredits(credits int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.credits = append(h.credits, credits)
	h.calls = append(h.calls, "credits")
}

type fakeSnooze struct {
	err  error
	cfgs []SnoozeConfig
}

func (s *fakeSnooze) SetSnoozeMode(cfg SnoozeConfig) error {
	s.cfgs = append(s.cfgs, cfg)
	return s.err
}

var testPatch = testutil.BuildPatchImage(testutil.DefaultPatchSpec())

func patchConfig() *config.Store {
	return config.New(map[string]any{
		config.KeyPatch: "/fw/patch.ncd",
	})
}

func patchFS() mapFS {
	return mapFS{"/fw/patch.ncd": testPatch}
}

type eventTestCase struct {
	wantErr    error
	name       string
	events     []DownloadEvent
	wantState  State
	wantStatus Status
	wantPre    []Status
	wantReInit int
}

func getEventTestCases() []eventTestCase {
	return []eventTestCase{
		{
			name:       "complete",
			events:     []DownloadEvent{EventComplete},
			wantState:  StateCompleted,
			wantStatus: StatusOK,
			wantPre:    []Status{StatusOK},
		},
		{
			name:       "continue then complete",
			events:     []DownloadEvent{EventContinue, EventContinue, EventComplete},
			wantState:  StateCompleted,
			wantStatus: StatusOK,
			wantPre:    []Status{StatusOK},
		},
		{
			name:       "abort",
			events:     []DownloadEvent{EventAbort},
			wantState:  StateAborted,
			wantStatus: StatusFailed,
			wantPre:    []Status{StatusFailed},
			wantErr:    ErrDownloadAborted,
		},
		{
			name:       "invalid patch",
			events:     []DownloadEvent{EventAbortInvalidPatch},
			wantState:  StateAbortedInvalidPatch,
			wantStatus: StatusRefused,
			wantPre:    []Status{StatusRefused},
			wantErr:    ErrVersionMismatch,
		},
		{
			name:       "bad signature",
			events:     []DownloadEvent{EventContinue, EventAbortBadSignature},
			wantState:  StateAbortedBadSignature,
			wantStatus: StatusRefused,
			wantPre:    []Status{StatusRefused},
			wantErr:    ErrSignatureMismatch,
		},
		{
			name:       "no nvm",
			events:     []DownloadEvent{EventAbortNoNVM},
			wantState:  StateAbortedNoNVM,
			wantStatus: StatusFailed,
			wantReInit: 1,
			wantErr:    ErrNVMAbsent,
		},
	}
}

func TestLoaderDownloadEvents(t *testing.T) {
	t.Parallel()

	for _, tt := range getEventTestCases() {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dl := &fakeDownloader{events: tt.events}
			host := &fakeHost{}
			l := NewLoader(patchConfig(), dl, host, WithFileSystem(patchFS()))
			assert.Equal(t, StateIdle, l.State())

			out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

			assert.Equal(t, tt.wantState, out.State)
			assert.Equal(t, tt.wantState, l.State())
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.True(t, out.Downloaded)
			assert.Equal(t, tt.wantPre, host.preInit)
			assert.Equal(t, tt.wantReInit, host.reInit)
			assert.Equal(t, tt.wantReInit == 1, out.ReInit)
			if tt.wantErr != nil {
				require.ErrorIs(t, out.Err, tt.wantErr)
			} else {
				require.NoError(t, out.Err)
			}
			assert.Equal(t, IsRefused(out.Err), tt.wantStatus == StatusRefused)

			assert.True(t, dl.started)
			assert.Equal(t, FormatNCD, dl.format)
			assert.Equal(t, testPatch, dl.data)
			assert.False(t, l.Buffered(), "buffers must be released on a terminal event")
		})
	}
}

func TestLoaderNoPatchConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cfg  config.Source
		name string
	}{
		{name: "nil config", cfg: nil},
		{name: "empty config", cfg: config.New(nil)},
		{name: "empty path", cfg: config.New(map[string]any{config.KeyPatch: ""})},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dl := &fakeDownloader{}
			host := &fakeHost{}
			l := NewLoader(tt.cfg, dl, host)

			out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

			assert.Equal(t, StatusOK, out.Status)
			assert.Equal(t, StateCompleted, out.State)
			assert.False(t, out.Downloaded)
			assert.False(t, dl.started)
			assert.Equal(t, []Status{StatusOK}, host.preInit)
		})
	}
}

func TestLoaderPatchUnreadable(t *testing.T) {
	t.Parallel()

	dl := &fakeDownloader{}
	host := &fakeHost{}
	l := NewLoader(patchConfig(), dl, host, WithFileSystem(mapFS{}))

	out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

	assert.Equal(t, StatusOK, out.Status)
	assert.False(t, out.Downloaded)
	require.ErrorIs(t, out.Err, ErrIO)
	assert.False(t, dl.started)
	assert.Equal(t, []Status{StatusOK}, host.preInit)
	assert.False(t, l.Buffered())
}

func TestLoaderStartDownloadFails(t *testing.T) {
	t.Parallel()

	startErr := errors.New("transport busy")
	dl := &fakeDownloader{startErr: startErr}
	host := &fakeHost{}
	l := NewLoader(patchConfig(), dl, host, WithFileSystem(patchFS()))

	out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

	assert.Equal(t, StatusOK, out.Status)
	require.ErrorIs(t, out.Err, startErr)
	assert.Equal(t, []Status{StatusOK}, host.preInit)
	assert.False(t, l.Buffered())
}

func TestLoaderPrePatchRegisteredWithoutValidation(t *testing.T) {
	t.Parallel()

	garbage := []byte{0x01, 0x02, 0x03}
	cfg := patchConfig()
	cfg.Set(config.KeyPrePatch, "/fw/i2c.ncd")
	fs := patchFS()
	fs["/fw/i2c.ncd"] = garbage

	dl := &fakeDownloader{events: []DownloadEvent{EventComplete}}
	host := &fakeHost{}
	l := NewLoader(cfg, dl, host, WithFileSystem(fs))

	out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, garbage, dl.i2cFix)
	assert.False(t, l.Buffered())
}

func TestLoaderMissingPrePatchIsIgnored(t *testing.T) {
	t.Parallel()

	cfg := patchConfig()
	cfg.Set(config.KeyPrePatch, "/fw/missing.ncd")
	dl := &fakeDownloader{events: []DownloadEvent{EventComplete}}
	host := &fakeHost{}
	l := NewLoader(cfg, dl, host, WithFileSystem(patchFS()))

	out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

	assert.Equal(t, StatusOK, out.Status)
	assert.True(t, dl.started)
	assert.Nil(t, dl.i2cFix)
}

func TestLoaderOverlays(t *testing.T) {
	t.Parallel()

	cfg := patchConfig()
	cfg.AddOverlay("12345678", map[string]any{config.KeyPatch: "/fw/chip.ncd"})
	cfg.AddOverlay("fime", map[string]any{config.KeyPatchFormat: "0x01"})
	chipPatch := testutil.BuildPatchImage(testutil.PatchImageSpec{
		Payload:   []byte{0x42},
		Signature: make([]byte, 72),
	})
	fs := mapFS{"/fw/chip.ncd": chipPatch}

	dl := &fakeDownloader{events: []DownloadEvent{EventComplete}}
	l := NewLoader(cfg, dl, &fakeHost{}, WithFileSystem(fs))

	out := l.StartPatchDownload(context.Background(), 0x12345678)

	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, chipPatch, dl.data)
	assert.Equal(t, FormatHCD, dl.format)
}

func TestLoaderContextCancelled(t *testing.T) {
	t.Parallel()

	dl := &fakeDownloader{}
	host := &fakeHost{}
	l := NewLoader(patchConfig(), dl, host, WithFileSystem(patchFS()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := l.StartPatchDownload(ctx, testutil.TestHardwareID)

	assert.Equal(t, StateAborted, out.State)
	assert.Equal(t, StatusFailed, out.Status)
	require.ErrorIs(t, out.Err, ErrDownloadAborted)
	require.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Equal(t, []Status{StatusFailed}, host.preInit)
	assert.False(t, l.Buffered())
}

func TestLoaderSnooze(t *testing.T) {
	t.Parallel()

	snoozeCfg := &SnoozeConfig{Mode: 1, IdleThresholdDH: 5, IdleThresholdNFCC: 5}

	tests := []struct {
		setErr     error
		name       string
		wantStatus Status
	}{
		{name: "applied", wantStatus: StatusOK},
		{name: "setter fails", setErr: errors.New("no wake pin"), wantStatus: StatusFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			setter := &fakeSnooze{err: tt.setErr}
			dl := &fakeDownloader{events: []DownloadEvent{EventComplete}}
			host := &fakeHost{}
			l := NewLoader(patchConfig(), dl, host,
				WithFileSystem(patchFS()), WithSnooze(setter, snoozeCfg))

			out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, []SnoozeConfig{*snoozeCfg}, setter.cfgs)
			assert.Equal(t, []Status{tt.wantStatus}, host.preInit)
		})
	}
}

func TestLoaderSnoozeFromConfig(t *testing.T) {
	t.Parallel()

	cfg := patchConfig()
	cfg.Set(config.KeySnoozeMode, 1)
	cfg.Set(config.KeyIdleThresholdDH, 10)
	cfg.Set(config.KeyIdleThresholdHC, 20)
	cfg.Set(config.KeyNFCWakeActive, "1")

	setter := &fakeSnooze{}
	dl := &fakeDownloader{events: []DownloadEvent{EventComplete}}
	l := NewLoader(cfg, dl, &fakeHost{}, WithFileSystem(patchFS()), WithSnooze(setter, nil))

	out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

	assert.Equal(t, StatusOK, out.Status)
	require.Len(t, setter.cfgs, 1)
	assert.Equal(t, SnoozeConfig{
		Mode:              1,
		IdleThresholdDH:   10,
		IdleThresholdNFCC: 20,
		NFCWakeActiveHigh: true,
	}, setter.cfgs[0])
}

func TestLoaderSnoozeSkippedOnFailure(t *testing.T) {
	t.Parallel()

	setter := &fakeSnooze{}
	dl := &fakeDownloader{events: []DownloadEvent{EventAbort}}
	host := &fakeHost{}
	l := NewLoader(patchConfig(), dl, host,
		WithFileSystem(patchFS()), WithSnooze(setter, &SnoozeConfig{Mode: 1}))

	out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Empty(t, setter.cfgs)
	assert.Equal(t, []Status{StatusFailed}, host.preInit)
}

func TestLoaderPostResetInit(t *testing.T) {
	t.Parallel()

	t.Run("no nvm requests re-init", func(t *testing.T) {
		t.Parallel()

		dl := &fakeDownloader{}
		host := &fakeHost{}
		l := NewLoader(patchConfig(), dl, host, WithFileSystem(patchFS()))

		out := l.PostResetInit(context.Background(), testutil.TestHardwareID, NVMNone)

		assert.True(t, out.ReInit)
		require.ErrorIs(t, out.Err, ErrNVMAbsent)
		assert.Equal(t, 1, host.reInit)
		assert.Empty(t, host.preInit)
		assert.False(t, dl.started)
	})

	t.Run("credits before pre-init done", func(t *testing.T) {
		t.Parallel()

		cfg := patchConfig()
		cfg.Set(config.KeyMaxRFCredits, 1)
		dl := &fakeDownloader{events: []DownloadEvent{EventComplete}}
		host := &fakeHost{}
		l := NewLoader(cfg, dl, host, WithFileSystem(patchFS()))

		out := l.PostResetInit(context.Background(), testutil.TestHardwareID, NVMEEPROM)

		assert.Equal(t, StatusOK, out.Status)
		assert.Equal(t, []int{1}, host.credits)
		assert.Equal(t, []string{"credits", "pre-init-done"}, host.calls)
	})

	t.Run("zero credits not applied", func(t *testing.T) {
		t.Parallel()

		cfg := patchConfig()
		cfg.Set(config.KeyMaxRFCredits, 0)
		host := &fakeHost{}
		l := NewLoader(cfg, &fakeDownloader{events: []DownloadEvent{EventComplete}}, host,
			WithFileSystem(patchFS()))

		_ = l.PostResetInit(context.Background(), testutil.TestHardwareID, NVMUICC)

		assert.Empty(t, host.credits)
		assert.Equal(t, []Status{StatusOK}, host.preInit)
	})
}

func TestLoaderHandlePatchVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		resp        []byte
		wantStatus  Status
		wantPre     []Status
		wantReInit  int
		wantCredits []int
	}{
		{
			name:       "too short",
			resp:       make([]byte, PatchVersionNVMOffset),
			wantStatus: StatusFailed,
			wantPre:    []Status{StatusFailed},
		},
		{
			name:       "nvm absent",
			resp:       testutil.BuildPatchVersionRsp(byte(NVMNone)),
			wantStatus: StatusFailed,
			wantReInit: 1,
		},
		{
			name:        "nvm present",
			resp:        testutil.BuildPatchVersionRsp(byte(NVMEEPROM)),
			wantStatus:  StatusOK,
			wantPre:     []Status{StatusOK},
			wantCredits: []int{2},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.New(map[string]any{config.KeyMaxRFCredits: 2})
			host := &fakeHost{}
			l := NewLoader(cfg, &fakeDownloader{}, host)

			assert.Equal(t, tt.wantStatus, l.HandlePatchVersion(tt.resp))
			assert.Equal(t, tt.wantPre, host.preInit)
			assert.Equal(t, tt.wantReInit, host.reInit)
			assert.Equal(t, tt.wantCredits, host.credits)
		})
	}
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ncd", FormatNCD.String())
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "REFUSED", StatusRefused.String())
	assert.Equal(t, "aborted: no NVM", StateAbortedNoNVM.String())
	assert.Equal(t, "abort: bad signature", EventAbortBadSignature.String())
}

func TestLoaderStartUpConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		values map[string]any
		want   StartUpConfig
		name   string
	}{
		{
			name: "defaults",
			want: DefaultStartUpConfig(),
		},
		{
			name: "configured",
			values: map[string]any{
				config.KeyStartUpConfig: "{06:80:01:01:C2:01:00}",
				config.KeyStartUpVSC:    []any{5, 0x2F, 0x1A, 2, 0, 1},
				config.KeyLPTDConfig:    "{03:C2:01:01}",
			},
			want: StartUpConfig{
				Config: []byte{0x06, 0x80, 0x01, 0x01, 0xC2, 0x01, 0x00},
				VSC:    []byte{0x05, 0x2F, 0x1A, 0x02, 0x00, 0x01},
				LPTD:   []byte{0x03, 0xC2, 0x01, 0x01},
			},
		},
		{
			name: "trailing octets trimmed",
			values: map[string]any{
				config.KeyStartUpConfig: "{03:80:01:01:FF:FF}",
			},
			want: DefaultStartUpConfig(),
		},
		{
			name: "malformed values keep defaults",
			values: map[string]any{
				config.KeyStartUpConfig: "{09:80:01}",
				config.KeyStartUpVSC:    "not hex",
				config.KeyLPTDConfig:    make([]byte, MaxLPTDConfigLen+1),
			},
			want: DefaultStartUpConfig(),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.New(tt.values)
			cfg.Set(config.KeyPatch, "/fw/patch.ncd")
			dl := &fakeDownloader{events: []DownloadEvent{EventComplete}}
			l := NewLoader(cfg, dl, &fakeHost{}, WithFileSystem(patchFS()))

			out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)
			assert.Equal(t, StatusOK, out.Status)
			assert.Equal(t, tt.want, out.StartUp)
			assert.Equal(t, tt.want, l.StartUpConfig())
		})
	}
}

func TestLoaderStartUpConfigFromChipOverlay(t *testing.T) {
	t.Parallel()

	cfg := config.New(map[string]any{config.KeyStartUpConfig: "{03:80:01:01}"})
	cfg.AddOverlay("12345678", map[string]any{config.KeyStartUpConfig: "{03:80:01:00}"})
	l := NewLoader(cfg, &fakeDownloader{}, &fakeHost{})
	assert.Equal(t, DefaultStartUpConfig(), l.StartUpConfig())

	out := l.StartPatchDownload(context.Background(), testutil.TestHardwareID)
	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, []byte{0x03, 0x80, 0x01, 0x00}, out.StartUp.Config)
}
