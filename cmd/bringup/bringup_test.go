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


package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bcmnfc "github.com/ZaparooProject/go-bcmnfc"
	"github.com/ZaparooProject/go-bcmnfc/config"
	testutil "github.com/ZaparooProject/go-bcmnfc/internal/testing"
	"github.com/ZaparooProject/go-bcmnfc/patch"
)

func runBringup(t *testing.T, cfg *config.Store, nvm patch.NVMType) (result, *testutil.VirtualController) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	vc := testutil.NewVirtualController(testutil.TestHardwareIDAlt)
	b := newBringup(ctx, cfg, nvm, zerolog.Nop())
	session, err := bcmnfc.NewSession(bcmnfc.NewReadWriteLink(vc), b.stack,
		bcmnfc.WithDevInitCallback(b.devInit))
	require.NoError(t, err)
	b.attach(session)
	t.Cleanup(func() { _ = session.Close() })

	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()
	require.NoError(t, session.Start())

	res, err := b.wait(ctx, runErr)
	require.NoError(t, err)
	return res, vc
}

func TestBringupWithoutPatch(t *testing.T) {
	t.Parallel()

	res, vc := runBringup(t, config.New(map[string]any{config.KeyMaxRFCredits: 2}), patch.NVMEEPROM)

	assert.Equal(t, uint32(testutil.TestHardwareIDAlt), res.hwID)
	assert.Equal(t, patch.StatusOK, res.status)
	assert.Equal(t, patch.StateCompleted, res.outcome.State)
	assert.Equal(t, 2, res.credits)
	assert.Len(t, vc.Written(), 2)
}

func TestBringupStartUpConfig(t *testing.T) {
	t.Parallel()

	cfg := config.New(map[string]any{config.KeyLPTDConfig: "{03:C2:01:01}"})
	cfg.AddOverlay("20795b20", map[string]any{config.KeyStartUpConfig: "{03:80:01:00}"})

	res, _ := runBringup(t, cfg, patch.NVMEEPROM)

	assert.Equal(t, patch.StatusOK, res.status)
	assert.Equal(t, []byte{0x03, 0x80, 0x01, 0x00}, res.outcome.StartUp.Config)
	assert.Nil(t, res.outcome.StartUp.VSC)
	assert.Equal(t, []byte{0x03, 0xC2, 0x01, 0x01}, res.outcome.StartUp.LPTD)
}

func TestBringupWithPatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	spec := testutil.DefaultPatchSpec()
	img := testutil.BuildPatchImage(spec)
	patchPath := filepath.Join(dir, "patch.ncd")
	require.NoError(t, os.WriteFile(patchPath, img, 0o600))

	other := spec
	other.FwVersion = [2]byte{0x77, 0x77}
	badPrePath := filepath.Join(dir, "pre.ncd")
	require.NoError(t, os.WriteFile(badPrePath, testutil.BuildPatchImage(other), 0o600))

	tests := []struct {
		values     map[string]any
		name       string
		wantStatus patch.Status
		wantState  patch.State
	}{
		{
			name:       "valid patch",
			values:     map[string]any{config.KeyPatch: patchPath},
			wantStatus: patch.StatusOK,
			wantState:  patch.StateCompleted,
		},
		{
			name:       "pre-patch for other firmware",
			values:     map[string]any{config.KeyPatch: patchPath, config.KeyPrePatch: badPrePath},
			wantStatus: patch.StatusRefused,
			wantState:  patch.StateAbortedInvalidPatch,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, _ := runBringup(t, config.New(tt.values), patch.NVMEEPROM)
			assert.Equal(t, tt.wantStatus, res.status)
			assert.Equal(t, tt.wantState, res.outcome.State)
		})
	}
}

func TestBringupNoNVM(t *testing.T) {
	t.Parallel()

	res, _ := runBringup(t, config.New(nil), patch.NVMNone)
	assert.True(t, res.outcome.ReInit)
	assert.Equal(t, patch.StatusFailed, res.status)
	require.ErrorIs(t, res.outcome.Err, patch.ErrNVMAbsent)
}

func TestVerifierRejectsGarbage(t *testing.T) {
	t.Parallel()

	v := &verifier{logger: zerolog.Nop()}
	assert.Equal(t, patch.EventAbortInvalidPatch, v.check(patch.FormatNCD, []byte{0x00, 0x01}, nil))
}

func TestParseNVM(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]patch.NVMType{
		"eeprom": patch.NVMEEPROM,
		"UICC":   patch.NVMUICC,
		"none":   patch.NVMNone,
	} {
		got, err := parseNVM(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := parseNVM("flash")
	require.Error(t, err)
}
