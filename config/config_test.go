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


package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
FW_PATCH: /vendor/firmware/bcm2079x.ncd
FW_PRE_PATCH: ""
NFA_CONFIG_FORMAT: 2
MAX_RF_DATA_CREDITS: "0x01"
SNOOZE_MODE: true
overrides:
  "20795B20":
    FW_PATCH: /vendor/firmware/20795b20.ncd
  fime:
    MAX_RF_DATA_CREDITS: 3
`

func TestParse(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	path, ok := s.String(KeyPatch)
	require.True(t, ok)
	assert.Equal(t, "/vendor/firmware/bcm2079x.ncd", path)

	_, ok = s.String(KeyPrePatch)
	assert.False(t, ok, "empty value counts as unset")

	format, ok := s.Number(KeyPatchFormat)
	require.True(t, ok)
	assert.Equal(t, int64(2), format)

	credits, ok := s.Number(KeyMaxRFCredits)
	require.True(t, ok)
	assert.Equal(t, int64(1), credits)

	snooze, ok := s.Number(KeySnoozeMode)
	require.True(t, ok)
	assert.Equal(t, int64(1), snooze)

	_, ok = s.String("overrides")
	assert.False(t, ok, "override sections are not values")
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("FW_PATCH: [unterminated"))
	require.Error(t, err)
}

func TestApplyOverlay(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.False(t, s.ApplyOverlay("12345678"))
	assert.True(t, s.ApplyOverlay("20795b20"), "overlay names are case-insensitive")

	path, _ := s.String(KeyPatch)
	assert.Equal(t, "/vendor/firmware/20795b20.ncd", path)

	assert.True(t, s.ApplyOverlay("fime"))
	credits, _ := s.Number(KeyMaxRFCredits)
	assert.Equal(t, int64(3), credits)
}

func TestNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value  any
		name   string
		want   int64
		wantOK bool
	}{
		{name: "int", value: 5, want: 5, wantOK: true},
		{name: "int64", value: int64(-2), want: -2, wantOK: true},
		{name: "uint64", value: uint64(7), want: 7, wantOK: true},
		{name: "float", value: 3.0, want: 3, wantOK: true},
		{name: "false", value: false, want: 0, wantOK: true},
		{name: "hex string", value: " 0x10 ", want: 16, wantOK: true},
		{name: "decimal string", value: "42", want: 42, wantOK: true},
		{name: "garbage", value: "fast", wantOK: false},
		{name: "nil", value: nil, wantOK: false},
		{name: "slice", value: []any{1}, wantOK: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := New(map[string]any{"K": tt.value})
			got, ok := s.Number("K")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	t.Parallel()

	s := New(map[string]any{KeyPatch: "/fw/a.ncd"})

	v, err := Require(s, KeyPatch)
	require.NoError(t, err)
	assert.Equal(t, "/fw/a.ncd", v)

	_, err = Require(s, KeyPrePatch)
	require.ErrorIs(t, err, ErrMissing)

	_, err = Require(nil, KeyPatch)
	require.ErrorIs(t, err, ErrMissing)
}

func TestNewCopiesValues(t *testing.T) {
	t.Parallel()

	values := map[string]any{KeyPatch: "/fw/a.ncd"}
	s := New(values)
	values[KeyPatch] = "/fw/b.ncd"

	v, _ := s.String(KeyPatch)
	assert.Equal(t, "/fw/a.ncd", v)

	s.Set(KeyPatch, "/fw/c.ncd")
	v, _ = s.String(KeyPatch)
	assert.Equal(t, "/fw/c.ncd", v)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bcmnfc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	v, ok := s.String(KeyPatch)
	require.True(t, ok)
	assert.Equal(t, "/vendor/firmware/bcm2079x.ncd", v)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestParseByteArray(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "braces and colons", input: "{03:80:01:01}", want: []byte{0x03, 0x80, 0x01, 0x01}},
		{name: "commas", input: "05, 2F, 1A, 02, 00, 01", want: []byte{0x05, 0x2F, 0x1A, 0x02, 0x00, 0x01}},
		{name: "prefixed", input: "0x01 0xff", want: []byte{0x01, 0xFF}},
		{name: "empty", input: "{}", wantErr: true},
		{name: "not hex", input: "{03:GG}", wantErr: true},
		{name: "wider than an octet", input: "{100}", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseByteArray(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBytes(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(`
NFA_DM_START_UP_CFG: "{03:80:01:01}"
NFA_DM_START_UP_VSC_CFG: [5, 0x2F, 0x1A, 2, 0, 1]
LPTD_CFG: "{zz}"
`))
	require.NoError(t, err)

	b, err := Bytes(s, KeyStartUpConfig)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x80, 0x01, 0x01}, b)

	b, err = Bytes(s, KeyStartUpVSC)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x2F, 0x1A, 0x02, 0x00, 0x01}, b)

	_, err = Bytes(s, KeyLPTDConfig)
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = Bytes(s, "UNSET")
	require.ErrorIs(t, err, ErrMissing)
}
