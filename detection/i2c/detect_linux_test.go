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


//go:build linux

package i2c

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBusNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		want   int
		wantOK bool
	}{
		{path: "/dev/i2c-1", want: 1, wantOK: true},
		{path: "/dev/i2c-22", want: 22, wantOK: true},
		{path: "/dev/i2c-x", wantOK: false},
		{path: "/dev/ttyUSB0", wantOK: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			got, ok := parseBusNumber(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBusName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "I2C3", Bus{Path: "/dev/i2c-3", Number: 3}.Name())
}

func TestSupportsI2CMissingDevice(t *testing.T) {
	t.Parallel()

	assert.False(t, supportsI2C("/dev/i2c-does-not-exist"))
}
