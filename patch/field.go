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

// Package patch parses, cross-checks and loads controller patchram images.
package patch

import (
	"encoding/hex"
	"errors"
	"math"
	"strconv"
	"strings"
)

// MaxLengthFieldSize is the largest field DecodeLengthField accepts.
const MaxLengthFieldSize = 12

// DecodeLengthField decodes a length field of the patch file format.
//
// Length fields are not plain big-endian integers: every byte is rendered as
// two upper-case hex digits, high nibble first, and the resulting string is
// parsed as a base-16 number. For fields of up to eight bytes this yields the
// same value as a big-endian load; wider fields saturate at math.MaxUint64.
// A field outside [1, MaxLengthFieldSize] bytes decodes to 0.
func DecodeLengthField(b []byte) uint64 {
	if len(b) < 1 || len(b) > MaxLengthFieldSize {
		return 0
	}

	digits := strings.ToUpper(hex.EncodeToString(b))
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return math.MaxUint64
		}
		return 0
	}
	return v
}
