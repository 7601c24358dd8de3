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

import "sync"

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, DefaultCapacity)
		return &buf
	},
}

// GetBuffer returns an empty buffer with at least DefaultCapacity bytes of room.
func GetBuffer() []byte {
	bp, _ := bufferPool.Get().(*[]byte)
	return (*bp)[:0]
}

// PutBuffer returns buf to the pool. Buffers of a foreign size are dropped.
func PutBuffer(buf []byte) {
	if cap(buf) != DefaultCapacity {
		return
	}
	buf = buf[:0]
	bufferPool.Put(&buf)
}
