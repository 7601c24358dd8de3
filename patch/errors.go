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

import "errors"

// Patch errors. Loader failures are absorbed into a Status; these are what
// the validators return and what Outcome.Err wraps.
var (
	// ErrFormatInvalid means a buffer is too short for the field being read.
	ErrFormatInvalid = errors.New("patch: invalid image format")
	// ErrVersionMismatch means two images carry different firmware or patch versions.
	ErrVersionMismatch = errors.New("patch: version mismatch")
	// ErrSignatureMismatch means the controller did not report the image signature.
	ErrSignatureMismatch = errors.New("patch: signature mismatch")
	// ErrIO wraps open and read failures on patch files.
	ErrIO = errors.New("patch: file I/O failure")
	// ErrNVMAbsent means the controller could not detect its non-volatile memory.
	ErrNVMAbsent = errors.New("patch: controller NVM not detected")
	// ErrDownloadAborted means the download service gave up on the image.
	ErrDownloadAborted = errors.New("patch: download aborted")
)
