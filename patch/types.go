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
	"fmt"
	"os"
)

// Format selects the wire format the download service uses for the image.
type Format uint8

// Download formats.
const (
	FormatBIN Format = 0x00
	FormatHCD Format = 0x01
	FormatNCD Format = 0x02
)

func (f Format) String() string {
	switch f {
	case FormatBIN:
		return "bin"
	case FormatHCD:
		return "hcd"
	case FormatNCD:
		return "ncd"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// DownloadEvent is reported by the download service while it transfers an
// image to the controller.
type DownloadEvent uint8

// Download events.
const (
	EventContinue DownloadEvent = iota
	EventComplete
	EventAbort
	EventAbortInvalidPatch
	EventAbortBadSignature
	EventAbortNoNVM
)

func (e DownloadEvent) String() string {
	switch e {
	case EventContinue:
		return "continue"
	case EventComplete:
		return "complete"
	case EventAbort:
		return "abort"
	case EventAbortInvalidPatch:
		return "abort: invalid patch"
	case EventAbortBadSignature:
		return "abort: bad signature"
	case EventAbortNoNVM:
		return "abort: no NVM"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

// Status is the coarse result reported to the NFC stack once pre-init ends.
type Status uint8

// Pre-init statuses.
const (
	StatusOK Status = iota
	StatusFailed
	StatusRefused
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailed:
		return "FAILED"
	case StatusRefused:
		return "REFUSED"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// NVMType is the non-volatile memory the controller reports after reset.
type NVMType uint8

// NVM types.
const (
	NVMNone   NVMType = 0x00
	NVMEEPROM NVMType = 0x01
	NVMUICC   NVMType = 0x02
)

// State tracks the loader through one download.
type State uint8

// Loader states. Everything after StatePatchStarted is terminal.
const (
	StateIdle State = iota
	StatePatchStarted
	StateCompleted
	StateAborted
	StateAbortedInvalidPatch
	StateAbortedBadSignature
	StateAbortedNoNVM
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePatchStarted:
		return "patch started"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateAbortedInvalidPatch:
		return "aborted: invalid patch"
	case StateAbortedBadSignature:
		return "aborted: bad signature"
	case StateAbortedNoNVM:
		return "aborted: no NVM"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Downloader transfers images into the controller. The loader hands over
// its buffers and must not touch them until a terminal event arrives on the
// events channel.
type Downloader interface {
	// SetI2CPatch registers the pre-patch applied before the main image.
	SetI2CPatch(data []byte) error

	// StartDownload begins an asynchronous transfer. Progress and the final
	// result are sent on events.
	StartDownload(format Format, data []byte, events chan<- DownloadEvent) error
}

// Host receives the outward signals of the pre-init phase.
type Host interface {
	PreInitDone(status Status)
	ReInit()
	SetMaxRFCredits(credits int)
}

// SnoozeConfig describes the low-power mode set up after a download.
type SnoozeConfig struct {
	Mode              uint8
	IdleThresholdDH   uint8
	IdleThresholdNFCC uint8
	NFCWakeActiveHigh bool
	DHWakeActiveHigh  bool
}

// Enabled reports whether a snooze mode was requested.
func (c SnoozeConfig) Enabled() bool {
	return c.Mode != 0
}

// SnoozeSetter applies a snooze configuration.
type SnoozeSetter interface {
	SetSnoozeMode(cfg SnoozeConfig) error
}

// FileSystem reads whole files.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
}

// OSFileSystem reads from the host filesystem.
type OSFileSystem struct{}

// ReadFile implements FileSystem.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}
