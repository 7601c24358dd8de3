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
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"syscall"
	"unsafe"
)

const (
	// i2cFuncs is the ioctl command to get adapter functionality
	i2cFuncs = 0x0705

	// i2cFuncI2C indicates plain I2C support
	i2cFuncI2C = 0x00000001
)

var devGlob = "/dev/i2c-*"

// findBuses returns the /dev/i2c-N adapters that support plain I2C
func findBuses(ctx context.Context) ([]Bus, error) {
	matches, err := filepath.Glob(devGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for I2C devices: %w", err)
	}

	buses := make([]Bus, 0, len(matches))
	for _, path := range matches {
		if ctx.Err() != nil {
			return buses, ctx.Err()
		}

		busNum, ok := parseBusNumber(path)
		if !ok || !supportsI2C(path) {
			continue
		}
		buses = append(buses, Bus{Path: path, Number: busNum})
	}

	sort.Slice(buses, func(i, j int) bool { return buses[i].Number < buses[j].Number })
	return buses, nil
}

func parseBusNumber(path string) (int, bool) {
	var busNum int
	if _, err := fmt.Sscanf(filepath.Base(path), "i2c-%d", &busNum); err != nil {
		return 0, false
	}
	return busNum, true
}

func supportsI2C(path string) bool {
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return false
	}
	defer func() { _ = syscall.Close(fd) }()

	var funcs uint32
	// #nosec G103 -- unsafe pointer required for ioctl system call
	if err := ioctl(fd, i2cFuncs, uintptr(unsafe.Pointer(&funcs))); err != nil {
		return false
	}
	return funcs&i2cFuncI2C != 0
}

// ioctl performs an ioctl system call
func ioctl(fd int, request uint, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(request), arg)
	if errno != 0 {
		return errno
	}
	return nil
}
