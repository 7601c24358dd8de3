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


// Package i2c lists I2C buses that may carry a controller.
package i2c

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ZaparooProject/go-bcmnfc/detection"
	i2ctransport "github.com/ZaparooProject/go-bcmnfc/transport/i2c"
)

// Bus is an I2C adapter found on the system
type Bus struct {
	Path   string
	Number int
}

// Name returns the periph registry name of the bus.
func (b Bus) Name() string {
	return fmt.Sprintf("I2C%d", b.Number)
}

// Detect lists usable I2C buses. The controller is assumed to sit at
// the default address; it is not probed.
func Detect(ctx context.Context, opts detection.Options) ([]detection.DeviceInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	buses, err := findBuses(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]detection.DeviceInfo, 0, len(buses))
	for _, bus := range buses {
		if detection.IsPathIgnored(bus.Path, opts.IgnorePaths) ||
			detection.IsPathIgnored(bus.Name(), opts.IgnorePaths) {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Transport: "i2c",
			Path:      bus.Name(),
			Name:      fmt.Sprintf("I2C bus %s address 0x%02X", bus.Path, i2ctransport.DefaultAddress),
			Metadata: map[string]string{
				"bus":     bus.Path,
				"address": fmt.Sprintf("0x%02X", i2ctransport.DefaultAddress),
			},
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
