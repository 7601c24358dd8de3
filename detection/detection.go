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


// Package detection lists the serial ports and I2C buses a controller
// may be attached to. Nothing is probed: talking to an unknown device
// with NCI could disturb it.
package detection

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Detection errors
var (
	ErrNoDevicesFound      = errors.New("no candidate devices found")
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
)

// DeviceInfo is a candidate link
type DeviceInfo struct {
	Metadata  map[string]string
	Transport string
	Path      string
	Name      string
}

// Options filters the listing
type Options struct {
	// IgnorePaths are device paths to skip
	IgnorePaths []string
	// Blocklist holds VID:PID pairs of USB adapters to skip
	Blocklist []string
	// USBOnly skips on-board UARTs
	USBOnly bool
}

// DefaultOptions returns options that list everything except known
// problem adapters.
func DefaultOptions() Options {
	return Options{Blocklist: DefaultBlocklist()}
}

// DefaultBlocklist returns USB serial adapters known to misbehave when
// opened. Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{}
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}

	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// IsPathIgnored checks if a device path should be ignored.
// Paths are compared cleaned and case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// ListSerial returns the serial ports that pass opts.
func ListSerial(opts Options) ([]DeviceInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	devices := filterSerial(ports, opts)
	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

func filterSerial(ports []*enumerator.PortDetails, opts Options) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(ports))
	for _, p := range ports {
		if p == nil || IsPathIgnored(p.Name, opts.IgnorePaths) {
			continue
		}
		if opts.USBOnly && !p.IsUSB {
			continue
		}

		dev := DeviceInfo{
			Transport: "uart",
			Path:      p.Name,
			Name:      p.Name,
			Metadata:  map[string]string{},
		}
		if p.IsUSB {
			vidpid := strings.ToUpper(p.VID + ":" + p.PID)
			if IsBlocked(vidpid, opts.Blocklist) {
				continue
			}
			dev.Metadata["vidpid"] = vidpid
			if p.SerialNumber != "" {
				dev.Metadata["serial"] = p.SerialNumber
			}
			if p.Product != "" {
				dev.Name = p.Product + " (" + p.Name + ")"
			}
		}
		devices = append(devices, dev)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices
}
