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


// Package frame provides wire constants and the byte-level receive state
// machine for the vendor HCI and NCI packets sharing one controller link.
package frame

// Packet type tags, sent before every packet on the link.
const (
	PacketHCICommand = 0x01 // HCI command, host to controller
	PacketHCIEvent   = 0x04 // HCI event, controller to host
	PacketNCI        = 0x10 // NCI packet, both directions
)

// Preamble sizes. The last preamble octet carries the payload length.
const (
	HCIEventPreambleSize = 2 // event code, parameter length
	NCIPreambleSize      = 3 // MT/PBF/GID, OID, payload length
)

// DefaultCapacity is the size of a pooled receive buffer.
const DefaultCapacity = 258

// NCI message types.
const (
	MTData = 0x00
	MTCmd  = 0x01
	MTRsp  = 0x02
	MTNtf  = 0x03
)

// NCI group identifiers.
const (
	GIDCore = 0x00
	GIDProp = 0x0F
)

// NCI opcodes used during bring-up.
const (
	OIDCoreReset = 0x00

	OIDPropGetBuildInfo    = 0x04
	OIDPropGetPatchVersion = 0x2D
	OIDPropSecPatchAuth    = 0x2E
)

// Proprietary event codes carry these bits ORed into the opcode so
// responses and notifications can be told apart from commands.
const (
	PropRspBit = 0x40
	PropNtfBit = 0x80
)

// ResetTypeReset asks CORE_RESET to discard the configuration.
const ResetTypeReset = 0x01

// BuildInfoHWIDOffset is where the hardware id starts in a build-info
// response, counted after the two GID/OID octets.
const BuildInfoHWIDOffset = 25

// HCI event codes and vendor commands.
const (
	HCIEventCommandComplete = 0x0E
	HCIOpcodeUpdateBaudRate = 0xFC18
)

// CoreResetCmd is the CORE_RESET command with reset type "reset".
var CoreResetCmd = []byte{MTCmd<<5 | GIDCore, OIDCoreReset, 0x01, ResetTypeReset}

// GetBuildInfoCmd is the proprietary build information query.
var GetBuildInfoCmd = []byte{MTCmd<<5 | GIDProp, OIDPropGetBuildInfo, 0x00}

// MessageType returns the MT field of an NCI header octet.
func MessageType(b0 byte) byte { return (b0 >> 5) & 0x07 }

// GroupID returns the GID field of an NCI header octet.
func GroupID(b0 byte) byte { return b0 & 0x0F }

// OpcodeID returns the OID field of the second NCI header octet.
func OpcodeID(b1 byte) byte { return b1 & 0x3F }
