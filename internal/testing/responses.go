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


package testing

import "encoding/binary"

// Test hardware identifiers
const (
	TestHardwareID    uint32 = 0x12345678
	TestHardwareIDAlt uint32 = 0x20795B20
)

// PatchImageSpec describes a synthetic patch image.
type PatchImageSpec struct {
	Payload      []byte
	PublicKey    []byte
	Signature    []byte
	FwVersion    [2]byte
	Build        [2]byte
	PatchVersion [2]byte
	SigAlgorithm byte
}

// DefaultPatchSpec returns a small, well-formed image description. Every
// call returns fresh slices.
func DefaultPatchSpec() PatchImageSpec {
	sig := make([]byte, 72)
	for i := range sig {
		sig[i] = byte(0xA0 + i)
	}
	return PatchImageSpec{
		Payload:      []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04},
		FwVersion:    [2]byte{0x01, 0x5B},
		Build:        [2]byte{0x07, 0x31},
		PatchVersion: [2]byte{0x00, 0x2A},
		SigAlgorithm: 0x01,
		PublicKey:    []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
		Signature:    sig,
	}
}

// lengthField renders v as an n byte big-endian field, which the patch
// format's hex-string decoding reads back unchanged for n <= 8.
func lengthField(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// PatchLength returns the PatchLength field value for spec.
func (s PatchImageSpec) PatchLength() int {
	return len(s.Payload) + 6
}

// SignatureOffset returns where the signature window compared against a
// controller response starts in the built image.
func (s PatchImageSpec) SignatureOffset() int {
	return 8 + s.PatchLength() + 1 + 4 + 2 + len(s.PublicKey) + 2 - 1
}

// FirmwareVersionOffset returns the firmware version offset in the built image.
func (s PatchImageSpec) FirmwareVersionOffset() int {
	return 8 + s.PatchLength() - 6
}

// PatchVersionOffset returns the patch version offset in the built image.
func (s PatchImageSpec) PatchVersionOffset() int {
	return 8 + s.PatchLength() - 2
}

// BuildPatchImage assembles an image in the controller's patch file format.
func BuildPatchImage(s PatchImageSpec) []byte {
	body := make([]byte, 0, 128+len(s.Payload)+len(s.PublicKey))
	body = append(body, s.Payload...)
	body = append(body, s.FwVersion[:]...)
	body = append(body, s.Build[:]...)
	body = append(body, s.PatchVersion[:]...)
	body = append(body, s.SigAlgorithm)
	body = append(body, 0, 0, 0, 0)
	body = append(body, lengthField(uint64(len(s.PublicKey)), 2)...)
	body = append(body, s.PublicKey...)
	body = append(body, lengthField(uint64(len(s.Signature)), 2)...)
	body = append(body, s.Signature...)

	img := make([]byte, 0, 8+len(body))
	img = append(img, lengthField(uint64(4+len(body)), 4)...)
	img = append(img, lengthField(uint64(s.PatchLength()), 4)...)
	return append(img, body...)
}

// SignatureWindow returns the 72 bytes of img a matching controller
// response ends with.
func SignatureWindow(s PatchImageSpec, img []byte) []byte {
	off := s.SignatureOffset()
	out := make([]byte, 72)
	copy(out, img[off:])
	return out
}

// BuildPatchAppliedResponse builds a controller response that reports
// firmware version fw and ends in the signature window sig.
func BuildPatchAppliedResponse(fw [2]byte, sig []byte) []byte {
	resp := []byte{0x4F, 0x2E, 0x00, 0x00, 0x00, 0x00}
	resp[2], resp[3] = fw[0], fw[1]
	resp = append(resp, sig...)
	return resp
}

// BuildCoreResetRsp creates a CORE_RESET response with the given status.
func BuildCoreResetRsp(status byte) []byte {
	return []byte{0x40, 0x00, 0x03, status, 0x10, 0x01}
}

// BuildCoreResetNtf creates a CORE_RESET notification.
func BuildCoreResetNtf(reason, resetType byte) []byte {
	return []byte{0x60, 0x00, 0x02, reason, resetType}
}

// BuildBuildInfoRsp creates a proprietary build information response
// carrying hwID little-endian at offset 25 after the GID/OID octets.
func BuildBuildInfoRsp(hwID uint32) []byte {
	msg := make([]byte, 3+32)
	msg[0] = 0x4F
	msg[1] = 0x04
	msg[2] = 32
	for i := 3; i < 27; i++ {
		msg[i] = byte(i)
	}
	msg[3] = 0x00
	binary.LittleEndian.PutUint32(msg[27:31], hwID)
	return msg
}

// BuildPatchVersionRsp creates a get-patch-version response reporting
// nvmType at offset 37.
func BuildPatchVersionRsp(nvmType byte) []byte {
	msg := make([]byte, 40)
	msg[0] = 0x4F
	msg[1] = 0x2D
	msg[2] = byte(len(msg) - 3)
	msg[37] = nvmType
	return msg
}

// BuildCommandComplete creates an HCI Command Complete event without the
// packet type tag.
func BuildCommandComplete(opcode uint16, params ...byte) []byte {
	evt := []byte{0x0E, byte(3 + len(params)), 0x01, byte(opcode), byte(opcode >> 8)}
	return append(evt, params...)
}
