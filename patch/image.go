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
)

// Field widths of the patch image layout:
//
//	[TotalLength:4][PatchLength:4][payload ... FwVersion:2 Build:2 PatchVersion:2]
//	[SigAlgorithm:1][Reserved:4][PublicKeyLength:2][PublicKey:n]
//	[SignatureLength:2][Signature:72]
//
// PatchLength counts the payload including the trailing version block.
const (
	totalLengthOctets     = 4
	patchLengthOctets     = 4
	fwVersionOctets       = 2
	versionGapOctets      = 2
	patchVersionOctets    = 2
	sigAlgorithmOctets    = 1
	reservedOctets        = 4
	publicKeyLengthOctets = 2
	signatureLengthOctets = 2

	// SignatureLength is the size of the signature both in the image and at
	// the tail of the controller's patch-applied response.
	SignatureLength = 72

	// ResponseFirmwareVersionOffset locates the firmware version in a
	// controller response.
	ResponseFirmwareVersionOffset = 2

	headerOctets = totalLengthOctets + patchLengthOctets
)

// Image is a read-only view over a patch or pre-patch file. All accessors
// check bounds; a truncated file yields ErrFormatInvalid rather than a panic.
type Image struct {
	data     []byte
	patchLen int
}

// ParseImage wraps data in an Image after checking that the header and the
// version fields it points at are present. data is not copied and must not
// be modified while the Image is in use.
func ParseImage(data []byte) (*Image, error) {
	if len(data) < headerOctets {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrFormatInvalid, len(data), headerOctets)
	}

	pl := DecodeLengthField(data[totalLengthOctets:headerOctets])
	if pl < fwVersionOctets+versionGapOctets+patchVersionOctets || pl > uint64(len(data)-headerOctets) {
		return nil, fmt.Errorf("%w: patch length %d does not fit %d byte image",
			ErrFormatInvalid, pl, len(data))
	}

	return &Image{data: data, patchLen: int(pl)}, nil
}

// Len returns the size of the underlying buffer.
func (img *Image) Len() int {
	return len(img.data)
}

// TotalLength returns the decoded TotalLength header field.
func (img *Image) TotalLength() uint64 {
	return DecodeLengthField(img.data[:totalLengthOctets])
}

// PatchLength returns the decoded PatchLength header field.
func (img *Image) PatchLength() int {
	return img.patchLen
}

func (img *Image) fwVersionOffset() int {
	return headerOctets + img.patchLen - fwVersionOctets - versionGapOctets - patchVersionOctets
}

func (img *Image) patchVersionOffset() int {
	return headerOctets + img.patchLen - patchVersionOctets
}

// FirmwareVersion returns the firmware version the patch was built for.
func (img *Image) FirmwareVersion() [2]byte {
	var v [2]byte
	copy(v[:], img.data[img.fwVersionOffset():])
	return v
}

// PatchVersion returns the version of the patch itself.
func (img *Image) PatchVersion() [2]byte {
	var v [2]byte
	copy(v[:], img.data[img.patchVersionOffset():])
	return v
}

func (img *Image) field(off, n int, name string) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(img.data) {
		return nil, fmt.Errorf("%w: %s at %d+%d beyond %d byte image",
			ErrFormatInvalid, name, off, n, len(img.data))
	}
	return img.data[off : off+n], nil
}

// SignatureAlgorithm returns the signature algorithm identifier.
func (img *Image) SignatureAlgorithm() (byte, error) {
	b, err := img.field(headerOctets+img.patchLen, sigAlgorithmOctets, "signature algorithm")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (img *Image) publicKeyLengthOffset() int {
	return headerOctets + img.patchLen + sigAlgorithmOctets + reservedOctets
}

// PublicKeyLength returns the decoded PublicKeyLength field.
func (img *Image) PublicKeyLength() (int, error) {
	b, err := img.field(img.publicKeyLengthOffset(), publicKeyLengthOctets, "public key length")
	if err != nil {
		return 0, err
	}
	return int(DecodeLengthField(b)), nil
}

// SignatureOffset returns where the signature compared against the
// controller response starts. The trailing -1 accounts for the length octet
// the controller strips from its response; the resulting window starts on the
// last SignatureLength octet and must be kept as is.
func (img *Image) SignatureOffset() (int, error) {
	pkl, err := img.PublicKeyLength()
	if err != nil {
		return 0, err
	}
	return img.publicKeyLengthOffset() + publicKeyLengthOctets + pkl + signatureLengthOctets - 1, nil
}

// Signature returns the SignatureLength bytes at SignatureOffset.
func (img *Image) Signature() ([]byte, error) {
	off, err := img.SignatureOffset()
	if err != nil {
		return nil, err
	}
	return img.field(off, SignatureLength, "signature")
}
