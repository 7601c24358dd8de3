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
	"bytes"
	"fmt"
)

// SignatureStatus is the verdict of VerifyAppliedSignature. The numeric
// values match the controller's patch-update status codes.
type SignatureStatus uint8

const (
	// PatchNotUpdated means the controller reported a different signature.
	PatchNotUpdated SignatureStatus = 3
	// PatchUpdated means the controller applied this image.
	PatchUpdated SignatureStatus = 4
)

func (s SignatureStatus) String() string {
	switch s {
	case PatchUpdated:
		return "patch updated"
	case PatchNotUpdated:
		return "patch not updated"
	default:
		return fmt.Sprintf("signature status %d", uint8(s))
	}
}

// Err returns ErrSignatureMismatch unless the patch was applied.
func (s SignatureStatus) Err() error {
	if s == PatchUpdated {
		return nil
	}
	return ErrSignatureMismatch
}

// ValidateCompatibility checks that a pre-patch belongs to a patch: both the
// firmware version and the patch version fields must match byte for byte.
func ValidateCompatibility(patchData, prePatchData []byte) error {
	p, err := ParseImage(patchData)
	if err != nil {
		return fmt.Errorf("patch: %w", err)
	}
	pre, err := ParseImage(prePatchData)
	if err != nil {
		return fmt.Errorf("pre-patch: %w", err)
	}

	if pfw, prefw := p.FirmwareVersion(), pre.FirmwareVersion(); pfw != prefw {
		return fmt.Errorf("%w: firmware version %X in patch, %X in pre-patch", ErrVersionMismatch, pfw, prefw)
	}
	if ppv, prepv := p.PatchVersion(), pre.PatchVersion(); ppv != prepv {
		return fmt.Errorf("%w: patch version %X in patch, %X in pre-patch", ErrVersionMismatch, ppv, prepv)
	}
	return nil
}

// FirmwareVersionMatches reports whether the firmware version in a
// controller response equals the one the patch was built for.
func FirmwareVersionMatches(resp, patchData []byte) (bool, error) {
	if len(resp) < ResponseFirmwareVersionOffset+fwVersionOctets {
		return false, fmt.Errorf("%w: response of %d bytes has no firmware version", ErrFormatInvalid, len(resp))
	}
	img, err := ParseImage(patchData)
	if err != nil {
		return false, err
	}

	fw := img.FirmwareVersion()
	return bytes.Equal(resp[ResponseFirmwareVersionOffset:ResponseFirmwareVersionOffset+fwVersionOctets], fw[:]), nil
}

// VerifyAppliedSignature compares the last SignatureLength bytes of a
// controller response with the signature embedded in the patch.
func VerifyAppliedSignature(resp, patchData []byte) (SignatureStatus, error) {
	if len(resp) < SignatureLength {
		return PatchNotUpdated, fmt.Errorf("%w: response of %d bytes shorter than signature",
			ErrFormatInvalid, len(resp))
	}
	img, err := ParseImage(patchData)
	if err != nil {
		return PatchNotUpdated, err
	}
	sig, err := img.Signature()
	if err != nil {
		return PatchNotUpdated, err
	}

	if !bytes.Equal(resp[len(resp)-SignatureLength:], sig) {
		return PatchNotUpdated, nil
	}
	return PatchUpdated, nil
}
