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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-bcmnfc/config"
)

// Start-up configuration blocks are TLV lists whose first octet is the
// length of the rest.
const (
	MaxStartUpConfigLen = 100
	MaxLPTDConfigLen    = 40

	paramIDRFFieldInfo = 0x80
)

// StartUpConfig holds the NCI parameters the upper stack sends once
// pre-init is done. A nil block means the stack's own default.
type StartUpConfig struct {
	// Config is sent with CORE_SET_CONFIG.
	Config []byte
	// VSC lists vendor commands, each as opcode, length and payload.
	VSC []byte
	// LPTD holds the low power tag detection parameters.
	LPTD []byte
}

// DefaultStartUpConfig enables RF field info notifications and leaves
// the vendor commands and LPTD unset.
func DefaultStartUpConfig() StartUpConfig {
	return StartUpConfig{
		Config: []byte{0x03, paramIDRFFieldInfo, 0x01, 0x01},
	}
}

// checkTLVBlock validates a length-prefixed block and trims anything past
// the advertised length.
func checkTLVBlock(b []byte, maxLen int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrFormatInvalid)
	}
	if len(b) > maxLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFormatInvalid, len(b), maxLen)
	}
	n := int(b[0])
	if n > len(b)-1 {
		return nil, fmt.Errorf("%w: length octet %d, %d bytes follow", ErrFormatInvalid, n, len(b)-1)
	}
	return b[:1+n], nil
}

// loadStartUpConfig reads the start-up blocks from cfg over the defaults.
// A missing or malformed value keeps the default.
func (l *Loader) loadStartUpConfig() StartUpConfig {
	out := DefaultStartUpConfig()
	if l.cfg == nil {
		return out
	}

	read := func(key string, maxLen int, dst *[]byte) {
		raw, err := config.Bytes(l.cfg, key)
		if errors.Is(err, config.ErrMissing) {
			return
		}
		if err == nil {
			raw, err = checkTLVBlock(raw, maxLen)
		}
		if err != nil {
			l.logger.Error().Err(err).Str("key", key).Msg("ignoring start-up setting")
			return
		}
		l.logger.Debug().Str("key", key).Hex("value", raw).Msg("start-up setting")
		*dst = raw
	}

	read(config.KeyStartUpConfig, MaxStartUpConfigLen, &out.Config)
	read(config.KeyStartUpVSC, MaxStartUpConfigLen, &out.VSC)
	read(config.KeyLPTDConfig, MaxLPTDConfigLen, &out.LPTD)
	return out
}
