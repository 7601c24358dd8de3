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

// Package config provides the key/value settings read during bring-up:
// patch file locations, download format, RF credits and snooze parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Well-known keys.
const (
	KeyPatch           = "FW_PATCH"
	KeyPrePatch        = "FW_PRE_PATCH"
	KeyPatchFormat     = "NFA_CONFIG_FORMAT"
	KeyMaxRFCredits    = "MAX_RF_DATA_CREDITS"
	KeySnoozeMode      = "SNOOZE_MODE"
	KeyNFCWakeActive   = "NFC_WAKE_ACTIVE_MODE"
	KeyIdleThresholdDH = "SNOOZE_IDLE_THRESHOLD_DH"
	KeyIdleThresholdHC = "SNOOZE_IDLE_THRESHOLD_NFCC"
	KeyStartUpConfig   = "NFA_DM_START_UP_CFG"
	KeyStartUpVSC      = "NFA_DM_START_UP_VSC_CFG"
	KeyLPTDConfig      = "LPTD_CFG"
)

// ErrMissing is returned by Require when a key is not configured. A missing
// key only disables the feature that needs it.
var ErrMissing = errors.New("config: key not set")

// ErrInvalidValue is returned when a value cannot be read as the type asked for.
var ErrInvalidValue = errors.New("config: invalid value")

// Source looks up configuration values.
type Source interface {
	String(key string) (string, bool)
	Number(key string) (int64, bool)
}

// ByteSource is implemented by sources that can hold byte arrays natively.
type ByteSource interface {
	Bytes(key string) ([]byte, bool)
}

// Overlayer is implemented by sources that carry optional named sections,
// such as per-chip overrides, that can be merged over the base values.
type Overlayer interface {
	ApplyOverlay(name string) bool
}

// Store is a Source backed by an in-memory map, usually loaded from YAML:
//
//	FW_PATCH: /vendor/firmware/firmware.ncd
//	MAX_RF_DATA_CREDITS: 1
//	overrides:
//	  "43341b00":
//	    FW_PATCH: /vendor/firmware/43341b00.ncd
type Store struct {
	values    map[string]any
	overrides map[string]map[string]any
	mu        sync.RWMutex
}

type fileLayout struct {
	Overrides map[string]map[string]any `yaml:"overrides"`
	Values    map[string]any            `yaml:",inline"`
}

// New returns a Store holding a copy of values.
func New(values map[string]any) *Store {
	s := &Store{
		values:    make(map[string]any, len(values)),
		overrides: make(map[string]map[string]any),
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Parse reads a YAML document.
func Parse(data []byte) (*Store, error) {
	var layout fileLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}

	s := New(layout.Values)
	for name, values := range layout.Overrides {
		s.overrides[strings.ToLower(name)] = values
	}
	return s, nil
}

// Load reads a YAML file from path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Set stores a value, replacing any previous one.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// String returns the value for key rendered as a string. Empty strings count
// as unset.
func (s *Store) String(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok || v == nil {
		return "", false
	}
	str := fmt.Sprint(v)
	if str == "" {
		return "", false
	}
	return str, true
}

// Number returns the value for key as an integer. Strings are parsed with
// base prefix detection so "0x10" works.
func (s *Store) Number(key string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch v := s.values[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Bytes returns the value for key as a byte array. Both YAML integer
// sequences and strings such as "{03:80:01:01}" are accepted.
func (s *Store) Bytes(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch v := s.values[key].(type) {
	case []any:
		out := make([]byte, 0, len(v))
		for _, item := range v {
			n, ok := item.(int)
			if !ok || n < 0 || n > 0xFF {
				return nil, false
			}
			out = append(out, byte(n))
		}
		return out, len(out) > 0
	case []byte:
		return append([]byte(nil), v...), len(v) > 0
	case string:
		b, err := ParseByteArray(v)
		if err != nil {
			return nil, false
		}
		return b, true
	default:
		return nil, false
	}
}

// ApplyOverlay merges the named override section over the current values.
// It reports whether the section exists.
func (s *Store) ApplyOverlay(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, ok := s.overrides[strings.ToLower(name)]
	if !ok {
		return false
	}
	for k, v := range values {
		s.values[k] = v
	}
	return true
}

// AddOverlay registers a named override section.
func (s *Store) AddOverlay(name string, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[strings.ToLower(name)] = values
}

// Require returns the string value for key or ErrMissing.
func Require(src Source, key string) (string, error) {
	if src == nil {
		return "", fmt.Errorf("%w: %s", ErrMissing, key)
	}
	v, ok := src.String(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissing, key)
	}
	return v, nil
}

// Bytes returns the byte array for key. A key that is set but cannot be
// read as bytes yields ErrInvalidValue.
func Bytes(src Source, key string) ([]byte, error) {
	if bs, ok := src.(ByteSource); ok {
		if b, ok := bs.Bytes(key); ok {
			return b, nil
		}
	}
	str, err := Require(src, key)
	if err != nil {
		return nil, err
	}
	b, err := ParseByteArray(str)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// ParseByteArray reads hex octets separated by colons, commas or spaces,
// optionally wrapped in braces.
func ParseByteArray(str string) ([]byte, error) {
	str = strings.TrimSpace(str)
	str = strings.TrimSuffix(strings.TrimPrefix(str, "{"), "}")
	fields := strings.FieldsFunc(str, func(r rune) bool {
		return r == ':' || r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty byte array", ErrInvalidValue)
	}

	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		n, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: octet %q", ErrInvalidValue, f)
		}
		out = append(out, byte(n))
	}
	return out, nil
}

var (
	_ Overlayer  = (*Store)(nil)
	_ ByteSource = (*Store)(nil)
)
