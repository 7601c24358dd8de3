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


// Command patchinfo prints the fields of a firmware patch file and checks
// it against a pre-patch and a controller response.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-bcmnfc/patch"
)

type config struct {
	patchPath    *string
	prePatchPath *string
	response     *string
	debug        *bool
}

func parseFlags() *config {
	cfg := &config{
		patchPath:    flag.String("patch", "", "Patch file to inspect (required)"),
		prePatchPath: flag.String("prepatch", "", "Pre-patch file to check against the patch"),
		response: flag.String("response", "",
			"Hex dump of the controller's patch-applied response to verify"),
		debug: flag.Bool("debug", false, "Enable debug output"),
	}
	flag.Parse()
	return cfg
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func describe(name string, data []byte) error {
	img, err := patch.ParseImage(data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	fw := img.FirmwareVersion()
	pv := img.PatchVersion()
	_, _ = fmt.Printf("%s\n", name)
	_, _ = fmt.Printf("  file size:        %d\n", img.Len())
	_, _ = fmt.Printf("  total length:     %d\n", img.TotalLength())
	_, _ = fmt.Printf("  patch length:     %d\n", img.PatchLength())
	_, _ = fmt.Printf("  firmware version: %02X%02X\n", fw[0], fw[1])
	_, _ = fmt.Printf("  patch version:    %02X%02X\n", pv[0], pv[1])

	if alg, err := img.SignatureAlgorithm(); err == nil {
		_, _ = fmt.Printf("  sig algorithm:    %d\n", alg)
	}
	if pkl, err := img.PublicKeyLength(); err == nil {
		_, _ = fmt.Printf("  public key len:   %d\n", pkl)
	}
	sig, err := img.Signature()
	if err != nil {
		_, _ = fmt.Printf("  signature:        unavailable (%v)\n", err)
		return nil
	}
	_, _ = fmt.Printf("  signature:        %s...\n", hex.EncodeToString(sig[:8]))
	return nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid response hex: %w", err)
	}
	return b, nil
}

func checkResponse(logger zerolog.Logger, respHex string, patchData []byte) error {
	resp, err := parseHex(respHex)
	if err != nil {
		return err
	}

	fwOK, err := patch.FirmwareVersionMatches(resp, patchData)
	if err != nil {
		return fmt.Errorf("firmware version check: %w", err)
	}
	_, _ = fmt.Printf("response firmware version matches: %t\n", fwOK)

	status, err := patch.VerifyAppliedSignature(resp, patchData)
	if err != nil {
		return fmt.Errorf("signature check: %w", err)
	}
	_, _ = fmt.Printf("response signature: %s\n", status)
	logger.Debug().Hex("response", resp).Stringer("status", status).Msg("response verified")
	return status.Err()
}

func run(cfg *config, logger zerolog.Logger) error {
	if *cfg.patchPath == "" {
		return errors.New("-patch is required")
	}

	patchData, err := os.ReadFile(*cfg.patchPath)
	if err != nil {
		return fmt.Errorf("%w: %w", patch.ErrIO, err)
	}
	logger.Debug().Str("path", *cfg.patchPath).Int("size", len(patchData)).Msg("patch read")
	if err := describe(*cfg.patchPath, patchData); err != nil {
		return err
	}

	if *cfg.prePatchPath != "" {
		preData, err := os.ReadFile(*cfg.prePatchPath)
		if err != nil {
			return fmt.Errorf("%w: %w", patch.ErrIO, err)
		}
		if err := describe(*cfg.prePatchPath, preData); err != nil {
			return err
		}
		if err := patch.ValidateCompatibility(patchData, preData); err != nil {
			return err
		}
		_, _ = fmt.Println("pre-patch matches patch")
	}

	if *cfg.response != "" {
		return checkResponse(logger, *cfg.response, patchData)
	}
	return nil
}

func main() {
	cfg := parseFlags()
	logger := newLogger(*cfg.debug)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("patch check failed")
		os.Exit(1)
	}
}
