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


// Command bringup opens a link to a Broadcom NFC controller, runs the
// reset and identification sequence and the patch pre-init phase, and
// reports what happened.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	bcmnfc "github.com/ZaparooProject/go-bcmnfc"
	"github.com/ZaparooProject/go-bcmnfc/config"
	"github.com/ZaparooProject/go-bcmnfc/detection"
	i2cdetect "github.com/ZaparooProject/go-bcmnfc/detection/i2c"
	"github.com/ZaparooProject/go-bcmnfc/patch"
	"github.com/ZaparooProject/go-bcmnfc/transport/i2c"
	"github.com/ZaparooProject/go-bcmnfc/transport/uart"
	"github.com/ZaparooProject/go-bcmnfc/transport/wakepin"
)

type options struct {
	devicePath *string
	configPath *string
	wakePin    *string
	nvm        *string
	timeout    *time.Duration
	i2cAddr    *uint
	baud       *int
	list       *bool
	debug      *bool
}

func parseFlags() *options {
	opts := &options{
		devicePath: flag.String("device", "",
			"Serial device (e.g. /dev/ttyAMA0) or I2C bus name (e.g. I2C1)"),
		configPath: flag.String("config", "", "YAML configuration file with FW_PATCH and related keys"),
		wakePin:    flag.String("wake", "", "GPIO driving NFC_WAKE (e.g. GPIO17); snooze needs it"),
		nvm:        flag.String("nvm", "eeprom", "NVM fitted to the controller: eeprom, uicc or none"),
		timeout:    flag.Duration("timeout", 30*time.Second, "Time allowed for bring-up"),
		i2cAddr:    flag.Uint("addr", i2c.DefaultAddress, "I2C address of the controller"),
		baud:       flag.Int("baud", 0, "Switch to this baud rate after bring-up (0 keeps the current rate)"),
		list:       flag.Bool("list", false, "List candidate devices and exit"),
		debug:      flag.Bool("debug", false, "Enable debug output"),
	}
	flag.Parse()
	return opts
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func parseNVM(s string) (patch.NVMType, error) {
	switch strings.ToLower(s) {
	case "eeprom":
		return patch.NVMEEPROM, nil
	case "uicc":
		return patch.NVMUICC, nil
	case "none":
		return patch.NVMNone, nil
	default:
		return 0, fmt.Errorf("unknown NVM type %q", s)
	}
}

// newLink creates a link from a device path.
func newLink(path string, addr uint16) (bcmnfc.Link, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	if strings.Contains(strings.ToLower(path), "i2c") {
		link, err := i2c.New(path, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return link, nil
	}

	link, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport: %w", err)
	}
	return link, nil
}

func loadConfig(path string) (*config.Store, error) {
	if path == "" {
		return config.New(nil), nil
	}
	store, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return store, nil
}

func listDevices(ctx context.Context, logger zerolog.Logger) {
	opts := detection.DefaultOptions()

	serial, err := detection.ListSerial(opts)
	if err != nil {
		logger.Debug().Err(err).Msg("serial listing")
	}
	buses, err := i2cdetect.Detect(ctx, opts)
	if err != nil {
		logger.Debug().Err(err).Msg("I2C listing")
	}

	for _, dev := range append(serial, buses...) {
		_, _ = fmt.Printf("%-5s %-20s %s\n", dev.Transport, dev.Path, dev.Name)
	}
}

func run(ctx context.Context, opts *options, logger zerolog.Logger) error {
	nvm, err := parseNVM(*opts.nvm)
	if err != nil {
		return err
	}
	if *opts.i2cAddr > 0x7F {
		return fmt.Errorf("I2C address 0x%X out of range", *opts.i2cAddr)
	}
	cfg, err := loadConfig(*opts.configPath)
	if err != nil {
		return err
	}

	link, err := newLink(*opts.devicePath, uint16(*opts.i2cAddr))
	if err != nil {
		return err
	}
	_, _ = fmt.Printf("Opened %s link on %s\n", link.Type(), *opts.devicePath)

	ctrlOpts := []bcmnfc.Option{bcmnfc.WithLogger(logger)}
	if *opts.wakePin != "" {
		pin, err := wakepin.Open(*opts.wakePin)
		if err != nil {
			_ = link.Close()
			return err
		}
		defer func() { _ = pin.Close() }()
		ctrlOpts = append(ctrlOpts, bcmnfc.WithWakeLine(pin))
	}

	b := newBringup(ctx, cfg, nvm, logger)
	session, err := bcmnfc.NewSession(link, b.stack, append(ctrlOpts, bcmnfc.WithDevInitCallback(b.devInit))...)
	if err != nil {
		_ = link.Close()
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.attach(session)

	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()
	defer func() { _ = session.Close() }()

	if err := session.Start(); err != nil {
		return err
	}

	res, err := b.wait(ctx, runErr)
	if err != nil {
		return err
	}
	report(res, session.GetMetrics())

	if *opts.baud > 0 {
		return b.switchBaud(ctx, *opts.baud)
	}
	if res.status != patch.StatusOK {
		return fmt.Errorf("pre-init finished with %s", res.status)
	}
	return nil
}

func report(res result, m bcmnfc.SessionMetrics) {
	_, _ = fmt.Printf("Hardware ID:   %08X\n", res.hwID)
	_, _ = fmt.Printf("Loader state:  %s\n", res.outcome.State)
	_, _ = fmt.Printf("Pre-init:      %s\n", res.status)
	if res.outcome.Err != nil {
		_, _ = fmt.Printf("Loader error:  %v\n", res.outcome.Err)
	}
	if res.credits > 0 {
		_, _ = fmt.Printf("RF credits:    %d\n", res.credits)
	}
	if su := res.outcome.StartUp; su.Config != nil {
		_, _ = fmt.Printf("Start-up cfg:  % X\n", su.Config)
		if su.VSC != nil {
			_, _ = fmt.Printf("Start-up VSC:  % X\n", su.VSC)
		}
		if su.LPTD != nil {
			_, _ = fmt.Printf("LPTD cfg:      % X\n", su.LPTD)
		}
	}
	_, _ = fmt.Printf("Link:          %d bytes in %d chunks, %d read errors, %d write errors\n",
		m.BytesRead, m.Chunks, m.ReadErrors, m.WriteErrors)
}

func main() {
	opts := parseFlags()
	logger := newLogger(*opts.debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *opts.list {
		listDevices(ctx, logger)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, *opts.timeout)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error().Err(err).Msg("bring-up failed")
		cancel()
		stop()
		os.Exit(1)
	}
}
