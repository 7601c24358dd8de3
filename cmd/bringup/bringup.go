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


package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	bcmnfc "github.com/ZaparooProject/go-bcmnfc"
	"github.com/ZaparooProject/go-bcmnfc/config"
	"github.com/ZaparooProject/go-bcmnfc/patch"
)

type result struct {
	outcome patch.Outcome
	hwID    uint32
	credits int
	status  patch.Status
}

// logStack stands in for the NCI layer: it logs what the controller
// delivers and signals the end of vendor init.
type logStack struct {
	logger   zerolog.Logger
	initDone chan struct{}
	once     sync.Once
}

func (s *logStack) ReceiveNCI(msg []byte) {
	s.logger.Info().Hex("nci", msg).Msg("NCI message")
}

func (s *logStack) ReceiveVendor(evt []byte) {
	s.logger.Info().Hex("event", evt).Msg("vendor event")
}

func (s *logStack) VendorInitDone() {
	s.logger.Debug().Msg("vendor init done")
	s.once.Do(func() { close(s.initDone) })
}

func (s *logStack) SetCommandTimeout(d time.Duration) {
	s.logger.Debug().Dur("timeout", d).Msg("command timeout")
}

// cliHost records the pre-init signals.
type cliHost struct {
	logger  zerolog.Logger
	status  patch.Status
	credits int
	mu      sync.Mutex
}

func (h *cliHost) PreInitDone(status patch.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Info().Stringer("status", status).Msg("pre-init done")
	h.status = status
}

func (h *cliHost) ReInit() {
	h.logger.Warn().Msg("controller asked to re-initialise")
}

func (h *cliHost) SetMaxRFCredits(credits int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.credits = credits
}

func (h *cliHost) snapshot() (status patch.Status, credits int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.credits
}

// verifier is a download service that checks the image instead of
// transferring it: a patch whose pre-patch does not match, or that does
// not parse, is refused the way the controller would refuse it.
type verifier struct {
	logger   zerolog.Logger
	prePatch []byte
	mu       sync.Mutex
}

func (v *verifier) SetI2CPatch(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prePatch = data
	return nil
}

func (v *verifier) StartDownload(format patch.Format, data []byte, events chan<- patch.DownloadEvent) error {
	v.mu.Lock()
	pre := v.prePatch
	v.mu.Unlock()

	go func() {
		events <- patch.EventContinue
		events <- v.check(format, data, pre)
	}()
	return nil
}

func (v *verifier) check(format patch.Format, data, pre []byte) patch.DownloadEvent {
	img, err := patch.ParseImage(data)
	if err != nil {
		v.logger.Error().Err(err).Stringer("format", format).Msg("patch does not parse")
		return patch.EventAbortInvalidPatch
	}
	fw := img.FirmwareVersion()
	v.logger.Info().Hex("fw_version", fw[:]).Int("size", img.Len()).Msg("patch verified")

	if pre == nil {
		return patch.EventComplete
	}
	if err := patch.ValidateCompatibility(data, pre); err != nil {
		v.logger.Error().Err(err).Msg("pre-patch rejected")
		if errors.Is(err, patch.ErrVersionMismatch) {
			return patch.EventAbortInvalidPatch
		}
		return patch.EventAbort
	}
	return patch.EventComplete
}

type bringup struct {
	ctx     context.Context
	cfg     config.Source
	logger  zerolog.Logger
	stack   *logStack
	host    *cliHost
	loader  *patch.Loader
	session *bcmnfc.Session
	results chan result
	nvm     patch.NVMType
}

func newBringup(ctx context.Context, cfg config.Source, nvm patch.NVMType, logger zerolog.Logger) *bringup {
	return &bringup{
		ctx:     ctx,
		cfg:     cfg,
		nvm:     nvm,
		logger:  logger,
		stack:   &logStack{logger: logger, initDone: make(chan struct{})},
		host:    &cliHost{logger: logger},
		results: make(chan result, 1),
	}
}

// attach creates the loader once the session exists so snooze settings
// can be applied through it.
func (b *bringup) attach(s *bcmnfc.Session) {
	b.session = s
	b.loader = patch.NewLoader(b.cfg, &verifier{logger: b.logger}, b.host,
		patch.WithLogger(b.logger), patch.WithSnooze(s, nil))
}

// devInit runs on the session loop, so the blocking loader work is moved
// to its own goroutine.
func (b *bringup) devInit(hwID uint32) {
	go func() {
		out := b.loader.PostResetInit(b.ctx, hwID, b.nvm)
		if err := b.session.DevInitDone(); err != nil {
			b.logger.Error().Err(err).Msg("device init done")
		}

		status, credits := b.host.snapshot()
		if out.ReInit {
			status = out.Status
		}
		b.results <- result{outcome: out, hwID: hwID, status: status, credits: credits}
	}()
}

func (b *bringup) wait(ctx context.Context, runErr <-chan error) (result, error) {
	var res result
	select {
	case res = <-b.results:
	case err := <-runErr:
		if err == nil {
			err = errors.New("link closed during bring-up")
		}
		return result{}, err
	case <-ctx.Done():
		return result{}, fmt.Errorf("bring-up: %w", ctx.Err())
	}

	select {
	case <-b.stack.initDone:
		return res, nil
	case <-ctx.Done():
		return res, fmt.Errorf("waiting for vendor init: %w", ctx.Err())
	}
}

func (b *bringup) switchBaud(ctx context.Context, baud int) error {
	done := make(chan byte, 1)
	if err := b.session.SetBaudRate(baud, func(status byte) { done <- status }); err != nil {
		return err
	}

	select {
	case status := <-done:
		if status != 0 {
			return fmt.Errorf("controller refused %d baud: status 0x%02X", baud, status)
		}
		_, _ = fmt.Printf("Baud rate:     %d\n", baud)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("baud rate change: %w", ctx.Err())
	}
}
