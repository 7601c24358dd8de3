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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-bcmnfc/config"
)

// PatchVersionNVMOffset locates the NVM type in a get-patch-version response.
const PatchVersionNVMOffset = 37

// fimeOverlay is the optional settings section applied after the chip one.
const fimeOverlay = "fime"

// Outcome summarises one pass through the loader.
type Outcome struct {
	Err        error
	StartUp    StartUpConfig
	State      State
	Status     Status
	Downloaded bool
	ReInit     bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithFileSystem replaces the filesystem patch files are read from.
func WithFileSystem(fs FileSystem) Option {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithSnooze sets up snooze mode after a successful download. Without it
// the snooze settings are taken from the configuration, if present.
func WithSnooze(setter SnoozeSetter, cfg *SnoozeConfig) Option {
	return func(l *Loader) {
		l.snooze = setter
		l.snoozeCfg = cfg
	}
}

// Loader finds the configured patch files, hands them to the download
// service and turns the download result into exactly one Host signal.
type Loader struct {
	fs        FileSystem
	cfg       config.Source
	dl        Downloader
	host      Host
	snooze    SnoozeSetter
	snoozeCfg *SnoozeConfig
	logger    zerolog.Logger
	startUp   StartUpConfig
	prm       []byte
	i2cFix    []byte
	mu        sync.Mutex
	state     State
}

// NewLoader creates a Loader. cfg may be nil, in which case no patch is
// configured and every run completes immediately.
func NewLoader(cfg config.Source, dl Downloader, host Host, opts ...Option) *Loader {
	l := &Loader{
		fs:      OSFileSystem{},
		cfg:     cfg,
		dl:      dl,
		host:    host,
		logger:  zerolog.Nop(),
		startUp: DefaultStartUpConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StartUpConfig returns the start-up parameters read by the last
// StartPatchDownload, or the defaults before that.
func (l *Loader) StartUpConfig() StartUpConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startUp
}

// State returns the current loader state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loader) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Debug().Stringer("from", l.state).Stringer("to", s).Msg("loader state")
	l.state = s
}

// Buffered reports whether the loader still holds image buffers.
func (l *Loader) Buffered() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prm != nil || l.i2cFix != nil
}

func (l *Loader) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prm = nil
	l.i2cFix = nil
}

// PostResetInit runs after the controller has been reset and identified.
// A controller without NVM is asked to re-initialise; otherwise the RF
// credit limit is applied and the patch download runs.
func (l *Loader) PostResetInit(ctx context.Context, hwID uint32, nvm NVMType) Outcome {
	l.logger.Debug().Uint32("hw_id", hwID).Uint8("nvm_type", uint8(nvm)).Msg("post reset init")

	if nvm == NVMNone {
		l.logger.Info().Msg("no NVM detected, requesting re-init")
		l.setState(StateAbortedNoNVM)
		l.host.ReInit()
		return Outcome{State: StateAbortedNoNVM, Status: StatusFailed, ReInit: true, Err: ErrNVMAbsent}
	}

	l.applyMaxCredits()
	return l.StartPatchDownload(ctx, hwID)
}

func (l *Loader) applyMaxCredits() {
	if l.cfg == nil {
		return
	}
	credits, ok := l.cfg.Number(config.KeyMaxRFCredits)
	if !ok || credits <= 0 {
		return
	}
	l.logger.Debug().Int64("max_credits", credits).Msg("setting max RF data credits")
	l.host.SetMaxRFCredits(int(credits))
}

func (l *Loader) applyOverlays(hwID uint32) {
	ov, ok := l.cfg.(config.Overlayer)
	if !ok {
		return
	}
	chipID := fmt.Sprintf("%x", hwID)
	if ov.ApplyOverlay(chipID) {
		l.logger.Debug().Str("chip_id", chipID).Msg("applied chip specific settings")
	}
	if ov.ApplyOverlay(fimeOverlay) {
		l.logger.Debug().Msg("applied FIME settings")
	}
}

func (l *Loader) configuredPath(key string) (string, bool) {
	if l.cfg == nil {
		return "", false
	}
	path, err := config.Require(l.cfg, key)
	if err != nil {
		l.logger.Debug().Err(err).Msg("patch file not configured")
		return "", false
	}
	l.logger.Debug().Str("key", key).Str("path", path).Msg("found patch file")
	return path, true
}

// StartPatchDownload loads the configured pre-patch and patch and drives
// the download to a terminal state. It blocks until the download service
// reports a result or ctx is done, so it must not run on the goroutine that
// feeds controller responses to the download service.
func (l *Loader) StartPatchDownload(ctx context.Context, hwID uint32) Outcome {
	l.logger.Debug().Str("chip_id", fmt.Sprintf("%x", hwID)).Msg("start patch download")

	if l.cfg != nil {
		l.applyOverlays(hwID)
	}
	startUp := l.loadStartUpConfig()
	l.mu.Lock()
	l.startUp = startUp
	l.mu.Unlock()

	l.loadPrePatch()

	patchPath, ok := l.configuredPath(config.KeyPatch)
	if !ok {
		l.logger.Info().Msg("no patch file specified or disabled, proceeding to post-download")
		return l.finish(Outcome{State: StateCompleted}, StatusOK)
	}

	data, err := l.fs.ReadFile(patchPath)
	if err != nil {
		l.logger.Error().Err(err).Str("path", patchPath).Msg("unable to open patch file")
		l.release()
		return l.finish(Outcome{State: StateCompleted, Err: err}, StatusOK)
	}

	format := FormatNCD
	if n, ok := l.cfg.Number(config.KeyPatchFormat); ok {
		format = Format(n)
	}

	l.mu.Lock()
	l.prm = data
	l.mu.Unlock()

	events := make(chan DownloadEvent, 8)
	l.setState(StatePatchStarted)
	l.logger.Info().Str("path", patchPath).Int("size", len(data)).Stringer("format", format).
		Msg("downloading patch file")

	if err := l.dl.StartDownload(format, data, events); err != nil {
		l.logger.Error().Err(err).Msg("download did not start")
		l.release()
		return l.finish(Outcome{State: StateCompleted, Err: err}, StatusOK)
	}

	return l.await(ctx, events)
}

func (l *Loader) loadPrePatch() {
	path, ok := l.configuredPath(config.KeyPrePatch)
	if !ok {
		return
	}

	data, err := l.fs.ReadFile(path)
	if err != nil {
		l.logger.Error().Err(err).Str("path", path).Msg("unable to open i2c fix patch file")
		return
	}

	l.mu.Lock()
	l.i2cFix = data
	l.mu.Unlock()

	l.logger.Debug().Str("path", path).Int("size", len(data)).Msg("setting i2c fix")
	if err := l.dl.SetI2CPatch(data); err != nil {
		l.logger.Error().Err(err).Msg("download service refused i2c fix")
	}
}

func (l *Loader) await(ctx context.Context, events <-chan DownloadEvent) Outcome {
	for {
		select {
		case <-ctx.Done():
			l.release()
			err := fmt.Errorf("%w: %w", ErrDownloadAborted, ctx.Err())
			l.logger.Error().Err(err).Msg("patch download interrupted")
			return l.finish(Outcome{State: StateAborted, Downloaded: true, Err: err}, StatusFailed)

		case evt := <-events:
			l.logger.Debug().Stringer("event", evt).Msg("download event")
			if out, done := l.handleEvent(evt); done {
				return out
			}
		}
	}
}

// handleEvent applies one download event. It reports false while the
// download is still running.
func (l *Loader) handleEvent(evt DownloadEvent) (Outcome, bool) {
	out := Outcome{Downloaded: true}

	switch evt {
	case EventContinue:
		// Only sent in streaming mode; the whole image is handed over at once.
		return out, false

	case EventComplete:
		l.release()
		out.State = StateCompleted
		return l.finish(out, StatusOK), true

	case EventAbort:
		l.release()
		out.State = StateAborted
		out.Err = ErrDownloadAborted
		return l.finish(out, StatusFailed), true

	case EventAbortInvalidPatch:
		l.logger.Info().Msg("invalid patch, skipping patch download")
		l.release()
		out.State = StateAbortedInvalidPatch
		out.Err = fmt.Errorf("%w: %w", ErrDownloadAborted, ErrVersionMismatch)
		return l.finish(out, StatusRefused), true

	case EventAbortBadSignature:
		l.logger.Info().Msg("patch authentication failed")
		l.release()
		out.State = StateAbortedBadSignature
		out.Err = fmt.Errorf("%w: %w", ErrDownloadAborted, ErrSignatureMismatch)
		return l.finish(out, StatusRefused), true

	case EventAbortNoNVM:
		l.logger.Info().Msg("no NVM detected, requesting re-init")
		l.release()
		l.setState(StateAbortedNoNVM)
		l.host.ReInit()
		out.State = StateAbortedNoNVM
		out.Status = StatusFailed
		out.ReInit = true
		out.Err = ErrNVMAbsent
		out.StartUp = l.StartUpConfig()
		return out, true

	default:
		l.logger.Debug().Uint8("event", uint8(evt)).Msg("unhandled download event")
		return out, false
	}
}

// finish records the terminal state and runs the post-download step, which
// always ends in exactly one PreInitDone.
func (l *Loader) finish(out Outcome, status Status) Outcome {
	l.setState(out.State)
	out.StartUp = l.StartUpConfig()
	out.Status = l.postDownload(status)
	if out.Status != StatusOK && out.Err == nil {
		out.Err = ErrDownloadAborted
	}
	return out
}

func (l *Loader) postDownload(status Status) Status {
	if status != StatusOK {
		l.logger.Error().Stringer("status", status).Msg("patch download failed")
		l.host.PreInitDone(status)
		return status
	}

	cfg, ok := l.snoozeConfig()
	if !ok || l.snooze == nil {
		l.logger.Debug().Msg("not using snooze mode")
		l.host.PreInitDone(StatusOK)
		return StatusOK
	}

	if err := l.snooze.SetSnoozeMode(cfg); err != nil {
		l.logger.Error().Err(err).Msg("setting snooze mode failed")
		l.host.PreInitDone(StatusFailed)
		return StatusFailed
	}
	l.host.PreInitDone(StatusOK)
	return StatusOK
}

func (l *Loader) snoozeConfig() (SnoozeConfig, bool) {
	if l.snoozeCfg != nil {
		return *l.snoozeCfg, l.snoozeCfg.Enabled()
	}
	if l.cfg == nil {
		return SnoozeConfig{}, false
	}

	mode, ok := l.cfg.Number(config.KeySnoozeMode)
	if !ok || mode == 0 {
		return SnoozeConfig{}, false
	}
	cfg := SnoozeConfig{Mode: uint8(mode)}
	if n, ok := l.cfg.Number(config.KeyIdleThresholdDH); ok {
		cfg.IdleThresholdDH = uint8(n)
	}
	if n, ok := l.cfg.Number(config.KeyIdleThresholdHC); ok {
		cfg.IdleThresholdNFCC = uint8(n)
	}
	if n, ok := l.cfg.Number(config.KeyNFCWakeActive); ok {
		cfg.NFCWakeActiveHigh = n != 0
	}
	return cfg, true
}

// HandlePatchVersion processes the get-patch-version response that follows
// a re-init request and decides whether the controller found its NVM.
func (l *Loader) HandlePatchVersion(resp []byte) Status {
	if len(resp) <= PatchVersionNVMOffset {
		l.logger.Error().Int("len", len(resp)).Msg("response too short to detect NVM type")
		l.host.PreInitDone(StatusFailed)
		return StatusFailed
	}

	nvm := NVMType(resp[PatchVersionNVMOffset])
	if nvm == NVMNone {
		l.logger.Info().Msg("no NVM, trying again")
		l.host.ReInit()
		return StatusFailed
	}

	l.logger.Debug().Uint8("nvm_type", uint8(nvm)).Msg("found NVM")
	l.applyMaxCredits()
	l.host.PreInitDone(StatusOK)
	return StatusOK
}

// IsRefused reports whether err came from the controller rejecting an image.
func IsRefused(err error) bool {
	return errors.Is(err, ErrVersionMismatch) || errors.Is(err, ErrSignatureMismatch)
}
