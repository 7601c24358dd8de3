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


// Package transport holds helpers shared by the link backends.
package transport

import (
	"errors"
	"time"

	bcmnfc "github.com/ZaparooProject/go-bcmnfc"
)

// ErrRetriesExhausted is returned when every attempt asked to be retried.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryOperation is one attempt. It returns the result, whether another
// attempt should be made, and any error that must stop retrying.
type RetryOperation[T any] func() (T, bool, error)

// RetryConfig configures WithRetry
type RetryConfig struct {
	OnRetry       func() error
	OnRetryFailed func() error
	Description   string
	Port          string
	MaxRetries    int
	RetryDelay    time.Duration
}

// WithRetry runs operation up to MaxRetries+1 times.
func WithRetry[T any](config RetryConfig, operation RetryOperation[T]) (T, error) {
	var zero T

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		if attempt >= config.MaxRetries {
			break
		}

		if err := executeRetryCallback(config); err != nil {
			return zero, err
		}

		if config.RetryDelay > 0 {
			time.Sleep(config.RetryDelay)
		}
	}

	return handleRetriesExhausted[T](config)
}

func executeRetryCallback(config RetryConfig) error {
	if config.OnRetry != nil {
		return config.OnRetry()
	}
	return nil
}

func handleRetriesExhausted[T any](config RetryConfig) (T, error) {
	var zero T

	if config.OnRetryFailed != nil {
		if failErr := config.OnRetryFailed(); failErr != nil {
			return zero, failErr
		}
	}

	op := config.Description
	if op == "" {
		op = "retry"
	}
	return zero, bcmnfc.NewTransportError(op, config.Port, ErrRetriesExhausted, bcmnfc.ErrorTypeTransient)
}

// TimeoutRetry repeats operation until it stops asking for a retry or
// timeout elapses. pause is slept between attempts.
func TimeoutRetry[T any](timeout, pause time.Duration, operation RetryOperation[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		if !time.Now().Add(pause).Before(deadline) {
			break
		}
		time.Sleep(pause)
	}

	return zero, bcmnfc.NewTimeoutError("timeoutRetry", "")
}
