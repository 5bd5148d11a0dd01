// Copyright 2026 The corevault Authors
// This file is part of the corevault library.
//
// The corevault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corevault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corevault library. If not, see <http://www.gnu.org/licenses/>.

// Package errs defines the error taxonomy from the error handling design:
// config, network, serialization, consensus, validation and fatal errors,
// each a sentinel that call sites wrap with github.com/pkg/errors for
// stack context while remaining comparable with errors.Is/Cause.
package errs

import "github.com/pkg/errors"

// Sentinel categories. Each is the root cause wrapped at the call site.
var (
	// ErrConfig marks a malformed or missing configuration value. Terminal;
	// propagated to the process exit code.
	ErrConfig = errors.New("config error")

	// ErrNetwork marks a transient send/receive failure. Surfaces to the
	// dispatcher's resend trigger on the next round, never retried inline.
	ErrNetwork = errors.New("network error")

	// ErrSerialization marks a malformed inbound frame or durable record.
	// Dropped after a warning; never halts the event loop.
	ErrSerialization = errors.New("serialization error")

	// ErrConsensus marks a committed item that is semantically invalid for
	// the current consensused state. Logged and skipped: the replicated
	// log itself remains correct because commits are totally ordered.
	ErrConsensus = errors.New("consensus error")

	// ErrValidation marks a rejected transaction, PoW submission, or
	// partition entry. Returned to the originating peer as a typed
	// failure response; never mutates consensus state.
	ErrValidation = errors.New("validation error")

	// ErrFatal marks a durable store I/O failure. The process must panic
	// (or log.Crit) to force a clean restart rather than continue in an
	// unknown state.
	ErrFatal = errors.New("fatal error")
)

// Config wraps ErrConfig with msg as context.
func Config(msg string) error { return errors.Wrap(ErrConfig, msg) }

// Network wraps err as a network error with context.
func Network(err error, msg string) error {
	if err == nil {
		return errors.Wrap(ErrNetwork, msg)
	}
	return errors.Wrapf(ErrNetwork, "%s: %v", msg, err)
}

// Serialization wraps err as a serialization error with context.
func Serialization(err error, msg string) error {
	if err == nil {
		return errors.Wrap(ErrSerialization, msg)
	}
	return errors.Wrapf(ErrSerialization, "%s: %v", msg, err)
}

// Consensus wraps a description as a consensus error.
func Consensus(msg string) error { return errors.Wrap(ErrConsensus, msg) }

// Validation wraps a description as a validation error, used for the
// typed failure responses returned to peers.
func Validation(msg string) error { return errors.Wrap(ErrValidation, msg) }

// Fatal wraps err as a fatal (durable store I/O) error with context.
// Callers in the durable-store packages pass this to log.Crit, which
// logs and terminates the process to force a clean restart.
func Fatal(err error, msg string) error {
	if err == nil {
		return errors.Wrap(ErrFatal, msg)
	}
	return errors.Wrapf(ErrFatal, "%s: %v", msg, err)
}

// Is reports whether err ultimately wraps one of the sentinel categories.
func Is(err, target error) bool { return errors.Is(err, target) }
