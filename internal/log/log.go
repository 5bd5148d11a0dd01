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

// Package log provides module-scoped structured logging on top of zap,
// in the style this corpus uses throughout its storage and consensus
// packages (one named logger per module, created once at package init).
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module names for NewModuleLogger, kept as a closed set so every caller
// is visible from one place.
const (
	ComputeRaft   = "compute_raft"
	ComputeNode   = "compute_node"
	StorageRaft   = "storage_raft"
	StorageNode   = "storage_node"
	Mining        = "mining"
	Unicorn       = "unicorn"
	Sidecar       = "sidecar"
	RaftWrapper   = "raft"
	TrackedUtxo   = "tracked_utxo"
	Transport     = "transport"
	SnapshotBackup = "snapshot_backup"
)

var (
	baseOnce   sync.Once
	baseLogger *zap.Logger
)

func base() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		logger, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Building the base logger must never fail in practice (no file
			// sinks are configured); fall back to a no-op logger rather than
			// panic during package init.
			logger = zap.NewNop()
		}
		baseLogger = logger
	})
	return baseLogger
}

// Logger wraps a zap.SugaredLogger with the NewWith(...) chaining idiom
// used throughout this corpus's db/consensus packages.
type Logger struct {
	z *zap.SugaredLogger
}

// NewModuleLogger returns the logger for a given module name, tagged with
// a "module" field.
func NewModuleLogger(module string) Logger {
	return Logger{z: base().Sugar().With("module", module)}
}

// NewWith returns a derived logger with additional key/value context,
// mirroring the teacher's logger.NewWith("dbDir", dbDir) convention.
func (l Logger) NewWith(kv ...interface{}) Logger {
	return Logger{z: l.z.With(kv...)}
}

func (l Logger) Debug(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l Logger) Info(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l Logger) Warn(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l Logger) Error(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }

// Crit logs at error severity, flushes, and terminates the process with
// exit code 1. Reserved for
// FatalError paths (durable store I/O failure) per the error taxonomy.
func (l Logger) Crit(msg string, kv ...interface{}) {
	l.z.Errorw(msg, kv...)
	_ = base().Sync()
	os.Exit(1)
}

// Sync flushes any buffered log entries; called on clean shutdown.
func Sync() {
	_ = base().Sync()
}
