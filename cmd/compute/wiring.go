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

package main

import (
	"time"

	"github.com/corevault/core/internal/backup"
	"github.com/corevault/core/internal/compute"
	"github.com/corevault/core/internal/config"
	"github.com/corevault/core/internal/raftwrap"
)

// newEventPublisher returns the Kafka-backed analytics publisher when
// configured, or nil (the dispatcher falls back to its own no-op) when
// not — the event bus is an optional ambient concern, never required
// for consensus correctness.
func newEventPublisher(cfg config.NodeConfig) (compute.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	return compute.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

// newDedupCache returns the Redis-backed partition-dedup rehydration
// cache when configured, or nil (falling back to the dispatcher's
// no-op, in-memory-only behavior) when not.
func newDedupCache(cfg config.NodeConfig) (compute.PartitionDedupCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	return compute.NewRedisDedupCache(cfg.Redis.Addr, cfg.Redis.DB, 10*time.Minute)
}

// newSnapshotBackup returns the S3 archival uploader when configured,
// or nil (CreateSnapshot skips the upload entirely) when not.
func newSnapshotBackup(cfg config.NodeConfig) (raftwrap.SnapshotUploader, error) {
	if !cfg.S3.Enabled {
		return nil, nil
	}
	return backup.NewS3Uploader(cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix)
}
