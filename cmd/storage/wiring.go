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
	"github.com/corevault/core/internal/backup"
	"github.com/corevault/core/internal/config"
	"github.com/corevault/core/internal/raftwrap"
	"github.com/corevault/core/internal/storage"
)

// newMySQLProjector returns the secondary relational projector when
// configured, or nil (Store.ApplyCompleteBlock skips the projection
// step) when not.
func newMySQLProjector(cfg config.NodeConfig) (*storage.MySQLProjector, error) {
	if !cfg.Storage.MySQL.Enabled {
		return nil, nil
	}
	return storage.NewMySQLProjector(cfg.Storage.MySQL.DSN)
}

// newSnapshotBackup returns the S3 archival uploader when configured,
// or nil (CreateSnapshot skips the upload entirely) when not.
func newSnapshotBackup(cfg config.NodeConfig) (raftwrap.SnapshotUploader, error) {
	if !cfg.S3.Enabled {
		return nil, nil
	}
	return backup.NewS3Uploader(cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix)
}
