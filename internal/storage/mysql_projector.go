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

package storage

import (
	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/log"
	"github.com/corevault/core/internal/wire"
)

// blockRow and txRow are the secondary relational projections of a
// stored block/transaction, giving operators range scans and joins the
// indexed KV layout in store.go cannot support (spec.md §4.9
// "[NEW] Secondary relational index").
type blockRow struct {
	Hash       string `gorm:"primary_key"`
	BNum       uint64 `gorm:"index"`
	MerkleRoot string
}

type txRow struct {
	Hash            string `gorm:"primary_key"`
	BlockHash       string `gorm:"index"`
	ScriptPublicKey string `gorm:"index"`
}

// MySQLProjector asynchronously mirrors persisted blocks/transactions
// into a MySQL database via gorm. It is best-effort: a projection
// failure is logged and never blocks or fails block storage.
type MySQLProjector struct {
	db     *gorm.DB
	logger log.Logger
}

// NewMySQLProjector opens (and migrates) a MySQL connection at dsn.
func NewMySQLProjector(dsn string) (*MySQLProjector, error) {
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.AutoMigrate(&blockRow{}, &txRow{})
	return &MySQLProjector{db: db, logger: log.NewModuleLogger(log.StorageNode).NewWith("component", "mysql_projector")}, nil
}

// ProjectBlock upserts rows for block and every transaction in blockTx.
// Upserts keyed by hash make replayed (duplicate) CompleteBlock
// deliveries idempotent here too, matching store.go's own idempotence.
func (p *MySQLProjector) ProjectBlock(block chain.Block, blockTx map[string]chain.Transaction, info wire.BlockStoredInfo) {
	row := blockRow{Hash: info.BlockHash, BNum: info.BlockNum, MerkleRoot: info.MerkleHash}
	if err := p.db.Save(&row).Error; err != nil {
		p.logger.Warn("mysql block projection failed", "blockHash", info.BlockHash, "err", err)
		return
	}

	for _, txHash := range block.TxHash {
		tx := blockTx[txHash]
		var scriptPK string
		if len(tx.Outputs) > 0 && tx.Outputs[0].ScriptPublicKey != nil {
			scriptPK = *tx.Outputs[0].ScriptPublicKey
		}
		row := txRow{Hash: txHash, BlockHash: info.BlockHash, ScriptPublicKey: scriptPK}
		if err := p.db.Save(&row).Error; err != nil {
			p.logger.Warn("mysql tx projection failed", "txHash", txHash, "err", err)
		}
	}
}

// Close releases the underlying SQL connection pool.
func (p *MySQLProjector) Close() error {
	return p.db.Close()
}
