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
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/errs"
	"github.com/corevault/core/internal/log"
	"github.com/corevault/core/internal/metrics"
	"github.com/corevault/core/internal/wire"
)

// LastBlockHashKey mirrors the spec's persisted key layout (§6).
const LastBlockHashKey = "LastBlockHashKey"

// storageSchemaVersion tags every canonical record so a future format
// change can be detected on read, matching the teacher's version-byte
// framing convention used in internal/wire's Frame.
const storageSchemaVersion = 1

type versionedRecord struct {
	Version uint8
	Data    []byte
}

func canonicalEncode(v interface{}) ([]byte, error) {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(versionedRecord{Version: storageSchemaVersion, Data: data})
}

func indexedBlockHashKey(bNum uint64) []byte {
	return []byte(fmt.Sprintf("nIndexedBlockHashKey_%016x", bNum))
}

func indexedTxHashKey(bNum uint64, txNum int) []byte {
	return []byte(fmt.Sprintf("nIndexedTxHashKey_%016x_%08x", bNum, txNum))
}

// Store is the storage node's canonical, indexed KV persistence layer
// (C9), backed by goleveldb — the teacher's read-heavy indexed-lookup
// database choice (storage/database/leveldb_database.go) — with an
// optional best-effort MySQL secondary index layered on top.
type Store struct {
	db       *leveldb.DB
	mysql    *MySQLProjector
	nodeName string
	logger   log.Logger
}

// Open opens (creating if necessary) a goleveldb database at path,
// recovering from a corrupted database the same way the teacher's
// NewLDBDatabase does (storage/database/leveldb_database.go).
func Open(path string, mysql *MySQLProjector) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if _, corrupted := err.(*ldberrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, errs.Fatal(err, "open storage leveldb database")
	}
	return &Store{
		db:       db,
		mysql:    mysql,
		nodeName: path,
		logger:   log.NewModuleLogger(log.StorageNode).NewWith("dbDir", path),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close storage database", "err", err)
		return
	}
	s.logger.Info("storage database closed")
}

// Has reports whether hash (a block or transaction hash) is already
// durably stored, the basis of ApplyCompleteBlock's idempotence.
func (s *Store) Has(hash string) (bool, error) {
	ok, err := s.db.Has([]byte(hash), nil)
	if err != nil {
		return false, errs.Fatal(err, "check existing record")
	}
	return ok, nil
}

// ApplyCompleteBlock persists a won round's block and transactions
// (§4.9 steps 1-4) and returns the BlockStoredInfo to fan out to the
// compute group (step 5). Re-applying an already-stored block is a
// no-op that still returns the same info, tolerating duplicate
// CompleteBlock deliveries after a snapshot restore.
func (s *Store) ApplyCompleteBlock(common wire.CommonBlockInfo, extra wire.MinedBlockInfo) (wire.BlockStoredInfo, error) {
	block := common.Block
	blockHash := block.Hash()

	exists, err := s.Has(blockHash)
	if err != nil {
		return wire.BlockStoredInfo{}, err
	}
	if exists {
		return s.blockStoredInfo(block, extra), nil
	}

	batch := new(leveldb.Batch)
	for txNum, txHash := range block.TxHash {
		tx, ok := common.BlockTx[txHash]
		if !ok {
			return wire.BlockStoredInfo{}, errs.Consensus(fmt.Sprintf("missing transaction body for %s", txHash))
		}
		raw, err := canonicalEncode(tx)
		if err != nil {
			return wire.BlockStoredInfo{}, errs.Serialization(err, "encode transaction")
		}
		pretty, err := json.MarshalIndent(tx, "", "  ")
		if err != nil {
			return wire.BlockStoredInfo{}, errs.Serialization(err, "marshal transaction json")
		}
		batch.Put([]byte(txHash), raw)
		batch.Put([]byte(txHash+":json"), pretty)
		batch.Put(indexedTxHashKey(block.Header.BNum, txNum), []byte(txHash))
	}

	blockRaw, err := canonicalEncode(block)
	if err != nil {
		return wire.BlockStoredInfo{}, errs.Serialization(err, "encode block")
	}
	blockPretty, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		return wire.BlockStoredInfo{}, errs.Serialization(err, "marshal block json")
	}
	batch.Put([]byte(blockHash), blockRaw)
	batch.Put([]byte(blockHash+":json"), blockPretty)
	batch.Put(indexedBlockHashKey(block.Header.BNum), []byte(blockHash))
	batch.Put([]byte(LastBlockHashKey), []byte(blockHash))

	if err := s.db.Write(batch, nil); err != nil {
		return wire.BlockStoredInfo{}, errs.Fatal(err, "write completed block batch")
	}

	info := s.blockStoredInfo(block, extra)
	metrics.BlocksStoredTotal.WithLabelValues(s.nodeName).Inc()

	if s.mysql != nil {
		go s.mysql.ProjectBlock(block, common.BlockTx, info)
	}

	return info, nil
}

func (s *Store) blockStoredInfo(block chain.Block, extra wire.MinedBlockInfo) wire.BlockStoredInfo {
	return wire.BlockStoredInfo{
		BlockHash:  block.Hash(),
		BlockNum:   block.Header.BNum,
		MerkleHash: block.Header.MerkleRoot,
		MiningTransactions: []wire.MiningTransactionEntry{
			{CoinbaseHash: extra.MiningTx.Hash(), Coinbase: extra.MiningTx},
		},
		Shutdown: extra.Shutdown,
	}
}

// LastBlockHash returns the hash most recently written via
// ApplyCompleteBlock, or "" if no block has ever been stored.
func (s *Store) LastBlockHash() (string, error) {
	v, err := s.db.Get([]byte(LastBlockHashKey), nil)
	if err == leveldb.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", errs.Fatal(err, "read last block hash")
	}
	return string(v), nil
}
