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

// Package sidecar is the local durable store (C10): a per-node,
// non-replicated Badger database holding the node's own pending
// requests, user-notification subscriptions, and Raft bookkeeping,
// with a small fastcache in front of the handful of keys read on every
// event loop iteration. Grounded on
// storage/database/badger_database.go's NewBadgerDB/Put/Get/Delete/
// NewBatch shape and its prefixed-table idiom (badgerTable).
package sidecar

import (
	"fmt"
	"os"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/dgraph-io/badger"

	"github.com/corevault/core/internal/errs"
	"github.com/corevault/core/internal/log"
)

const gcThreshold = int64(1 << 30)
const sizeGCTickerTime = 1 * time.Minute

// Column namespaces keys the way the teacher's badgerTable prefixes do,
// so "internal" bookkeeping and "local_transactions" payloads never
// collide even though they share one underlying Badger instance.
type Column string

const (
	ColumnInternal          Column = "internal:"
	ColumnLocalTransactions Column = "local_tx:"
)

// Well-known keys within ColumnInternal.
const (
	RequestListKey     = "RequestListKey"
	UserNotifyListKey  = "UserNotifyListKey"
	RaftKeyRunKey      = "RaftKeyRun"
	LastBlockHashKey   = "LastBlockHashKey"
)

// hotKeys are cached in fastcache in front of Badger: small values read
// on most event loop iterations (resend_trigger_message, the Raft
// key_run counter, the last stored block hash).
var hotKeys = map[string]bool{
	RequestListKey:    true,
	UserNotifyListKey: true,
	RaftKeyRunKey:     true,
	LastBlockHashKey:  true,
}

// Sidecar is the local durable KV sidecar for one node.
type Sidecar struct {
	dir string
	db  *badger.DB
	hot *fastcache.Cache

	gcTicker *time.Ticker
	logger   log.Logger
}

// Open opens (creating if necessary) a Badger database at dir, fronted
// by an in-memory hot-key cache sized hotCacheBytes.
func Open(dir string, hotCacheBytes int) (*Sidecar, error) {
	l := log.NewModuleLogger(log.Sidecar).NewWith("dbDir", dir)

	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, errs.Config(fmt.Sprintf("sidecar path %q is not a directory", dir))
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Fatal(err, "create sidecar directory")
		}
	} else {
		return nil, errs.Fatal(err, "stat sidecar directory")
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Fatal(err, "open sidecar badger database")
	}

	sc := &Sidecar{
		dir:      dir,
		db:       db,
		hot:      fastcache.New(hotCacheBytes),
		gcTicker: time.NewTicker(sizeGCTickerTime),
		logger:   l,
	}
	go sc.runValueLogGC()
	return sc, nil
}

func (sc *Sidecar) runValueLogGC() {
	_, lastSize := sc.db.Size()
	for range sc.gcTicker.C {
		_, currSize := sc.db.Size()
		if currSize-lastSize < gcThreshold {
			continue
		}
		if err := sc.db.RunValueLogGC(0.5); err != nil {
			sc.logger.Warn("value log gc failed", "err", err)
			continue
		}
		_, lastSize = sc.db.Size()
	}
}

func prefixedKey(col Column, key string) []byte {
	return append([]byte(col), key...)
}

// Put durably writes value under (column, key), refreshing the hot
// cache when key is one of the well-known frequently-read keys.
func (sc *Sidecar) Put(col Column, key string, value []byte) error {
	txn := sc.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(prefixedKey(col, key), value); err != nil {
		return errs.Fatal(err, "sidecar put")
	}
	if err := txn.Commit(nil); err != nil {
		return errs.Fatal(err, "sidecar commit")
	}
	if col == ColumnInternal && hotKeys[key] {
		sc.hot.Set(prefixedKey(col, key), value)
	}
	return nil
}

// Get reads the value stored at (column, key), serving well-known hot
// keys from the fastcache front end first.
func (sc *Sidecar) Get(col Column, key string) ([]byte, error) {
	full := prefixedKey(col, key)
	if col == ColumnInternal && hotKeys[key] {
		if v, ok := sc.hot.HasGet(nil, full); ok {
			return v, nil
		}
	}

	txn := sc.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(full)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Fatal(err, "sidecar get")
	}
	value, err := item.Value()
	if err != nil {
		return nil, errs.Fatal(err, "sidecar read value")
	}
	if col == ColumnInternal && hotKeys[key] {
		sc.hot.Set(full, value)
	}
	return value, nil
}

// Has reports whether (column, key) exists.
func (sc *Sidecar) Has(col Column, key string) (bool, error) {
	txn := sc.db.NewTransaction(false)
	defer txn.Discard()
	_, err := txn.Get(prefixedKey(col, key))
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, errs.Fatal(err, "sidecar has")
	}
	return true, nil
}

// Delete removes (column, key), evicting it from the hot cache too.
func (sc *Sidecar) Delete(col Column, key string) error {
	txn := sc.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(prefixedKey(col, key)); err != nil {
		return errs.Fatal(err, "sidecar delete")
	}
	if err := txn.Commit(nil); err != nil {
		return errs.Fatal(err, "sidecar commit delete")
	}
	if col == ColumnInternal && hotKeys[key] {
		sc.hot.Del(prefixedKey(col, key))
	}
	return nil
}

// PutLocalTransaction stores a locally-submitted, not-yet-committed
// transaction's raw bytes keyed by its hash.
func (sc *Sidecar) PutLocalTransaction(hash string, raw []byte) error {
	return sc.Put(ColumnLocalTransactions, hash, raw)
}

// DeleteLocalTransaction removes a local transaction once it has been
// committed (or superseded) and no longer needs restart-survival.
func (sc *Sidecar) DeleteLocalTransaction(hash string) error {
	return sc.Delete(ColumnLocalTransactions, hash)
}

// ListLocalTransactions returns every still-pending local transaction,
// used to repopulate the in-memory tx pool after a restart.
func (sc *Sidecar) ListLocalTransactions() (map[string][]byte, error) {
	out := make(map[string][]byte)
	txn := sc.db.NewTransaction(false)
	defer txn.Discard()

	prefix := []byte(ColumnLocalTransactions)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := string(item.Key()[len(prefix):])
		value, err := item.Value()
		if err != nil {
			return nil, errs.Fatal(err, "sidecar iterate local transactions")
		}
		valueCopy := make([]byte, len(value))
		copy(valueCopy, value)
		out[key] = valueCopy
	}
	return out, nil
}

// Close flushes and closes the underlying Badger database.
func (sc *Sidecar) Close() {
	sc.gcTicker.Stop()
	if err := sc.db.Close(); err != nil {
		sc.logger.Error("failed to close sidecar database", "err", err)
		return
	}
	sc.logger.Info("sidecar database closed")
}
