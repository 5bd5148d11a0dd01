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

package compute

import (
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v7"
)

// RedisDedupCache rehydrates the partition-round dedup set across a
// dispatcher restart: the in-memory partitionList for the current
// round stays authoritative, this is only a cache consulted by
// handlePartitionEntry before it proposes a MiningParticipant, never a
// source of truth.
type RedisDedupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedupCache connects to addr (host:port), selecting db, and
// returns a ready cache. Entries expire after ttl, bounding the set to
// the lifetime of one mining round plus slack for stragglers.
func NewRedisDedupCache(addr string, db int, ttl time.Duration) (*RedisDedupCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping().Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisDedupCache{client: client, ttl: ttl}, nil
}

func dedupKey(randomNum []byte, peerAddr string) string {
	return "partition-dedup:" + hex.EncodeToString(randomNum) + ":" + peerAddr
}

// MarkSeen implements PartitionDedupCache: the first caller for a given
// (randomNum, peerAddr) pair gets alreadySeen=false and every
// subsequent caller this round gets true, via Redis's atomic SETNX.
func (c *RedisDedupCache) MarkSeen(randomNum []byte, peerAddr string) (bool, error) {
	ok, err := c.client.SetNX(dedupKey(randomNum, peerAddr), 1, c.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Close releases the underlying connection pool.
func (c *RedisDedupCache) Close() error {
	return c.client.Close()
}
