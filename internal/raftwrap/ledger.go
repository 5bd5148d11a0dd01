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

// Package raftwrap provides the in-flight proposal ledger (C2) and the
// active Raft wrapper (C3) described in the specification, built on
// go.etcd.io/raft/v3 — the successor of the etcd Raft library this
// corpus's permissioned-chain reference (Quorum's raft package) used.
package raftwrap

import lru "github.com/hashicorp/golang-lru"

// ContextKey identifies one in-flight proposal: the triple
// (proposer_id, proposal_id, key_run).
type ContextKey struct {
	ProposerID string
	ProposalID uint64
	KeyRun     uint64
}

// inFlightItem is a proposed-but-not-yet-committed item.
type inFlightItem struct {
	data      []byte
	dedupBNum *uint64
}

// Ledger tracks in-flight Raft proposals keyed by ContextKey, re-proposing
// on leader change and deduplicating on commit. It never silently drops
// an item: an item is either delivered exactly once or superseded by a
// newer committed state via IgnoreBelow.
type Ledger struct {
	items map[ContextKey]inFlightItem
	order []ContextKey // insertion order, for deterministic re-propose

	// recentlyDelivered is a small observability cache of the last
	// delivered keys; purely diagnostic, never consulted for
	// correctness (see SPEC_FULL.md §4.2).
	recentlyDelivered *lru.Cache
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	cache, _ := lru.New(256)
	return &Ledger{
		items:             make(map[ContextKey]inFlightItem),
		recentlyDelivered: cache,
	}
}

// Propose records data as in-flight under key, with an optional dedup
// block number (nil means "always deliver, never superseded by b_num").
func (l *Ledger) Propose(key ContextKey, data []byte, dedupBNum *uint64) {
	if _, exists := l.items[key]; !exists {
		l.order = append(l.order, key)
	}
	l.items[key] = inFlightItem{data: data, dedupBNum: dedupBNum}
}

// Commit looks up key among in-flight items. If present and the item's
// dedup block number (if any) is >= currentBNum, it is removed and
// (data, true) is returned for delivery to the state machine. Otherwise
// the commit is a duplicate: it is dropped and (nil, false) is returned.
func (l *Ledger) Commit(key ContextKey, currentBNum uint64) (data []byte, removed bool) {
	item, ok := l.items[key]
	if !ok {
		return nil, false
	}
	if item.dedupBNum != nil && *item.dedupBNum < currentBNum {
		l.remove(key)
		return nil, false
	}
	l.remove(key)
	if l.recentlyDelivered != nil {
		l.recentlyDelivered.Add(key, struct{}{})
	}
	return item.data, true
}

func (l *Ledger) remove(key ContextKey) {
	delete(l.items, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// IgnoreBelow drops every in-flight item whose dedup block number is
// below bNum, used when the ignore-b-num advances past stale proposals.
func (l *Ledger) IgnoreBelow(bNum uint64) {
	var kept []ContextKey
	for _, k := range l.order {
		item := l.items[k]
		if item.dedupBNum != nil && *item.dedupBNum < bNum {
			delete(l.items, k)
			continue
		}
		kept = append(kept, k)
	}
	l.order = kept
}

// ReproposeAll returns every currently in-flight (key, data) pair in
// original proposal order, for re-submission after a leader change.
func (l *Ledger) ReproposeAll() []struct {
	Key  ContextKey
	Data []byte
} {
	out := make([]struct {
		Key  ContextKey
		Data []byte
	}, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, struct {
			Key  ContextKey
			Data []byte
		}{Key: k, Data: l.items[k].data})
	}
	return out
}

// Len reports the number of in-flight items.
func (l *Ledger) Len() int { return len(l.items) }
