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

// Package storage implements the storage group's consensused state
// (C8) and the persistence dispatcher (C9): per-round majority voting
// over PartBlock proposals, followed by a canonical, indexed write of
// the completed block into goleveldb.
package storage

import (
	"sort"

	"github.com/corevault/core/internal/wire"
)

// PartBlockProposal is one compute node's per-round submission: the
// block-plus-transactions common to every correct proposer, and the
// mining extras (nonce, witness, ...) that round's winner produced.
type PartBlockProposal struct {
	BlockIdx uint64
	Common   wire.CommonBlockInfo
	Extra    wire.MinedBlockInfo
}

// partGroup accumulates per-proposer extras for one distinct common
// component, keyed externally by the hash of Common.
type partGroup struct {
	common wire.CommonBlockInfo
	extras map[string]wire.MinedBlockInfo // proposerID -> extra
}

// ConsensusedState is the storage group's Raft-replicated state
// (spec.md §3 "Consensused storage state").
type ConsensusedState struct {
	CurrentBlockIdx     uint64
	SufficientMajority  int
	timeoutVotes        map[string]bool
	completedParts      map[string]*partGroup
}

// NewConsensusedState returns a fresh accumulator requiring
// sufficientMajority distinct votes/extras to declare a round complete.
func NewConsensusedState(sufficientMajority int) *ConsensusedState {
	return &ConsensusedState{
		SufficientMajority: sufficientMajority,
		timeoutVotes:       make(map[string]bool),
		completedParts:     make(map[string]*partGroup),
	}
}

// ReceivePartBlock applies one proposer's PartBlock proposal, ignoring
// it if it targets a block index other than the current round.
func (cs *ConsensusedState) ReceivePartBlock(proposerID string, p PartBlockProposal) {
	if p.BlockIdx != cs.CurrentBlockIdx {
		return
	}
	hash := hashCommonInfo(p.Common)
	g, ok := cs.completedParts[hash]
	if !ok {
		g = &partGroup{common: p.Common, extras: make(map[string]wire.MinedBlockInfo)}
		cs.completedParts[hash] = g
	}
	g.extras[proposerID] = p.Extra
}

// ReceiveCompleteTimeoutVote records proposerID's vote that the current
// round is complete, ignoring votes for a stale block index.
func (cs *ConsensusedState) ReceiveCompleteTimeoutVote(proposerID string, blockIdx uint64) {
	if blockIdx != cs.CurrentBlockIdx {
		return
	}
	cs.timeoutVotes[proposerID] = true
}

// CheckCompletion reports whether the current round is complete:
// sufficientMajority distinct timeout votes have arrived AND the
// largest accumulated group holds at least sufficientMajority extras.
// Ties between equally-sized groups are broken by ascending common-info
// hash, so completion is deterministic across replicas observing the
// same commits.
func (cs *ConsensusedState) CheckCompletion() (wire.CommonBlockInfo, wire.MinedBlockInfo, bool) {
	if len(cs.timeoutVotes) < cs.SufficientMajority {
		return wire.CommonBlockInfo{}, wire.MinedBlockInfo{}, false
	}

	hashes := make([]string, 0, len(cs.completedParts))
	for h := range cs.completedParts {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	var winner *partGroup
	for _, h := range hashes {
		g := cs.completedParts[h]
		if winner == nil || len(g.extras) > len(winner.extras) {
			winner = g
		}
	}
	if winner == nil || len(winner.extras) < cs.SufficientMajority {
		return wire.CommonBlockInfo{}, wire.MinedBlockInfo{}, false
	}

	// Any extra in the winning group is representative: honest
	// proposers submit identical mining extras for the same common
	// block, so the accumulator does not need to pick among them.
	var extra wire.MinedBlockInfo
	for _, e := range winner.extras {
		extra = e
		break
	}
	return winner.common, extra, true
}

// Advance clears the round's accumulator and moves to the next block
// index, called once the dispatcher has durably stored the winning
// group (C9 step 4).
func (cs *ConsensusedState) Advance() {
	cs.CurrentBlockIdx++
	cs.timeoutVotes = make(map[string]bool)
	cs.completedParts = make(map[string]*partGroup)
}

// hashCommonInfo identifies a PartBlock group by its block header and
// ordered transaction-hash list alone (chain.Block.Hash() already
// commits to every transaction via the merkle root), rather than
// hashing BlockTx directly: that field is a map, and map iteration
// order is unspecified, which would make the hash non-deterministic
// across otherwise-identical proposals.
func hashCommonInfo(c wire.CommonBlockInfo) string {
	return c.Block.Hash()
}
