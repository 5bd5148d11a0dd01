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

// Package compute implements the compute group's Raft-replicated state
// (C6) and node dispatcher (C7): transaction pool admission, block
// assembly, and the mining pipeline handoff.
package compute

import (
	"math/big"
	"sort"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/config"
	"github.com/corevault/core/internal/mining"
	"github.com/corevault/core/internal/wire"
)

// SpecialHandling tags an exceptional block-boundary condition the
// consensused state is currently in (spec.md §3).
type SpecialHandling int

const (
	SpecialNone SpecialHandling = iota
	SpecialShutdown
	SpecialFirstUpgradeBlock
)

// DruidGroup is one atomic ("dual double-entry") bundle of transactions
// that must be absorbed into a block all together or not at all.
type DruidGroup []chain.Transaction

// blockVote accumulates distinct proposers' votes for one candidate
// value (a genesis UTXO set, or a BlockStoredInfo), keyed externally by
// a content hash of that candidate.
type blockVote struct {
	utxo      map[chain.OutPoint]chain.TxOut
	storedInf wire.BlockStoredInfo
	proposers map[string]bool
}

// Params bundles the configuration values GenerateBlock and the reward
// schedule need, sourced from config.NodeConfig.
type Params struct {
	BlockSizeInTx      int
	RaftGroupSize      int
	UnanimousMajority  int
	SufficientMajority int
	SanctionedTxHashes map[string]bool
	Reward             config.RewardConfig
	Mining             config.MiningConfig
	// UnicornModulus is config.MiningConfig.UnicornModulus, parsed once
	// at startup and passed to every CloseIntake call.
	UnicornModulus *big.Int
}

// Consensused is the compute group's Raft-replicated record (spec.md
// §3 "Consensused compute state").
type Consensused struct {
	cfg Params

	TxPool      map[string]chain.Transaction
	TxDruidPool []DruidGroup

	CurrentBlock   *chain.Block
	CurrentBlockTx map[string]chain.Transaction

	PreviousHash *string
	CurrentBNum  *uint64 // tx_current_block_num; nil before genesis

	UTXOSet *chain.TrackedUTXOSet

	firstBlockVotes map[string]*blockVote
	blockVotes      map[string]*blockVote

	LastCommittedIdx  uint64
	LastCommittedTerm uint64

	CurrentCirculation uint64
	CurrentReward      uint64

	LastMiningTransactionHashes []string

	FirstPipeline  *mining.Pipeline
	SecondPipeline *mining.Pipeline

	SpecialHandling SpecialHandling
}

// NewConsensused returns a fresh, pre-genesis compute state.
func NewConsensused(cfg Params) *Consensused {
	return &Consensused{
		cfg:             cfg,
		TxPool:          make(map[string]chain.Transaction),
		UTXOSet:         chain.NewTrackedUTXOSet(),
		firstBlockVotes: make(map[string]*blockVote),
		blockVotes:      make(map[string]*blockVote),
		FirstPipeline:   mining.NewPipeline(cfg.Mining.PartitionFullSize),
		SecondPipeline:  mining.NewPipeline(cfg.Mining.PartitionFullSize),
	}
}

// Event is one externally-observable effect of applying a committed
// item, consumed by the C7 dispatcher's flooding/fan-out logic.
type Event struct {
	Kind     string // "FirstBlock", "Block", "Transactions", "Shutdown"
	BlockNum uint64
}

// utxoEntry is a flattened, orderable (outpoint, output) pair used only
// to build a deterministic hash of a UTXO set: the live set stores
// these in a Go map, and map iteration order is unspecified, so hashing
// the map directly (or RLP-encoding it, which rejects map types
// outright) would make genesis-vote hashes non-deterministic across
// otherwise-identical proposals.
type utxoEntry struct {
	Op  chain.OutPoint
	Out chain.TxOut
}

func hashUTXO(utxo map[chain.OutPoint]chain.TxOut) string {
	entries := make([]utxoEntry, 0, len(utxo))
	for op, out := range utxo {
		entries = append(entries, utxoEntry{Op: op, Out: out})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Op.TxHash != entries[j].Op.TxHash {
			return entries[i].Op.TxHash < entries[j].Op.TxHash
		}
		return entries[i].Op.Index < entries[j].Op.Index
	})
	return chain.HashRLP(entries)
}

func hashStoredInfo(info wire.BlockStoredInfo) string {
	return chain.HashRLP(info)
}

// ApplyFirstBlock handles a committed FirstBlock(utxo) vote from
// proposerID. Genesis installs once UnanimousMajority proposers agree
// on the same UTXO set hash.
func (c *Consensused) ApplyFirstBlock(proposerID string, utxo map[chain.OutPoint]chain.TxOut) (*Event, error) {
	if c.CurrentBNum != nil {
		return nil, nil // genesis already installed; stale proposal
	}
	hash := hashUTXO(utxo)
	v, ok := c.firstBlockVotes[hash]
	if !ok {
		v = &blockVote{utxo: utxo, proposers: make(map[string]bool)}
		c.firstBlockVotes[hash] = v
	}
	v.proposers[proposerID] = true
	if len(v.proposers) < c.cfg.UnanimousMajority {
		return nil, nil
	}

	zero := uint64(0)
	c.CurrentBNum = &zero
	c.UTXOSet = chain.NewTrackedUTXOSetFrom(utxo)
	var circulation uint64
	for _, out := range utxo {
		circulation += out.Value.Tokens
	}
	c.CurrentCirculation = circulation
	c.CurrentReward = perNodeReward(circulation, c.cfg.Reward, c.cfg.RaftGroupSize)
	c.firstBlockVotes = make(map[string]*blockVote)

	return &Event{Kind: "FirstBlock", BlockNum: 0}, nil
}

// ApplyBlock handles a committed Block(stored_info) vote. On reaching
// SufficientMajority, it advances (or, on a shutdown boundary, freezes)
// the consensused block number.
func (c *Consensused) ApplyBlock(proposerID string, info wire.BlockStoredInfo) (*Event, error) {
	hash := hashStoredInfo(info)
	v, ok := c.blockVotes[hash]
	if !ok {
		v = &blockVote{storedInf: info, proposers: make(map[string]bool)}
		c.blockVotes[hash] = v
	}
	v.proposers[proposerID] = true
	if len(v.proposers) < c.cfg.SufficientMajority {
		return nil, nil
	}
	delete(c.blockVotes, hash)

	if info.Shutdown && c.SpecialHandling == SpecialNone {
		c.SpecialHandling = SpecialShutdown
		next := *c.CurrentBNum + 1
		c.CurrentBNum = &next
		return &Event{Kind: "Shutdown", BlockNum: next}, nil
	}

	next := *c.CurrentBNum + 1
	c.CurrentBNum = &next
	hash256 := info.BlockHash
	c.PreviousHash = &hash256

	for _, entry := range info.MiningTransactions {
		c.UTXOSet.Extend(map[string]chain.Transaction{entry.CoinbaseHash: entry.Coinbase})
		c.CurrentCirculation += entry.Coinbase.Outputs[0].Value.Tokens
	}
	c.CurrentReward = perNodeReward(c.CurrentCirculation, c.cfg.Reward, c.cfg.RaftGroupSize)

	hashes := make([]string, 0, len(info.MiningTransactions))
	for _, e := range info.MiningTransactions {
		hashes = append(hashes, e.CoinbaseHash)
	}
	c.LastMiningTransactionHashes = hashes

	return &Event{Kind: "Block", BlockNum: next}, nil
}

// ApplyTransactions admits a batch of transactions into tx_pool after
// validating each against the current UTXO snapshot.
func (c *Consensused) ApplyTransactions(txs map[string]chain.Transaction) *Event {
	admitted := 0
	for hash, tx := range txs {
		if !c.IsValidTransaction(tx) {
			continue
		}
		c.TxPool[hash] = tx
		admitted++
	}
	if admitted == 0 {
		return nil
	}
	return &Event{Kind: "Transactions"}
}

// ApplyDruidTransactions appends every group to tx_druid_pool verbatim;
// validity is re-checked at block-generation time (step 1 of
// GenerateBlock), since a group may become invalid between proposal
// and generation as other transactions consume its inputs.
func (c *Consensused) ApplyDruidTransactions(groups []DruidGroup) {
	c.TxDruidPool = append(c.TxDruidPool, groups...)
}

// IsValidTransaction applies spec.md §4.6's transaction validity rule
// against the current UTXO snapshot: not a coinbase, every input's
// outpoint exists, is not sanctioned, and its locktime has elapsed.
func (c *Consensused) IsValidTransaction(tx chain.Transaction) bool {
	if tx.IsCoinbase() {
		return false
	}
	var currentBNum uint64
	if c.CurrentBNum != nil {
		currentBNum = *c.CurrentBNum
	}
	for _, in := range tx.Inputs {
		if in.PrevOut == nil {
			return false
		}
		if c.cfg.SanctionedTxHashes[in.PrevOut.TxHash] {
			return false
		}
		out, ok := c.UTXOSet.Get(*in.PrevOut)
		if !ok {
			return false
		}
		if out.Locktime > currentBNum {
			return false
		}
	}
	return true
}

// GenerateBlock is the pure block-assembly algorithm (spec.md §4.6):
// absorb druid groups, purge invalid pool entries, take up to
// BlockSizeInTx transactions in ascending hash order, fill the header,
// install the block, extend the UTXO, and hand the locked transaction
// set to the active mining pipeline.
//
// An outpoint claimed by a transaction admitted earlier in this pass
// (a druid group, or a pool transaction taken in ascending hash order)
// is removed from the UTXO before later candidates are checked, so two
// transactions spending the same outpoint never both land in the same
// block: the first claimant wins, and the second is deleted from tx_pool
// in the same pass.
func (c *Consensused) GenerateBlock(pipeline *mining.Pipeline, lastWinningHashes []string) (chain.Block, error) {
	blockTx := make(map[string]chain.Transaction)

	claim := func(tx chain.Transaction) {
		for _, in := range tx.Inputs {
			if in.PrevOut == nil {
				continue
			}
			c.UTXOSet.Remove(*in.PrevOut)
		}
	}

	// Step 1: absorb druid groups. Groups are single-shot: each is either
	// absorbed whole into this block or dropped, never retried. Consumed
	// outpoints are removed immediately so a later group or pool tx that
	// also claims one is rejected.
	for _, group := range c.TxDruidPool {
		if !c.groupInputsSatisfied(group) {
			continue // drop: at least one outpoint already consumed
		}
		for _, tx := range group {
			blockTx[tx.Hash()] = tx
			claim(tx)
		}
	}
	c.TxDruidPool = nil

	// Step 2: purge invalid single transactions from tx_pool.
	hashes := make([]string, 0, len(c.TxPool))
	for hash, tx := range c.TxPool {
		if !c.IsValidTransaction(tx) {
			delete(c.TxPool, hash)
			continue
		}
		hashes = append(hashes, hash)
	}

	// Step 3: take up to BlockSizeInTx by ascending hash order. Checked
	// and claimed one at a time (not batched) so a double-spend against
	// an outpoint this same loop already claimed is caught here too.
	sort.Strings(hashes)
	for _, hash := range hashes {
		if len(blockTx) >= c.cfg.BlockSizeInTx {
			break
		}
		tx := c.TxPool[hash]
		delete(c.TxPool, hash)
		if !c.groupInputsSatisfied([]chain.Transaction{tx}) {
			continue // an earlier admission already claimed this input
		}
		blockTx[hash] = tx
		claim(tx)
	}

	// Step 4: fill header.
	txHashes := chain.SortedHashes(blockTx)
	header := chain.BlockHeader{
		PreviousHash: c.PreviousHash,
		MerkleRoot:   chain.MerkleRoot(txHashes),
	}
	if c.CurrentBNum != nil {
		header.BNum = *c.CurrentBNum
	}
	block := chain.Block{Header: header, TxHash: txHashes}

	// Step 5: install, extend the UTXO with every new output (consumed
	// outpoints were already removed as each transaction was claimed
	// above), and hand off to the pipeline.
	c.CurrentBlock = &block
	c.CurrentBlockTx = blockTx
	c.UTXOSet.Extend(blockTx)

	txInputs := make([]string, 0, len(blockTx))
	for hash := range blockTx {
		txInputs = append(txInputs, hash)
	}
	sort.Strings(txInputs)
	pipeline.CloseIntake(txInputs, lastWinningHashes, c.cfg.Mining.UnicornSecurityBits, c.cfg.UnicornModulus, c.cfg.Mining.UnicornIterations)

	return block, nil
}

// groupInputsSatisfied reports whether every input outpoint referenced
// by group is still present in the current UTXO set.
func (c *Consensused) groupInputsSatisfied(group []chain.Transaction) bool {
	for _, tx := range group {
		for _, in := range tx.Inputs {
			if in.PrevOut == nil {
				continue
			}
			if !c.UTXOSet.Has(*in.PrevOut) {
				return false
			}
		}
	}
	return true
}
