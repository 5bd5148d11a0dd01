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

package wire

import "github.com/corevault/core/internal/chain"

// SendTransactions carries a batch of fresh transactions into a
// compute node's pool.
type SendTransactions struct {
	Transactions []chain.Transaction
}

// SendPartitionRequest asks the receiving compute node to join the
// mining-partition cohort for the current round. It carries no payload.
type SendPartitionRequest struct{}

// SendPartitionEntry is one miner's partition-round proof-of-work entry.
type SendPartitionEntry struct {
	PartitionEntry chain.ProofOfWork
}

// SendPoW is a miner's submission of a winning block-level proof of
// work.
type SendPoW struct {
	BlockNum uint64
	Nonce    []byte
	Coinbase chain.Transaction
}

// MiningTransactionEntry pairs a winning coinbase's hash with its full
// transaction body. BlockStoredInfo carries these as an ordered slice
// rather than a map, since map types are not RLP-serializable.
type MiningTransactionEntry struct {
	CoinbaseHash string
	Coinbase     chain.Transaction
}

// BlockStoredInfo is the storage group's acknowledgement that a block
// (and all of its transactions) has durably landed.
type BlockStoredInfo struct {
	BlockHash          string
	BlockNum           uint64
	MerkleHash         string
	MiningTransactions []MiningTransactionEntry
	Shutdown           bool
}

// SendBlockStored wraps BlockStoredInfo as exchanged in both directions
// (storage → compute and, from compute, to whichever peer asked).
type SendBlockStored struct {
	Info BlockStoredInfo
}

// SendUserBlockNotificationRequest registers the sender as a listener
// for BlockMining notifications. No payload.
type SendUserBlockNotificationRequest struct{}

// SendRaftCmd carries one opaque Raft protocol frame (a marshaled
// raftpb.Message) between group members. The payload is kept as raw
// bytes here rather than RLP-decoded structurally, since raftpb.Message
// already defines its own canonical (protobuf) wire format; re-encoding
// it through RLP would just add an unnecessary second framing layer.
type SendRaftCmd struct {
	RaftFrame []byte
}

// Closing signals a clean, voluntary disconnect. No payload.
type Closing struct{}

// SendRandomNum announces the current round's UNiCORN-derived random
// seed and the coinbase hashes of the previous round's winners, to
// miners.
type SendRandomNum struct {
	RandomNum    []byte
	WinCoinbases []string
}

// SendPartitionList announces the locked mining cohort for the round.
type SendPartitionList struct {
	PartitionList []chain.ProofOfWork
}

// SendBlockToMiner delivers the next block to be mined, to every
// participant.
type SendBlockToMiner struct {
	Block  []byte
	Reward chain.Asset
}

// SendTxMerkleCheck lets a miner verify its transactions are included
// in the block it is about to mine, without shipping the whole block.
type SendTxMerkleCheck struct {
	TxMerkleVerification []string
}

// MinedBlockInfo is the full accounting a compute node hands to storage
// once a block's winning PoW has been selected.
type MinedBlockInfo struct {
	Nonce     []byte
	MiningTx  chain.Transaction
	PValue    string
	DValue    string
	Shutdown  bool
	Witness   []byte
	UnicornID []byte
}

// CommonBlockInfo is the block payload shared with the storage group.
type CommonBlockInfo struct {
	Block   chain.Block
	BlockTx map[string]chain.Transaction
}

// SendBlockToStorage is compute's block-plus-mining-proof submission to
// the storage group.
type SendBlockToStorage struct {
	Common     CommonBlockInfo
	MinedInfo  MinedBlockInfo
}

// BlockMining notifies subscribed user clients that a block is now
// being mined.
type BlockMining struct {
	Block chain.Block
}
