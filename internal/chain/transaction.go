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

package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

// OutPoint uniquely names a transaction output.
type OutPoint struct {
	TxHash string `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash, o.Index)
}

// TxIn is a transaction input. PrevOut is nil for a coinbase input.
type TxIn struct {
	PrevOut   *OutPoint `json:"previous_out,omitempty"`
	ScriptSig []byte    `json:"script_signature,omitempty"`
}

// TxOut is a transaction output.
type TxOut struct {
	Value           Asset   `json:"value"`
	ScriptPublicKey *string `json:"script_public_key,omitempty"`
	Locktime        uint64  `json:"locktime"`
}

// DruidInfo carries dual-double-entry (DRUID) side-information binding a
// transaction to the other members of its atomic group.
type DruidInfo struct {
	Druid        string   `json:"druid"`
	Participants int      `json:"participants"`
	Expectations []string `json:"expectations,omitempty"`
}

// Transaction is an ordered set of inputs and outputs plus optional DRUID
// side-information.
type Transaction struct {
	Version   uint32     `json:"version"`
	Inputs    []TxIn     `json:"inputs"`
	Outputs   []TxOut    `json:"outputs"`
	DruidInfo *DruidInfo `json:"druid_info,omitempty" rlp:"nil"`
}

// IsCoinbase reports whether tx is a block's single mining-reward
// transaction: exactly one input with no previous outpoint. The input's
// script is not inspected here; CoinbaseBlockNum decodes it.
func (tx Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut == nil
}

// CoinbaseBlockNum decodes the block number encoded in a coinbase input's
// script. ok is false if tx is not a coinbase or the script is malformed.
func (tx Transaction) CoinbaseBlockNum() (bNum uint64, ok bool) {
	if !tx.IsCoinbase() {
		return 0, false
	}
	s := tx.Inputs[0].ScriptSig
	if len(s) != 8 {
		return 0, false
	}
	var n uint64
	for _, b := range s {
		n = n<<8 | uint64(b)
	}
	return n, true
}

// Hash returns the deterministic content hash of tx.
func (tx Transaction) Hash() string {
	return HashRLP(tx)
}

// HashRLP RLP-encodes v and returns the hex SHA3-256 digest, the
// deterministic hashing convention used throughout this module (merkle
// roots, tx hashes, block hashes, PoW digests).
func HashRLP(v interface{}) string {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		// Every type passed to HashRLP is one of this package's own plain
		// value types; a failure here means a programmer error, not a
		// runtime condition to recover from.
		panic(fmt.Sprintf("chain: rlp encode failed: %v", err))
	}
	return HashBytes(b)
}

// HashBytes returns the hex SHA3-256 digest of b.
func HashBytes(b []byte) string {
	h := sha3.Sum256(b)
	return fmt.Sprintf("%x", h[:])
}
