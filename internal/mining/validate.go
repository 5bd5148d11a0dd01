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

package mining

import "github.com/corevault/core/internal/chain"

// ValidatePoW checks a submitted (nonce, coinbase) pair against block b
// and the expected mining reward, per §4.5:
//  1. coinbase.IsCoinbase() and coinbase.Outputs[0].Value == reward.
//  2. merkleForPoW = H(b.MerkleRoot || H(coinbase)).
//  3. H(b.PreviousHash || merkleForPoW || nonce) meets difficulty.
func ValidatePoW(b chain.Block, nonce []byte, coinbase chain.Transaction, reward chain.Asset, difficulty int) bool {
	if !coinbase.IsCoinbase() {
		return false
	}
	if len(coinbase.Outputs) == 0 || coinbase.Outputs[0].Value != reward {
		return false
	}

	merkleForPoW := chain.HashBytes([]byte(b.Header.MerkleRoot + coinbase.Hash()))

	prevHash := ""
	if b.Header.PreviousHash != nil {
		prevHash = *b.Header.PreviousHash
	}
	digest := chain.HashBytes(append([]byte(prevHash+merkleForPoW), nonce...))
	return chain.MeetsDifficulty(digest, difficulty)
}
