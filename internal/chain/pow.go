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

// MiningDifficulty is the number of leading zero bytes a valid PoW
// digest must have.
const MiningDifficulty = 1

// ProofOfWork is a partition-entry submission: an address and the nonce
// that makes H(address || nonce) meet the partition difficulty.
type ProofOfWork struct {
	Address string `json:"address"`
	Nonce   []byte `json:"nonce"`
}

// Digest returns H(address || nonce).
func (p ProofOfWork) Digest() string {
	return HashBytes(append([]byte(p.Address), p.Nonce...))
}

// MeetsDifficulty reports whether digest starts with MiningDifficulty
// zero bytes (as hex characters: two hex chars per zero byte).
func MeetsDifficulty(digestHex string, difficulty int) bool {
	want := difficulty * 2
	if len(digestHex) < want {
		return false
	}
	for i := 0; i < want; i++ {
		if digestHex[i] != '0' {
			return false
		}
	}
	return true
}

// Valid reports whether p is a valid partition entry under difficulty.
func (p ProofOfWork) Valid(difficulty int) bool {
	return MeetsDifficulty(p.Digest(), difficulty)
}

// WinningPoWInfo is the accepted winning submission for one cohort
// member: the nonce and coinbase they submitted, plus the opaque
// tie-breaker values used by winner selection (§4.5): PValue is
// H(cohort_index(addr) || nonce); DValue is the resulting distance to
// the UNiCORN value under the configured modulus.
type WinningPoWInfo struct {
	Nonce    []byte      `json:"nonce"`
	Coinbase Transaction `json:"coinbase"`
	PValue   string      `json:"p_value"`
	DValue   string      `json:"d_value"`
}
