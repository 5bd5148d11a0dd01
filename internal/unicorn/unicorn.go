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

// Package unicorn implements the UNiCORN verifiable delay function: a
// slow seed->witness evaluation (sloth, modular square root with
// swapped neighbours per Lenstra & Wesolowski's "Random Zoo") and a
// fast verification of the resulting witness. Eval is a pure function
// of its seed, so every compute replica runs it independently on the
// same committed seed and arrives at the same witness; Verify lets any
// party check a witness cheaply without re-running Eval.
package unicorn

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/log"
)

// MRPrimeIters is the number of Miller-Rabin rounds used to probabilistically
// check the modulus for primality, matching the source's MR_PRIME_ITERS.
const MRPrimeIters = 25

var logger = log.NewModuleLogger(log.Unicorn)

// ErrInvalidModulus is returned by Eval when the configured modulus does
// not satisfy the UNiCORN validity rules (p >= 2^2k and p prime).
var ErrInvalidModulus = errInvalidModulus{}

type errInvalidModulus struct{}

func (errInvalidModulus) Error() string { return "unicorn: invalid modulus" }

// Unicorn holds the per-round VDF state: modulus, iteration count,
// security level, seed and witness.
type Unicorn struct {
	Iterations    uint64   `json:"iterations"`
	SecurityLevel uint32   `json:"security_level"`
	Seed          *big.Int `json:"seed"`
	Modulus       *big.Int `json:"modulus"`
	Witness       *big.Int `json:"witness"`
}

// ConstructSeed builds the deterministic seed for a block round from the
// hashes of its transaction inputs, the locked cohort address list, and
// the winning coinbase hashes from two blocks ago.
func ConstructSeed(txInputs []string, participantList []string, lastWinningHashes []string) *big.Int {
	sorted := append([]string(nil), lastWinningHashes...)
	sort.Strings(sorted)

	soot := chain.HashBytes(mustRLP(txInputs))
	soma := chain.HashBytes(mustRLP(participantList))
	soms := chain.HashBytes(mustRLP(sorted))

	finalSeed := chain.HashBytes(mustRLP([]string{soot, soma, soms}))

	n := new(big.Int)
	n.SetString(finalSeed, 16)
	return n
}

func mustRLP(v interface{}) []byte {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(err)
	}
	return b
}

// isValidModulus checks p >= 2^(2k) and that p is probably prime.
func (u *Unicorn) isValidModulus() bool {
	min := new(big.Int).Lsh(big.NewInt(1), uint(2*u.SecurityLevel))
	if u.Modulus.Cmp(min) < 0 {
		return false
	}
	return u.Modulus.ProbablyPrime(MRPrimeIters)
}

// xorFixOverflow flips the low bit of w until it lies in (0, modulus).
func (u *Unicorn) xorFixOverflow(w *big.Int) {
	one := big.NewInt(1)
	for {
		w.Xor(w, one)
		if w.Sign() != 0 && w.Cmp(u.Modulus) < 0 {
			return
		}
	}
}

// Eval runs the slow VDF evaluation, producing the witness and its hash
// g. Returns ErrInvalidModulus if the modulus fails validity rules.
func (u *Unicorn) Eval() (witness *big.Int, g string, err error) {
	if !u.isValidModulus() {
		logger.Error("invalid unicorn modulus")
		return nil, "", ErrInvalidModulus
	}

	exponent := new(big.Int).Add(u.Modulus, big.NewInt(1))
	exponent.Rsh(exponent, 2) // (p+1)/4, valid because p ≡ 3 (mod 4) by construction

	w := new(big.Int).Mod(u.Seed, u.Modulus)
	for i := uint64(0); i < u.Iterations; i++ {
		u.xorFixOverflow(w)
		w.Exp(w, exponent, u.Modulus)
	}

	u.Witness = new(big.Int).Set(w)
	g = chain.HashBytes(mustRLP(w.Uint64()))
	return u.Witness, g, nil
}

// Verify checks that repeatedly squaring and negating witness, modulo
// modulus, for Iterations rounds reproduces seed mod modulus.
func (u *Unicorn) Verify(seed, witness *big.Int) bool {
	w := new(big.Int).Set(witness)
	two := big.NewInt(2)
	for i := uint64(0); i < u.Iterations; i++ {
		w.Exp(w, two, u.Modulus)
		w.Neg(w)
		w.Mod(w, u.Modulus)
		u.xorFixOverflow(w)
	}
	target := new(big.Int).Mod(seed, u.Modulus)
	return w.Cmp(target) == 0
}

// GetUnicorn returns the witness, optionally reduced modulo m.
func (u *Unicorn) GetUnicorn(m *big.Int) *big.Int {
	if m == nil {
		return new(big.Int).Set(u.Witness)
	}
	return new(big.Int).Mod(u.Witness, m)
}
