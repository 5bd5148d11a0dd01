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

// Package chain holds the core blockchain data model: outpoints,
// transactions, blocks and the tracked UTXO set (C1), grounded on the
// naom-equivalent primitives described in the specification and on this
// corpus's state/database packages for forward/reverse index shape.
package chain

// TrackedUTXOSet maintains outpoint -> output alongside a reverse index
// by script public key. Invariant: the reverse index contains exactly
// the outpoints present in the forward map.
type TrackedUTXOSet struct {
	base    map[OutPoint]TxOut
	pkCache map[string][]OutPoint
}

// NewTrackedUTXOSet returns an empty tracked UTXO set.
func NewTrackedUTXOSet() *TrackedUTXOSet {
	return &TrackedUTXOSet{
		base:    make(map[OutPoint]TxOut),
		pkCache: make(map[string][]OutPoint),
	}
}

// NewTrackedUTXOSetFrom builds a tracked set from a pre-populated forward
// map, deriving the reverse index from it (used on snapshot restore).
func NewTrackedUTXOSetFrom(base map[OutPoint]TxOut) *TrackedUTXOSet {
	t := &TrackedUTXOSet{base: base, pkCache: make(map[string][]OutPoint)}
	if t.base == nil {
		t.base = make(map[OutPoint]TxOut)
	}
	for op, out := range t.base {
		if out.ScriptPublicKey != nil && *out.ScriptPublicKey != "" {
			t.pkCache[*out.ScriptPublicKey] = append(t.pkCache[*out.ScriptPublicKey], op)
		}
	}
	return t
}

// Base returns the forward map (outpoint -> output). Callers must treat
// it as read-only; mutate only through Extend/Remove.
func (t *TrackedUTXOSet) Base() map[OutPoint]TxOut { return t.base }

// Get looks up a single output.
func (t *TrackedUTXOSet) Get(op OutPoint) (TxOut, bool) {
	out, ok := t.base[op]
	return out, ok
}

// Has reports whether op is present in the forward map.
func (t *TrackedUTXOSet) Has(op OutPoint) bool {
	_, ok := t.base[op]
	return ok
}

// Extend adds every output in a block's transaction map to the forward
// map, updating the reverse index for every output carrying a non-empty
// script public key. block_tx maps tx hash -> transaction.
func (t *TrackedUTXOSet) Extend(blockTx map[string]Transaction) {
	for txHash, tx := range blockTx {
		for i, out := range tx.Outputs {
			op := OutPoint{TxHash: txHash, Index: uint32(i)}
			t.base[op] = out
			if out.ScriptPublicKey != nil && *out.ScriptPublicKey != "" {
				t.pkCache[*out.ScriptPublicKey] = append(t.pkCache[*out.ScriptPublicKey], op)
			}
		}
	}
}

// Remove deletes op from the forward map and its entry from the reverse
// index. Returns false if op was not present.
func (t *TrackedUTXOSet) Remove(op OutPoint) bool {
	out, ok := t.base[op]
	if !ok {
		return false
	}
	delete(t.base, op)
	if out.ScriptPublicKey == nil {
		return true
	}
	spk := *out.ScriptPublicKey
	ops := t.pkCache[spk]
	for i, o := range ops {
		if o == op {
			ops = append(ops[:i], ops[i+1:]...)
			break
		}
	}
	if len(ops) == 0 {
		delete(t.pkCache, spk)
	} else {
		t.pkCache[spk] = ops
	}
	return true
}

// AddressBalance is the balance accumulated for one address.
type AddressBalance struct {
	Total      Asset
	OutPoints  []OutPoint
}

// BalanceFor sums token/receipt values across outpoints whose script
// public key is among addresses, and returns the per-address outpoint
// lists alongside the total.
func (t *TrackedUTXOSet) BalanceFor(addresses []string) (total Asset, perAddress map[string]AddressBalance) {
	perAddress = make(map[string]AddressBalance)
	for _, addr := range addresses {
		ops, ok := t.pkCache[addr]
		if !ok {
			continue
		}
		ab := AddressBalance{OutPoints: append([]OutPoint(nil), ops...)}
		for _, op := range ops {
			out := t.base[op]
			ab.Total = ab.Total.Add(out.Value)
			total = total.Add(out.Value)
		}
		perAddress[addr] = ab
	}
	return total, perAddress
}

// AllAddresses returns every script public key present in the forward
// map's outputs.
func (t *TrackedUTXOSet) AllAddresses() []string {
	out := make([]string, 0, len(t.pkCache))
	for spk := range t.pkCache {
		out = append(out, spk)
	}
	return out
}

// ReconstructedPkCache recomputes the reverse index from the forward map
// from scratch. Exposed for tests asserting invariant 1 (UTXO index
// consistency): ReconstructedPkCache must equal the live pkCache after
// any sequence of Extend/Remove.
func (t *TrackedUTXOSet) ReconstructedPkCache() map[string][]OutPoint {
	out := make(map[string][]OutPoint)
	for op, txout := range t.base {
		if txout.ScriptPublicKey == nil || *txout.ScriptPublicKey == "" {
			continue
		}
		out[*txout.ScriptPublicKey] = append(out[*txout.ScriptPublicKey], op)
	}
	return out
}
