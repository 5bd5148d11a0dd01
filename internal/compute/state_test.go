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
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/config"
	"github.com/corevault/core/internal/mining"
	"github.com/corevault/core/internal/wire"
)

// testUnicornModulus is a real prime satisfying the UNiCORN validity
// rule (p >= 2^(2*securityLevel) and probably prime), shared with
// internal/mining's own tests so CloseIntake/StartPoWCollection succeed
// in tests that exercise the full generate-block-to-PoW-collection path.
const testUnicornModulus = "6864797660130609714981900799081393217269435300143305409394463459185543183397656052122559640661454554977296311391480858037121987999716643812574028291115057151"

func testParams() Params {
	modulus, ok := new(big.Int).SetString(testUnicornModulus, 10)
	if !ok {
		panic("invalid test unicorn modulus")
	}
	return Params{
		BlockSizeInTx:      8,
		RaftGroupSize:      1,
		UnanimousMajority:  2,
		SufficientMajority: 2,
		SanctionedTxHashes: map[string]bool{},
		Reward:             config.RewardConfig{InitialReward: 100, HalvingPeriod: 1000, MaxHalvings: 8},
		Mining:             config.MiningConfig{PartitionFullSize: 4, MiningDifficulty: 1, UnicornSecurityBits: 1, UnicornIterations: 5},
		UnicornModulus:     modulus,
	}
}

func TestApplyFirstBlock_InstallsGenesisOnUnanimousMajority(t *testing.T) {
	c := NewConsensused(testParams())
	pk := "addr1"
	out := chain.TxOut{Value: chain.Asset{Tokens: 500}, ScriptPublicKey: &pk}
	utxo := map[chain.OutPoint]chain.TxOut{{TxHash: "genesis0", Index: 0}: out}

	ev, err := c.ApplyFirstBlock("p1", utxo)
	require.NoError(t, err)
	assert.Nil(t, ev, "first vote alone must not install genesis")
	assert.Nil(t, c.CurrentBNum)

	ev, err = c.ApplyFirstBlock("p2", utxo)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "FirstBlock", ev.Kind)
	require.NotNil(t, c.CurrentBNum)
	assert.Equal(t, uint64(0), *c.CurrentBNum)
	assert.Equal(t, uint64(500), c.CurrentCirculation)
}

func TestApplyFirstBlock_DisagreeingVotesDoNotMerge(t *testing.T) {
	c := NewConsensused(testParams())
	utxoA := map[chain.OutPoint]chain.TxOut{{TxHash: "a"}: {Value: chain.Asset{Tokens: 1}}}
	utxoB := map[chain.OutPoint]chain.TxOut{{TxHash: "b"}: {Value: chain.Asset{Tokens: 2}}}

	ev, _ := c.ApplyFirstBlock("p1", utxoA)
	assert.Nil(t, ev)
	ev, _ = c.ApplyFirstBlock("p2", utxoB)
	assert.Nil(t, ev, "votes for different UTXO sets must not combine")
}

func TestIsValidTransaction_RejectsCoinbaseSanctionedAndLocked(t *testing.T) {
	c := NewConsensused(testParams())
	zero := uint64(5)
	c.CurrentBNum = &zero

	coinbaseTx := chain.Transaction{Inputs: []chain.TxIn{{}}}
	assert.False(t, c.IsValidTransaction(coinbaseTx), "coinbase must never be pool-admitted")

	sanctionedOp := chain.OutPoint{TxHash: "bad", Index: 0}
	c.UTXOSet.Extend(map[string]chain.Transaction{"bad": {Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 1}}}}})
	c.cfg.SanctionedTxHashes["bad"] = true
	sanctionedTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &sanctionedOp}}}
	assert.False(t, c.IsValidTransaction(sanctionedTx))

	lockedOp := chain.OutPoint{TxHash: "locked", Index: 0}
	c.UTXOSet.Extend(map[string]chain.Transaction{"locked": {Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 1}, Locktime: 100}}}})
	lockedTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &lockedOp}}}
	assert.False(t, c.IsValidTransaction(lockedTx), "locktime in the future must reject")

	spendableOp := chain.OutPoint{TxHash: "ok", Index: 0}
	c.UTXOSet.Extend(map[string]chain.Transaction{"ok": {Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 1}, Locktime: 1}}}})
	spendableTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &spendableOp}}}
	assert.True(t, c.IsValidTransaction(spendableTx))
}

func TestGenerateBlock_PurgesInvalidAndOrdersByHash(t *testing.T) {
	c := NewConsensused(testParams())
	zero := uint64(1)
	c.CurrentBNum = &zero

	spendableOp := chain.OutPoint{TxHash: "src", Index: 0}
	c.UTXOSet.Extend(map[string]chain.Transaction{"src": {Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 10}}}}})

	validTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &spendableOp}}, Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 10}}}}
	invalidTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &chain.OutPoint{TxHash: "missing"}}}}

	c.TxPool[validTx.Hash()] = validTx
	c.TxPool[invalidTx.Hash()] = invalidTx

	pipeline := mining.NewPipeline(testParams().Mining.PartitionFullSize)
	block, err := c.GenerateBlock(pipeline, nil)
	require.NoError(t, err)

	assert.Len(t, block.TxHash, 1)
	assert.Equal(t, validTx.Hash(), block.TxHash[0])
	assert.Len(t, c.TxPool, 0, "both the admitted and the invalid tx leave the pool")
	_, stillHas := c.UTXOSet.Get(spendableOp)
	assert.False(t, stillHas, "GenerateBlock removes outpoints consumed by admitted transactions")
}

func TestGenerateBlock_DropsSecondSpenderOfSameOutpoint(t *testing.T) {
	c := NewConsensused(testParams())
	zero := uint64(1)
	c.CurrentBNum = &zero

	spendableOp := chain.OutPoint{TxHash: "src", Index: 0}
	c.UTXOSet.Extend(map[string]chain.Transaction{"src": {Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 10}}}}})

	firstTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &spendableOp}}, Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 10}}}}
	secondTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &spendableOp}}, Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 9}}}}
	require.NotEqual(t, firstTx.Hash(), secondTx.Hash())

	c.TxPool[firstTx.Hash()] = firstTx
	c.TxPool[secondTx.Hash()] = secondTx

	admittedHash := firstTx.Hash()
	if secondTx.Hash() < firstTx.Hash() {
		admittedHash = secondTx.Hash()
	}

	pipeline := mining.NewPipeline(testParams().Mining.PartitionFullSize)
	block, err := c.GenerateBlock(pipeline, nil)
	require.NoError(t, err)

	assert.Len(t, block.TxHash, 1, "only one of the two double-spending txs is admitted")
	assert.Equal(t, admittedHash, block.TxHash[0], "the ascending-hash-order winner is admitted")
	assert.Len(t, c.TxPool, 0, "the dropped double-spend leaves the pool rather than lingering")
	_, stillHas := c.UTXOSet.Get(spendableOp)
	assert.False(t, stillHas, "the outpoint is removed once, by its single admitted spender")
}

func TestApplyBlock_ShutdownBoundaryFreezesStateAdvance(t *testing.T) {
	c := NewConsensused(testParams())
	zero := uint64(3)
	c.CurrentBNum = &zero

	info := wire.BlockStoredInfo{BlockHash: "h1", BlockNum: 4, Shutdown: true}
	ev, _ := c.ApplyBlock("p1", info)
	assert.Nil(t, ev)
	ev, _ = c.ApplyBlock("p2", info)
	require.NotNil(t, ev)
	assert.Equal(t, "Shutdown", ev.Kind)
	assert.Equal(t, SpecialShutdown, c.SpecialHandling)
	assert.Equal(t, uint64(4), *c.CurrentBNum)
}
