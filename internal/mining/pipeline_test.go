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

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault/core/internal/chain"
)

const testModulus = "6864797660130609714981900799081393217269435300143305409394463459185543183397656052122559640661454554977296311391480858037121987999716643812574028291115057151"

func lockedPipeline(t *testing.T, addrs ...string) *Pipeline {
	t.Helper()
	p := NewPipeline(len(addrs))
	for _, a := range addrs {
		admitted, _ := p.AddParticipant(a)
		require.True(t, admitted)
	}
	modulus, ok := new(big.Int).SetString(testModulus, 10)
	require.True(t, ok)
	require.True(t, p.CloseIntake([]string{"tx1"}, nil, 1, modulus, 5))
	require.NoError(t, p.StartPoWCollection())
	return p
}

func TestPipeline_AdmitsUpToFullSize(t *testing.T) {
	p := NewPipeline(2)
	admitted, first := p.AddParticipant("addrA")
	assert.True(t, admitted)
	assert.True(t, first)

	admitted, first = p.AddParticipant("addrB")
	assert.True(t, admitted)
	assert.False(t, first)

	admitted, _ = p.AddParticipant("addrC")
	assert.False(t, admitted, "third participant must be rejected once full")

	admitted, _ = p.AddParticipant("addrA")
	assert.False(t, admitted, "duplicate address must be rejected")
}

func TestPipeline_WinningPoWIdempotence(t *testing.T) {
	p := lockedPipeline(t, "addrA", "addrB")
	cb := chain.Transaction{Inputs: []chain.TxIn{{}}}

	info1, accepted := p.AcceptWinningPoW("addrA", []byte{1, 2, 3}, cb)
	require.True(t, accepted)

	info2, acceptedAgain := p.AcceptWinningPoW("addrA", []byte{9, 9, 9}, cb)
	assert.False(t, acceptedAgain, "resubmission must not alter pipeline state")
	assert.Equal(t, info1, info2)
}

func TestPipeline_RejectsNonCohortMember(t *testing.T) {
	p := lockedPipeline(t, "addrA")
	_, accepted := p.AcceptWinningPoW("stranger", []byte{1}, chain.Transaction{})
	assert.False(t, accepted)
}

func TestPipeline_WinnerSelectionTerminatesWithOneWinner(t *testing.T) {
	p := lockedPipeline(t, "addrA", "addrB", "addrC")
	cb := chain.Transaction{Inputs: []chain.TxIn{{}}}

	_, ok := p.AcceptWinningPoW("addrA", []byte{1}, cb)
	require.True(t, ok)
	_, ok = p.AcceptWinningPoW("addrB", []byte{2}, cb)
	require.True(t, ok)

	winner, ok := p.SelectWinner()
	require.True(t, ok)
	assert.Contains(t, []string{"addrA", "addrB"}, winner.Address)
	assert.Equal(t, PhaseWinnerSelected, p.Phase())

	got, ok := p.WinnerInfo()
	require.True(t, ok)
	assert.Equal(t, winner, got)
}

func TestPipeline_SelectWinnerRequiresSubmissions(t *testing.T) {
	p := lockedPipeline(t, "addrA")
	_, ok := p.SelectWinner()
	assert.False(t, ok)
}

func TestValidatePoW(t *testing.T) {
	reward := chain.Asset{Tokens: 100}
	coinbase := chain.Transaction{
		Inputs:  []chain.TxIn{{}},
		Outputs: []chain.TxOut{{Value: reward}},
	}
	root := "deadbeef"
	block := chain.Block{Header: chain.BlockHeader{MerkleRoot: root}}

	merkleForPoW := chain.HashBytes([]byte(root + coinbase.Hash()))
	var nonce []byte
	for i := 0; i < 1<<20; i++ {
		nonce = big.NewInt(int64(i)).Bytes()
		digest := chain.HashBytes(append([]byte(merkleForPoW), nonce...))
		if chain.MeetsDifficulty(digest, chain.MiningDifficulty) {
			break
		}
	}

	assert.True(t, mining_validatePoWHelper(block, nonce, coinbase, reward))
}

// mining_validatePoWHelper isolates the ValidatePoW call so the brute
// force search above can share its digest formula with the real
// implementation without duplicating it inline in the assertion.
func mining_validatePoWHelper(b chain.Block, nonce []byte, cb chain.Transaction, reward chain.Asset) bool {
	return ValidatePoW(b, nonce, cb, reward, chain.MiningDifficulty)
}

func TestValidatePoW_RejectsWrongReward(t *testing.T) {
	coinbase := chain.Transaction{
		Inputs:  []chain.TxIn{{}},
		Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 1}}},
	}
	block := chain.Block{Header: chain.BlockHeader{MerkleRoot: "x"}}
	assert.False(t, ValidatePoW(block, []byte{1}, coinbase, chain.Asset{Tokens: 100}, chain.MiningDifficulty))
}

func TestValidatePoW_RejectsNonCoinbase(t *testing.T) {
	tx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &chain.OutPoint{TxHash: "x"}}}}
	block := chain.Block{Header: chain.BlockHeader{MerkleRoot: "x"}}
	assert.False(t, ValidatePoW(block, []byte{1}, tx, chain.Asset{}, chain.MiningDifficulty))
}
