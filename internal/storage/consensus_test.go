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

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/wire"
)

func samplePartBlock(blockIdx uint64, bNum uint64) wire.CommonBlockInfo {
	return wire.CommonBlockInfo{
		Block: chain.Block{Header: chain.BlockHeader{BNum: bNum}},
	}
}

func TestConsensusedState_IgnoresStaleBlockIdx(t *testing.T) {
	cs := NewConsensusedState(2)
	cs.ReceivePartBlock("p1", PartBlockProposal{BlockIdx: 99, Common: samplePartBlock(99, 1)})
	_, _, ok := cs.CheckCompletion()
	assert.False(t, ok)
}

func TestConsensusedState_CompletesOnMajority(t *testing.T) {
	cs := NewConsensusedState(2)
	common := samplePartBlock(0, 1)

	cs.ReceivePartBlock("p1", PartBlockProposal{BlockIdx: 0, Common: common, Extra: wire.MinedBlockInfo{Nonce: []byte{1}}})
	cs.ReceivePartBlock("p2", PartBlockProposal{BlockIdx: 0, Common: common, Extra: wire.MinedBlockInfo{Nonce: []byte{1}}})

	cs.ReceiveCompleteTimeoutVote("p1", 0)
	_, _, ok := cs.CheckCompletion()
	assert.False(t, ok, "only one timeout vote so far")

	cs.ReceiveCompleteTimeoutVote("p2", 0)
	gotCommon, gotExtra, ok := cs.CheckCompletion()
	require.True(t, ok)
	assert.Equal(t, common, gotCommon)
	assert.Equal(t, []byte{1}, gotExtra.Nonce)
}

func TestConsensusedState_PicksLargestGroupOnDisagreement(t *testing.T) {
	cs := NewConsensusedState(2)
	majority := samplePartBlock(0, 1)
	minority := samplePartBlock(0, 2)

	cs.ReceivePartBlock("p1", PartBlockProposal{BlockIdx: 0, Common: majority})
	cs.ReceivePartBlock("p2", PartBlockProposal{BlockIdx: 0, Common: majority})
	cs.ReceivePartBlock("p3", PartBlockProposal{BlockIdx: 0, Common: minority})

	cs.ReceiveCompleteTimeoutVote("p1", 0)
	cs.ReceiveCompleteTimeoutVote("p2", 0)

	gotCommon, _, ok := cs.CheckCompletion()
	require.True(t, ok)
	assert.Equal(t, majority, gotCommon)
}

func TestConsensusedState_AdvanceResetsRound(t *testing.T) {
	cs := NewConsensusedState(1)
	common := samplePartBlock(0, 1)
	cs.ReceivePartBlock("p1", PartBlockProposal{BlockIdx: 0, Common: common})
	cs.ReceiveCompleteTimeoutVote("p1", 0)
	_, _, ok := cs.CheckCompletion()
	require.True(t, ok)

	cs.Advance()
	assert.Equal(t, uint64(1), cs.CurrentBlockIdx)
	_, _, ok = cs.CheckCompletion()
	assert.False(t, ok, "accumulator must be cleared after Advance")
}
