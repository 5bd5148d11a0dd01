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

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func sampleCommon() wire.CommonBlockInfo {
	tx := chain.Transaction{Version: 1, Inputs: []chain.TxIn{{}}}
	txHash := tx.Hash()
	block := chain.Block{
		Header:  chain.BlockHeader{BNum: 7, MerkleRoot: chain.MerkleRoot([]string{txHash})},
		TxHash:  []string{txHash},
	}
	return wire.CommonBlockInfo{
		Block:   block,
		BlockTx: map[string]chain.Transaction{txHash: tx},
	}
}

func TestApplyCompleteBlock_WritesIndexedKeys(t *testing.T) {
	s := openTestStore(t)
	common := sampleCommon()
	extra := wire.MinedBlockInfo{MiningTx: chain.Transaction{Version: 2}}

	info, err := s.ApplyCompleteBlock(common, extra)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), info.BlockNum)
	assert.Equal(t, common.Block.Hash(), info.BlockHash)

	has, err := s.Has(common.Block.Hash())
	require.NoError(t, err)
	assert.True(t, has)

	blockHashKey, err := s.db.Get(indexedBlockHashKey(7), nil)
	require.NoError(t, err)
	assert.Equal(t, common.Block.Hash(), string(blockHashKey))

	last, err := s.LastBlockHash()
	require.NoError(t, err)
	assert.Equal(t, common.Block.Hash(), last)
}

func TestApplyCompleteBlock_IdempotentOnDuplicate(t *testing.T) {
	s := openTestStore(t)
	common := sampleCommon()
	extra := wire.MinedBlockInfo{MiningTx: chain.Transaction{Version: 2}}

	info1, err := s.ApplyCompleteBlock(common, extra)
	require.NoError(t, err)
	info2, err := s.ApplyCompleteBlock(common, extra)
	require.NoError(t, err)
	assert.Equal(t, info1, info2)
}

func TestApplyCompleteBlock_RejectsMissingTxBody(t *testing.T) {
	s := openTestStore(t)
	common := sampleCommon()
	common.BlockTx = map[string]chain.Transaction{}

	_, err := s.ApplyCompleteBlock(common, wire.MinedBlockInfo{})
	assert.Error(t, err)
}
