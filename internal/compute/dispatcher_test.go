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
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/mining"
	"github.com/corevault/core/internal/raftwrap"
	"github.com/corevault/core/internal/sidecar"
	"github.com/corevault/core/internal/wire"
)

type sentMessage struct {
	Peer    string
	Code    uint8
	Payload interface{}
}

type fakeTransport struct {
	inbox chan InboundFrame
	mu    sync.Mutex
	sent  []sentMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan InboundFrame, 16)}
}

func (f *fakeTransport) Inbox() <-chan InboundFrame { return f.inbox }

func (f *fakeTransport) SendTo(peer string, code uint8, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Peer: peer, Code: code, Payload: payload})
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDispatcher(t *testing.T, params Params) (*Dispatcher, *fakeTransport, *raftwrap.ActiveRaft) {
	t.Helper()

	side, err := sidecar.Open(t.TempDir(), 1<<16)
	require.NoError(t, err)
	t.Cleanup(side.Close)

	ar, err := raftwrap.NewActiveRaftBootstrap(raftwrap.Config{
		ID:            1,
		Peers:         []raftwrap.PeerConfig{{ID: 1}},
		TickInterval:  2 * time.Millisecond,
		ElectionTick:  5,
		HeartbeatTick: 1,
	})
	require.NoError(t, err)
	t.Cleanup(ar.Close)

	tr := newFakeTransport()
	d, err := NewDispatcher(DispatcherConfig{
		SelfID:      "node-1",
		Group:       "compute-test",
		StorageAddr: "storage-1",
		PeerTable:   map[uint64]string{1: "node-1"},
		State:       NewConsensused(params),
		Raft:        ar,
		Ledger:      raftwrap.NewLedger(),
		Sidecar:     side,
		Transport:   tr,
		TxTimeout:   time.Hour, // tests drive the timeout path manually
	})
	require.NoError(t, err)
	return d, tr, ar
}

func awaitCommit(t *testing.T, ar *raftwrap.ActiveRaft) raftwrap.RaftCommit {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		c, ok := ar.NextCommit(ctx)
		require.True(t, ok, "timed out waiting for a commit")
		if c.Kind == raftwrap.CommitProposed {
			return c
		}
	}
}

func TestHandleSendTransactions_AdmitsValidRejectsInvalid(t *testing.T) {
	d, _, _ := newTestDispatcher(t, testParams())
	spendableOp := chain.OutPoint{TxHash: "src", Index: 0}
	d.state.UTXOSet.Extend(map[string]chain.Transaction{"src": {Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 10}}}}})

	validTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &spendableOp}}, Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 10}}}}
	coinbaseTx := chain.Transaction{Inputs: []chain.TxIn{{}}}

	d.handleSendTransactions("peer-a", wire.SendTransactions{Transactions: []chain.Transaction{validTx, coinbaseTx}})

	assert.Len(t, d.state.TxPool, 1)
	_, ok := d.state.TxPool[validTx.Hash()]
	assert.True(t, ok)

	pending, err := d.side.ListLocalTransactions()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestHandleSendTransactions_RejectsWhenPoolFull(t *testing.T) {
	d, _, _ := newTestDispatcher(t, testParams())
	spendableOp := chain.OutPoint{TxHash: "src", Index: 0}
	d.state.UTXOSet.Extend(map[string]chain.Transaction{"src": {Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 10}}}}})
	for i := 0; i < TxPoolLimit; i++ {
		d.state.TxPool[strconv.Itoa(i)] = chain.Transaction{}
	}
	validTx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &spendableOp}}, Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 10}}}}
	d.handleSendTransactions("peer-a", wire.SendTransactions{Transactions: []chain.Transaction{validTx}})
	assert.Len(t, d.state.TxPool, TxPoolLimit, "pool-full path must not admit any more entries")
}

func TestHandlePartitionRequest_FirstFullProposesGenesisUTXO(t *testing.T) {
	params := testParams()
	params.Mining.PartitionFullSize = 2
	d, _, ar := newTestDispatcher(t, params)

	d.handlePartitionRequest("peer-a")
	assert.Len(t, d.requestList, 1)
	d.handlePartitionRequest("peer-b")
	assert.Len(t, d.requestList, 2)

	commit := awaitCommit(t, ar)
	var env committedPayload
	require.NoError(t, rlp.DecodeBytes(commit.Data, &env))
	assert.Equal(t, "FirstBlock", env.Kind)
}

func TestHandlePartitionRequest_DuplicatePeerIgnored(t *testing.T) {
	d, _, _ := newTestDispatcher(t, testParams())
	d.handlePartitionRequest("peer-a")
	d.handlePartitionRequest("peer-a")
	assert.Len(t, d.requestList, 1)
}

func TestOnTxTimeout_ChunksBySizeAndProposes(t *testing.T) {
	params := testParams()
	params.BlockSizeInTx = 4
	params.RaftGroupSize = 1
	d, _, ar := newTestDispatcher(t, params)

	spendableOp := chain.OutPoint{TxHash: "src", Index: 0}
	d.state.UTXOSet.Extend(map[string]chain.Transaction{"src": {Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: 100}}}}})
	for i := 0; i < 6; i++ {
		tx := chain.Transaction{Inputs: []chain.TxIn{{PrevOut: &spendableOp}}, Outputs: []chain.TxOut{{Value: chain.Asset{Tokens: uint64(i + 1)}}}}
		d.state.TxPool[tx.Hash()] = tx
	}

	d.onTxTimeout()

	commit := awaitCommit(t, ar)
	var env committedPayload
	require.NoError(t, rlp.DecodeBytes(commit.Data, &env))
	require.Equal(t, "Transactions", env.Kind)

	var chunk []txChunkEntry
	require.NoError(t, rlp.DecodeBytes(env.Data, &chunk))
	assert.Len(t, chunk, 4, "chunk size is BlockSizeInTx/RaftGroupSize")
}

func TestOnTxTimeout_EmptyPoolProposesNothing(t *testing.T) {
	d, _, _ := newTestDispatcher(t, testParams())
	d.onTxTimeout()
	assert.Equal(t, uint64(0), d.proposalSeq, "an empty pool must not generate a proposal")
}

func TestHandleClosing_EmptyGroupFloodsClosing(t *testing.T) {
	d, tr, _ := newTestDispatcher(t, testParams())
	d.shutdownGroup["peer-a"] = true
	d.requestList["peer-a"] = true

	d.handleClosing("peer-a")

	assert.Empty(t, d.shutdownGroup)
	require.Equal(t, 1, tr.sentCount())
	assert.Equal(t, uint8(wire.ClosingMsg), tr.sent[0].Code)
}

func TestHandleClosing_NonEmptyGroupDoesNotFlood(t *testing.T) {
	d, tr, _ := newTestDispatcher(t, testParams())
	d.shutdownGroup["peer-a"] = true
	d.shutdownGroup["peer-b"] = true

	d.handleClosing("peer-a")

	assert.Len(t, d.shutdownGroup, 1)
	assert.Equal(t, 0, tr.sentCount())
}

func TestHandlePartitionEntry_RejectsAddressMismatchAndDuplicate(t *testing.T) {
	params := testParams()
	params.Mining.MiningDifficulty = 0
	params.Mining.PartitionFullSize = 4
	d, _, ar := newTestDispatcher(t, params)

	mismatched := wire.SendPartitionEntry{PartitionEntry: chain.ProofOfWork{Address: "other", Nonce: []byte("n")}}
	d.handlePartitionEntry("peer-a", mismatched)
	assert.Equal(t, uint64(0), d.proposalSeq, "address mismatch must never reach a proposal")

	valid := wire.SendPartitionEntry{PartitionEntry: chain.ProofOfWork{Address: "peer-a", Nonce: []byte("n")}}
	d.handlePartitionEntry("peer-a", valid)
	d.handleCommit(awaitCommit(t, ar))
	assert.Len(t, d.partitionList, 1)
	assert.Equal(t, 1, d.state.FirstPipeline.IntakeLen())

	d.handlePartitionEntry("peer-a", valid)
	assert.Equal(t, uint64(1), d.proposalSeq, "duplicate peer entry must not be re-proposed")
}

func TestApplyMiningParticipant_ClosesIntakeOnceFull(t *testing.T) {
	params := testParams()
	params.Mining.MiningDifficulty = 0
	params.Mining.PartitionFullSize = 2
	d, _, ar := newTestDispatcher(t, params)
	zero := uint64(0)
	d.state.CurrentBNum = &zero

	d.handlePartitionEntry("peer-a", wire.SendPartitionEntry{PartitionEntry: chain.ProofOfWork{Address: "peer-a", Nonce: []byte("n")}})
	d.handleCommit(awaitCommit(t, ar))
	assert.Equal(t, mining.PhaseOpen, d.state.FirstPipeline.Phase())

	d.handlePartitionEntry("peer-b", wire.SendPartitionEntry{PartitionEntry: chain.ProofOfWork{Address: "peer-b", Nonce: []byte("n")}})
	d.handleCommit(awaitCommit(t, ar)) // MiningParticipant(peer-b): intake reaches full size, proposes ParticipantIntakeClosed
	d.handleCommit(awaitCommit(t, ar)) // ParticipantIntakeClosed: closes intake and starts PoW collection

	assert.Equal(t, mining.PhasePoWCollection, d.state.FirstPipeline.Phase())
	assert.True(t, d.state.FirstPipeline.InCohort("peer-a"))
	assert.True(t, d.state.FirstPipeline.InCohort("peer-b"))
}

func TestFlattenUTXOAndTxChunk_DeterministicOrder(t *testing.T) {
	utxo := map[chain.OutPoint]chain.TxOut{
		{TxHash: "b", Index: 0}: {},
		{TxHash: "a", Index: 1}: {},
		{TxHash: "a", Index: 0}: {},
	}
	flat := flattenUTXO(utxo)
	require.Len(t, flat, 3)
	assert.Equal(t, "a", flat[0].Op.TxHash)
	assert.Equal(t, uint32(0), flat[0].Op.Index)
	assert.Equal(t, "a", flat[1].Op.TxHash)
	assert.Equal(t, uint32(1), flat[1].Op.Index)
	assert.Equal(t, "b", flat[2].Op.TxHash)

	chunk := flattenTxChunk(map[string]chain.Transaction{"z": {}, "a": {}})
	require.Len(t, chunk, 2)
	assert.Equal(t, "a", chunk[0].Hash)
	assert.Equal(t, "z", chunk[1].Hash)
}
