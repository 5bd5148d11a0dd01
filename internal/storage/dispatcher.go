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
	"context"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"go.etcd.io/raft/v3/raftpb"

	"github.com/corevault/core/internal/log"
	"github.com/corevault/core/internal/metrics"
	"github.com/corevault/core/internal/raftwrap"
	"github.com/corevault/core/internal/wire"
)

var dispatchLogger = log.NewModuleLogger(log.StorageNode)

// Transport decouples the dispatcher's event loop from socket code, the
// same shape internal/compute's dispatcher uses, so both node kinds can
// share one concrete transport implementation without either package
// importing the other.
type Transport interface {
	Inbox() <-chan InboundFrame
	SendTo(peerAddr string, code uint8, payload interface{}) error
}

// InboundFrame is one decoded request arriving from peerAddr.
type InboundFrame struct {
	From    string
	Code    uint8
	Payload interface{}
}

// committedPayload tags a Raft-committed entry with which
// ConsensusedState operation to apply, mirroring internal/compute's
// envelope of the same name.
type committedPayload struct {
	Kind string // "PartBlock" or "TimeoutVote"
	Data []byte
}

type timeoutVoteProposal struct {
	BlockIdx uint64
}

// Dispatcher runs the storage node's single event loop (C9): accepting
// PartBlock submissions from the compute group, replicating them via
// Raft, and once a round reaches SufficientMajority, durably storing
// the winning block and flooding SendBlockStored back to every compute
// peer.
type Dispatcher struct {
	selfID      string
	group       string
	computeAddr []string
	peerTable   map[uint64]string

	state  *ConsensusedState
	store  *Store
	raft   *raftwrap.ActiveRaft
	ledger *raftwrap.Ledger
	tr     Transport

	timeoutTicker *time.Ticker
	proposalSeq   uint64
}

// DispatcherConfig bundles the dependencies a Dispatcher needs.
type DispatcherConfig struct {
	SelfID      string
	Group       string
	ComputeAddr []string
	PeerTable   map[uint64]string
	State       *ConsensusedState
	Store       *Store
	Raft        *raftwrap.ActiveRaft
	Ledger      *raftwrap.Ledger
	Transport   Transport
	VoteTimeout time.Duration
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.VoteTimeout == 0 {
		cfg.VoteTimeout = 2 * time.Second
	}
	return &Dispatcher{
		selfID:        cfg.SelfID,
		group:         cfg.Group,
		computeAddr:   cfg.ComputeAddr,
		peerTable:     cfg.PeerTable,
		state:         cfg.State,
		store:         cfg.Store,
		raft:          cfg.Raft,
		ledger:        cfg.Ledger,
		tr:            cfg.Transport,
		timeoutTicker: time.NewTicker(cfg.VoteTimeout),
	}
}

// Run drives the event loop until ctx is cancelled. NextCommit/NextMsg
// block on the Raft wrapper directly, so two relay goroutines bridge
// them into this select, the same bridging internal/compute's
// dispatcher uses for the same reason.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.timeoutTicker.Stop()

	commitCh := make(chan raftwrap.RaftCommit)
	go func() {
		defer close(commitCh)
		for {
			c, ok := d.raft.NextCommit(ctx)
			if !ok {
				return
			}
			select {
			case commitCh <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	outboundCh := make(chan raftwrap.OutboundMessage)
	go func() {
		defer close(outboundCh)
		for {
			m, ok := d.raft.NextMsg(ctx)
			if !ok {
				return
			}
			select {
			case outboundCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-d.tr.Inbox():
			if !ok {
				return
			}
			d.handleInbound(frame)

		case c, ok := <-commitCh:
			if !ok {
				return
			}
			d.handleCommit(c)

		case m, ok := <-outboundCh:
			if !ok {
				return
			}
			d.forwardRaftMessage(m)

		case <-d.timeoutTicker.C:
			d.onVoteTimeout()
		}
	}
}

func (d *Dispatcher) forwardRaftMessage(m raftwrap.OutboundMessage) {
	frame, err := m.Message.Marshal()
	if err != nil {
		dispatchLogger.Warn("failed to marshal outbound raft message", "err", err)
		return
	}
	addr := d.peerTable[m.To]
	if addr == "" {
		return
	}
	if err := d.tr.SendTo(addr, wire.SendRaftCmdMsg, wire.SendRaftCmd{RaftFrame: frame}); err != nil {
		dispatchLogger.Warn("failed to forward raft message", "to", addr, "err", err)
	}
}

func (d *Dispatcher) handleInbound(f InboundFrame) {
	switch p := f.Payload.(type) {
	case wire.SendBlockToStorage:
		d.handleSendBlockToStorage(f.From, p)
	case wire.SendRaftCmd:
		var m raftpb.Message
		if err := m.Unmarshal(p.RaftFrame); err != nil {
			dispatchLogger.Warn("dropping malformed raft frame", "from", f.From, "err", err)
			return
		}
		d.raft.ReceivedMessage(m)
	case wire.Closing:
		// Storage nodes do not track a shutdown group of their own;
		// a compute-group shutdown is observed via the BlockStoredInfo
		// Shutdown flag on the next completed round instead.
	default:
		dispatchLogger.Warn("unrecognized request", "from", f.From, "code", f.Code)
	}
}

func (d *Dispatcher) handleSendBlockToStorage(from string, p wire.SendBlockToStorage) {
	proposal := PartBlockProposal{
		BlockIdx: p.Common.Block.Header.BNum,
		Common:   p.Common,
		Extra:    p.MinedInfo,
	}
	data, err := rlp.EncodeToBytes(partBlockWire{ProposerID: from, Proposal: proposal})
	if err != nil {
		dispatchLogger.Error("failed to encode part-block proposal", "err", err)
		return
	}
	d.propose("PartBlock", data)
}

func (d *Dispatcher) onVoteTimeout() {
	data, err := rlp.EncodeToBytes(timeoutVoteProposal{BlockIdx: d.state.CurrentBlockIdx})
	if err != nil {
		dispatchLogger.Error("failed to encode timeout-vote proposal", "err", err)
		return
	}
	d.propose("TimeoutVote", data)
}

func (d *Dispatcher) propose(kind string, data []byte) {
	payload, err := rlp.EncodeToBytes(committedPayload{Kind: kind, Data: data})
	if err != nil {
		dispatchLogger.Error("failed to encode committed payload envelope", "kind", kind, "err", err)
		return
	}
	d.proposalSeq++
	key := raftwrap.ContextKey{ProposerID: d.selfID, ProposalID: d.proposalSeq}
	d.ledger.Propose(key, payload, nil)
	if err := d.raft.Propose(key, payload); err != nil {
		dispatchLogger.Warn("propose failed", "kind", kind, "err", err)
	}
}

// partBlockWire carries the submitting proposer's ID alongside its
// PartBlockProposal through the Raft log, since ConsensusedState keys
// its vote accumulator by proposer ID.
type partBlockWire struct {
	ProposerID string
	Proposal   PartBlockProposal
}

func (d *Dispatcher) handleCommit(c raftwrap.RaftCommit) {
	metrics.CommitsTotal.WithLabelValues(d.group).Inc()

	switch c.Kind {
	case raftwrap.CommitNewLeader, raftwrap.CommitSnapshot:
		return
	}

	d.ledger.Commit(c.Ctx, d.state.CurrentBlockIdx)

	var env committedPayload
	if err := rlp.DecodeBytes(c.Data, &env); err != nil {
		dispatchLogger.Warn("failed to decode committed envelope", "index", c.Index, "err", err)
		return
	}

	switch env.Kind {
	case "PartBlock":
		var pb partBlockWire
		if err := rlp.DecodeBytes(env.Data, &pb); err != nil {
			dispatchLogger.Warn("failed to decode part-block commit", "err", err)
			return
		}
		d.state.ReceivePartBlock(pb.ProposerID, pb.Proposal)
	case "TimeoutVote":
		var v timeoutVoteProposal
		if err := rlp.DecodeBytes(env.Data, &v); err != nil {
			dispatchLogger.Warn("failed to decode timeout-vote commit", "err", err)
			return
		}
		d.state.ReceiveCompleteTimeoutVote(c.Ctx.ProposerID, v.BlockIdx)
	default:
		dispatchLogger.Warn("unrecognized committed payload kind", "kind", env.Kind, "index", c.Index)
		return
	}

	d.checkRoundCompletion()
}

// checkRoundCompletion applies and floods a just-completed round, per
// spec.md §4.9 steps 3-5, then advances to the next block index.
func (d *Dispatcher) checkRoundCompletion() {
	common, extra, ok := d.state.CheckCompletion()
	if !ok {
		return
	}
	info, err := d.store.ApplyCompleteBlock(common, extra)
	if err != nil {
		dispatchLogger.Error("failed to apply completed block", "err", err)
		return
	}
	d.state.Advance()
	for _, addr := range d.computeAddr {
		if err := d.tr.SendTo(addr, wire.SendBlockStoredMsg, wire.SendBlockStored{Info: info}); err != nil {
			dispatchLogger.Warn("failed to send block-stored notification", "to", addr, "err", err)
		}
	}
}
