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
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"go.etcd.io/raft/v3/raftpb"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/errs"
	"github.com/corevault/core/internal/log"
	"github.com/corevault/core/internal/metrics"
	"github.com/corevault/core/internal/mining"
	"github.com/corevault/core/internal/raftwrap"
	"github.com/corevault/core/internal/sidecar"
	"github.com/corevault/core/internal/wire"
)

// intakeClosingTimeout is the §4.5/§5 "1-second closing timer" armed on
// the first MiningParticipant admitted into an Open pipeline.
const intakeClosingTimeout = time.Second

var dispatchLogger = log.NewModuleLogger(log.ComputeNode)

// TX_POOL_LIMIT from spec.md §4.7: the pool admission ceiling past which
// SendTransactions is rejected outright rather than partially admitted.
const TxPoolLimit = 1 << 16

// Transport decouples the dispatcher's event loop from actual socket
// code: Inbox delivers frames a peer sent us, SendTo ships one to a
// named peer. The concrete transport (framing, dialing, TLS) lives
// outside this package; see SPEC_FULL.md §4.3/§6.
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

// EventPublisher fans out observational notifications to an external
// analytics sink. A nil-safe no-op implementation is used when no sink
// is configured.
type EventPublisher interface {
	PublishBlockEvent(kind string, bNum uint64, hash string, txCount int) error
}

// PartitionDedupCache rehydrates the in-memory partition-round dedup set
// across a dispatcher restart. The in-memory partition list for the
// current round remains authoritative; this is a cache, never a source
// of truth.
type PartitionDedupCache interface {
	MarkSeen(randomNum []byte, peerAddr string) (alreadySeen bool, err error)
}

type noopPublisher struct{}

func (noopPublisher) PublishBlockEvent(string, uint64, string, int) error { return nil }

type noopDedupCache struct{}

func (noopDedupCache) MarkSeen([]byte, string) (bool, error) { return false, nil }

// lastOutboundKind tags the most recent meaningful flood, consulted by
// resend_trigger_message.
type lastOutboundKind int

const (
	lastOutboundNone lastOutboundKind = iota
	lastOutboundRandomNum
	lastOutboundPartitionAndBlock
	lastOutboundMinedBlock
)

// committedPayload is the tagged envelope every proposal carries inside
// the Raft entry, so a replica applying a committed item knows which
// consensused-state operation to run without guessing from shape alone.
type committedPayload struct {
	Kind string // "FirstBlock", "BlockStored", "Transactions", "MiningParticipant", "ParticipantIntakeClosed", "WinningPoW"
	Data []byte
}

type winningPoWProposal struct {
	Address string
	Info    chain.WinningPoWInfo
}

// miningParticipantProposal carries one locked-in partition entry
// through Raft so every replica admits the same address, in the same
// order, into its own copy of the pipeline's intake (§4.5).
type miningParticipantProposal struct {
	Address string
	Entry   chain.ProofOfWork
}

// Dispatcher runs the compute node's single event loop (C7): it owns the
// consensused state, the Raft wrapper, the local durable sidecar, and
// the transport, and drives every inbound request, periodic chunking
// task, and flooding rule described in spec.md §4.7.
type Dispatcher struct {
	selfID      string
	group       string // metrics/log label, e.g. the Raft group name
	storageAddr string
	peerTable   map[uint64]string

	state  *Consensused
	raft   *raftwrap.ActiveRaft
	ledger *raftwrap.Ledger
	side   *sidecar.Sidecar
	tr     Transport
	events EventPublisher
	dedup  PartitionDedupCache

	// requestList is the durable set of peers waiting on genesis/partition
	// participation; notifyList is the durable set of user subscribers.
	requestList map[string]bool
	notifyList  map[string]bool
	// shutdownGroup is the set of peers still expected to send Closing
	// before a coordinated shutdown completes.
	shutdownGroup map[string]bool

	// partitionList accumulates this round's locked-in PoW entries, keyed
	// by peer address for dedup.
	partitionList map[string]chain.ProofOfWork

	// intakeCloseC fires once the §4.5 1-second closing timer armed on
	// the first admitted MiningParticipant expires. nil (blocks forever
	// in Run's select) whenever no round is currently accepting intake.
	intakeCloseTimer *time.Timer
	intakeCloseC     <-chan time.Time

	currentRandomNum []byte

	txTimeout *time.Ticker

	lastOutbound lastOutboundKind

	proposalSeq   uint64
	keyRunCounter uint64
}

// DispatcherConfig bundles the dependencies a Dispatcher needs, letting
// cmd/compute wire real implementations (and tests wire fakes) without
// the dispatcher importing transport/config packages directly.
type DispatcherConfig struct {
	SelfID      string
	Group       string
	StorageAddr string
	PeerTable   map[uint64]string
	State       *Consensused
	Raft        *raftwrap.ActiveRaft
	Ledger      *raftwrap.Ledger
	Sidecar     *sidecar.Sidecar
	Transport   Transport
	Events      EventPublisher
	Dedup       PartitionDedupCache
	TxTimeout   time.Duration
}

// NewDispatcher constructs a Dispatcher, restoring its durable request
// and notify lists (and any still-pending local transactions) from the
// sidecar.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Events == nil {
		cfg.Events = noopPublisher{}
	}
	if cfg.Dedup == nil {
		cfg.Dedup = noopDedupCache{}
	}
	if cfg.TxTimeout == 0 {
		cfg.TxTimeout = 2 * time.Second
	}

	d := &Dispatcher{
		selfID:        cfg.SelfID,
		group:         cfg.Group,
		storageAddr:   cfg.StorageAddr,
		peerTable:     cfg.PeerTable,
		state:         cfg.State,
		raft:          cfg.Raft,
		ledger:        cfg.Ledger,
		side:          cfg.Sidecar,
		tr:            cfg.Transport,
		events:        cfg.Events,
		dedup:         cfg.Dedup,
		requestList:   make(map[string]bool),
		notifyList:    make(map[string]bool),
		shutdownGroup: make(map[string]bool),
		partitionList: make(map[string]chain.ProofOfWork),
		txTimeout:     time.NewTicker(cfg.TxTimeout),
	}

	if err := d.restoreDurableLists(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) restoreDurableLists() error {
	if raw, err := d.side.Get(sidecar.ColumnInternal, sidecar.RequestListKey); err != nil {
		return err
	} else if raw != nil {
		var list []string
		if err := rlp.DecodeBytes(raw, &list); err != nil {
			return errs.Serialization(err, "decode durable request list")
		}
		for _, p := range list {
			d.requestList[p] = true
		}
	}
	if raw, err := d.side.Get(sidecar.ColumnInternal, sidecar.UserNotifyListKey); err != nil {
		return err
	} else if raw != nil {
		var list []string
		if err := rlp.DecodeBytes(raw, &list); err != nil {
			return errs.Serialization(err, "decode durable notify list")
		}
		for _, p := range list {
			d.notifyList[p] = true
		}
	}
	if pending, err := d.side.ListLocalTransactions(); err == nil {
		for hash, body := range pending {
			var tx chain.Transaction
			if err := rlp.DecodeBytes(body, &tx); err == nil {
				d.state.TxPool[hash] = tx
			}
		}
	}
	return nil
}

func (d *Dispatcher) persistRequestList() error {
	data, err := rlp.EncodeToBytes(sortedKeys(d.requestList))
	if err != nil {
		return errs.Serialization(err, "encode durable request list")
	}
	return d.side.Put(sidecar.ColumnInternal, sidecar.RequestListKey, data)
}

func (d *Dispatcher) persistNotifyList() error {
	data, err := rlp.EncodeToBytes(sortedKeys(d.notifyList))
	if err != nil {
		return errs.Serialization(err, "encode durable notify list")
	}
	return d.side.Put(sidecar.ColumnInternal, sidecar.UserNotifyListKey, data)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Run drives the event loop until ctx is cancelled: incoming network
// frames, Raft commits, Raft outbound messages, and the transaction-
// timeout clock (spec.md §4.7). NextCommit/NextMsg block on the Raft
// wrapper directly, so two small relay goroutines bridge them into this
// select alongside the transport's channel and the ticker.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.txTimeout.Stop()

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

		case <-d.txTimeout.C:
			d.onTxTimeout()

		case <-d.intakeCloseC:
			d.onIntakeCloseTimer()
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

// handleInbound dispatches one decoded request per spec.md §4.7's table.
func (d *Dispatcher) handleInbound(f InboundFrame) {
	switch p := f.Payload.(type) {
	case wire.SendTransactions:
		d.handleSendTransactions(f.From, p)
	case wire.SendPartitionRequest:
		d.handlePartitionRequest(f.From)
	case wire.SendPartitionEntry:
		d.handlePartitionEntry(f.From, p)
	case wire.SendPoW:
		d.handleSendPoW(f.From, p)
	case wire.SendBlockStored:
		d.handleBlockStored(f.From, p)
	case wire.SendUserBlockNotificationRequest:
		d.notifyList[f.From] = true
		if err := d.persistNotifyList(); err != nil {
			dispatchLogger.Warn("failed to persist notify list", "err", err)
		}
	case wire.Closing:
		d.handleClosing(f.From)
	case wire.SendRaftCmd:
		var m raftpb.Message
		if err := m.Unmarshal(p.RaftFrame); err != nil {
			dispatchLogger.Warn("dropping malformed raft frame", "from", f.From, "err", err)
			return
		}
		d.raft.ReceivedMessage(m)
	default:
		dispatchLogger.Warn("unrecognized request", "from", f.From, "code", f.Code)
	}
}

func (d *Dispatcher) handleSendTransactions(from string, p wire.SendTransactions) {
	if len(d.state.TxPool) >= TxPoolLimit {
		dispatchLogger.Warn("rejecting transactions: pool full", "from", from, "pool_size", len(d.state.TxPool))
		return
	}
	admitted := 0
	for _, tx := range p.Transactions {
		if !d.state.IsValidTransaction(tx) {
			continue
		}
		hash := tx.Hash()
		body, err := rlp.EncodeToBytes(tx)
		if err != nil {
			continue
		}
		if err := d.side.PutLocalTransaction(hash, body); err != nil {
			dispatchLogger.Warn("failed to persist pending transaction", "err", err)
			continue
		}
		d.state.TxPool[hash] = tx
		admitted++
	}
	metrics.TxPoolSize.WithLabelValues(d.selfID).Set(float64(len(d.state.TxPool)))
	// The "added" / "partial" / "no-valid" response is resolved by the
	// transport's request/reply correlation, out of scope for this
	// package; admitted/len(p.Transactions) is all a caller needs to pick
	// one of the three.
	_ = admitted
}

func (d *Dispatcher) handlePartitionRequest(from string) {
	if d.requestList[from] {
		return
	}
	wasFull := len(d.requestList) >= d.state.cfg.Mining.PartitionFullSize
	d.requestList[from] = true
	if err := d.persistRequestList(); err != nil {
		dispatchLogger.Warn("failed to persist request list", "err", err)
	}
	if !wasFull && len(d.requestList) >= d.state.cfg.Mining.PartitionFullSize {
		d.onFirstFullPartitionRequest()
	}
}

// onFirstFullPartitionRequest proposes the initial UTXO set once the
// configured minimum pool size is reached for the first time.
func (d *Dispatcher) onFirstFullPartitionRequest() {
	data, err := rlp.EncodeToBytes(flattenUTXO(d.state.UTXOSet.Base()))
	if err != nil {
		dispatchLogger.Error("failed to encode genesis utxo proposal", "err", err)
		return
	}
	d.propose("FirstBlock", data)
}

// handlePartitionEntry validates a submitted partition entry locally
// (address match, PoW difficulty, per-round dedup) and, if it passes,
// proposes it as a MiningParticipant commit: admission into the
// pipeline's intake only happens once every replica has applied the
// same commit, so the locked cohort (and its UNiCORN seed) is identical
// everywhere (§4.5).
func (d *Dispatcher) handlePartitionEntry(from string, p wire.SendPartitionEntry) {
	if d.state.FirstPipeline.Phase() != mining.PhaseOpen {
		return
	}
	if len(d.partitionList) >= d.state.cfg.Mining.PartitionFullSize {
		return
	}
	if p.PartitionEntry.Address != from {
		return
	}
	if !p.PartitionEntry.Valid(d.state.cfg.Mining.MiningDifficulty) {
		return
	}
	if _, exists := d.partitionList[from]; exists {
		return
	}
	if seen, err := d.dedup.MarkSeen(d.currentRandomNum, from); err == nil && seen {
		return
	}
	data, err := rlp.EncodeToBytes(miningParticipantProposal{Address: from, Entry: p.PartitionEntry})
	if err != nil {
		dispatchLogger.Error("failed to encode mining participant proposal", "err", err)
		return
	}
	d.propose("MiningParticipant", data)
}

// applyMiningParticipant admits a committed partition entry into the
// pipeline's intake. The first admission arms the §4.5 closing timer;
// reaching partition_full_size closes intake immediately instead of
// waiting it out (spec.md scenario S4).
func (d *Dispatcher) applyMiningParticipant(data []byte) {
	var p miningParticipantProposal
	if err := rlp.DecodeBytes(data, &p); err != nil {
		dispatchLogger.Warn("failed to decode mining participant commit", "err", err)
		return
	}
	admitted, first := d.state.FirstPipeline.AddParticipant(p.Address)
	if !admitted {
		return
	}
	d.partitionList[p.Address] = p.Entry
	if first {
		d.armIntakeCloseTimer()
	}
	if d.state.FirstPipeline.IntakeLen() >= d.state.cfg.Mining.PartitionFullSize {
		d.stopIntakeCloseTimer()
		d.proposeIntakeClosed()
	}
}

func (d *Dispatcher) armIntakeCloseTimer() {
	d.intakeCloseTimer = time.NewTimer(intakeClosingTimeout)
	d.intakeCloseC = d.intakeCloseTimer.C
}

func (d *Dispatcher) stopIntakeCloseTimer() {
	if d.intakeCloseTimer != nil {
		d.intakeCloseTimer.Stop()
	}
	d.intakeCloseTimer = nil
	d.intakeCloseC = nil
}

// onIntakeCloseTimer fires once the 1-second closing timer armed by the
// first admitted participant expires.
func (d *Dispatcher) onIntakeCloseTimer() {
	d.intakeCloseTimer = nil
	d.intakeCloseC = nil
	d.proposeIntakeClosed()
}

func (d *Dispatcher) proposeIntakeClosed() {
	d.propose("ParticipantIntakeClosed", nil)
}

// applyParticipantIntakeClosed runs generate_block against the locked
// intake (closing it and constructing the UNiCORN seed as a side effect
// of GenerateBlock), starts PoW collection (running UNiCORN eval), and
// floods the locked partition list, block header, and block-mining
// notification to every registered user subscriber. A stale or
// re-delivered commit (pipeline already past Open) is a no-op.
func (d *Dispatcher) applyParticipantIntakeClosed(_ []byte) {
	if d.state.FirstPipeline.Phase() != mining.PhaseOpen {
		return
	}

	if _, err := d.state.GenerateBlock(d.state.FirstPipeline, d.state.LastMiningTransactionHashes); err != nil {
		dispatchLogger.Error("failed to generate block", "err", err)
		return
	}
	if err := d.state.FirstPipeline.StartPoWCollection(); err != nil {
		dispatchLogger.Error("failed to start pow collection", "err", err)
		return
	}
	d.resendPartitionAndBlock()
}

// resendPartitionAndBlock (re)floods the locked partition list and
// current mining block to every registered user subscriber, from
// already-computed state. Used both right after intake closes and by
// resend_trigger_message, which must repeat the same outbound event
// without recomputing it (invariant 9).
func (d *Dispatcher) resendPartitionAndBlock() {
	if d.state.CurrentBlock == nil {
		return
	}

	entries := make([]chain.ProofOfWork, 0, len(d.partitionList))
	for _, e := range d.partitionList {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })

	blockBytes, err := rlp.EncodeToBytes(*d.state.CurrentBlock)
	if err != nil {
		dispatchLogger.Error("failed to encode block for mining", "err", err)
		return
	}

	d.floodToList(d.notifyList, wire.SendPartitionListMsg, wire.SendPartitionList{PartitionList: entries})
	d.floodToList(d.notifyList, wire.SendBlockToMinerMsg, wire.SendBlockToMiner{Block: blockBytes, Reward: chain.Asset{Tokens: d.state.CurrentReward}})
	d.floodToList(d.notifyList, wire.BlockMiningMsg, wire.BlockMining{Block: *d.state.CurrentBlock})
	d.lastOutbound = lastOutboundPartitionAndBlock
}

func (d *Dispatcher) handleSendPoW(from string, p wire.SendPoW) {
	if d.state.CurrentBlock == nil || p.BlockNum != d.state.CurrentBlock.Header.BNum {
		return
	}
	if !d.state.FirstPipeline.InCohort(from) {
		return
	}
	if !p.Coinbase.IsCoinbase() {
		return
	}
	info, accepted := d.state.FirstPipeline.AcceptWinningPoW(from, p.Nonce, p.Coinbase)
	if !accepted {
		return
	}
	data, err := rlp.EncodeToBytes(winningPoWProposal{Address: from, Info: info})
	if err != nil {
		dispatchLogger.Error("failed to encode winning pow proposal", "err", err)
		return
	}
	d.propose("WinningPoW", data)
}

// onReceivedPoW sends the selected winner's mined block to storage, per
// spec.md §4.7's "Received PoW successfully" flood rule. Called once a
// WinningPoW proposal commits.
func (d *Dispatcher) onReceivedPoW(winner winningPoWProposal) {
	if d.state.CurrentBlock == nil {
		return
	}
	common := wire.CommonBlockInfo{Block: *d.state.CurrentBlock, BlockTx: d.state.CurrentBlockTx}
	mined := wire.MinedBlockInfo{
		Nonce:    winner.Info.Nonce,
		MiningTx: winner.Info.Coinbase,
		PValue:   winner.Info.PValue,
		DValue:   winner.Info.DValue,
		Shutdown: d.state.SpecialHandling == SpecialShutdown,
	}
	if err := d.tr.SendTo(d.storageAddr, wire.SendBlockToStorageMsg, wire.SendBlockToStorage{Common: common, MinedInfo: mined}); err != nil {
		dispatchLogger.Warn("failed to send mined block to storage", "err", err)
	}
	d.lastOutbound = lastOutboundMinedBlock
}

func (d *Dispatcher) handleBlockStored(from string, p wire.SendBlockStored) {
	if from != d.storageAddr {
		return
	}
	expectedNext := p.Info.BlockNum
	data, err := rlp.EncodeToBytes(p.Info)
	if err != nil {
		dispatchLogger.Error("failed to encode block-stored proposal", "err", err)
		return
	}
	d.propose("BlockStored", data)
	if d.state.CurrentBNum != nil && *d.state.CurrentBNum >= expectedNext {
		d.resendTrigger()
	}
}

func (d *Dispatcher) handleClosing(from string) {
	delete(d.shutdownGroup, from)
	if len(d.shutdownGroup) == 0 {
		d.floodClosing()
	}
}

func (d *Dispatcher) floodClosing() {
	d.floodToList(d.requestList, wire.ClosingMsg, wire.Closing{})
	d.floodToList(d.notifyList, wire.ClosingMsg, wire.Closing{})
}

func (d *Dispatcher) floodToList(list map[string]bool, code uint8, payload interface{}) {
	for peer := range list {
		if err := d.tr.SendTo(peer, code, payload); err != nil {
			dispatchLogger.Warn("flood send failed", "peer", peer, "err", err)
		}
	}
}

// onTxTimeout chunks up to BLOCK_SIZE_IN_TX/raft_group_size local
// transactions and proposes them, per spec.md §4.7's periodic work.
// Only tx_pool is drawn from: accumulated druid groups are not proposed
// by this tick, and nothing in this dispatcher proposes them.
func (d *Dispatcher) onTxTimeout() {
	groupSize := d.state.cfg.RaftGroupSize
	if groupSize <= 0 {
		groupSize = 1
	}
	chunkSize := d.state.cfg.BlockSizeInTx / groupSize
	if chunkSize <= 0 {
		chunkSize = 1
	}

	hashes := make([]string, 0, len(d.state.TxPool))
	for h := range d.state.TxPool {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	if len(hashes) > chunkSize {
		hashes = hashes[:chunkSize]
	}
	if len(hashes) == 0 {
		return
	}
	chunk := make(map[string]chain.Transaction, len(hashes))
	for _, h := range hashes {
		chunk[h] = d.state.TxPool[h]
	}
	data, err := rlp.EncodeToBytes(flattenTxChunk(chunk))
	if err != nil {
		dispatchLogger.Error("failed to encode tx chunk proposal", "err", err)
		return
	}
	d.propose("Transactions", data)
}

// onLeaderChange re-proposes every ledger-tracked in-flight item,
// including uncommitted current-b_num items, per spec.md §4.7.
func (d *Dispatcher) onLeaderChange() {
	for _, item := range d.ledger.ReproposeAll() {
		if err := d.raft.Propose(item.Key, item.Data); err != nil {
			dispatchLogger.Warn("re-propose after leader change failed", "err", err)
		}
	}
}

// resendTrigger re-sends the last meaningful outbound flood, selected
// from current state per spec.md §4.7's resend_trigger_message.
func (d *Dispatcher) resendTrigger() {
	switch d.lastOutbound {
	case lastOutboundMinedBlock:
		if winner, ok := d.state.FirstPipeline.WinnerInfo(); ok {
			d.onReceivedPoW(winningPoWProposal{Address: winner.Address, Info: winner.Info})
		}
	case lastOutboundPartitionAndBlock:
		d.resendPartitionAndBlock()
	case lastOutboundRandomNum:
		d.floodRandomNum()
	}
}

// floodRandomNum announces the current round's random number and the
// previous round's winning coinbase hashes to the request list, on a
// FirstBlock or Block commit.
func (d *Dispatcher) floodRandomNum() {
	d.floodToList(d.requestList, wire.SendRandomNumMsg, wire.SendRandomNum{
		RandomNum:    d.currentRandomNum,
		WinCoinbases: d.state.LastMiningTransactionHashes,
	})
	d.lastOutbound = lastOutboundRandomNum
}

func (d *Dispatcher) propose(kind string, data []byte) {
	payload, err := rlp.EncodeToBytes(committedPayload{Kind: kind, Data: data})
	if err != nil {
		dispatchLogger.Error("failed to encode committed payload envelope", "kind", kind, "err", err)
		return
	}
	d.proposalSeq++
	key := raftwrap.ContextKey{ProposerID: d.selfID, ProposalID: d.proposalSeq, KeyRun: d.keyRunCounter}
	d.ledger.Propose(key, payload, nil)
	if err := d.raft.Propose(key, payload); err != nil {
		dispatchLogger.Warn("propose failed", "kind", kind, "err", err)
	}
}

// handleCommit applies one totally-ordered Raft commit to the
// consensused state and triggers the corresponding flood rule.
func (d *Dispatcher) handleCommit(c raftwrap.RaftCommit) {
	metrics.CommitsTotal.WithLabelValues(d.group).Inc()

	switch c.Kind {
	case raftwrap.CommitNewLeader:
		d.onLeaderChange()
		return
	case raftwrap.CommitSnapshot:
		return
	}

	d.ledger.Commit(c.Ctx, d.currentBNumOrZero())

	var env committedPayload
	if err := rlp.DecodeBytes(c.Data, &env); err != nil {
		dispatchLogger.Warn("failed to decode committed envelope", "index", c.Index, "err", err)
		return
	}

	switch env.Kind {
	case "FirstBlock":
		d.applyFirstBlock(c.Ctx.ProposerID, env.Data)
	case "BlockStored":
		d.applyBlockStored(c.Ctx.ProposerID, env.Data)
	case "Transactions":
		d.applyTransactions(env.Data)
	case "MiningParticipant":
		d.applyMiningParticipant(env.Data)
	case "ParticipantIntakeClosed":
		d.applyParticipantIntakeClosed(env.Data)
	case "WinningPoW":
		d.applyWinningPoW(env.Data)
	default:
		dispatchLogger.Warn("unrecognized committed payload kind", "kind", env.Kind, "index", c.Index)
	}
}

func (d *Dispatcher) currentBNumOrZero() uint64 {
	if d.state.CurrentBNum == nil {
		return 0
	}
	return *d.state.CurrentBNum
}

func (d *Dispatcher) applyFirstBlock(proposerID string, data []byte) {
	var flat []utxoEntry
	if err := rlp.DecodeBytes(data, &flat); err != nil {
		dispatchLogger.Warn("failed to decode first-block commit", "err", err)
		return
	}
	utxo := make(map[chain.OutPoint]chain.TxOut, len(flat))
	for _, e := range flat {
		utxo[e.Op] = e.Out
	}
	ev, err := d.state.ApplyFirstBlock(proposerID, utxo)
	if err != nil {
		dispatchLogger.Warn("apply first block failed", "err", err)
		return
	}
	if ev != nil {
		d.floodRandomNum()
		_ = d.events.PublishBlockEvent("FirstBlock", 0, "", 0)
	}
}

func (d *Dispatcher) applyBlockStored(proposerID string, data []byte) {
	var info wire.BlockStoredInfo
	if err := rlp.DecodeBytes(data, &info); err != nil {
		dispatchLogger.Warn("failed to decode block-stored commit", "err", err)
		return
	}
	ev, err := d.state.ApplyBlock(proposerID, info)
	if err != nil {
		dispatchLogger.Warn("apply block failed", "err", err)
		return
	}
	if ev == nil {
		return
	}
	switch ev.Kind {
	case "Shutdown":
		d.floodClosing()
	case "Block":
		d.startNewMiningRound()
		d.floodRandomNum()
	}
	_ = d.events.PublishBlockEvent(ev.Kind, ev.BlockNum, info.BlockHash, len(info.MiningTransactions))
}

// startNewMiningRound replaces the round's pipeline with a fresh one:
// Pipeline.Reset only marks the phase Reset, it does not clear
// intake/cohort/winners, so reusing the same instance across rounds
// would carry the previous round's cohort forward. The locked partition
// list and any still-armed closing timer belong to the round that just
// ended too.
func (d *Dispatcher) startNewMiningRound() {
	d.state.FirstPipeline.Reset()
	d.state.FirstPipeline = mining.NewPipeline(d.state.cfg.Mining.PartitionFullSize)
	d.partitionList = make(map[string]chain.ProofOfWork)
	d.stopIntakeCloseTimer()
}

func (d *Dispatcher) applyTransactions(data []byte) {
	var chunk []txChunkEntry
	if err := rlp.DecodeBytes(data, &chunk); err != nil {
		dispatchLogger.Warn("failed to decode transactions commit", "err", err)
		return
	}
	txs := make(map[string]chain.Transaction, len(chunk))
	for _, e := range chunk {
		txs[e.Hash] = e.Tx
	}
	d.state.ApplyTransactions(txs)
	for hash := range txs {
		_ = d.side.DeleteLocalTransaction(hash)
	}
	metrics.TxPoolSize.WithLabelValues(d.selfID).Set(float64(len(d.state.TxPool)))
}

// applyWinningPoW records the committed submission into every replica's
// own copy of the pipeline (AcceptWinningPoW is idempotent per address,
// so replaying the proposer's own already-recorded entry is harmless),
// then runs §4.5 minimum-distance winner selection over everything
// accepted so far and ships its pick to storage. SelectWinner only
// succeeds once per round (it requires PhasePoWCollection), so a later
// WinningPoW commit arriving after a winner is already selected is a
// no-op here rather than re-sending a stale mined block.
func (d *Dispatcher) applyWinningPoW(data []byte) {
	var p winningPoWProposal
	if err := rlp.DecodeBytes(data, &p); err != nil {
		dispatchLogger.Warn("failed to decode winning-pow commit", "err", err)
		return
	}
	d.state.FirstPipeline.AcceptWinningPoW(p.Address, p.Info.Nonce, p.Info.Coinbase)
	winner, ok := d.state.FirstPipeline.SelectWinner()
	if !ok {
		return
	}
	d.onReceivedPoW(winningPoWProposal{Address: winner.Address, Info: winner.Info})
}

// utxoEntry is shared with internal/compute/state.go's hashUTXO; reused
// here to RLP-encode a UTXO set (a Go map, not RLP-serializable) as an
// ordered slice for the genesis FirstBlock proposal.
func flattenUTXO(utxo map[chain.OutPoint]chain.TxOut) []utxoEntry {
	out := make([]utxoEntry, 0, len(utxo))
	for op, o := range utxo {
		out = append(out, utxoEntry{Op: op, Out: o})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Op.TxHash != out[j].Op.TxHash {
			return out[i].Op.TxHash < out[j].Op.TxHash
		}
		return out[i].Op.Index < out[j].Op.Index
	})
	return out
}

// txChunkEntry pairs a hash with its transaction body so a tx-pool chunk
// proposal (a Go map) can be RLP-encoded as an ordered slice.
type txChunkEntry struct {
	Hash string
	Tx   chain.Transaction
}

func flattenTxChunk(txs map[string]chain.Transaction) []txChunkEntry {
	out := make([]txChunkEntry, 0, len(txs))
	for h, tx := range txs {
		out = append(out, txChunkEntry{Hash: h, Tx: tx})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}
