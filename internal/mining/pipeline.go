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

// Package mining implements the per-block mining pipeline (C5):
// participant intake, cohort locking, UNiCORN seeding, PoW acceptance
// and winner selection.
package mining

import (
	"math/big"
	"sort"

	"github.com/corevault/core/internal/chain"
	"github.com/corevault/core/internal/log"
	"github.com/corevault/core/internal/unicorn"
)

var logger = log.NewModuleLogger(log.Mining)

// Phase is the mining pipeline's state for a single block round.
type Phase int

const (
	PhaseOpen Phase = iota
	PhaseClosedIntake
	PhasePoWCollection
	PhaseWinnerSelected
	PhaseReset
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "Open"
	case PhaseClosedIntake:
		return "ClosedIntake"
	case PhasePoWCollection:
		return "PoWCollection"
	case PhaseWinnerSelected:
		return "WinnerSelected"
	case PhaseReset:
		return "Reset"
	default:
		return "Unknown"
	}
}

// Winner is the selected winning cohort member for a round.
type Winner struct {
	Address string
	Info    chain.WinningPoWInfo
}

// Pipeline holds one block round's mining state.
type Pipeline struct {
	FullSize int

	phase Phase

	// Intake: addresses admitted, in insertion order.
	intake     []string
	intakeSeen map[string]bool

	// Cohort: locked at ParticipantIntakeClosed, sorted ascending so
	// cohort index is deterministic across replicas.
	cohort      []string
	cohortIndex map[string]int

	unicorn *unicorn.Unicorn

	// Winning submissions, one per address.
	winners map[string]chain.WinningPoWInfo

	winner *Winner
}

// NewPipeline returns a fresh Open-phase pipeline admitting up to
// fullSize participants.
func NewPipeline(fullSize int) *Pipeline {
	return &Pipeline{
		FullSize:   fullSize,
		phase:      PhaseOpen,
		intakeSeen: make(map[string]bool),
		winners:    make(map[string]chain.WinningPoWInfo),
	}
}

// Phase returns the pipeline's current phase.
func (p *Pipeline) Phase() Phase { return p.phase }

// IntakeLen reports how many participants have been admitted so far.
func (p *Pipeline) IntakeLen() int { return len(p.intake) }

// AddParticipant admits addr to the intake set while the pipeline is
// Open and not yet full. Returns true if this was the first admission
// (the caller should arm the intake-closing timer) and true for
// admitted (false if rejected: wrong phase, already full, or dup).
func (p *Pipeline) AddParticipant(addr string) (admitted bool, first bool) {
	if p.phase != PhaseOpen {
		return false, false
	}
	if p.intakeSeen[addr] {
		return false, false
	}
	if len(p.intake) >= p.FullSize {
		return false, false
	}
	first = len(p.intake) == 0
	p.intake = append(p.intake, addr)
	p.intakeSeen[addr] = true
	return true, first
}

// CloseIntake locks the cohort from the current intake set and
// transitions to ClosedIntake, constructing the UNiCORN seed from
// txInputs, the locked cohort, and lastWinningHashes (§4.4). No-op
// (returns false) if not currently Open.
func (p *Pipeline) CloseIntake(txInputs []string, lastWinningHashes []string, securityLevel uint32, modulus *big.Int, iterations uint64) bool {
	if p.phase != PhaseOpen {
		return false
	}
	p.cohort = append([]string(nil), p.intake...)
	sort.Strings(p.cohort)
	p.cohortIndex = make(map[string]int, len(p.cohort))
	for i, a := range p.cohort {
		p.cohortIndex[a] = i
	}

	seed := unicorn.ConstructSeed(txInputs, p.cohort, lastWinningHashes)
	p.unicorn = &unicorn.Unicorn{
		Iterations:    iterations,
		SecurityLevel: securityLevel,
		Seed:          seed,
		Modulus:       modulus,
	}
	p.phase = PhaseClosedIntake
	return true
}

// Unicorn returns the round's UNiCORN instance (nil before CloseIntake).
func (p *Pipeline) Unicorn() *unicorn.Unicorn { return p.unicorn }

// Cohort returns the locked cohort (nil before CloseIntake).
func (p *Pipeline) Cohort() []string { return p.cohort }

// StartPoWCollection runs the (slow) UNiCORN eval and transitions to
// PoWCollection. Must be called after CloseIntake. Eval is a pure
// function of the seed CloseIntake already constructed, so every
// replica calls it independently on the ParticipantIntakeClosed commit
// and arrives at the same witness without any further coordination.
func (p *Pipeline) StartPoWCollection() error {
	if p.phase != PhaseClosedIntake {
		return errWrongPhase(p.phase, PhaseClosedIntake)
	}
	if _, _, err := p.unicorn.Eval(); err != nil {
		return err
	}
	p.phase = PhasePoWCollection
	return nil
}

// InCohort reports whether addr is part of the locked cohort.
func (p *Pipeline) InCohort(addr string) bool {
	_, ok := p.cohortIndex[addr]
	return ok
}

// AcceptWinningPoW validates and stores a winning submission for addr.
// Accepted only while in PoWCollection, for a cohort member, at most
// once per address (later submissions for the same address are
// idempotently ignored, invariant 5 in the spec's testable properties).
func (p *Pipeline) AcceptWinningPoW(addr string, nonce []byte, coinbase chain.Transaction) (chain.WinningPoWInfo, bool) {
	if p.phase != PhasePoWCollection {
		return chain.WinningPoWInfo{}, false
	}
	if !p.InCohort(addr) {
		return chain.WinningPoWInfo{}, false
	}
	if existing, ok := p.winners[addr]; ok {
		return existing, false
	}

	idx := p.cohortIndex[addr]
	pValue := cohortDigest(idx, nonce)
	dValue := distance(pValue, p.unicorn.GetUnicorn(p.unicorn.Modulus))

	info := chain.WinningPoWInfo{
		Nonce:    nonce,
		Coinbase: coinbase,
		PValue:   pValue,
		DValue:   dValue.String(),
	}
	p.winners[addr] = info
	return info, true
}

// cohortDigest computes H(cohort_index(addr) || nonce), the p_value.
func cohortDigest(cohortIndex int, nonce []byte) string {
	idxBytes := big.NewInt(int64(cohortIndex)).Bytes()
	buf := append(append([]byte(nil), idxBytes...), nonce...)
	return chain.HashBytes(buf)
}

// distance returns |pValue as big-endian integer - unicornValue|.
func distance(pValueHex string, unicornValue *big.Int) *big.Int {
	p := new(big.Int)
	p.SetString(pValueHex, 16)
	d := new(big.Int).Sub(p, unicornValue)
	return d.Abs(d)
}

// SelectWinner picks the minimum-distance winner among accepted
// submissions, breaking ties by lexicographic (coinbase_hash, addr).
// Returns false if no submissions were accepted.
func (p *Pipeline) SelectWinner() (Winner, bool) {
	if p.phase != PhasePoWCollection || len(p.winners) == 0 {
		return Winner{}, false
	}

	type cand struct {
		addr string
		info chain.WinningPoWInfo
		d    *big.Int
		cbH  string
	}
	cands := make([]cand, 0, len(p.winners))
	for addr, info := range p.winners {
		d := new(big.Int)
		d.SetString(info.DValue, 10)
		cands = append(cands, cand{addr: addr, info: info, d: d, cbH: info.Coinbase.Hash()})
	}
	sort.Slice(cands, func(i, j int) bool {
		if c := cands[i].d.Cmp(cands[j].d); c != 0 {
			return c < 0
		}
		if cands[i].cbH != cands[j].cbH {
			return cands[i].cbH < cands[j].cbH
		}
		return cands[i].addr < cands[j].addr
	})

	w := Winner{Address: cands[0].addr, Info: cands[0].info}
	p.winner = &w
	p.phase = PhaseWinnerSelected
	return w, true
}

// WinnerInfo returns the selected winner, if any.
func (p *Pipeline) WinnerInfo() (Winner, bool) {
	if p.winner == nil {
		return Winner{}, false
	}
	return *p.winner, true
}

// Reset transitions the pipeline to Reset; a fresh Pipeline should be
// constructed for the next round.
func (p *Pipeline) Reset() { p.phase = PhaseReset }

type wrongPhaseError struct {
	got, want Phase
}

func (e wrongPhaseError) Error() string {
	return "mining: wrong phase: have " + e.got.String() + ", want " + e.want.String()
}

func errWrongPhase(got, want Phase) error { return wrongPhaseError{got: got, want: want} }
