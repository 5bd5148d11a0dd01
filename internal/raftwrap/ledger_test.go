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

package raftwrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_CommitDeliversAndRemoves(t *testing.T) {
	l := NewLedger()
	key := ContextKey{ProposerID: "p1", ProposalID: 1, KeyRun: 0}
	l.Propose(key, []byte("payload"), nil)
	require.Equal(t, 1, l.Len())

	data, removed := l.Commit(key, 10)
	assert.True(t, removed)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, 0, l.Len())
}

func TestLedger_CommitUnknownKeyIsDuplicate(t *testing.T) {
	l := NewLedger()
	data, removed := l.Commit(ContextKey{ProposerID: "x"}, 1)
	assert.False(t, removed)
	assert.Nil(t, data)
}

func TestLedger_CommitBelowDedupBNumDropsAsDuplicate(t *testing.T) {
	l := NewLedger()
	key := ContextKey{ProposerID: "p1", ProposalID: 2}
	dedup := uint64(5)
	l.Propose(key, []byte("stale"), &dedup)

	data, removed := l.Commit(key, 10)
	assert.False(t, removed)
	assert.Nil(t, data)
	assert.Equal(t, 0, l.Len(), "item must still be removed even when superseded")
}

func TestLedger_IgnoreBelowDropsStaleItems(t *testing.T) {
	l := NewLedger()
	dedupLow := uint64(1)
	dedupHigh := uint64(100)
	l.Propose(ContextKey{ProposerID: "a"}, []byte("old"), &dedupLow)
	l.Propose(ContextKey{ProposerID: "b"}, []byte("new"), &dedupHigh)

	l.IgnoreBelow(10)
	assert.Equal(t, 1, l.Len())

	remaining := l.ReproposeAll()
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].Key.ProposerID)
}

func TestLedger_ReproposeAllPreservesOrder(t *testing.T) {
	l := NewLedger()
	l.Propose(ContextKey{ProposerID: "first"}, []byte("1"), nil)
	l.Propose(ContextKey{ProposerID: "second"}, []byte("2"), nil)

	all := l.ReproposeAll()
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Key.ProposerID)
	assert.Equal(t, "second", all[1].Key.ProposerID)
}

func TestLedger_NeverSilentlyLosesItems(t *testing.T) {
	// Either retried (still present for ReproposeAll) or superseded
	// (delivered or dropped-as-duplicate via Commit/IgnoreBelow) — in
	// all cases Len() reflects exactly the still-pending set.
	l := NewLedger()
	keyA := ContextKey{ProposerID: "a"}
	keyB := ContextKey{ProposerID: "b"}
	l.Propose(keyA, []byte("a"), nil)
	l.Propose(keyB, []byte("b"), nil)

	_, _ = l.Commit(keyA, 1)
	assert.Equal(t, 1, l.Len())
	assert.Len(t, l.ReproposeAll(), 1)
}
