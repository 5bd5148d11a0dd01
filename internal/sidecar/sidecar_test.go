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

package sidecar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSidecar(t *testing.T) *Sidecar {
	t.Helper()
	sc, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	t.Cleanup(sc.Close)
	return sc
}

func TestSidecar_PutGetRoundTrip(t *testing.T) {
	sc := openTestSidecar(t)

	require.NoError(t, sc.Put(ColumnInternal, LastBlockHashKey, []byte("deadbeef")))
	got, err := sc.Get(ColumnInternal, LastBlockHashKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("deadbeef"), got)
}

func TestSidecar_GetMissingKeyReturnsNilNoError(t *testing.T) {
	sc := openTestSidecar(t)
	got, err := sc.Get(ColumnInternal, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSidecar_DeleteRemovesFromHotCacheAndStore(t *testing.T) {
	sc := openTestSidecar(t)
	require.NoError(t, sc.Put(ColumnInternal, RaftKeyRunKey, []byte{1}))

	has, err := sc.Has(ColumnInternal, RaftKeyRunKey)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, sc.Delete(ColumnInternal, RaftKeyRunKey))

	has, err = sc.Has(ColumnInternal, RaftKeyRunKey)
	require.NoError(t, err)
	assert.False(t, has)

	got, err := sc.Get(ColumnInternal, RaftKeyRunKey)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSidecar_LocalTransactionsListAndDelete(t *testing.T) {
	sc := openTestSidecar(t)

	require.NoError(t, sc.PutLocalTransaction("tx1", []byte("payload1")))
	require.NoError(t, sc.PutLocalTransaction("tx2", []byte("payload2")))

	all, err := sc.ListLocalTransactions()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []byte("payload1"), all["tx1"])

	require.NoError(t, sc.DeleteLocalTransaction("tx1"))
	all, err = sc.ListLocalTransactions()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	_, stillThere := all["tx1"]
	assert.False(t, stillThere)
}

func TestSidecar_ColumnsDoNotCollide(t *testing.T) {
	sc := openTestSidecar(t)
	require.NoError(t, sc.Put(ColumnInternal, "shared", []byte("internal-value")))
	require.NoError(t, sc.Put(ColumnLocalTransactions, "shared", []byte("tx-value")))

	internalVal, err := sc.Get(ColumnInternal, "shared")
	require.NoError(t, err)
	txVal, err := sc.Get(ColumnLocalTransactions, "shared")
	require.NoError(t, err)

	assert.Equal(t, []byte("internal-value"), internalVal)
	assert.Equal(t, []byte("tx-value"), txVal)
}
