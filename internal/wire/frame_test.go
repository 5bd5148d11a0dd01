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

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault/core/internal/chain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := SendTransactions{Transactions: []chain.Transaction{{Version: 1, Inputs: []chain.TxIn{}, Outputs: []chain.TxOut{}}}}

	f, err := Encode(SendTransactionsMsg, msg)
	require.NoError(t, err)
	assert.Equal(t, uint8(SendTransactionsMsg), f.Code)

	var out SendTransactions
	require.NoError(t, Decode(f, &out))
	assert.Equal(t, msg, out)
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	f, err := Encode(ClosingMsg, Closing{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.Version, got.Version)
	assert.Equal(t, f.Code, got.Code)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestReadFrameRejectsUnknownCode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{Version: ProtocolVersion, Code: 0xEE, Payload: nil}))

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestMultipleFramesSequentially(t *testing.T) {
	var buf bytes.Buffer
	f1, err := Encode(SendPartitionRequestMsg, SendPartitionRequest{})
	require.NoError(t, err)
	f2, err := Encode(SendPoWMsg, SendPoW{BlockNum: 42, Nonce: []byte{1, 2}})
	require.NoError(t, err)

	require.NoError(t, WriteFrame(&buf, f1))
	require.NoError(t, WriteFrame(&buf, f2))

	got1, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(SendPartitionRequestMsg), got1.Code)

	got2, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(SendPoWMsg), got2.Code)

	var powOut SendPoW
	require.NoError(t, Decode(got2, &powOut))
	assert.Equal(t, uint64(42), powOut.BlockNum)
}
