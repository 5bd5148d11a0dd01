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
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/corevault/core/internal/errs"
)

// DecodePayload RLP-decodes a frame's raw payload into the concrete
// request/response type its code names, returning it as an interface{}
// a caller can type-switch on. This is the mirror image of Encode: a
// transport calls Encode to send, and DecodePayload on receipt.
func DecodePayload(code uint8, payload []byte) (interface{}, error) {
	var v interface{}
	switch code {
	case SendTransactionsMsg:
		v = new(SendTransactions)
	case SendPartitionRequestMsg:
		v = new(SendPartitionRequest)
	case SendPartitionEntryMsg:
		v = new(SendPartitionEntry)
	case SendPoWMsg:
		v = new(SendPoW)
	case SendBlockStoredMsg:
		v = new(SendBlockStored)
	case SendUserBlockNotificationReqMsg:
		v = new(SendUserBlockNotificationRequest)
	case SendRaftCmdMsg:
		v = new(SendRaftCmd)
	case ClosingMsg:
		v = new(Closing)
	case SendRandomNumMsg:
		v = new(SendRandomNum)
	case SendPartitionListMsg:
		v = new(SendPartitionList)
	case SendBlockToMinerMsg:
		v = new(SendBlockToMiner)
	case SendTxMerkleCheckMsg:
		v = new(SendTxMerkleCheck)
	case SendBlockToStorageMsg:
		v = new(SendBlockToStorage)
	case BlockMiningMsg:
		v = new(BlockMining)
	default:
		return nil, errs.Serialization(nil, "unknown message code")
	}
	if len(payload) > 0 {
		if err := rlp.DecodeBytes(payload, v); err != nil {
			return nil, errs.Serialization(err, "decode wire payload")
		}
	}
	return derefMessage(v), nil
}

// derefMessage unwraps the pointer DecodePayload allocates, so callers
// type-switch on the plain value type (wire.SendTransactions, not
// *wire.SendTransactions), matching how Encode's callers pass values.
func derefMessage(v interface{}) interface{} {
	switch p := v.(type) {
	case *SendTransactions:
		return *p
	case *SendPartitionRequest:
		return *p
	case *SendPartitionEntry:
		return *p
	case *SendPoW:
		return *p
	case *SendBlockStored:
		return *p
	case *SendUserBlockNotificationRequest:
		return *p
	case *SendRaftCmd:
		return *p
	case *Closing:
		return *p
	case *SendRandomNum:
		return *p
	case *SendPartitionList:
		return *p
	case *SendBlockToMiner:
		return *p
	case *SendTxMerkleCheck:
		return *p
	case *SendBlockToStorage:
		return *p
	case *BlockMining:
		return *p
	default:
		return v
	}
}
