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

// Package wire defines the length-prefixed, versioned binary frames
// exchanged between compute nodes, storage nodes, miners, and user
// clients, RLP-encoding every payload and prefixing it with a 1-byte
// message code, in the style of this corpus's node/cn/protocol.go
// message-code block.
package wire

// ProtocolVersion is bumped whenever a message's payload shape changes
// in a way that is not wire-compatible with older peers.
const ProtocolVersion = 1

// Message codes. Codes are contiguous per protocol version and grouped
// by the direction in which they travel, mirroring node/cn/protocol.go's
// StatusMsg/TxMsg/... block.
const (
	// Compute inbound
	SendTransactionsMsg               = 0x00
	SendPartitionRequestMsg           = 0x01
	SendPartitionEntryMsg             = 0x02
	SendPoWMsg                        = 0x03
	SendBlockStoredMsg                = 0x04
	SendUserBlockNotificationReqMsg   = 0x05
	SendRaftCmdMsg                    = 0x06
	ClosingMsg                        = 0x07

	// Compute outbound to miners
	SendRandomNumMsg        = 0x10
	SendPartitionListMsg    = 0x11
	SendBlockToMinerMsg     = 0x12
	SendTxMerkleCheckMsg    = 0x13

	// Compute outbound to storage
	SendBlockToStorageMsg = 0x20

	// Compute outbound to user
	BlockMiningMsg = 0x30
)

// minMsgCode/maxMsgCode bound the contiguous code space for this
// protocol version, so a decoder can cheaply reject an out-of-range
// frame before attempting to RLP-decode its payload.
const (
	minMsgCode = SendTransactionsMsg
	maxMsgCode = BlockMiningMsg
)

// ValidCode reports whether code is a known message code for
// ProtocolVersion.
func ValidCode(code uint8) bool {
	switch code {
	case SendTransactionsMsg, SendPartitionRequestMsg, SendPartitionEntryMsg,
		SendPoWMsg, SendBlockStoredMsg, SendUserBlockNotificationReqMsg,
		SendRaftCmdMsg, ClosingMsg, SendRandomNumMsg, SendPartitionListMsg,
		SendBlockToMinerMsg, SendTxMerkleCheckMsg, SendBlockToStorageMsg,
		BlockMiningMsg:
		return true
	default:
		return false
	}
}
