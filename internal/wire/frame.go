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
	"encoding/binary"
	"io"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/corevault/core/internal/errs"
)

// maxFrameSize bounds a single frame's payload, guarding against a
// malformed length prefix driving an unbounded allocation.
const maxFrameSize = 32 * 1024 * 1024

// Frame is one decoded wire message: a message code plus its raw
// (still RLP-encoded) payload.
type Frame struct {
	Version uint8
	Code    uint8
	Payload []byte
}

// Encode RLP-encodes payload and wraps it as a versioned Frame.
func Encode(code uint8, payload interface{}) (Frame, error) {
	data, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return Frame{}, errs.Serialization(err, "encode wire payload")
	}
	return Frame{Version: ProtocolVersion, Code: code, Payload: data}, nil
}

// Decode RLP-decodes a Frame's payload into out.
func Decode(f Frame, out interface{}) error {
	if err := rlp.DecodeBytes(f.Payload, out); err != nil {
		return errs.Serialization(err, "decode wire payload")
	}
	return nil
}

// WriteFrame writes f to w as: 4-byte big-endian length, 1-byte version,
// 1-byte code, payload bytes. Length covers version + code + payload.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > maxFrameSize {
		return errs.Serialization(nil, "frame payload exceeds maximum size")
	}
	header := make([]byte, 4+1+1)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(f.Payload)+2))
	header[4] = f.Version
	header[5] = f.Code
	if _, err := w.Write(header); err != nil {
		return errs.Network(err, "write frame header")
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return errs.Network(err, "write frame payload")
		}
	}
	return nil
}

// ReadFrame reads one Frame previously written by WriteFrame.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, errs.Network(err, "read frame length")
	}
	total := binary.BigEndian.Uint32(header)
	if total < 2 || total > maxFrameSize {
		return Frame{}, errs.Serialization(nil, "frame length out of bounds")
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, errs.Network(err, "read frame body")
	}

	f := Frame{Version: body[0], Code: body[1], Payload: body[2:]}
	if !ValidCode(f.Code) {
		return Frame{}, errs.Serialization(nil, "unknown message code")
	}
	return f, nil
}
