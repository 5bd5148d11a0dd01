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

package netio

import (
	"github.com/corevault/core/internal/compute"
	"github.com/corevault/core/internal/storage"
)

// ComputeTransport adapts a Node to internal/compute's Transport
// interface. The two dispatcher packages define structurally identical
// but distinctly-named InboundFrame types, so one Node backs two thin,
// package-specific adapters rather than the dispatchers depending on
// netio's own frame type.
type ComputeTransport struct {
	node  *Node
	inbox chan compute.InboundFrame
}

// NewComputeTransport wraps node for a compute-node dispatcher.
func NewComputeTransport(node *Node) *ComputeTransport {
	t := &ComputeTransport{node: node, inbox: make(chan compute.InboundFrame, 256)}
	go t.relay()
	return t
}

func (t *ComputeTransport) relay() {
	for f := range t.node.inbox {
		t.inbox <- compute.InboundFrame{From: f.From, Code: f.Code, Payload: f.Payload}
	}
}

func (t *ComputeTransport) Inbox() <-chan compute.InboundFrame { return t.inbox }

func (t *ComputeTransport) SendTo(peerAddr string, code uint8, payload interface{}) error {
	return t.node.SendTo(peerAddr, code, payload)
}

// StorageTransport adapts a Node to internal/storage's Transport
// interface; see ComputeTransport's doc comment.
type StorageTransport struct {
	node  *Node
	inbox chan storage.InboundFrame
}

// NewStorageTransport wraps node for a storage-node dispatcher.
func NewStorageTransport(node *Node) *StorageTransport {
	t := &StorageTransport{node: node, inbox: make(chan storage.InboundFrame, 256)}
	go t.relay()
	return t
}

func (t *StorageTransport) relay() {
	for f := range t.node.inbox {
		t.inbox <- storage.InboundFrame{From: f.From, Code: f.Code, Payload: f.Payload}
	}
}

func (t *StorageTransport) Inbox() <-chan storage.InboundFrame { return t.inbox }

func (t *StorageTransport) SendTo(peerAddr string, code uint8, payload interface{}) error {
	return t.node.SendTo(peerAddr, code, payload)
}
