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

// Package netio is the concrete TCP/TLS transport backing both the
// compute and storage dispatchers' Transport interfaces: it owns
// listening, dialing, and keeping one persistent connection per peer,
// doing nothing domain-specific beyond framing via internal/wire.
// Neither full teacher repo in this pack ships a standalone,
// reusable socket layer (klaytn's networking is folded into
// networks/p2p's devp2p handshake, which this specification's fixed,
// pre-configured peer set has no use for), so this package is plain
// net/tls plumbing around the wire codec that already carries the
// teacher-grounded framing; see DESIGN.md for why no retrieved
// third-party transport library fits here.
package netio

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/corevault/core/internal/errs"
	"github.com/corevault/core/internal/log"
	"github.com/corevault/core/internal/wire"
)

var netLogger = log.NewModuleLogger(log.Transport)

// rawFrame is one decoded inbound message, before it is wrapped as the
// caller package's own InboundFrame type.
type rawFrame struct {
	From    string
	Code    uint8
	Payload interface{}
}

// Node manages a TCP listener and a pool of persistent outbound
// connections, one per configured peer address. SendTo dials lazily
// and keeps the connection open across calls; a dead connection is
// dropped and redialed on the next send.
type Node struct {
	selfAddr  string
	tlsConfig *tls.Config

	mu    sync.Mutex
	conns map[string]net.Conn

	inbox    chan rawFrame
	listener net.Listener
	closed   chan struct{}
}

// Listen starts accepting connections on addr. If tlsConfig is nil,
// connections are plaintext — acceptable only behind a trusted network
// boundary; production deployments set tlsConfig from the node's
// configured cert/key pair (spec.md §6's TLSCertFile/TLSKeyFile).
func Listen(addr string, tlsConfig *tls.Config) (*Node, error) {
	var l net.Listener
	var err error
	if tlsConfig != nil {
		l, err = tls.Listen("tcp", addr, tlsConfig)
	} else {
		l, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, errs.Network(err, "listen on "+addr)
	}

	n := &Node{
		selfAddr:  addr,
		tlsConfig: tlsConfig,
		conns:     make(map[string]net.Conn),
		inbox:     make(chan rawFrame, 256),
		listener:  l,
		closed:    make(chan struct{}),
	}
	go n.acceptLoop()
	return n, nil
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.closed:
				return
			default:
				netLogger.Warn("accept failed", "err", err)
				return
			}
		}
		go n.readLoop(conn.RemoteAddr().String(), conn)
	}
}

func (n *Node) readLoop(peerAddr string, conn net.Conn) {
	defer conn.Close()
	for {
		f, err := wire.ReadFrame(conn)
		if err != nil {
			netLogger.Warn("connection closed", "peer", peerAddr, "err", err)
			return
		}
		payload, err := wire.DecodePayload(f.Code, f.Payload)
		if err != nil {
			netLogger.Warn("dropping malformed frame", "peer", peerAddr, "err", err)
			continue
		}
		select {
		case n.inbox <- rawFrame{From: peerAddr, Code: f.Code, Payload: payload}:
		case <-n.closed:
			return
		}
	}
}

// dial returns an existing connection to addr or opens a new one.
func (n *Node) dial(addr string) (net.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if conn, ok := n.conns[addr]; ok {
		return conn, nil
	}

	var conn net.Conn
	var err error
	dialer := net.Dialer{Timeout: 5 * time.Second}
	if n.tlsConfig != nil {
		conn, err = tls.DialWithDialer(&dialer, "tcp", addr, n.tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, errs.Network(err, "dial "+addr)
	}

	n.conns[addr] = conn
	go n.readLoop(addr, conn)
	return conn, nil
}

// SendTo RLP-encodes payload, frames it, and writes it to addr,
// dialing a fresh connection if none is open. A failed write drops the
// connection and returns the error without retrying; the next call
// redials.
func (n *Node) SendTo(addr string, code uint8, payload interface{}) error {
	conn, err := n.dial(addr)
	if err != nil {
		return err
	}
	f, err := wire.Encode(code, payload)
	if err != nil {
		return err
	}
	if err := wire.WriteFrame(conn, f); err != nil {
		n.mu.Lock()
		delete(n.conns, addr)
		n.mu.Unlock()
		conn.Close()
		return err
	}
	return nil
}

// Close shuts the listener and every open connection down.
func (n *Node) Close() error {
	close(n.closed)
	n.mu.Lock()
	for _, c := range n.conns {
		c.Close()
	}
	n.mu.Unlock()
	return n.listener.Close()
}
