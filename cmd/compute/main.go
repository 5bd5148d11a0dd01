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

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/corevault/core/internal/compute"
	"github.com/corevault/core/internal/config"
	"github.com/corevault/core/internal/log"
	"github.com/corevault/core/internal/netio"
	"github.com/corevault/core/internal/raftwrap"
	"github.com/corevault/core/internal/sidecar"
)

var logger = log.NewModuleLogger(log.ComputeNode)

var configFlag = cli.StringFlag{
	Name:  "config",
	Usage: "path to this node's TOML configuration file",
	Value: "compute.toml",
}

var bootstrapFlag = cli.BoolFlag{
	Name:  "bootstrap",
	Usage: "start a brand-new Raft group instead of joining an existing one",
}

var app = cli.NewApp()

func init() {
	app.Name = "corevault-compute"
	app.Usage = "run a compute-group node"
	app.Flags = []cli.Flag{configFlag, bootstrapFlag}
	app.Action = run
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	side, err := sidecar.Open(cfg.Storage.BadgerPath, 16<<20)
	if err != nil {
		return err
	}
	defer side.Close()

	peers := make([]raftwrap.PeerConfig, 0, len(cfg.RaftPeers))
	peerTable := make(map[uint64]string, len(cfg.RaftPeers))
	for _, p := range cfg.RaftPeers {
		peers = append(peers, raftwrap.PeerConfig{ID: p.ID, Addr: p.Addr})
		peerTable[p.ID] = p.Addr
	}
	snapshotBackup, err := newSnapshotBackup(cfg)
	if err != nil {
		return err
	}
	raftCfg := raftwrap.Config{
		ID:             cfg.RaftSelfID,
		Peers:          peers,
		TickInterval:   cfg.RaftTiming.TickInterval(),
		ElectionTick:   cfg.RaftTiming.ElectionTick,
		HeartbeatTick:  cfg.RaftTiming.HeartbeatTick,
		SnapshotBackup: snapshotBackup,
	}
	var raft *raftwrap.ActiveRaft
	if ctx.Bool(bootstrapFlag.Name) {
		raft, err = raftwrap.NewActiveRaftBootstrap(raftCfg)
	} else {
		raft, err = raftwrap.NewActiveRaft(raftCfg)
	}
	if err != nil {
		return err
	}
	defer raft.Close()

	unicornModulus := new(big.Int)
	if cfg.Mining.UnicornModulus != "" {
		if _, ok := unicornModulus.SetString(cfg.Mining.UnicornModulus, 10); !ok {
			return fmt.Errorf("compute: invalid mining.unicorn_modulus %q", cfg.Mining.UnicornModulus)
		}
	}
	sanctioned := make(map[string]bool, len(cfg.SanctionedAddresses))
	for _, h := range cfg.SanctionedAddresses {
		sanctioned[h] = true
	}
	params := compute.Params{
		BlockSizeInTx:      cfg.Mining.PartitionFullSize,
		RaftGroupSize:      len(cfg.RaftPeers),
		UnanimousMajority:  len(cfg.RaftPeers),
		SufficientMajority: len(cfg.RaftPeers)/2 + 1,
		SanctionedTxHashes: sanctioned,
		Reward:             cfg.Reward,
		Mining:             cfg.Mining,
		UnicornModulus:     unicornModulus,
	}
	state := compute.NewConsensused(params)

	var tlsConfig *tls.Config
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return err
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	node, err := netio.Listen(cfg.Address, tlsConfig)
	if err != nil {
		return err
	}
	defer node.Close()

	events, err := newEventPublisher(cfg)
	if err != nil {
		return err
	}
	dedup, err := newDedupCache(cfg)
	if err != nil {
		return err
	}

	dispatcher, err := compute.NewDispatcher(compute.DispatcherConfig{
		SelfID:      cfg.Address,
		Group:       "compute",
		StorageAddr: cfg.StorageAddr,
		PeerTable:   peerTable,
		State:       state,
		Raft:        raft,
		Ledger:      raftwrap.NewLedger(),
		Sidecar:     side,
		Transport:   netio.NewComputeTransport(node),
		Events:      events,
		Dedup:       dedup,
	})
	if err != nil {
		return err
	}

	if cfg.APIPort > 0 {
		go serveMetrics(cfg.APIPort)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(runCtx)

	waitForShutdownSignal()
	return nil
}

func serveMetrics(port int) {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Error("metrics server failed", "addr", addr, "err", err)
	}
}

func waitForShutdownSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down on signal")
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
