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

// Package config loads per-node TOML configuration with
// github.com/naoina/toml, matching this corpus's cmd/ranger/config.go
// NormFieldName/FieldToKey/MissingField decoder settings so TOML keys
// line up one-to-one with the Go struct fields below.
package config

import (
	"bufio"
	"os"
	"reflect"
	"time"

	"github.com/naoina/toml"

	"github.com/corevault/core/internal/errs"
)

// tomlSettings mirrors the teacher's decoder configuration: field names
// are taken verbatim, and an unrecognized key is a hard error rather
// than being silently ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// RaftTiming configures one Raft group's tick/election cadence.
type RaftTiming struct {
	TickMillis    int
	ElectionTick  int
	HeartbeatTick int
}

// DefaultRaftTiming matches the conservative defaults the active Raft
// wrapper fills in for unset timing fields (raftwrap's withDefaults).
var DefaultRaftTiming = RaftTiming{TickMillis: 10, ElectionTick: 10, HeartbeatTick: 1}

// Peer is one member of a Raft group.
type Peer struct {
	ID   uint64
	Addr string
}

// MiningConfig holds the mining-pipeline parameters that are
// configuration rather than hardcoded per spec.md §4.5/§9.
type MiningConfig struct {
	PartitionFullSize   int
	UnicornSecurityBits uint32
	UnicornIterations   uint64
	UnicornModulus      string // decimal string; parsed with (*big.Int).SetString
	MiningDifficulty    int
}

// RewardConfig parameterizes the halving reward curve (spec.md §4.6's
// "halving-style schedule — exact curve is a parameter" Open Question).
// The reward is a function of total circulation, not block height:
// every HalvingPeriod tokens circulated, the reward halves, until
// MaxHalvings caps further reduction.
type RewardConfig struct {
	InitialReward uint64
	HalvingPeriod uint64 // circulation band width, in tokens
	MaxHalvings   int
}

// KafkaConfig is optional analytics event-bus configuration (§4.7).
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// RedisConfig is the optional partition-dedup rehydration cache (§4.7).
type RedisConfig struct {
	Enabled bool
	Addr    string
	DB      int
}

// MySQLConfig is the optional secondary relational index (§4.9).
type MySQLConfig struct {
	Enabled bool
	DSN     string
}

// S3BackupConfig is the optional Raft snapshot offload target (§4.3).
type S3BackupConfig struct {
	Enabled bool
	Bucket  string
	Region  string
	Prefix  string
}

// StorageConfig points at the on-disk backends described in §4.9/§4.10.
type StorageConfig struct {
	LevelDBPath string
	BadgerPath  string
	MySQL       MySQLConfig
}

// NodeConfig is the full TOML document for one compute or storage node.
type NodeConfig struct {
	NodeType   string // "compute" or "storage"
	NodeIndex  int
	Address    string
	Passphrase string

	TLSCertFile string
	TLSKeyFile  string
	APIPort     int

	RaftSelfID uint64
	RaftPeers  []Peer
	RaftTiming RaftTiming

	Mining MiningConfig
	Reward RewardConfig

	SanctionedAddresses []string

	// StorageAddr is the storage group's entry point a compute node
	// hands completed rounds to. Unused by storage nodes.
	StorageAddr string
	// ComputeAddrs lists the compute group's members a storage node
	// floods BlockStored notifications to. Unused by compute nodes.
	ComputeAddrs []string

	Storage StorageConfig
	Kafka   KafkaConfig
	Redis   RedisConfig
	S3      S3BackupConfig
}

// Default returns a NodeConfig with every ambient default filled in;
// callers then overlay a TOML file and CLI flags on top.
func Default() NodeConfig {
	return NodeConfig{
		NodeType:   "compute",
		APIPort:    8080,
		RaftTiming: DefaultRaftTiming,
		Mining: MiningConfig{
			PartitionFullSize:   64,
			UnicornSecurityBits: 1,
			UnicornIterations:   1 << 20,
			MiningDifficulty:    1,
		},
		Reward: RewardConfig{
			InitialReward: 50_000_000,
			HalvingPeriod: 210_000,
			MaxHalvings:   64,
		},
		Storage: StorageConfig{
			LevelDBPath: "data/storage-db",
			BadgerPath:  "data/sidecar-db",
		},
	}
}

// Load reads path as TOML into cfg, starting from Default().
func Load(path string) (NodeConfig, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, errs.Config("open config file: " + err.Error())
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		if lineErr, ok := err.(*toml.LineError); ok {
			return cfg, errs.Config(path + ", " + lineErr.Error())
		}
		return cfg, errs.Config("decode config file: " + err.Error())
	}
	return cfg, nil
}

// Validate rejects a configuration that cannot start a node, matching
// the ConfigError class in the error taxonomy (§7): malformed or
// missing required configuration is terminal.
func (c NodeConfig) Validate() error {
	switch c.NodeType {
	case "compute", "storage":
	default:
		return errs.Config("node_type must be \"compute\" or \"storage\"")
	}
	if c.Address == "" {
		return errs.Config("address must not be empty")
	}
	if c.RaftSelfID == 0 {
		return errs.Config("raft_self_id must be set")
	}
	if len(c.RaftPeers) == 0 {
		return errs.Config("raft_peers must contain at least this node")
	}
	if c.Mining.PartitionFullSize <= 0 {
		return errs.Config("mining.partition_full_size must be positive")
	}
	if c.NodeType == "compute" && c.StorageAddr == "" {
		return errs.Config("storage_addr must be set for a compute node")
	}
	if c.NodeType == "storage" && len(c.ComputeAddrs) == 0 {
		return errs.Config("compute_addrs must contain at least one compute node")
	}
	return nil
}

// TickInterval converts the configured millisecond tick into a
// time.Duration for the active Raft wrapper.
func (t RaftTiming) TickInterval() time.Duration {
	return time.Duration(t.TickMillis) * time.Millisecond
}
