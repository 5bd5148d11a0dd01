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

// Package metrics exposes the handful of Prometheus series this node
// cares about: commit throughput, mining pipeline phase, tx pool
// depth, and Raft proposal latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corevault",
		Name:      "raft_commits_total",
		Help:      "Total number of Raft log entries applied, by group.",
	}, []string{"group"})

	PipelinePhase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "corevault",
		Name:      "mining_pipeline_phase",
		Help:      "Current mining pipeline phase as an integer (see mining.Phase).",
	}, []string{"node"})

	TxPoolSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "corevault",
		Name:      "tx_pool_size",
		Help:      "Number of transactions currently held in the compute tx pool.",
	}, []string{"node"})

	ProposalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "corevault",
		Name:      "raft_proposal_latency_seconds",
		Help:      "Time between Propose and the corresponding commit being observed.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"group"})

	BlocksStoredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corevault",
		Name:      "blocks_stored_total",
		Help:      "Total number of blocks durably persisted by the storage group.",
	}, []string{"node"})
)

func init() {
	prometheus.MustRegister(CommitsTotal, PipelinePhase, TxPoolSize, ProposalLatency, BlocksStoredTotal)
}

// ObserveProposalLatency records the duration between a Propose call
// and its commit for group.
func ObserveProposalLatency(group string, d time.Duration) {
	ProposalLatency.WithLabelValues(group).Observe(d.Seconds())
}
