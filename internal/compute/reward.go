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

package compute

import "github.com/corevault/core/internal/config"

// calculateReward returns the per-block reward for a given total
// circulation: monotone non-increasing, halving every HalvingPeriod
// tokens circulated, capped at MaxHalvings (spec.md §4.6's
// "halving-style schedule — exact curve is a parameter").
func calculateReward(circulation uint64, cfg config.RewardConfig) uint64 {
	if cfg.HalvingPeriod == 0 {
		return cfg.InitialReward
	}
	halvings := int(circulation / cfg.HalvingPeriod)
	if halvings > cfg.MaxHalvings {
		halvings = cfg.MaxHalvings
	}
	if halvings >= 64 {
		return 0
	}
	return cfg.InitialReward >> uint(halvings)
}

// perNodeReward divides the block reward evenly across the Raft group,
// per spec.md §4.6: "current_reward = calculate_reward(current_circulation)
// / raft_group_size".
func perNodeReward(circulation uint64, cfg config.RewardConfig, raftGroupSize int) uint64 {
	if raftGroupSize <= 0 {
		raftGroupSize = 1
	}
	return calculateReward(circulation, cfg) / uint64(raftGroupSize)
}
