// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package learner tracks per-rule apply/revert/suggest/skip outcomes,
// decays them over time, tunes decision thresholds, and maintains the
// auto-skiplist that filters findings before plan synthesis (spec.md
// §4.8).
package learner

import "math"

const (
	// decayFactor is the weekly multiplier applied to applied/reverted/
	// suggested counters before use.
	decayFactor = 0.8
	// minSampleForRates is the applied+reverted denominator below which
	// success_rate and revert_rate are undefined.
	minSampleForRates = 5
	// consecutiveRevertSkipThreshold adds a (rule_id, file) pair to the
	// auto-skiplist.
	consecutiveRevertSkipThreshold = 3
	// thresholdStep is the per-rule tuning step; bounds are enforced where
	// the delta is consumed (internal/planner/decision.go's clampThreshold).
	thresholdStep = 0.05
)

// RuleState is the persisted per-rule counters, serialized as JSON under
// Atomic Store. Counters are float64 because decay multiplies them by a
// fractional weekly factor.
type RuleState struct {
	Applied            float64        `json:"applied"`
	Reverted           float64        `json:"reverted"`
	Suggested          float64        `json:"suggested"`
	Skipped            float64        `json:"skipped"`
	ConsecutiveReverts map[string]int `json:"consecutive_reverts"` // file_path -> count
	LastUpdated        int64          `json:"last_updated"`        // epoch seconds
}

func newRuleState() *RuleState {
	return &RuleState{ConsecutiveReverts: map[string]int{}}
}

// decay multiplies applied/reverted/suggested by decayFactor^weeks elapsed
// since LastUpdated, quantized to whole weeks, then resets LastUpdated to
// now. Skipped and ConsecutiveReverts are not decayed: skiplist membership
// is reset explicitly by a content-hash change, not by time (spec.md
// §4.8), and Skipped is a lifetime counter with no decay named for it.
func (s *RuleState) decay(now int64) {
	weeks := (now - s.LastUpdated) / (7 * 24 * 3600)
	if weeks <= 0 {
		return
	}
	factor := math.Pow(decayFactor, float64(weeks))
	s.Applied *= factor
	s.Reverted *= factor
	s.Suggested *= factor
	s.LastUpdated = now
}

// successRate returns applied/(applied+reverted) and whether the sample is
// large enough to trust (spec.md §4.8: denominator >= 5).
func (s *RuleState) successRate() (rate float64, defined bool) {
	total := s.Applied + s.Reverted
	if total < minSampleForRates {
		return 0, false
	}
	return s.Applied / total, true
}

// revertRate is the complement of successRate over the same denominator.
func (s *RuleState) revertRate() (rate float64, defined bool) {
	total := s.Applied + s.Reverted
	if total < minSampleForRates {
		return 0, false
	}
	return s.Reverted / total, true
}

// thresholdDelta is the per-rule ±0.05 adjustment: raised when revert_rate
// exceeds 25%, lowered when success_rate exceeds 80%. Both cannot fire at
// once since they partition the same denominator.
func (s *RuleState) thresholdDelta() float64 {
	if rr, ok := s.revertRate(); ok && rr > 0.25 {
		return thresholdStep
	}
	if sr, ok := s.successRate(); ok && sr > 0.80 {
		return -thresholdStep
	}
	return 0
}
