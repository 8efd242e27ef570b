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

package planner

import (
	"fmt"
	"sort"

	"github.com/coreace/ace/pkg/model"
)

// LearnerView is the subset of Learner state the Planner reads. A nil
// LearnerView is valid: every method call is skipped and its contribution
// defaults to the neutral value (see Priority).
type LearnerView interface {
	// SuccessRate returns the rule's success_rate and whether it is
	// defined (spec.md §4.8: undefined when applied+reverted < 5).
	SuccessRate(ruleID string) (rate float64, defined bool)
	// HighRevertRate reports whether this rule has a high revert rate
	// specifically for this file (consecutive_reverts-driven signal).
	HighRevertRate(ruleID, file string) bool
	// ThresholdDelta returns the rule's current ±0.05 decision-threshold
	// adjustment (spec.md §4.8's threshold tuning), before clamping.
	ThresholdDelta(ruleID string) float64
}

// RepoMapView is the subset of RepoMap the Planner reads for the
// context-boost term. A nil RepoMapView contributes zero boost.
type RepoMapView interface {
	DensityAndRecency(file string, mtimes map[string]int64) (density, recency float64)
}

// contextBoost is the mean of file symbol-density and recency across a
// plan's affected files, normalized to [0,1]. density/recency are already
// normalized by RepoMap, so this is a plain mean across files and terms.
func contextBoost(rm RepoMapView, mtimes map[string]int64, files []string) float64 {
	if rm == nil || len(files) == 0 {
		return 0
	}
	var sum float64
	for _, f := range files {
		density, recency := rm.DensityAndRecency(f, mtimes)
		sum += (density + recency) / 2
	}
	return sum / float64(len(files))
}

// costRank assigns each rule an integer rank (1 = highest p95 latency,
// increasing as latency falls) by sorting the known rule set descending
// on telemetry p95 latency; a plan's cost_rank is the maximum rank among
// its rules (its slowest-ranked rule dominates the term). Rules absent
// from p95 carry no telemetry signal and contribute rank 0 (no penalty),
// rather than guessing a worst- or best-case rank for them.
func costRank(ruleIDs []string, p95 map[string]float64) int {
	if len(p95) == 0 {
		return 0
	}
	known := make([]string, 0, len(p95))
	for id := range p95 {
		known = append(known, id)
	}
	sort.Slice(known, func(i, k int) bool { return p95[known[i]] > p95[known[k]] })
	rankOf := make(map[string]int, len(known))
	for i, id := range known {
		rankOf[id] = i + 1
	}

	max := 0
	for _, id := range ruleIDs {
		if r, ok := rankOf[id]; ok && r > max {
			max = r
		}
	}
	return max
}

// successRateAvg averages the defined success rates of a plan's rules,
// scaled to the learner's neutral default (0) when none are defined.
func successRateAvg(learner LearnerView, ruleIDs []string) float64 {
	if learner == nil {
		return 0
	}
	var sum float64
	var n int
	for _, id := range ruleIDs {
		if rate, ok := learner.SuccessRate(id); ok {
			sum += rate
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// highRevertRate reports whether the learner flags a high revert rate for
// any (rule, file) pair the plan touches.
func highRevertRate(learner LearnerView, ruleIDs []string, files []string) bool {
	if learner == nil {
		return false
	}
	for _, id := range ruleIDs {
		for _, f := range files {
			if learner.HighRevertRate(id, f) {
				return true
			}
		}
	}
	return false
}

func planFiles(plan model.EditPlan) []string {
	seen := map[string]bool{}
	var files []string
	for _, e := range plan.Edits {
		if !seen[e.File] {
			seen[e.File] = true
			files = append(files, e.File)
		}
	}
	sort.Strings(files)
	return files
}

// priorityBreakdown carries every term of the priority formula so Rationale
// can render the exact numeric contributions spec.md §4.7 requires.
type priorityBreakdown struct {
	rStar              float64
	cohesionBonus      float64
	costRank           int
	revertPenalty      float64
	contextBoostTerm   float64
	successRateTerm    float64
	priority           float64
}

func computePriority(plan model.EditPlan, rStar float64, learner LearnerView, rm RepoMapView, mtimes map[string]int64, p95 map[string]float64) priorityBreakdown {
	files := planFiles(plan)

	cohesionBonus := 0.0
	if plan.SingleFile() && len(plan.Findings) >= 2 {
		cohesionBonus = 20
	}

	rank := costRank(plan.RuleIDs, p95)

	revertPenalty := 0.0
	if highRevertRate(learner, plan.RuleIDs, files) {
		revertPenalty = 20
	}

	boost := contextBoost(rm, mtimes, files) * 5
	successTerm := successRateAvg(learner, plan.RuleIDs) * 10

	priority := 100*rStar + cohesionBonus - float64(rank) - revertPenalty + boost + successTerm

	return priorityBreakdown{
		rStar:            rStar,
		cohesionBonus:    cohesionBonus,
		costRank:         rank,
		revertPenalty:    revertPenalty,
		contextBoostTerm: boost,
		successRateTerm:  successTerm,
		priority:         priority,
	}
}

func (b priorityBreakdown) rationale(planID string, decision model.Decision) string {
	return fmt.Sprintf(
		"plan %s: decision=%s priority=%.2f (100*R*=%.2f + cohesion_bonus=%.0f - cost_rank=%d - revert_penalty=%.0f + context_boost=%.2f + success_rate=%.2f)",
		planID, decision, b.priority, 100*b.rStar, b.cohesionBonus, b.costRank, b.revertPenalty, b.contextBoostTerm, b.successRateTerm,
	)
}
