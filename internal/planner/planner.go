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
	"context"
	"log/slog"
	"sort"

	"github.com/coreace/ace/internal/policy"
	"github.com/coreace/ace/pkg/model"
)

// Input bundles everything the Planner needs to turn candidate plans into
// ordered, decided Actions. Learner, RepoMap, CostP95 and Advisor are all
// optional (nil-safe); each missing input just zeroes its term.
type Input struct {
	Findings []model.Finding   // every finding current plans may reference
	Plans    []model.EditPlan  // candidate plans (singletons and packs)
	Policy   *policy.Policy
	Learner  LearnerView
	RepoMap  RepoMapView
	Mtimes   map[string]int64
	CostP95  map[string]float64
	Advisor  *AdvisorBudget
	Logger   *slog.Logger
}

// Plan scores, decides and orders every candidate plan, returning Actions
// sorted by descending priority with a lexicographic plan-id tie-break —
// fully deterministic given the same Input (spec.md §4.7, §8).
func Plan(ctx context.Context, in Input) []model.Action {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if in.Policy == nil {
		in.Policy = policy.Default()
	}

	byStableID := make(map[string]model.Finding, len(in.Findings))
	for _, f := range in.Findings {
		byStableID[f.StableID] = f
	}

	actions := make([]model.Action, 0, len(in.Plans))
	for _, plan := range in.Plans {
		findings := findingsFor(plan, byStableID)
		rStar := RStar(in.Policy.Scoring.Alpha, in.Policy.Scoring.Beta, in.Policy.Scoring.Gamma, plan, findings)
		decision := Decide(rStar, in.Policy, plan.RuleIDs, in.Learner)
		breakdown := computePriority(plan, rStar, in.Learner, in.RepoMap, in.Mtimes, in.CostP95)

		rationale := breakdown.rationale(plan.ID, decision)
		if in.Advisor != nil {
			if extra, ok := in.Advisor.Suggest(ctx, plan.ID, rationale); ok {
				rationale += " | " + extra
			}
		}

		actions = append(actions, model.Action{
			Plan:      plan,
			Decision:  decision,
			Priority:  breakdown.priority,
			Rationale: rationale,
		})
	}

	sort.SliceStable(actions, func(i, k int) bool {
		if actions[i].Priority != actions[k].Priority {
			return actions[i].Priority > actions[k].Priority
		}
		return actions[i].Plan.ID < actions[k].Plan.ID
	})

	logger.Debug("planner.plan.complete", "candidates", len(in.Plans), "actions", len(actions))
	return actions
}

func findingsFor(plan model.EditPlan, byStableID map[string]model.Finding) []model.Finding {
	findings := make([]model.Finding, 0, len(plan.Findings))
	for _, id := range plan.Findings {
		if f, ok := byStableID[id]; ok {
			findings = append(findings, f)
		}
	}
	return findings
}
