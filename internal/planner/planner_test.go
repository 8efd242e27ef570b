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
	"math"
	"testing"

	"github.com/coreace/ace/internal/policy"
	"github.com/coreace/ace/pkg/model"
)

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRStarSingle_Formula(t *testing.T) {
	got := RStarSingle(0.7, 0.3, 0.8, 0.5)
	want := 0.7*0.8 + 0.3*0.5
	if !approxEqual(got, want) {
		t.Fatalf("RStarSingle = %v, want %v", got, want)
	}
}

func TestRStarPack_AddsCohesionTerm(t *testing.T) {
	single := RStarSingle(0.7, 0.3, 0.8, 0.5)
	pack := RStarPack(0.7, 0.3, 0.2, 0.8, 0.5, 1.0)
	if !approxEqual(pack, single+0.2) {
		t.Fatalf("RStarPack = %v, want %v", pack, single+0.2)
	}
}

func TestAggregate_UsesMaxAcrossFindings(t *testing.T) {
	findings := []model.Finding{
		{Severity: 0.2, Complexity: 0.9},
		{Severity: 0.7, Complexity: 0.1},
	}
	s, c := aggregate(findings)
	if s != 0.7 || c != 0.9 {
		t.Fatalf("aggregate = (%v,%v), want (0.7,0.9)", s, c)
	}
}

func testPolicy() *policy.Policy {
	p := policy.Default()
	p.Scoring.AutoThreshold = 0.70
	p.Scoring.SuggestThreshold = 0.50
	return p
}

func TestDecide_Thresholds(t *testing.T) {
	pol := testPolicy()
	cases := []struct {
		rStar float64
		want  model.Decision
	}{
		{0.71, model.DecisionAuto},
		{0.70, model.DecisionAuto},
		{0.60, model.DecisionSuggest},
		{0.50, model.DecisionSuggest},
		{0.10, model.DecisionSkip},
	}
	for _, c := range cases {
		got := Decide(c.rStar, pol, []string{"r1"}, nil)
		if got != c.want {
			t.Errorf("Decide(%v) = %v, want %v", c.rStar, got, c.want)
		}
	}
}

func TestDecide_DetectOnlyOverridesAuto(t *testing.T) {
	pol := testPolicy()
	pol.Modes = map[string]policy.Mode{"r1": policy.ModeDetectOnly}
	got := Decide(0.95, pol, []string{"r1"}, nil)
	if got != model.DecisionSuggest {
		t.Fatalf("expected detect-only rule to cap AUTO at SUGGEST, got %v", got)
	}
}

type fakeLearner struct {
	rates      map[string]float64
	undefined  map[string]bool
	highRevert map[[2]string]bool
	deltas     map[string]float64
}

func (l *fakeLearner) SuccessRate(ruleID string) (float64, bool) {
	if l.undefined[ruleID] {
		return 0, false
	}
	r, ok := l.rates[ruleID]
	return r, ok
}

func (l *fakeLearner) HighRevertRate(ruleID, file string) bool {
	return l.highRevert[[2]string{ruleID, file}]
}

func (l *fakeLearner) ThresholdDelta(ruleID string) float64 {
	return l.deltas[ruleID]
}

func TestDecide_LearnerRaisesThresholdOnHighRevertRate(t *testing.T) {
	pol := testPolicy()
	learner := &fakeLearner{deltas: map[string]float64{"r1": 0.05}}
	// 0.72 clears the base 0.70 auto_threshold but not the tuned 0.75.
	got := Decide(0.72, pol, []string{"r1"}, learner)
	if got != model.DecisionSuggest {
		t.Fatalf("expected the raised threshold to demote to SUGGEST, got %v", got)
	}
}

type fakeRepoMap struct{ boost float64 }

func (r *fakeRepoMap) DensityAndRecency(string, map[string]int64) (float64, float64) {
	return r.boost, r.boost
}

func TestPriority_CohesionBonusOnlyForMultiFindingSingleFile(t *testing.T) {
	plan := model.EditPlan{
		ID:       "plan-a",
		Findings: []string{"f1", "f2"},
		Edits: []model.Edit{
			{File: "a.go", StartLine: 1, EndLine: 1},
			{File: "a.go", StartLine: 5, EndLine: 5},
		},
		RuleIDs: []string{"r1"},
	}
	b := computePriority(plan, 0.5, nil, nil, nil, nil)
	if b.cohesionBonus != 20 {
		t.Fatalf("expected cohesion bonus of 20, got %v", b.cohesionBonus)
	}

	singleton := plan
	singleton.Findings = []string{"f1"}
	b2 := computePriority(singleton, 0.5, nil, nil, nil, nil)
	if b2.cohesionBonus != 0 {
		t.Fatalf("expected no cohesion bonus for a single finding, got %v", b2.cohesionBonus)
	}
}

func TestPriority_RevertPenaltyAndSuccessRate(t *testing.T) {
	plan := model.EditPlan{
		ID:       "plan-b",
		Findings: []string{"f1"},
		Edits:    []model.Edit{{File: "a.go", StartLine: 1, EndLine: 1}},
		RuleIDs:  []string{"r1"},
	}
	learner := &fakeLearner{
		rates:      map[string]float64{"r1": 0.9},
		highRevert: map[[2]string]bool{{"r1", "a.go"}: true},
	}
	b := computePriority(plan, 0.5, learner, nil, nil, nil)
	if b.revertPenalty != 20 {
		t.Fatalf("expected revert penalty of 20, got %v", b.revertPenalty)
	}
	if !approxEqual(b.successRateTerm, 9) {
		t.Fatalf("expected success rate term of 9 (0.9*10), got %v", b.successRateTerm)
	}
}

func TestPriority_CostRankPenalizesHighestLatencyRule(t *testing.T) {
	plan := model.EditPlan{
		ID:      "plan-c",
		Edits:   []model.Edit{{File: "a.go", StartLine: 1, EndLine: 1}},
		RuleIDs: []string{"slow", "fast"},
	}
	p95 := map[string]float64{"slow": 2.0, "fast": 0.1, "medium": 1.0}
	b := computePriority(plan, 0.5, nil, nil, nil, p95)
	if b.costRank != 1 {
		t.Fatalf("expected slow rule (highest p95) to carry rank 1, got %d", b.costRank)
	}
}

func TestPlan_SortsByPriorityThenPlanIDTieBreak(t *testing.T) {
	findings := []model.Finding{
		{StableID: "f1", RuleID: "r1", File: "a.go", Severity: 0.9, Complexity: 0.9},
		{StableID: "f2", RuleID: "r1", File: "b.go", Severity: 0.1, Complexity: 0.1},
	}
	plans := []model.EditPlan{
		{ID: "plan-low", Findings: []string{"f2"}, RuleIDs: []string{"r1"}, Edits: []model.Edit{{File: "b.go", StartLine: 1, EndLine: 1}}},
		{ID: "plan-high", Findings: []string{"f1"}, RuleIDs: []string{"r1"}, Edits: []model.Edit{{File: "a.go", StartLine: 1, EndLine: 1}}},
	}
	actions := Plan(context.Background(), Input{Findings: findings, Plans: plans, Policy: testPolicy()})
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].Plan.ID != "plan-high" {
		t.Fatalf("expected plan-high to sort first by priority, got %s", actions[0].Plan.ID)
	}
}

func TestPlan_TieBreaksLexicographicallyOnPlanID(t *testing.T) {
	findings := []model.Finding{
		{StableID: "f1", RuleID: "r1", File: "a.go", Severity: 0.5, Complexity: 0.5},
		{StableID: "f2", RuleID: "r1", File: "b.go", Severity: 0.5, Complexity: 0.5},
	}
	plans := []model.EditPlan{
		{ID: "plan-zz", Findings: []string{"f1"}, RuleIDs: []string{"r1"}, Edits: []model.Edit{{File: "a.go", StartLine: 1, EndLine: 1}}},
		{ID: "plan-aa", Findings: []string{"f2"}, RuleIDs: []string{"r1"}, Edits: []model.Edit{{File: "b.go", StartLine: 1, EndLine: 1}}},
	}
	actions := Plan(context.Background(), Input{Findings: findings, Plans: plans, Policy: testPolicy()})
	if actions[0].Plan.ID != "plan-aa" || actions[1].Plan.ID != "plan-zz" {
		t.Fatalf("expected tie-break to order plan-aa before plan-zz, got %s then %s", actions[0].Plan.ID, actions[1].Plan.ID)
	}
}

func TestAdvisorBudget_CapsCallsAndCachesByFingerprint(t *testing.T) {
	calls := 0
	advisor := advisorFunc(func(ctx context.Context, prompt string) (string, bool) {
		calls++
		return "extra", true
	})
	b := NewAdvisorBudget(advisor)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s, ok := b.Suggest(ctx, "same-fingerprint", "prompt")
		if !ok || s != "extra" {
			t.Fatalf("call %d: expected a cached suggestion, got %q/%v", i, s, ok)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 underlying call for a repeated fingerprint, got %d", calls)
	}

	for i := 0; i < maxAdvisorCalls+2; i++ {
		b.Suggest(ctx, "fp-"+string(rune('a'+i)), "prompt")
	}
	if calls > maxAdvisorCalls {
		t.Fatalf("expected at most %d underlying calls, got %d", maxAdvisorCalls, calls)
	}
}

func TestAdvisorBudget_NilAdvisorDeclines(t *testing.T) {
	b := NewAdvisorBudget(nil)
	if _, ok := b.Suggest(context.Background(), "fp", "prompt"); ok {
		t.Fatal("expected a nil advisor to always decline")
	}
}

type advisorFunc func(ctx context.Context, prompt string) (string, bool)

func (f advisorFunc) Suggest(ctx context.Context, prompt string) (string, bool) { return f(ctx, prompt) }
