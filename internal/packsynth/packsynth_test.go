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

package packsynth

import (
	"testing"

	"github.com/coreace/ace/pkg/model"
)

func singletonFor(stableID, file string, line int) model.EditPlan {
	return model.EditPlan{
		ID:       "plan-" + stableID,
		Findings: []string{stableID},
		Edits:    []model.Edit{{File: file, StartLine: line, EndLine: line, Op: model.OpReplace, Payload: "x\n"}},
		Kind:     model.KindSingleton,
	}
}

func TestSynthesize_GroupsByRecipeAndFile(t *testing.T) {
	recipe := NewRecipe("r.cleanup", []string{"rule.a", "rule.b"}, ContextFile, "cleanup pair")
	findings := []model.Finding{
		{StableID: "f1", RuleID: "rule.a", File: "x.py", StartLine: 1},
		{StableID: "f2", RuleID: "rule.b", File: "x.py", StartLine: 10},
	}
	singles := map[string]model.EditPlan{
		"f1": singletonFor("f1", "x.py", 1),
		"f2": singletonFor("f2", "x.py", 10),
	}

	packs, consumed := Synthesize(Input{
		Recipes:        []Recipe{recipe},
		Findings:       findings,
		SingletonPlans: singles,
		MinFindings:    2,
	})
	if len(packs) != 1 {
		t.Fatalf("expected 1 pack, got %d", len(packs))
	}
	p := packs[0]
	if p.Cohesion != 1.0 {
		t.Fatalf("expected full cohesion (both recipe rules present), got %v", p.Cohesion)
	}
	if len(p.Edits) != 2 {
		t.Fatalf("expected 2 merged edits, got %d", len(p.Edits))
	}
	if !consumed["f1"] || !consumed["f2"] {
		t.Fatal("expected both findings marked consumed")
	}
}

func TestSynthesize_DiscardsGroupsBelowMinFindings(t *testing.T) {
	recipe := NewRecipe("r.cleanup", []string{"rule.a", "rule.b"}, ContextFile, "cleanup pair")
	findings := []model.Finding{
		{StableID: "f1", RuleID: "rule.a", File: "x.py", StartLine: 1},
	}
	singles := map[string]model.EditPlan{"f1": singletonFor("f1", "x.py", 1)}

	packs, consumed := Synthesize(Input{Recipes: []Recipe{recipe}, Findings: findings, SingletonPlans: singles, MinFindings: 2})
	if len(packs) != 0 || len(consumed) != 0 {
		t.Fatalf("expected no packs below min_findings, got %d packs", len(packs))
	}
}

func TestSynthesize_DiscardsOverlappingPackFallsBackToSingletons(t *testing.T) {
	recipe := NewRecipe("r.cleanup", []string{"rule.a", "rule.b"}, ContextFile, "cleanup pair")
	findings := []model.Finding{
		{StableID: "f1", RuleID: "rule.a", File: "x.py", StartLine: 5},
		{StableID: "f2", RuleID: "rule.b", File: "x.py", StartLine: 5},
	}
	singles := map[string]model.EditPlan{
		"f1": singletonFor("f1", "x.py", 5),
		"f2": singletonFor("f2", "x.py", 5), // same line range: overlaps
	}

	packs, consumed := Synthesize(Input{Recipes: []Recipe{recipe}, Findings: findings, SingletonPlans: singles, MinFindings: 2})
	if len(packs) != 0 {
		t.Fatalf("expected the overlapping pack to be discarded, got %d packs", len(packs))
	}
	if len(consumed) != 0 {
		t.Fatal("expected no findings marked consumed when the pack is discarded")
	}
}

type fakeRepoMap struct {
	symbols map[string]model.SymbolEntry
}

func (r *fakeRepoMap) SymbolAt(file string, startLine int) (model.SymbolEntry, bool) {
	s, ok := r.symbols[file]
	return s, ok
}

func TestSynthesize_FunctionContextUsesSymbolName(t *testing.T) {
	recipe := NewRecipe("r.fn", []string{"rule.a", "rule.b"}, ContextFunction, "per-function pair")
	findings := []model.Finding{
		{StableID: "f1", RuleID: "rule.a", File: "x.py", StartLine: 3},
		{StableID: "f2", RuleID: "rule.b", File: "x.py", StartLine: 4},
	}
	singles := map[string]model.EditPlan{
		"f1": singletonFor("f1", "x.py", 3),
		"f2": singletonFor("f2", "x.py", 4),
	}
	rm := &fakeRepoMap{symbols: map[string]model.SymbolEntry{"x.py": {Name: "do_thing"}}}

	packs, _ := Synthesize(Input{Recipes: []Recipe{recipe}, Findings: findings, SingletonPlans: singles, RepoMap: rm, MinFindings: 2})
	if len(packs) != 1 {
		t.Fatalf("expected 1 pack, got %d", len(packs))
	}
	if packs[0].ContextKey != "x.py#do_thing" {
		t.Fatalf("expected symbol-qualified context key, got %q", packs[0].ContextKey)
	}
}

func TestSynthesize_FunctionContextFallsBackToLineBucket(t *testing.T) {
	recipe := NewRecipe("r.fn", []string{"rule.a", "rule.b"}, ContextFunction, "per-function pair")
	findings := []model.Finding{
		{StableID: "f1", RuleID: "rule.a", File: "x.py", StartLine: 3},
		{StableID: "f2", RuleID: "rule.b", File: "x.py", StartLine: 4},
	}
	singles := map[string]model.EditPlan{
		"f1": singletonFor("f1", "x.py", 3),
		"f2": singletonFor("f2", "x.py", 4),
	}
	rm := &fakeRepoMap{symbols: map[string]model.SymbolEntry{}}

	packs, _ := Synthesize(Input{Recipes: []Recipe{recipe}, Findings: findings, SingletonPlans: singles, RepoMap: rm, MinFindings: 2})
	if len(packs) != 1 {
		t.Fatalf("expected 1 pack, got %d", len(packs))
	}
	if packs[0].ContextKey != "x.py#line_bucket:0" {
		t.Fatalf("expected line-bucket fallback context key, got %q", packs[0].ContextKey)
	}
}

func TestSynthesize_PackIDStableUnderFindingReordering(t *testing.T) {
	recipe := NewRecipe("r.cleanup", []string{"rule.a", "rule.b"}, ContextFile, "cleanup pair")
	singles := map[string]model.EditPlan{
		"f1": singletonFor("f1", "x.py", 1),
		"f2": singletonFor("f2", "x.py", 10),
	}

	order1 := []model.Finding{
		{StableID: "f1", RuleID: "rule.a", File: "x.py", StartLine: 1},
		{StableID: "f2", RuleID: "rule.b", File: "x.py", StartLine: 10},
	}
	order2 := []model.Finding{
		{StableID: "f2", RuleID: "rule.b", File: "x.py", StartLine: 10},
		{StableID: "f1", RuleID: "rule.a", File: "x.py", StartLine: 1},
	}

	packs1, _ := Synthesize(Input{Recipes: []Recipe{recipe}, Findings: order1, SingletonPlans: singles, MinFindings: 2})
	packs2, _ := Synthesize(Input{Recipes: []Recipe{recipe}, Findings: order2, SingletonPlans: singles, MinFindings: 2})
	if packs1[0].ID != packs2[0].ID {
		t.Fatalf("expected pack id stable under reordering: %s vs %s", packs1[0].ID, packs2[0].ID)
	}
}
