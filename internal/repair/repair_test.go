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

package repair

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/coreace/ace/internal/guard"
	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

// poisonTree wraps raw bytes, same shape as journal's identityTree fake.
type poisonTree struct{ content []byte }

func (t *poisonTree) Close() {}

// poisonParser fails the AST-hash layer (by returning a distinguishable
// hash) whenever the content contains one of its poison markers, so tests
// can force a specific edit to fail Guard while the rest pass untouched.
type poisonParser struct {
	poison []string
}

func newParser(poison ...string) *poisonParser { return &poisonParser{poison: poison} }

func (p *poisonParser) Language() string { return "text" }

func (p *poisonParser) Parse(content []byte) (plugin.ParseTree, error) {
	return &poisonTree{content: append([]byte(nil), content...)}, nil
}

func (p *poisonParser) Reemit(tree plugin.ParseTree) ([]byte, bool, error) {
	return tree.(*poisonTree).content, true, nil
}

func (p *poisonParser) CanonicalHash(tree plugin.ParseTree) ([32]byte, error) {
	content := tree.(*poisonTree).content
	var h [32]byte
	for _, marker := range p.poison {
		if bytes.Contains(content, []byte(marker)) {
			h[0] = 1
			return h, nil
		}
	}
	return h, nil
}

func (p *poisonParser) CountSymbols(tree plugin.ParseTree) (model.ParseSymbolCounts, error) {
	return model.ParseSymbolCounts{}, nil
}

func (p *poisonParser) StructurallyEquivalent(a, b plugin.ParseTree) (bool, error) {
	return bytes.Equal(a.(*poisonTree).content, b.(*poisonTree).content), nil
}

func (p *poisonParser) Imports(tree plugin.ParseTree) ([]string, error) { return nil, nil }

func (p *poisonParser) Symbols(filePath string, content []byte, tree plugin.ParseTree) ([]model.SymbolEntry, error) {
	return nil, nil
}

func lineEdit(startLine int, payload string) model.Edit {
	return model.Edit{File: "f.txt", StartLine: startLine, EndLine: startLine, Op: model.OpReplace, Payload: payload}
}

func effectsStrictASTHash() model.RuleEffects {
	return model.RuleEffects{MayChangeSymbolCounts: true}
}

func TestRun_AllPassWhenNoPoison(t *testing.T) {
	before := []byte("a\nb\nc\nd\n")
	candidates := []Candidate{
		{ID: "f1", Edit: lineEdit(4, "D\n")},
		{ID: "f2", Edit: lineEdit(3, "C\n")},
		{ID: "f3", Edit: lineEdit(2, "B\n")},
		{ID: "f4", Edit: lineEdit(1, "A\n")},
	}
	result, report, calls := Run(newParser(), effectsStrictASTHash(), guard.ModeStrict, before, candidates)

	if string(result) != "A\nB\nC\nD\n" {
		t.Fatalf("unexpected result: %q", result)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("expected no failures, got %v", report.Failed)
	}
	if len(report.Applied) != 4 {
		t.Fatalf("expected all 4 applied, got %v", report.Applied)
	}
	if calls != 1 {
		t.Fatalf("expected 1 guard call when the whole bundle passes, got %d", calls)
	}
}

func TestRun_SalvagesPassingSubsetAroundOnePoisonedEdit(t *testing.T) {
	before := []byte("a\nb\nc\nd\n")
	candidates := []Candidate{
		{ID: "f1", Edit: lineEdit(4, "D\n")},
		{ID: "f2", Edit: lineEdit(3, "POISON\n")},
		{ID: "f3", Edit: lineEdit(2, "B\n")},
		{ID: "f4", Edit: lineEdit(1, "A\n")},
	}
	result, report, calls := Run(newParser("POISON"), effectsStrictASTHash(), guard.ModeStrict, before, candidates)

	if strings.Contains(string(result), "POISON") {
		t.Fatalf("expected the poisoned edit to be excluded, got %q", result)
	}
	if string(result) != "A\nB\nc\nD\n" {
		t.Fatalf("unexpected salvaged result: %q", result)
	}

	sort.Strings(report.Applied)
	sort.Strings(report.Failed)
	if len(report.Failed) != 1 || report.Failed[0] != "f2" {
		t.Fatalf("expected only f2 to fail, got %v", report.Failed)
	}
	if len(report.Applied) != 3 {
		t.Fatalf("expected the other 3 edits applied, got %v", report.Applied)
	}
	if len(report.Attempted) != 4 {
		t.Fatalf("expected all 4 candidates in Attempted, got %v", report.Attempted)
	}
	if calls < 1 || calls > 2*len(candidates)*2 {
		t.Fatalf("guard call count %d outside expected bound", calls)
	}
}

func TestRun_SingleFailingEditRecordsFailureAndStops(t *testing.T) {
	before := []byte("a\n")
	candidates := []Candidate{{ID: "only", Edit: lineEdit(1, "POISON\n")}}
	result, report, calls := Run(newParser("POISON"), effectsStrictASTHash(), guard.ModeStrict, before, candidates)

	if string(result) != "a\n" {
		t.Fatalf("expected the original content preserved, got %q", result)
	}
	if len(report.Applied) != 0 || len(report.Failed) != 1 {
		t.Fatalf("expected a single recorded failure, got applied=%v failed=%v", report.Applied, report.Failed)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 guard call for N=1, got %d", calls)
	}
}

func TestSortByStartLineDescending_OrdersHighestLineFirst(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Edit: lineEdit(1, "x")},
		{ID: "b", Edit: lineEdit(5, "y")},
		{ID: "c", Edit: lineEdit(3, "z")},
	}
	SortByStartLineDescending(candidates)
	if candidates[0].ID != "b" || candidates[1].ID != "c" || candidates[2].ID != "a" {
		t.Fatalf("unexpected order: %v", candidates)
	}
}
