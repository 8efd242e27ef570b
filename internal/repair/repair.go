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

// Package repair salvages a maximal Guard-passing subset out of a failing
// multi-edit bundle via binary search (spec.md §4.9), rather than either
// discarding the whole bundle or trying every 2^N subset.
package repair

import (
	"sort"

	"github.com/coreace/ace/internal/guard"
	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

// Candidate pairs one edit with the identifier (a finding's stable id) the
// Report should refer to it by.
type Candidate struct {
	ID   string
	Edit model.Edit
}

// Report names, by candidate id, what Repair attempted, what it managed to
// apply, and what it had to give up on. Attempted is always
// len(Applied)+len(Failed), in input order.
type Report struct {
	Attempted []string
	Applied   []string
	Failed    []string
}

// Run performs the binary-search isolation described in spec.md §4.9 and
// returns the resulting file content together with the outcome report and
// the number of Guard invocations it took (at most 2*N-1 for N
// candidates). current is the file content the candidates' edits already
// failed Guard against as one bundle; Run still checks the full bundle
// once first, so a bundle that passes costs exactly one Guard call.
func Run(parser plugin.LanguageParser, effects model.RuleEffects, mode guard.Mode, current []byte, candidates []Candidate) ([]byte, Report, int) {
	attempted := make([]string, len(candidates))
	for i, c := range candidates {
		attempted[i] = c.ID
	}

	result, applied, failed, calls := isolate(parser, effects, mode, current, candidates)
	return result, Report{Attempted: attempted, Applied: applied, Failed: failed}, calls
}

// isolate implements the recursive binary search. Trying the full group
// first before splitting means a group that passes whole costs exactly one
// Guard call, and only a failing group pays for its two sub-searches —
// one call per node of the split tree, so at most 2*N-1 calls for N edits.
func isolate(parser plugin.LanguageParser, effects model.RuleEffects, mode guard.Mode, current []byte, group []Candidate) (result []byte, applied, failed []string, calls int) {
	if len(group) == 0 {
		return current, nil, nil, 0
	}

	edits := make([]model.Edit, len(group))
	for i, c := range group {
		edits[i] = c.Edit
	}
	candidate := applyEdits(current, edits)
	calls++
	res := guard.Check(parser, guard.Input{Before: current, After: candidate, Effects: effects, Mode: mode})
	if res.Passed {
		ids := make([]string, len(group))
		for i, c := range group {
			ids[i] = c.ID
		}
		return candidate, ids, nil, calls
	}

	if len(group) == 1 {
		return current, nil, []string{group[0].ID}, calls
	}

	mid := len(group) / 2
	a, b := group[:mid], group[mid:]

	afterA, appliedA, failedA, callsA := isolate(parser, effects, mode, current, a)
	afterB, appliedB, failedB, callsB := isolate(parser, effects, mode, afterA, b)

	applied = append(applied, appliedA...)
	applied = append(applied, appliedB...)
	failed = append(failed, failedA...)
	failed = append(failed, failedB...)
	return afterB, applied, failed, calls + callsA + callsB
}

// SortByStartLineDescending orders candidates the way ApplyFile expects
// edits within one commit: highest line number first, so earlier edits in
// the list never shift the line numbers a later edit in the same list
// still needs to address. Repair's own bisection relies on this order too:
// it applies a group's second half on top of the first half's result at
// the edits' original line numbers, and the final Applied subset is
// handed to journal.ApplyFile.
func SortByStartLineDescending(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Edit.StartLine > candidates[j].Edit.StartLine
	})
}

// applyEdits mirrors internal/journal's edit application (duplicated
// rather than exported across packages to keep Guard's "stateless, no
// package depends on the journal's write path" boundary intact).
func applyEdits(content []byte, edits []model.Edit) []byte {
	ordered := append([]model.Edit(nil), edits...)
	sort.Slice(ordered, func(i, k int) bool { return ordered[i].StartLine > ordered[k].StartLine })

	lines := splitLinesKeepEnds(content)
	for _, e := range ordered {
		lines = applyOneEdit(lines, e)
	}
	var out []byte
	for _, l := range lines {
		out = append(out, l...)
	}
	return out
}

func applyOneEdit(lines [][]byte, e model.Edit) [][]byte {
	start, end := e.StartLine-1, e.EndLine
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	payload := [][]byte{}
	if e.Op != model.OpDelete && e.Payload != "" {
		for _, l := range splitLinesKeepEnds([]byte(e.Payload)) {
			payload = append(payload, l)
		}
	}

	switch e.Op {
	case model.OpDelete:
		out := append([][]byte{}, lines[:start]...)
		return append(out, lines[end:]...)
	case model.OpInsert:
		out := append([][]byte{}, lines[:start]...)
		out = append(out, payload...)
		out = append(out, lines[start:]...)
		return out
	default: // OpReplace
		out := append([][]byte{}, lines[:start]...)
		out = append(out, payload...)
		out = append(out, lines[end:]...)
		return out
	}
}

func splitLinesKeepEnds(content []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}
