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

package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/coreace/ace/internal/atomicstore"
	"github.com/coreace/ace/internal/guard"
	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

// ApplyOutcome reports what happened when one file's edits within a plan
// were run through the apply sequence.
type ApplyOutcome struct {
	File        string
	Applied     bool
	FailedLayer guard.Layer // set only when Applied is false due to Guard
	Receipt     model.Receipt
}

// ApplyFile runs the six-step apply sequence (spec.md §4.5) for the edits
// in plan that touch one file: read, intent, produce after-bytes,
// Guard, atomic write, success — or abort with a revert entry on Guard
// failure. edits must already be sorted descending by StartLine by the
// caller (the Planner/Repair layer owns edit ordering).
func ApplyFile(j *Journal, parser plugin.LanguageParser, root, file string, edits []model.Edit, ruleIDs []string, effects model.RuleEffects, mode guard.Mode, policyHash string, now time.Time) (ApplyOutcome, error) {
	fullPath := filepath.Join(root, file)
	before, err := os.ReadFile(fullPath)
	if err != nil {
		return ApplyOutcome{}, fmt.Errorf("journal: read %s: %w", file, err)
	}

	planID := planIDFor(ruleIDs, file, edits)
	if _, err := j.AppendIntent(planID, file, ruleIDs, before); err != nil {
		return ApplyOutcome{}, err
	}

	after := applyEdits(before, edits)

	res := guard.Check(parser, guard.Input{Before: before, After: after, Effects: effects, Mode: mode})
	if !res.Passed {
		if _, err := j.AppendRevert(planID, file, string(res.FailedLayer)); err != nil {
			return ApplyOutcome{}, err
		}
		return ApplyOutcome{File: file, Applied: false, FailedLayer: res.FailedLayer}, nil
	}

	if err := atomicstore.AtomicWrite(fullPath, after); err != nil {
		return ApplyOutcome{}, fmt.Errorf("journal: write %s: %w", file, err)
	}
	afterSHA := atomicstore.Sha256Hex(after)
	receiptID := atomicstore.Sha256Hex([]byte(planID + "|" + file + "|" + afterSHA))[:16]

	if _, err := j.AppendSuccess(planID, file, afterSHA, int64(len(after)), receiptID); err != nil {
		return ApplyOutcome{}, err
	}

	receipt := model.Receipt{
		PlanID:        planID,
		File:          file,
		BeforeSHA:     atomicstore.Sha256Hex(before),
		AfterSHA:      afterSHA,
		ParseValid:    true,
		InvariantsMet: true,
		PolicyHash:    policyHash,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
	return ApplyOutcome{File: file, Applied: true, Receipt: receipt}, nil
}

// applyEdits applies edits to content in descending start-line order, per
// step 3 of the apply sequence. Edits must not overlap (the Planner
// guarantees this when building an EditPlan).
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

func planIDFor(ruleIDs []string, file string, edits []model.Edit) string {
	sorted := append([]string(nil), ruleIDs...)
	sort.Strings(sorted)
	payload := file
	for _, r := range sorted {
		payload += "|" + r
	}
	for _, e := range edits {
		payload += fmt.Sprintf("|%d-%d", e.StartLine, e.EndLine)
	}
	return "plan-" + atomicstore.Sha256Hex([]byte(payload))[:12]
}
