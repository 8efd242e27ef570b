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

// Package baseline persists an accepted set of findings and diffs a fresh
// run against it (spec.md §4.10), so a CI gate can fail only on genuinely
// new or worsened findings rather than every finding a codebase already
// carries.
package baseline

import (
	"os"
	"sort"

	"github.com/coreace/ace/internal/atomicstore"
	"github.com/coreace/ace/internal/identity"
	"github.com/coreace/ace/pkg/model"
)

// Entry is the persisted, per-finding record a Baseline keeps. It carries
// enough of the finding to diff severity on a later run without pulling
// the full model.Finding shape into the stored file.
type Entry struct {
	BaselineID string  `json:"baseline_id"`
	RuleID     string  `json:"rule_id"`
	File       string  `json:"file"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Severity   float64 `json:"severity"`
}

// Baseline is a sorted-by-id snapshot of accepted findings.
type Baseline struct {
	Entries []Entry `json:"entries"`
}

// IDFor computes a finding's baseline id per §4.10:
// sha256("rule_id|file|start_line|end_line|context_hash").hex[:16].
func IDFor(f model.Finding) string {
	return identity.BaselineID(f.RuleID, f.File, f.StartLine, f.EndLine, f.ContextHash)
}

// FromFindings builds a Baseline snapshot, sorted by baseline id for a
// deterministic on-disk representation.
func FromFindings(findings []model.Finding) Baseline {
	entries := make([]Entry, len(findings))
	for i, f := range findings {
		entries[i] = Entry{
			BaselineID: IDFor(f),
			RuleID:     f.RuleID,
			File:       f.File,
			StartLine:  f.StartLine,
			EndLine:    f.EndLine,
			Severity:   f.Severity,
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].BaselineID < entries[j].BaselineID })
	return Baseline{Entries: entries}
}

// Load reads a Baseline from path. A missing file is not an error: it
// yields an empty Baseline, the correct starting point for a repo's first
// run.
func Load(path string) (Baseline, error) {
	var b Baseline
	if err := atomicstore.ReadJSON(path, &b); err != nil {
		if os.IsNotExist(err) {
			return Baseline{}, nil
		}
		return Baseline{}, err
	}
	return b, nil
}

// Save writes b to path atomically.
func Save(path string, b Baseline) error {
	return atomicstore.WriteJSON(path, b)
}

// Diff reports, per §4.10, the findings that are NEW (present now but not
// in the baseline), FIXED (in the baseline but absent now), and EXISTING
// (present in both — returned as the current finding, so a regression
// check can compare today's severity against the baseline's).
type Diff struct {
	New      []model.Finding
	Fixed    []Entry
	Existing []model.Finding
}

// Compare diffs current findings against a loaded Baseline.
func Compare(baseline Baseline, current []model.Finding) Diff {
	byID := make(map[string]Entry, len(baseline.Entries))
	for _, e := range baseline.Entries {
		byID[e.BaselineID] = e
	}

	seen := make(map[string]bool, len(current))
	var diff Diff
	for _, f := range current {
		id := IDFor(f)
		seen[id] = true
		if _, ok := byID[id]; ok {
			diff.Existing = append(diff.Existing, f)
		} else {
			diff.New = append(diff.New, f)
		}
	}
	for _, e := range baseline.Entries {
		if !seen[e.BaselineID] {
			diff.Fixed = append(diff.Fixed, e)
		}
	}
	return diff
}

// Regressed returns the subset of diff.Existing whose current severity
// exceeds what the baseline recorded for the same baseline id.
func Regressed(baseline Baseline, diff Diff) []model.Finding {
	byID := make(map[string]Entry, len(baseline.Entries))
	for _, e := range baseline.Entries {
		byID[e.BaselineID] = e
	}
	var out []model.Finding
	for _, f := range diff.Existing {
		if e, ok := byID[IDFor(f)]; ok && f.Severity > e.Severity {
			out = append(out, f)
		}
	}
	return out
}

// Gate decides a CI exit code per §4.10's policy-gated rules. It returns 2
// (fail) when --fail-on-new is set and diff.New is non-empty, or when
// --fail-on-regression is set and any existing finding's severity
// increased; 0 otherwise.
func Gate(baseline Baseline, diff Diff, failOnNew, failOnRegression bool) int {
	if failOnNew && len(diff.New) > 0 {
		return 2
	}
	if failOnRegression && len(Regressed(baseline, diff)) > 0 {
		return 2
	}
	return 0
}
