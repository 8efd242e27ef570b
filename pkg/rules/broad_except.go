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

package rules

import (
	"bufio"
	"bytes"
	"context"
	"regexp"

	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

const ruleBroadExcept = "py.broad-except"

var reBareExcept = regexp.MustCompile(`^\s*except\s*:\s*$`)

// BroadExceptDetector flags a bare `except:` clause, the pack-cohesion
// scenario spec.md §8 pairs with RequestsNoTimeoutDetector: both rules fire
// within a few lines of each other inside the same try/except block often
// enough to justify a synthesized pack.
type BroadExceptDetector struct{}

func (BroadExceptDetector) Analyze(_ context.Context, filePath string, content []byte, policy plugin.PolicyView) ([]model.Finding, error) {
	if !policy.Enabled(ruleBroadExcept) {
		return nil, nil
	}
	var out []model.Finding
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		if !reBareExcept.MatchString(scanner.Text()) {
			continue
		}
		out = append(out, model.NewFinding(ruleBroadExcept, filePath, line, line, 0.6, 0.3, "bare except swallows all exceptions"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (BroadExceptDetector) Manifest() []model.RuleEffects {
	return []model.RuleEffects{{
		RuleID:                 ruleBroadExcept,
		StructurePreserving:    true,
		MayChangeSymbolCounts:  false,
		PermittedASTHashChange: true,
		DefaultSeverity:        0.6,
	}}
}

// BroadExceptCodemod replaces "except:" with "except Exception:", narrowing
// the catch without changing control flow for any exception the original
// bare clause would have caught.
type BroadExceptCodemod struct{}

func (BroadExceptCodemod) Plan(_ context.Context, filePath string, content []byte, findings []model.Finding) ([]model.Edit, error) {
	lines := bytes.Split(content, []byte("\n"))
	var edits []model.Edit
	for _, f := range findings {
		if f.RuleID != ruleBroadExcept || f.StartLine < 1 || f.StartLine > len(lines) {
			continue
		}
		original := string(lines[f.StartLine-1])
		indent := original[:len(original)-len(trimLeadingSpace(original))]
		edits = append(edits, model.Edit{
			File:      filePath,
			StartLine: f.StartLine,
			EndLine:   f.StartLine,
			Op:        model.OpReplace,
			Payload:   indent + "except Exception:\n",
		})
	}
	return edits, nil
}

func (BroadExceptCodemod) Manifest() []model.RuleEffects {
	return BroadExceptDetector{}.Manifest()
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[i:]
}
