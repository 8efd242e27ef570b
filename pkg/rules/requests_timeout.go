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

// Package rules ships the reference Detector/Codemod pairs spec.md §6
// names as the shipped starter rule set: py.requests-no-timeout,
// py.broad-except and go.unused-import. Each is line-oriented rather than
// parse-tree-driven — a detector only needs a LanguageParser when Guard
// does, per plugin.Detector's contract of pure byte-in, finding-out.
package rules

import (
	"bufio"
	"bytes"
	"context"
	"regexp"

	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

const ruleRequestsNoTimeout = "py.requests-no-timeout"

var (
	reRequestsCall  = regexp.MustCompile(`\brequests\.(get|post|put|delete|patch|head)\(`)
	reHasTimeoutArg = regexp.MustCompile(`\btimeout\s*=`)
	reTrailingParen = regexp.MustCompile(`\)\s*$`)
)

// RequestsNoTimeoutDetector flags a requests.<verb>(...) call on a single
// line that carries no timeout= keyword argument, the scenario spec.md §8
// walks end to end: an unbounded call can hang a process forever on a
// stalled peer.
type RequestsNoTimeoutDetector struct{}

func (RequestsNoTimeoutDetector) Analyze(_ context.Context, filePath string, content []byte, policy plugin.PolicyView) ([]model.Finding, error) {
	if !policy.Enabled(ruleRequestsNoTimeout) {
		return nil, nil
	}
	var out []model.Finding
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !reRequestsCall.MatchString(text) || reHasTimeoutArg.MatchString(text) {
			continue
		}
		out = append(out, model.NewFinding(ruleRequestsNoTimeout, filePath, line, line, 0.8, 0.2, "requests call has no timeout"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (RequestsNoTimeoutDetector) Manifest() []model.RuleEffects {
	return []model.RuleEffects{{
		RuleID:                 ruleRequestsNoTimeout,
		StructurePreserving:    true,
		MayChangeSymbolCounts:  false,
		PermittedASTHashChange: true,
		DefaultSeverity:        0.8,
	}}
}

// RequestsTimeoutCodemod inserts ", timeout=30" before the call's closing
// parenthesis. It only proposes an edit for findings it can locate a
// trailing ")" on; a line it cannot confidently rewrite is left alone
// rather than risk a malformed edit (returning fewer edits than findings
// is valid per plugin.Codemod's contract).
type RequestsTimeoutCodemod struct{}

func (RequestsTimeoutCodemod) Plan(_ context.Context, filePath string, content []byte, findings []model.Finding) ([]model.Edit, error) {
	lines := bytes.Split(content, []byte("\n"))
	var edits []model.Edit
	for _, f := range findings {
		if f.RuleID != ruleRequestsNoTimeout || f.StartLine < 1 || f.StartLine > len(lines) {
			continue
		}
		original := lines[f.StartLine-1]
		loc := reTrailingParen.FindIndex(original)
		if loc == nil {
			continue
		}
		rewritten := append(append([]byte{}, original[:loc[0]]...), []byte(", timeout=30)")...)
		rewritten = append(rewritten, original[loc[1]:]...)
		edits = append(edits, model.Edit{
			File:      filePath,
			StartLine: f.StartLine,
			EndLine:   f.StartLine,
			Op:        model.OpReplace,
			Payload:   string(rewritten) + "\n",
		})
	}
	return edits, nil
}

func (RequestsTimeoutCodemod) Manifest() []model.RuleEffects {
	return RequestsNoTimeoutDetector{}.Manifest()
}
