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
	"strings"

	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

const ruleUnusedImport = "go.unused-import"

var (
	reSingleImport = regexp.MustCompile(`^\s*(?:(\w+)\s+)?"([^"]+)"\s*$`)
	reImportBlock  = regexp.MustCompile(`^\s*import\s*\(\s*$`)
	reBlockEnd     = regexp.MustCompile(`^\s*\)\s*$`)
)

// UnusedImportDetector flags one line inside a parenthesized import block
// whose package identifier (the alias, or the path's final segment when
// unaliased) never appears again anywhere else in the file. This is a
// heuristic, not a type-checked unused-import analysis: a name that only
// happens to collide with an unrelated identifier elsewhere in the file
// will suppress the finding, which is the conservative direction to err in
// for an auto-fixable rule.
type UnusedImportDetector struct{}

func (UnusedImportDetector) Analyze(_ context.Context, filePath string, content []byte, policy plugin.PolicyView) ([]model.Finding, error) {
	if !policy.Enabled(ruleUnusedImport) {
		return nil, nil
	}
	if !strings.HasSuffix(filePath, ".go") {
		return nil, nil
	}

	type candidate struct {
		line  int
		ident string
	}
	var candidates []candidate
	var body []string

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	inBlock := false
	for scanner.Scan() {
		line++
		text := scanner.Text()
		body = append(body, text)
		switch {
		case reImportBlock.MatchString(text):
			inBlock = true
		case inBlock && reBlockEnd.MatchString(text):
			inBlock = false
		case inBlock:
			if m := reSingleImport.FindStringSubmatch(text); m != nil {
				ident := m[1]
				if ident == "" {
					ident = packageIdentifier(m[2])
				}
				if ident != "_" && ident != "." {
					candidates = append(candidates, candidate{line: line, ident: ident})
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var out []model.Finding
	for _, c := range candidates {
		if referencedOutsideImports(body, c.line, c.ident) {
			continue
		}
		out = append(out, model.NewFinding(ruleUnusedImport, filePath, c.line, c.line, 0.4, 0.1, "imported package \""+c.ident+"\" is never referenced"))
	}
	return out, nil
}

func (UnusedImportDetector) Manifest() []model.RuleEffects {
	return []model.RuleEffects{{
		RuleID:                ruleUnusedImport,
		StructurePreserving:   false,
		MayChangeSymbolCounts: true,
		ImportRemoving:        true,
		// RemovedImports is deliberately left empty: the specific import
		// this rule removes varies per file, so internal/engine's
		// effectsFor resolves it per invocation straight off the edit
		// rather than from a fixed list declared here.
		DefaultSeverity: 0.4,
	}}
}

// packageIdentifier derives the identifier an unaliased import binds, the
// last path segment, mirroring how the Go compiler resolves it.
func packageIdentifier(importPath string) string {
	if i := strings.LastIndexByte(importPath, '/'); i >= 0 {
		return importPath[i+1:]
	}
	return importPath
}

var identBoundary = regexp.MustCompile(`[A-Za-z0-9_]+`)

// referencedOutsideImports reports whether ident appears as a whole word on
// any line other than importLine.
func referencedOutsideImports(lines []string, importLine int, ident string) bool {
	for i, text := range lines {
		if i+1 == importLine {
			continue
		}
		for _, word := range identBoundary.FindAllString(text, -1) {
			if word == ident {
				return true
			}
		}
	}
	return false
}

// UnusedImportCodemod deletes the single import line a finding points at.
type UnusedImportCodemod struct{}

func (UnusedImportCodemod) Plan(_ context.Context, filePath string, content []byte, findings []model.Finding) ([]model.Edit, error) {
	lineCount := bytes.Count(content, []byte("\n")) + 1
	var edits []model.Edit
	for _, f := range findings {
		if f.RuleID != ruleUnusedImport || f.StartLine < 1 || f.StartLine > lineCount {
			continue
		}
		edits = append(edits, model.Edit{
			File:      filePath,
			StartLine: f.StartLine,
			EndLine:   f.StartLine,
			Op:        model.OpDelete,
		})
	}
	return edits, nil
}

func (UnusedImportCodemod) Manifest() []model.RuleEffects {
	return UnusedImportDetector{}.Manifest()
}
