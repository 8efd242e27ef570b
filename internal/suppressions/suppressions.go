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

// Package suppressions scans a file's own comments for in-source
// suppression directives (spec.md §4.11), one pass per file per run.
// Path-based suppression (policy globs) lives in internal/policy, applied
// before detection; this package handles what a line comment can turn off
// after a finding already exists.
package suppressions

import (
	"bufio"
	"bytes"
	"log/slog"
	"regexp"
)

var (
	reFileDisableAll  = regexp.MustCompile(`\bfile-disable-all\b`)
	reFileDisableRule = regexp.MustCompile(`\bfile-disable=([A-Za-z0-9_.\-]+)`)
	reLineDisableAll  = regexp.MustCompile(`\bdisable-all\b`)
	reLineDisableRule = regexp.MustCompile(`\bdisable=([A-Za-z0-9_.\-]+)`)
	reBlockDisable    = regexp.MustCompile(`\bdisable\s+([A-Za-z0-9_.\-]+)`)
	reBlockEnable     = regexp.MustCompile(`\benable\s+([A-Za-z0-9_.\-]+)`)
)

// lineRange is a half-open [Start, End) range of 1-indexed line numbers:
// End is the "enable" line itself and is not suppressed.
type lineRange struct {
	Start, End int
}

// FileSuppressions is the parsed directive set for one file.
type FileSuppressions struct {
	FileDisableAll  bool
	FileDisableRule map[string]bool
	LineDisableAll  map[int]bool
	LineDisableRule map[int]map[string]bool
	BlockRanges     map[string][]lineRange
}

func newFileSuppressions() FileSuppressions {
	return FileSuppressions{
		FileDisableRule: map[string]bool{},
		LineDisableAll:  map[int]bool{},
		LineDisableRule: map[int]map[string]bool{},
		BlockRanges:     map[string][]lineRange{},
	}
}

// Suppressed reports whether ruleID is suppressed at the given 1-indexed
// line by any directive this file declared.
func (fs FileSuppressions) Suppressed(ruleID string, line int) bool {
	if fs.FileDisableAll || fs.FileDisableRule[ruleID] {
		return true
	}
	if fs.LineDisableAll[line] {
		return true
	}
	if fs.LineDisableRule[line][ruleID] {
		return true
	}
	for _, r := range fs.BlockRanges[ruleID] {
		if line >= r.Start && line < r.End {
			return true
		}
	}
	return false
}

// Parse scans content once and builds its FileSuppressions. Unclosed
// `disable <rule>` blocks run to end of file; this is logged since it is
// very likely a missing `enable <rule>`.
func Parse(path string, content []byte, logger *slog.Logger) FileSuppressions {
	if logger == nil {
		logger = slog.Default()
	}
	fs := newFileSuppressions()
	openBlocks := map[string]int{} // rule -> start line

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()

		if reFileDisableAll.Match(line) {
			fs.FileDisableAll = true
			continue
		}
		if m := reFileDisableRule.FindSubmatch(line); m != nil {
			fs.FileDisableRule[string(m[1])] = true
			continue
		}
		if reLineDisableAll.Match(line) {
			fs.LineDisableAll[lineNo] = true
			continue
		}
		if m := reLineDisableRule.FindSubmatch(line); m != nil {
			rule := string(m[1])
			if fs.LineDisableRule[lineNo] == nil {
				fs.LineDisableRule[lineNo] = map[string]bool{}
			}
			fs.LineDisableRule[lineNo][rule] = true
			continue
		}
		if m := reBlockEnable.FindSubmatch(line); m != nil {
			rule := string(m[1])
			if start, open := openBlocks[rule]; open {
				fs.BlockRanges[rule] = append(fs.BlockRanges[rule], lineRange{Start: start, End: lineNo})
				delete(openBlocks, rule)
			}
			continue
		}
		if m := reBlockDisable.FindSubmatch(line); m != nil {
			rule := string(m[1])
			if _, open := openBlocks[rule]; !open {
				openBlocks[rule] = lineNo
			}
			continue
		}
	}

	for rule, start := range openBlocks {
		fs.BlockRanges[rule] = append(fs.BlockRanges[rule], lineRange{Start: start, End: lineNo + 1})
		logger.Warn("suppressions.unclosed_block", "path", path, "rule", rule, "start_line", start)
	}

	return fs
}

// Index holds the parsed suppressions for every file scanned this run.
type Index struct {
	perFile map[string]FileSuppressions
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{perFile: map[string]FileSuppressions{}}
}

// ScanFile parses one file's content and stores its suppressions under
// path.
func (idx *Index) ScanFile(path string, content []byte, logger *slog.Logger) {
	idx.perFile[path] = Parse(path, content, logger)
}

// IsSuppressed reports whether ruleID is suppressed at file:line by an
// in-source directive. Files never scanned report no suppressions.
func (idx *Index) IsSuppressed(ruleID, file string, line int) bool {
	fs, ok := idx.perFile[file]
	if !ok {
		return false
	}
	return fs.Suppressed(ruleID, line)
}
