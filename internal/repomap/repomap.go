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

// Package repomap walks a project root, parses each source file with the
// registered language plug-ins, and emits a deterministic symbol and
// import-dependency index (spec.md §4.2). No generation timestamp is
// embedded: two builds over identical bytes produce byte-identical output.
package repomap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/coreace/ace/internal/atomicstore"
	"github.com/coreace/ace/pkg/lang/treesitter"
	"github.com/coreace/ace/pkg/model"
)

// RepoMap is the built symbol/import index for one project snapshot.
type RepoMap struct {
	Entries []model.SymbolEntry `json:"entries"`
}

// Builder walks a project root and produces a RepoMap.
type Builder struct {
	logger   *slog.Logger
	registry *treesitter.Registry
}

// NewBuilder constructs a RepoMap builder. A nil logger defaults to
// slog.Default(), matching the teacher's nil-safe constructor convention.
func NewBuilder(logger *slog.Logger) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg, err := treesitter.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("repomap: build language registry: %w", err)
	}
	return &Builder{logger: logger, registry: reg}, nil
}

// Build walks root (honoring ignore), parses every file whose extension
// one of the bundled language plug-ins recognizes, and returns a RepoMap
// sorted by (file, line) with no wall-clock field anywhere in its output.
func (b *Builder) Build(root string, ignore *IgnoreMatcher) (*RepoMap, error) {
	var entries []model.SymbolEntry

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			if rel != "." && ignore.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.Match(rel) {
			return nil
		}
		parser := b.registry.ForPath(rel)
		if parser == nil {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			b.logger.Warn("repomap.build.read_error", "path", rel, "err", readErr)
			return nil
		}
		tree, parseErr := parser.Parse(content)
		if parseErr != nil {
			b.logger.Warn("repomap.build.parse_error", "path", rel, "err", parseErr)
			return nil
		}
		defer tree.Close()

		syms, symErr := parser.Symbols(rel, content, tree)
		if symErr != nil {
			b.logger.Warn("repomap.build.symbols_error", "path", rel, "err", symErr)
			return nil
		}
		for i := range syms {
			syms[i].Size = info.Size()
		}
		entries = append(entries, syms...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repomap: walk %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].File != entries[j].File {
			return entries[i].File < entries[j].File
		}
		if entries[i].Line != entries[j].Line {
			return entries[i].Line < entries[j].Line
		}
		return entries[i].Name < entries[j].Name
	})

	return &RepoMap{Entries: entries}, nil
}

// Serialize produces the deterministic on-disk form: UTF-8 JSON, 2-space
// indent, no embedded timestamp. Two calls over an unchanged RepoMap
// produce byte-identical output, which is the property spec.md §8
// scenario 6 tests via SHA-256 of this output.
func (rm *RepoMap) Serialize() ([]byte, error) {
	return atomicstore.MarshalDeterministic(rm)
}

// SymbolAt returns the innermost declared symbol in file whose
// [Line, EndLine] range contains startLine, if any. Used by pack synthesis
// to key function/class contexts off RepoMap symbols rather than a line
// bucket (see DESIGN.md's resolution of the "context bucketing" open
// question).
func (rm *RepoMap) SymbolAt(file string, startLine int) (model.SymbolEntry, bool) {
	var best model.SymbolEntry
	found := false
	for _, e := range rm.Entries {
		if e.File != file {
			continue
		}
		if startLine < e.Line || startLine > e.EndLine {
			continue
		}
		if !found || (e.EndLine-e.Line) < (best.EndLine-best.Line) {
			best = e
			found = true
		}
	}
	return best, found
}

// DensityAndRecency returns a symbol-density score (symbols per file,
// normalized against the busiest file in the map) and a recency score
// (1.0 for the most recently modified file, scaled down for others) for
// one file, feeding the planner's context_boost term (spec.md §4.7).
// mtimes is supplied by the caller (from a content index) since RepoMap
// entries themselves carry no wall-clock data.
func (rm *RepoMap) DensityAndRecency(file string, mtimes map[string]int64) (density, recency float64) {
	counts := map[string]int{}
	maxCount := 0
	for _, e := range rm.Entries {
		counts[e.File]++
		if counts[e.File] > maxCount {
			maxCount = counts[e.File]
		}
	}
	if maxCount > 0 {
		density = float64(counts[file]) / float64(maxCount)
	}

	var maxMTime int64
	for _, t := range mtimes {
		if t > maxMTime {
			maxMTime = t
		}
	}
	if maxMTime > 0 {
		if t, ok := mtimes[file]; ok {
			recency = float64(t) / float64(maxMTime)
		}
	}
	return density, recency
}
