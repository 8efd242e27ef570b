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

package repomap

import (
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreMatcher honors gitignore-syntax patterns loaded from an ignore
// file (e.g. .gitignore or .aceignore), plus a fixed set of always-ignored
// directories.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	glob   string
	negate bool
}

var alwaysIgnored = []string{".git/**", ".ace/**"}

// LoadIgnoreFile reads a gitignore-syntax file. A missing file yields an
// empty (but non-nil) matcher rather than an error — an ignore file is
// optional.
func LoadIgnoreFile(path string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	for _, g := range alwaysIgnored {
		m.patterns = append(m.patterns, ignorePattern{glob: g})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		p := ignorePattern{}
		if strings.HasPrefix(trimmed, "!") {
			p.negate = true
			trimmed = trimmed[1:]
		}
		trimmed = strings.TrimSuffix(trimmed, "/")
		if !strings.Contains(trimmed, "/") {
			// A bare name matches at any depth, gitignore-style.
			trimmed = "**/" + trimmed
		} else if strings.HasPrefix(trimmed, "/") {
			trimmed = strings.TrimPrefix(trimmed, "/")
		}
		p.glob = trimmed
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Match reports whether a repo-relative, POSIX-separated path should be
// ignored. Later patterns override earlier ones, mirroring gitignore
// semantics (a later "!pattern" can re-include a path an earlier pattern
// excluded).
func (m *IgnoreMatcher) Match(path string) bool {
	if m == nil {
		return false
	}
	ignored := false
	for _, p := range m.patterns {
		candidates := []string{path, path + "/"}
		matched := false
		for _, c := range candidates {
			if ok, _ := doublestar.Match(p.glob, c); ok {
				matched = true
				break
			}
			if ok, _ := doublestar.Match(p.glob+"/**", c); ok {
				matched = true
				break
			}
		}
		if matched {
			ignored = !p.negate
		}
	}
	return ignored
}
