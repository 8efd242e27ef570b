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

package treesitter

import "strings"

// DetectLanguage maps a file extension to one of SupportedLanguages, or ""
// if the file is not one this package parses.
func DetectLanguage(path string) string {
	switch {
	case strings.HasSuffix(path, ".go"):
		return "go"
	case strings.HasSuffix(path, ".py"):
		return "python"
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".jsx"):
		return "javascript"
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".tsx"):
		return "typescript"
	default:
		return ""
	}
}

// Registry holds one Parser per supported language, all built by
// NewRegistry.
type Registry struct {
	parsers map[string]*Parser
}

// NewRegistry builds parsers for every supported language up front (the
// pools themselves are lazy, so this is cheap).
func NewRegistry() (*Registry, error) {
	r := &Registry{parsers: make(map[string]*Parser, len(SupportedLanguages))}
	for _, lang := range SupportedLanguages {
		p, err := New(lang)
		if err != nil {
			return nil, err
		}
		r.parsers[lang] = p
	}
	return r, nil
}

// For returns the parser for a language, or nil if unsupported.
func (r *Registry) For(language string) *Parser {
	return r.parsers[language]
}

// ForPath detects the language from the path's extension and returns its
// parser, or nil if the language is unsupported.
func (r *Registry) ForPath(path string) *Parser {
	lang := DetectLanguage(path)
	if lang == "" {
		return nil
	}
	return r.parsers[lang]
}
