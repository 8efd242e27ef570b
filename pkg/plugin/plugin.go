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

// Package plugin fixes the three abstraction boundaries the core consumes:
// Detector, Codemod and Language parser. Concrete rule semantics and
// language grammars are replaceable plug-ins; this package only fixes their
// contracts.
package plugin

import (
	"context"

	"github.com/coreace/ace/pkg/model"
)

// PolicyView is the read-only slice of policy a Detector needs: its own
// enabled rule ids and any per-rule configuration. The engine supplies the
// concrete implementation; detectors never see the rest of policy.
type PolicyView interface {
	Enabled(ruleID string) bool
	Param(ruleID, key string) (string, bool)
}

// Detector analyzes one file's bytes and returns findings. Pure: it may not
// perform I/O beyond reading the bytes it was given, and declares its rule
// ids and default severities in a static manifest (Manifest).
type Detector interface {
	// Analyze returns the findings this detector produces for one file.
	Analyze(ctx context.Context, filePath string, content []byte, policy PolicyView) ([]model.Finding, error)
	// Manifest lists the rule ids this detector can emit, each with its
	// static effects manifest (consumed by Guard and by the planner's
	// mode lookup).
	Manifest() []model.RuleEffects
}

// Codemod proposes edits for a finding (or family of findings produced by
// the detector sharing the same rule id). Returning (nil, nil) means
// nothing applies — used for the idempotence check (plan(apply(x)) == nil).
type Codemod interface {
	Plan(ctx context.Context, filePath string, content []byte, findings []model.Finding) ([]model.Edit, error)
	// Manifest mirrors Detector.Manifest: the structural effects this
	// codemod's edits are permitted to cause.
	Manifest() []model.RuleEffects
}

// ParseTree is an opaque handle returned by a LanguageParser. Its contents
// are only meaningful to the LanguageParser implementation that produced
// it; callers pass it back unexamined.
type ParseTree interface {
	// Close releases any resources (e.g. a tree-sitter tree) backing the
	// parse tree. Safe to call multiple times.
	Close()
}

// LanguageParser is the one pluggable boundary Guard and RepoMap depend on
// for language-specific structure. One implementation (tree-sitter backed)
// is bundled; the interface allows adding others.
type LanguageParser interface {
	// Language is the identifier this parser handles ("go", "python", ...).
	Language() string
	// Parse parses source bytes into a tree, or returns a non-nil error
	// (a ParseError in the engine's taxonomy) if the bytes are invalid.
	Parse(content []byte) (ParseTree, error)
	// Reemit serializes a parse tree back to bytes. The boolean return
	// reports whether this language's reemission is byte-identical
	// (true) or merely tree-equivalent (false) — Guard's roundtrip layer
	// uses this to decide which comparison to make.
	Reemit(tree ParseTree) ([]byte, bool, error)
	// CanonicalHash computes a 32-byte fingerprint over a canonicalized
	// form of the tree (whitespace, comments and node identity
	// normalized; semantically significant node kinds preserved).
	CanonicalHash(tree ParseTree) ([32]byte, error)
	// CountSymbols returns the declared function/class/import counts used
	// by Guard layer 3.
	CountSymbols(tree ParseTree) (model.ParseSymbolCounts, error)
	// StructurallyEquivalent reports whether two trees are equivalent
	// under this language's canonicalization rule (Guard layer 2,
	// "structure-preserving" rules only).
	StructurallyEquivalent(a, b ParseTree) (bool, error)
	// Imports lists the import paths declared in the tree, in source
	// order, used by Guard layer 6 (import preservation).
	Imports(tree ParseTree) ([]string, error)
	// Symbols extracts RepoMap entries (functions/classes/module-level
	// declarations with their import dependencies) for one file.
	Symbols(filePath string, content []byte, tree ParseTree) ([]model.SymbolEntry, error)
}

// Advisor is the optional language-model-assist boundary consumed only by
// the planner to enrich a rationale string. Absence (nil Advisor) must
// fall back to the heuristic rationale without error — see spec.md §6.
type Advisor interface {
	// Suggest returns a short supplementary rationale fragment, or
	// ok=false if the advisor declines (budget exhausted, no opinion).
	Suggest(ctx context.Context, prompt string) (suggestion string, ok bool)
}
