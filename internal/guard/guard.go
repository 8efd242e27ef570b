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

// Package guard is the multi-layer edit verifier (spec.md §4.4). Given a
// candidate edit's before/after bytes and the rule's declared effects,
// Guard runs six layers in order and reports the first one that fails.
// Guard is stateless, idempotent, and performs no disk I/O: every input
// it needs is passed in by the caller.
package guard

import (
	"bytes"
	"fmt"

	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

// Layer names one of the six verification stages.
type Layer string

const (
	LayerParse               Layer = "parse"
	LayerStructuralEquiv     Layer = "structural_equivalence"
	LayerSymbolCounts        Layer = "symbol_counts"
	LayerASTHash             Layer = "ast_hash"
	LayerRoundtrip           Layer = "roundtrip"
	LayerImportPreservation  Layer = "import_preservation"
)

// Mode selects strict vs. lenient evaluation. In lenient mode, layers 2
// (structural equivalence) and 3 (symbol counts) are warn-only: a failure
// there is recorded in Evidence but does not fail the edit.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeLenient Mode = "lenient"
)

// Evidence captures what each layer observed, for the receipt and for
// human-facing diagnostics.
type Evidence struct {
	BeforeParsed       bool
	AfterParsed        bool
	StructuralEquiv    *bool
	BeforeCounts       model.ParseSymbolCounts
	AfterCounts        model.ParseSymbolCounts
	CountsMatch        *bool
	BeforeASTHash      string
	AfterASTHash       string
	ASTHashChanged     bool
	RoundtripStable    *bool
	MissingImports     []string
	Warnings           []string
}

// Result is the outcome of one Guard evaluation.
type Result struct {
	Passed      bool
	FailedLayer Layer // zero value if Passed
	Evidence    Evidence
}

// Input bundles the candidate edit and the rule's declared effects.
type Input struct {
	Before  []byte
	After   []byte
	Effects model.RuleEffects
	Mode    Mode
}

// Check runs all six layers against parser for one candidate edit.
func Check(parser plugin.LanguageParser, in Input) Result {
	ev := Evidence{}

	// Layer 1: parse.
	beforeTree, beforeErr := parser.Parse(in.Before)
	if beforeErr == nil {
		ev.BeforeParsed = true
		defer beforeTree.Close()
	}
	afterTree, afterErr := parser.Parse(in.After)
	if afterErr == nil {
		ev.AfterParsed = true
		defer afterTree.Close()
	}
	if beforeErr != nil {
		// A before-failure means the source was already unparsable; this
		// is not the edit's fault, so the run skips rather than fails.
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("before bytes failed to parse: %v", beforeErr))
		return Result{Passed: false, FailedLayer: LayerParse, Evidence: ev}
	}
	if afterErr != nil {
		return Result{Passed: false, FailedLayer: LayerParse, Evidence: ev}
	}

	// Layer 2: structural equivalence, only when the rule declares
	// structure-preserving.
	if in.Effects.StructurePreserving {
		equiv, err := parser.StructurallyEquivalent(beforeTree, afterTree)
		if err != nil {
			ev.Warnings = append(ev.Warnings, fmt.Sprintf("structural equivalence check failed: %v", err))
		} else {
			ev.StructuralEquiv = &equiv
			if !equiv {
				if in.Mode == ModeLenient {
					ev.Warnings = append(ev.Warnings, "structural equivalence mismatch (warn-only in lenient mode)")
				} else {
					return Result{Passed: false, FailedLayer: LayerStructuralEquiv, Evidence: ev}
				}
			}
		}
	}

	// Layer 3: symbol counts.
	beforeCounts, err := parser.CountSymbols(beforeTree)
	if err != nil {
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("before symbol count failed: %v", err))
	}
	afterCounts, err := parser.CountSymbols(afterTree)
	if err != nil {
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("after symbol count failed: %v", err))
	}
	ev.BeforeCounts, ev.AfterCounts = beforeCounts, afterCounts
	match := beforeCounts == afterCounts
	ev.CountsMatch = &match
	if !match && !in.Effects.MayChangeSymbolCounts {
		if in.Mode == ModeLenient {
			ev.Warnings = append(ev.Warnings, "symbol count mismatch (warn-only in lenient mode)")
		} else {
			return Result{Passed: false, FailedLayer: LayerSymbolCounts, Evidence: ev}
		}
	}

	// Layer 4: AST hash.
	beforeHash, err := parser.CanonicalHash(beforeTree)
	if err != nil {
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("before AST hash failed: %v", err))
	}
	afterHash, err := parser.CanonicalHash(afterTree)
	if err != nil {
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("after AST hash failed: %v", err))
	}
	ev.BeforeASTHash = fmt.Sprintf("%x", beforeHash)
	ev.AfterASTHash = fmt.Sprintf("%x", afterHash)
	ev.ASTHashChanged = beforeHash != afterHash
	if ev.ASTHashChanged && !in.Effects.PermittedASTHashChange {
		// Strict mode always enforces this; it is never downgraded to
		// warn-only, since an unexpected AST hash change is exactly the
		// "looks fine but changed meaning" case Guard exists to catch.
		return Result{Passed: false, FailedLayer: LayerASTHash, Evidence: ev}
	}

	// Layer 5: roundtrip.
	reemitted, byteIdentical, err := parser.Reemit(afterTree)
	if err != nil {
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("reemit failed: %v", err))
		return Result{Passed: false, FailedLayer: LayerRoundtrip, Evidence: ev}
	}
	roundtripTree, err := parser.Parse(reemitted)
	if err != nil {
		stable := false
		ev.RoundtripStable = &stable
		return Result{Passed: false, FailedLayer: LayerRoundtrip, Evidence: ev}
	}
	defer roundtripTree.Close()

	var stable bool
	if byteIdentical {
		stable = bytes.Equal(reemitted, in.After)
	} else {
		stable, err = parser.StructurallyEquivalent(afterTree, roundtripTree)
		if err != nil {
			ev.Warnings = append(ev.Warnings, fmt.Sprintf("roundtrip equivalence check failed: %v", err))
		}
	}
	ev.RoundtripStable = &stable
	if !stable {
		return Result{Passed: false, FailedLayer: LayerRoundtrip, Evidence: ev}
	}

	// Layer 6: import preservation.
	beforeImports, err := parser.Imports(beforeTree)
	if err != nil {
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("before imports failed: %v", err))
	}
	afterImports, err := parser.Imports(afterTree)
	if err != nil {
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("after imports failed: %v", err))
	}
	afterSet := make(map[string]bool, len(afterImports))
	for _, im := range afterImports {
		afterSet[im] = true
	}
	removedOK := make(map[string]bool, len(in.Effects.RemovedImports))
	if in.Effects.ImportRemoving {
		for _, im := range in.Effects.RemovedImports {
			removedOK[im] = true
		}
	}
	var missing []string
	for _, im := range beforeImports {
		if afterSet[im] {
			continue
		}
		if removedOK[im] {
			continue
		}
		missing = append(missing, im)
	}
	ev.MissingImports = missing
	if len(missing) > 0 {
		return Result{Passed: false, FailedLayer: LayerImportPreservation, Evidence: ev}
	}

	return Result{Passed: true, Evidence: ev}
}
