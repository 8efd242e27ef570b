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

// Package identity computes the two hash-derived identifiers that findings
// carry throughout the pipeline: context_hash and stable_id (spec.md §3),
// and the baseline id derived from them (spec.md §4.10). Kept as its own
// package (rather than duplicated in kernel and baseline) so the two
// callers can never drift into computing identity differently.
package identity

import (
	"fmt"
	"strings"

	"github.com/coreace/ace/internal/atomicstore"
)

// ContextHash truncates SHA-256("rule_id|file|content-slice|rationale[:100]")
// to 16 hex characters. rationale is truncated to its first 100 bytes
// before hashing, matching spec.md §3 literally (byte truncation, not
// rune-aware, to keep the hash a pure function of raw bytes).
func ContextHash(ruleID, file, contentSlice, rationale string) string {
	if len(rationale) > 100 {
		rationale = rationale[:100]
	}
	payload := strings.Join([]string{ruleID, file, contentSlice, rationale}, "|")
	full := atomicstore.Sha256Hex([]byte(payload))
	return full[:16]
}

// StableID is "rule_id:file:start_line:context_hash" — the identity used
// for baselines, learning and suppression matching.
func StableID(ruleID, file string, startLine int, contextHash string) string {
	return fmt.Sprintf("%s:%s:%d:%s", ruleID, file, startLine, contextHash)
}

// BaselineID is sha256("rule_id|file|start_line|end_line|context_hash"),
// truncated to 16 hex characters.
func BaselineID(ruleID, file string, startLine, endLine int, contextHash string) string {
	payload := fmt.Sprintf("%s|%s|%d|%d|%s", ruleID, file, startLine, endLine, contextHash)
	full := atomicstore.Sha256Hex([]byte(payload))
	return full[:16]
}
