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

package engine

import "github.com/coreace/ace/internal/policy"

// policyView adapts *policy.Policy to plugin.PolicyView, the narrow
// surface a Detector is allowed to see.
//
// policy.toml (spec.md §6) has no rule-enablement section and no generic
// per-rule parameter bag — only [meta], [scoring], [limits], [modes],
// [risk_classes], [suppressions], [packs]. A rule that exists in the
// registry is always enabled as far as Policy itself is concerned; the
// engine applies path- and rule-level suppression separately via
// Policy.IsSuppressedPath / IsSuppressedForRule before a detector ever
// runs, and detect-only vs. auto-fix is decided later by the planner via
// Policy.ModeFor. So Enabled is always true here, and Param always
// reports absent: there is nothing in Policy's schema for either to read.
type policyView struct {
	pol *policy.Policy
}

func newPolicyView(pol *policy.Policy) policyView {
	return policyView{pol: pol}
}

func (policyView) Enabled(ruleID string) bool {
	return true
}

func (policyView) Param(ruleID, key string) (string, bool) {
	return "", false
}
