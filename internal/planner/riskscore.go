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

// Package planner turns candidate edit plans into ordered, decided Actions:
// a risk/confidence score (R★), a priority for work ordering, and an
// AUTO/SUGGEST/SKIP decision, all deterministic given the same inputs.
package planner

import "github.com/coreace/ace/pkg/model"

// aggregate reports the maximum severity and complexity across a plan's
// findings — the more conservative choice for a multi-finding plan.
func aggregate(findings []model.Finding) (severity, complexity float64) {
	for _, f := range findings {
		if f.Severity > severity {
			severity = f.Severity
		}
		if f.Complexity > complexity {
			complexity = f.Complexity
		}
	}
	return severity, complexity
}

// RStarSingle is the risk/confidence score for a singleton plan:
// α·severity + β·complexity.
func RStarSingle(alpha, beta, severity, complexity float64) float64 {
	return alpha*severity + beta*complexity
}

// RStarPack is the risk/confidence score for a pack: the singleton formula
// plus γ·cohesion.
func RStarPack(alpha, beta, gamma, severity, complexity, cohesion float64) float64 {
	return RStarSingle(alpha, beta, severity, complexity) + gamma*cohesion
}

// RStar dispatches on plan kind and aggregates severity/complexity from the
// plan's findings.
func RStar(alpha, beta, gamma float64, plan model.EditPlan, findings []model.Finding) float64 {
	severity, complexity := aggregate(findings)
	if plan.Kind == model.KindPack {
		return RStarPack(alpha, beta, gamma, severity, complexity, plan.Cohesion)
	}
	return RStarSingle(alpha, beta, severity, complexity)
}
