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

package planner

import (
	"github.com/coreace/ace/internal/policy"
	"github.com/coreace/ace/pkg/model"
)

const (
	learnerThresholdMin = 0.60
	learnerThresholdMax = 0.85
)

// Decide maps an R★ score to AUTO/SUGGEST/SKIP against policy thresholds
// (adjusted per-rule by the Learner's threshold tuning, when learner is
// non-nil), then applies the detect-only override: a plan touching any
// rule whose policy mode is detect-only can never be AUTO.
func Decide(rStar float64, pol *policy.Policy, ruleIDs []string, learner LearnerView) model.Decision {
	auto, suggest := effectiveThresholds(pol, ruleIDs, learner)
	d := thresholdDecision(rStar, auto, suggest)
	if d == model.DecisionAuto && anyDetectOnly(pol, ruleIDs) {
		return model.DecisionSuggest
	}
	return d
}

// effectiveThresholds applies each rule's ±0.05 tuning delta (clamped to
// [0.60, 0.85]) and takes the most conservative (highest) result across a
// multi-rule plan, so a pack is never easier to auto-apply than its
// hardest-tuned member rule.
func effectiveThresholds(pol *policy.Policy, ruleIDs []string, learner LearnerView) (auto, suggest float64) {
	auto, suggest = pol.Scoring.AutoThreshold, pol.Scoring.SuggestThreshold
	if learner == nil || len(ruleIDs) == 0 {
		return auto, suggest
	}
	for i, id := range ruleIDs {
		a, s := pol.Scoring.AutoThreshold, pol.Scoring.SuggestThreshold
		if delta := learner.ThresholdDelta(id); delta != 0 {
			a = clampThreshold(a + delta)
			s = clampThreshold(s + delta)
		}
		if i == 0 || a > auto {
			auto = a
		}
		if i == 0 || s > suggest {
			suggest = s
		}
	}
	return auto, suggest
}

func clampThreshold(v float64) float64 {
	if v < learnerThresholdMin {
		return learnerThresholdMin
	}
	if v > learnerThresholdMax {
		return learnerThresholdMax
	}
	return v
}

func thresholdDecision(rStar, autoThreshold, suggestThreshold float64) model.Decision {
	switch {
	case rStar >= autoThreshold:
		return model.DecisionAuto
	case rStar >= suggestThreshold:
		return model.DecisionSuggest
	default:
		return model.DecisionSkip
	}
}

func anyDetectOnly(pol *policy.Policy, ruleIDs []string) bool {
	for _, id := range ruleIDs {
		if pol.ModeFor(id) == policy.ModeDetectOnly {
			return true
		}
	}
	return false
}
