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

package packsynth

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/coreace/ace/internal/atomicstore"
	"github.com/coreace/ace/pkg/model"
)

// RepoMapView is the subset of RepoMap packsynth reads to resolve a
// function/class context key to a stable symbol name.
type RepoMapView interface {
	SymbolAt(file string, startLine int) (model.SymbolEntry, bool)
}

// lineBucketSize is the fallback context-key granularity when RepoMap has
// no enclosing symbol for a finding's location.
const lineBucketSize = 20

// Input bundles what Synthesize needs: the candidate recipes, the
// findings to group, and each finding's already-built singleton plan
// (produced upstream by the codemod/apply-planning step) keyed by the
// finding's stable id.
type Input struct {
	Recipes        []Recipe
	Findings       []model.Finding
	SingletonPlans map[string]model.EditPlan
	RepoMap        RepoMapView
	MinFindings    int
	Logger         *slog.Logger
}

// Synthesize groups findings into packs per §4.6 and returns the surviving
// packs (overlapping-edit candidates are discarded, leaving their findings
// to apply as singletons) plus the set of finding stable ids consumed by a
// surviving pack, so callers know which singleton plans to drop.
func Synthesize(in Input) (packs []model.EditPlan, consumed map[string]bool) {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minFindings := in.MinFindings
	if minFindings <= 0 {
		minFindings = 2
	}

	type groupKey struct {
		recipeID   string
		contextKey string
	}
	groups := map[groupKey][]model.Finding{}

	for _, f := range in.Findings {
		for _, recipe := range in.Recipes {
			if !recipe.Rules[f.RuleID] {
				continue
			}
			key := groupKey{recipeID: recipe.ID, contextKey: contextKeyFor(recipe, f, in.RepoMap, logger)}
			groups[key] = append(groups[key], f)
		}
	}

	recipeByID := make(map[string]Recipe, len(in.Recipes))
	for _, r := range in.Recipes {
		recipeByID[r.ID] = r
	}

	consumed = map[string]bool{}
	var keys []groupKey
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].recipeID != keys[j].recipeID {
			return keys[i].recipeID < keys[j].recipeID
		}
		return keys[i].contextKey < keys[j].contextKey
	})

	for _, key := range keys {
		group := groups[key]
		if len(group) < minFindings {
			continue
		}
		recipe := recipeByID[key.recipeID]

		edits, ruleSet, findingIDs, ok := mergeEdits(group, in.SingletonPlans)
		if !ok {
			logger.Warn("packsynth.pack.overlap_discarded", "recipe_id", recipe.ID, "context_key", key.contextKey)
			continue
		}

		cohesion := float64(len(ruleSet)) / float64(len(recipe.Rules))
		ruleIDs := sortedKeys(ruleSet)
		sort.Strings(findingIDs)

		pack := model.EditPlan{
			ID:         packID(key.contextKey, findingIDs),
			Findings:   findingIDs,
			Edits:      edits,
			RuleIDs:    ruleIDs,
			Kind:       model.KindPack,
			Cohesion:   cohesion,
			RecipeID:   recipe.ID,
			ContextKey: key.contextKey,
		}
		packs = append(packs, pack)
		for _, id := range findingIDs {
			consumed[id] = true
		}
	}

	return packs, consumed
}

// contextKeyFor resolves the grouping key for one finding under a recipe's
// context granularity.
func contextKeyFor(recipe Recipe, f model.Finding, rm RepoMapView, logger *slog.Logger) string {
	if recipe.Context == ContextFile || rm == nil {
		return f.File
	}
	if sym, ok := rm.SymbolAt(f.File, f.StartLine); ok {
		return f.File + "#" + sym.Name
	}
	logger.Debug("packsynth.context.line_bucket_fallback", "file", f.File, "start_line", f.StartLine)
	bucket := f.StartLine / lineBucketSize
	return f.File + "#line_bucket:" + strconv.Itoa(bucket)
}

// mergeEdits concatenates the singleton plans' edits for a finding group,
// returning ok=false if any pair of edits overlaps (spec.md §4.6 step 5).
func mergeEdits(group []model.Finding, singletons map[string]model.EditPlan) (edits []model.Edit, ruleSet map[string]bool, findingIDs []string, ok bool) {
	ruleSet = map[string]bool{}
	for _, f := range group {
		plan, exists := singletons[f.StableID]
		if !exists {
			continue
		}
		findingIDs = append(findingIDs, f.StableID)
		ruleSet[f.RuleID] = true
		for _, e := range plan.Edits {
			for _, existing := range edits {
				if e.Overlaps(existing) {
					return nil, nil, nil, false
				}
			}
			edits = append(edits, e)
		}
	}
	return edits, ruleSet, findingIDs, true
}

func packID(contextKey string, sortedFindingIDs []string) string {
	payload := contextKey
	for _, id := range sortedFindingIDs {
		payload += "|" + id
	}
	return "pack-" + atomicstore.Sha256Hex([]byte(payload))[:12]
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
