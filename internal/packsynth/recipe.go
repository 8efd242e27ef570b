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

// Package packsynth groups related findings into multi-edit packs when
// they share a recipe and a context, per spec.md §4.6.
package packsynth

// Context is the granularity a recipe groups findings by.
type Context string

const (
	ContextFile     Context = "file"
	ContextFunction Context = "function"
	ContextClass    Context = "class"
)

// Recipe names a set of rules that, found together in the same context,
// are worth applying as one pack rather than N independent singletons.
type Recipe struct {
	ID          string
	Rules       map[string]bool
	Context     Context
	Description string
}

// NewRecipe builds a Recipe from a rule-id list.
func NewRecipe(id string, ruleIDs []string, context Context, description string) Recipe {
	rules := make(map[string]bool, len(ruleIDs))
	for _, r := range ruleIDs {
		rules[r] = true
	}
	return Recipe{ID: id, Rules: rules, Context: context, Description: description}
}
