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

// Package engine wires every already-independent package (cache, kernel,
// journal, guard, planner, learner, packsynth, repomap, policy) into the
// single top-level Run spec.md §2 describes. Per spec.md §9's
// "globals/singletons" note, every piece of state this package touches is
// a field on Context, threaded explicitly — there is no package-level
// mutable state anywhere in this tree.
package engine

import (
	"log/slog"

	"github.com/coreace/ace/internal/cache"
	"github.com/coreace/ace/internal/journal"
	"github.com/coreace/ace/internal/learner"
	"github.com/coreace/ace/internal/policy"
	"github.com/coreace/ace/internal/repomap"
	"github.com/coreace/ace/pkg/lang/treesitter"
	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

// EngineVersion is stamped into cache keys (spec.md §4.1) so a binary
// upgrade invalidates stale cached findings without an explicit flush.
const EngineVersion = "ace/1"

// Registry is the rule_id-keyed dispatch table spec.md §9 calls for: a
// capability manifest per rule plus the plug-ins that implement it. The
// rule set is open (third-party plug-ins may register more), hence a map
// rather than a compile-time sum type.
type Registry struct {
	Detectors []plugin.Detector
	Codemods  map[string]plugin.Codemod // rule_id -> codemod
	Effects   map[string]model.RuleEffects
}

// NewRegistry builds a Registry from a detector/codemod set, indexing
// their manifests by rule id.
func NewRegistry(detectors []plugin.Detector, codemods map[string]plugin.Codemod) *Registry {
	effects := map[string]model.RuleEffects{}
	for _, d := range detectors {
		for _, e := range d.Manifest() {
			effects[e.RuleID] = e
		}
	}
	for _, c := range codemods {
		for _, e := range c.Manifest() {
			effects[e.RuleID] = e
		}
	}
	return &Registry{Detectors: detectors, Codemods: codemods, Effects: effects}
}

// Context threads every stateful collaborator the top-level Run needs.
// Nothing here is a package-level var; callers build exactly one Context
// per run (or per long-lived process, for a `serve`-style command) and
// pass it down explicitly.
type Context struct {
	Root string // repository root, absolute path

	Config   *Config
	Policy   *policy.Policy
	Registry *Registry
	Parsers  *treesitter.Registry

	Cache   *cache.Cache
	Journal *journal.Journal
	Learner *learner.Learner
	RepoMap *repomap.RepoMap
	Ignore  *repomap.IgnoreMatcher
	Advisor plugin.Advisor
	Metrics *Metrics
	Logger  *slog.Logger
}

// PolicyView returns the plugin.PolicyView a Detector sees, backed by
// c.Policy.
func (c *Context) PolicyView() plugin.PolicyView {
	return newPolicyView(c.Policy)
}
