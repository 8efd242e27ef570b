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

// Package policy loads and validates policy.toml: scoring weights,
// decision thresholds, rule modes, risk classes, suppressions and quality
// gates (spec.md §6). Policy is read-only after load.
package policy

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/coreace/ace/internal/atomicstore"
)

// Mode is a rule's configured application mode.
type Mode string

const (
	ModeAutoFix    Mode = "auto-fix"
	ModeDetectOnly Mode = "detect-only"
)

// Meta carries descriptive, non-semantic policy metadata.
type Meta struct {
	Version     string `toml:"version"`
	Description string `toml:"description"`
}

// Scoring fixes the R★ weights and decision thresholds (spec.md §4.7).
type Scoring struct {
	Alpha            float64 `toml:"alpha"`
	Beta             float64 `toml:"beta"`
	Gamma            float64 `toml:"gamma"`
	AutoThreshold    float64 `toml:"auto_threshold"`
	SuggestThreshold float64 `toml:"suggest_threshold"`
}

// Limits holds finding-count thresholds. They are parsed and kept on the
// Policy, but no code reads them: they change neither a run's result nor
// the CLI's exit code.
type Limits struct {
	WarnAt          int  `toml:"warn_at"`
	FailAt          int  `toml:"fail_at"`
	FailOnCritical  bool `toml:"fail_on_critical"`
}

// Packs controls pack-synthesis thresholds (spec.md §4.6).
type Packs struct {
	Enabled      bool `toml:"enabled"`
	MinFindings  int  `toml:"min_findings"`
	PreferPacks  bool `toml:"prefer_packs"`
}

// Suppressions holds the policy-sourced (as opposed to in-source) path
// suppression glob lists (spec.md §4.11).
type Suppressions struct {
	Paths []string            `toml:"paths"`
	Rules map[string][]string `toml:"rules"`
}

// Policy is the fully parsed policy.toml document.
type Policy struct {
	Meta         Meta                `toml:"meta"`
	Scoring      Scoring             `toml:"scoring"`
	Limits       Limits              `toml:"limits"`
	Modes        map[string]Mode     `toml:"modes"`
	RiskClasses  map[string][]string `toml:"risk_classes"`
	Suppressions Suppressions        `toml:"suppressions"`
	Packs        Packs               `toml:"packs"`

	// hash is computed once at load time and stamped on every Receipt.
	hash string
}

// Default returns a policy with the defaults named throughout spec.md: α=0.7
// β=0.3 γ=0.2, auto_threshold=0.70, suggest_threshold=0.50, min_findings=2.
func Default() *Policy {
	p := &Policy{
		Meta: Meta{Version: "1", Description: "default policy"},
		Scoring: Scoring{
			Alpha: 0.7, Beta: 0.3, Gamma: 0.2,
			AutoThreshold: 0.70, SuggestThreshold: 0.50,
		},
		Limits: Limits{WarnAt: 10, FailAt: 0, FailOnCritical: false},
		Modes:  map[string]Mode{},
		Packs:  Packs{Enabled: true, MinFindings: 2, PreferPacks: true},
	}
	p.hash = p.computeHash()
	return p
}

// Load reads and validates a policy.toml file from disk.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	p := Default()
	// Reset collection-typed defaults so the file fully controls them.
	p.Modes = map[string]Mode{}
	p.RiskClasses = map[string][]string{}
	if err := toml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse policy.toml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.hash = p.computeHash()
	return p, nil
}

// Validate enforces the invariants spec.md §6 fixes: weights and
// thresholds in [0,1], auto_threshold >= suggest_threshold.
func (p *Policy) Validate() error {
	for name, v := range map[string]float64{
		"alpha": p.Scoring.Alpha, "beta": p.Scoring.Beta, "gamma": p.Scoring.Gamma,
		"auto_threshold": p.Scoring.AutoThreshold, "suggest_threshold": p.Scoring.SuggestThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("policy: scoring.%s = %v is out of [0,1]", name, v)
		}
	}
	if p.Scoring.AutoThreshold < p.Scoring.SuggestThreshold {
		return fmt.Errorf("policy: auto_threshold (%v) must be >= suggest_threshold (%v)",
			p.Scoring.AutoThreshold, p.Scoring.SuggestThreshold)
	}
	return nil
}

// Hash returns the policy's content hash, stamped on every Receipt.
func (p *Policy) Hash() string { return p.hash }

func (p *Policy) computeHash() string {
	b, err := atomicstore.MarshalDeterministic(p)
	if err != nil {
		return ""
	}
	return atomicstore.Sha256Hex(b)
}

// ModeFor returns the configured mode for a rule, defaulting to auto-fix
// when unspecified.
func (p *Policy) ModeFor(ruleID string) Mode {
	if m, ok := p.Modes[ruleID]; ok {
		return m
	}
	return ModeAutoFix
}

// IsSuppressedPath reports whether a file path is excluded by the policy's
// global path-suppression globs.
func (p *Policy) IsSuppressedPath(path string) bool {
	return matchesAny(p.Suppressions.Paths, path)
}

// IsSuppressedForRule reports whether a file path is excluded for a
// specific rule by its per-rule glob list.
func (p *Policy) IsSuppressedForRule(ruleID, path string) bool {
	globs, ok := p.Suppressions.Rules[ruleID]
	if !ok {
		return false
	}
	return matchesAny(globs, path)
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}
