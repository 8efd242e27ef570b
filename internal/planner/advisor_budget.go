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
	"context"
	"sync"

	"github.com/coreace/ace/pkg/plugin"
)

// maxAdvisorCalls and maxAdvisorPromptChars enforce the LM-assist budget
// named in spec.md §6: at most 4 advisor calls per run, each capped to
// roughly 100 tokens. No tokenizer library is wired anywhere in the pack
// for this concern, so the cap is approximated with a 4-chars-per-token
// heuristic, which is conservative enough for a short rationale fragment.
const (
	maxAdvisorCalls       = 4
	maxAdvisorPromptChars = 100 * 4
)

// AdvisorBudget wraps an optional plugin.Advisor with the run-scoped call
// and token budget, plus a content-fingerprint cache so repeated plans with
// identical context never cost a second call. A nil *AdvisorBudget, or one
// wrapping a nil Advisor, always returns ok=false — the heuristic rationale
// stands unchanged, per §6.
type AdvisorBudget struct {
	mu      sync.Mutex
	advisor plugin.Advisor
	calls   int
	cache   map[string]string
}

// NewAdvisorBudget constructs a budget-enforcing wrapper. advisor may be
// nil.
func NewAdvisorBudget(advisor plugin.Advisor) *AdvisorBudget {
	return &AdvisorBudget{advisor: advisor, cache: map[string]string{}}
}

// Suggest returns a supplementary rationale fragment for fingerprint,
// calling the underlying Advisor at most maxAdvisorCalls times total,
// declined calls included. A fingerprint's suggestion is cached once the
// Advisor returns one; a declined fingerprint is not cached.
func (b *AdvisorBudget) Suggest(ctx context.Context, fingerprint, prompt string) (string, bool) {
	if b == nil || b.advisor == nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.cache[fingerprint]; ok {
		return s, true
	}
	if b.calls >= maxAdvisorCalls {
		return "", false
	}
	if len(prompt) > maxAdvisorPromptChars {
		prompt = prompt[:maxAdvisorPromptChars]
	}
	suggestion, ok := b.advisor.Suggest(ctx, prompt)
	b.calls++
	if !ok {
		return "", false
	}
	b.cache[fingerprint] = suggestion
	return suggestion, true
}
