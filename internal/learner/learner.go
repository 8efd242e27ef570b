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

package learner

import (
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coreace/ace/internal/atomicstore"
)

// skipKey identifies one auto-skiplist entry: a rule is skipped for a file
// only while the file's content matches the hash recorded when it was
// skiplisted (spec.md §4.8: "a file whose content hash changes removes it
// from the skiplist automatically").
type skipKey struct {
	RuleID      string `json:"rule_id"`
	File        string `json:"file"`
	ContentHash string `json:"content_hash"`
}

// persisted is the on-disk shape of the learner store.
type persisted struct {
	States   map[string]*RuleState `json:"states"`
	Skiplist []skipKey             `json:"skiplist"`
}

// Learner is the mutable, persisted rule-outcome tracker. All exported
// methods are safe for concurrent use.
type Learner struct {
	mu       sync.Mutex
	states   map[string]*RuleState
	skiplist map[skipKey]bool
	logger   *slog.Logger
}

// New returns an empty Learner.
func New(logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{states: map[string]*RuleState{}, skiplist: map[skipKey]bool{}, logger: logger}
}

// Load reads a previously saved learner store, or returns an empty Learner
// if path does not exist yet.
func Load(path string, logger *slog.Logger) (*Learner, error) {
	l := New(logger)
	var p persisted
	if err := atomicstore.ReadJSON(path, &p); err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	if p.States != nil {
		for id, s := range p.States {
			if s.ConsecutiveReverts == nil {
				s.ConsecutiveReverts = map[string]int{}
			}
			l.states[id] = s
		}
	}
	for _, k := range p.Skiplist {
		l.skiplist[k] = true
	}
	return l, nil
}

// Save persists the learner store deterministically (sorted skiplist).
func (l *Learner) Save(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := persisted{States: l.states, Skiplist: make([]skipKey, 0, len(l.skiplist))}
	for k := range l.skiplist {
		p.Skiplist = append(p.Skiplist, k)
	}
	sort.Slice(p.Skiplist, func(i, j int) bool {
		a, b := p.Skiplist[i], p.Skiplist[j]
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.ContentHash < b.ContentHash
	})
	return atomicstore.WriteJSON(path, p)
}

func (l *Learner) stateFor(ruleID string) *RuleState {
	s, ok := l.states[ruleID]
	if !ok {
		s = newRuleState()
		l.states[ruleID] = s
	}
	return s
}

// Decay applies §4.8's weekly decay to every tracked rule's counters. It
// must be called once per run, before any outcome recording or rate
// lookups, with an explicit now so decay is deterministic under test.
func (l *Learner) Decay(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	epoch := now.Unix()
	for _, s := range l.states {
		s.decay(epoch)
	}
}

// RecordApplied records a successful apply of ruleID against file.
func (l *Learner) RecordApplied(ruleID, file string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateFor(ruleID)
	s.Applied++
	s.ConsecutiveReverts[file] = 0
	s.LastUpdated = now.Unix()
}

// RecordReverted records a reverted apply of ruleID against file, and adds
// the pair to the auto-skiplist once ConsecutiveReverts[file] reaches the
// spec's threshold of 3.
func (l *Learner) RecordReverted(ruleID, file, contentHash string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateFor(ruleID)
	s.Reverted++
	s.ConsecutiveReverts[file]++
	s.LastUpdated = now.Unix()

	if s.ConsecutiveReverts[file] >= consecutiveRevertSkipThreshold {
		l.skiplist[skipKey{RuleID: ruleID, File: file, ContentHash: contentHash}] = true
		l.logger.Warn("learner.skiplist.added", "rule_id", ruleID, "file", file)
	}
}

// RecordSuggested records a SUGGEST decision for ruleID.
func (l *Learner) RecordSuggested(ruleID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateFor(ruleID)
	s.Suggested++
	s.LastUpdated = now.Unix()
}

// RecordSkipped records a SKIP decision for ruleID.
func (l *Learner) RecordSkipped(ruleID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateFor(ruleID)
	s.Skipped++
	s.LastUpdated = now.Unix()
}

// IsSkiplisted reports whether (ruleID, file, contentHash) is on the
// auto-skiplist. A content hash change silently drops the entry out of
// matching, rather than requiring an explicit eviction pass.
func (l *Learner) IsSkiplisted(ruleID, file, contentHash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.skiplist[skipKey{RuleID: ruleID, File: file, ContentHash: contentHash}]
}

// SuccessRate implements planner.LearnerView.
func (l *Learner) SuccessRate(ruleID string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.states[ruleID]
	if !ok {
		return 0, false
	}
	return s.successRate()
}

// HighRevertRate implements planner.LearnerView: a rule is flagged for a
// file once it is one revert away from the auto-skiplist threshold.
func (l *Learner) HighRevertRate(ruleID, file string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.states[ruleID]
	if !ok {
		return false
	}
	return s.ConsecutiveReverts[file] >= consecutiveRevertSkipThreshold-1
}

// ThresholdDelta returns ruleID's current ±0.05 threshold adjustment, or 0
// if untracked or the sample is too small to judge.
func (l *Learner) ThresholdDelta(ruleID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.states[ruleID]
	if !ok {
		return 0
	}
	return s.thresholdDelta()
}
