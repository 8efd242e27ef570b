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

// Package cache is the Kernel's content-addressed detector-result
// memoizer (spec.md §4.2). It is a pure cache: for any fixed source tree
// and policy, findings(cache_enabled) == findings(cache_disabled)
// byte-for-byte. Sharded by path hash so concurrent workers contend on
// disjoint locks rather than one process-global mutex.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coreace/ace/internal/atomicstore"
	"github.com/coreace/ace/pkg/model"
)

const shardCount = 64

// Key identifies one memoized detector result.
type Key struct {
	Path        string
	FileSHA256  string
	RulesetHash string
	EngineVer   string
}

// entry is the persisted unit: a detector result plus the time it was
// computed, used for TTL invalidation.
type entry struct {
	Key       Key           `json:"key"`
	Findings  []model.Finding `json:"findings"`
	InsertedAt int64        `json:"inserted_at"` // unix seconds
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Cache is the process-wide detector-result memoizer. Zero value is not
// usable; construct with New.
type Cache struct {
	shards [shardCount]*shard
	ttl    time.Duration
	// disabled makes Get always miss and Put a no-op, satisfying the
	// cache-transparency property by construction rather than by
	// duplicating the detector call path.
	disabled bool
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime (24h).
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// Disabled returns a Cache that always misses, used to satisfy
// analyze(T, P, cache=off) without threading a separate code path through
// the Kernel.
func Disabled() *Cache {
	c := New()
	c.disabled = true
	return c
}

// New constructs an empty, in-memory Cache.
func New(opts ...Option) *Cache {
	c := &Cache{ttl: 24 * time.Hour}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]entry)}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RulesetHash is SHA-256 over the sorted list of enabled rule identifiers
// concatenated with the engine version, as spec.md §4.2 fixes it.
func RulesetHash(ruleIDs []string, engineVersion string) string {
	sorted := append([]string(nil), ruleIDs...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte(engineVersion))
	return hex.EncodeToString(h.Sum(nil))
}

func shardFor(shards *[shardCount]*shard, key string) *shard {
	h := sha256.Sum256([]byte(key))
	idx := int(h[0]) % shardCount
	return shards[idx]
}

func (k Key) string() string {
	return k.Path + "\x00" + k.FileSHA256 + "\x00" + k.RulesetHash + "\x00" + k.EngineVer
}

// Get returns a memoized detector result, or ok=false on a cache miss
// (including an expired entry, which Get evicts).
func (c *Cache) Get(key Key, now time.Time) ([]model.Finding, bool) {
	if c.disabled {
		return nil, false
	}
	sk := key.string()
	sh := shardFor(&c.shards, sk)

	sh.mu.RLock()
	e, ok := sh.entries[sk]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && now.Unix()-e.InsertedAt > int64(c.ttl.Seconds()) {
		sh.mu.Lock()
		delete(sh.entries, sk)
		sh.mu.Unlock()
		return nil, false
	}
	out := make([]model.Finding, len(e.Findings))
	copy(out, e.Findings)
	return out, true
}

// Put memoizes a detector result. A no-op on a disabled cache.
func (c *Cache) Put(key Key, findings []model.Finding, now time.Time) {
	if c.disabled {
		return
	}
	sk := key.string()
	sh := shardFor(&c.shards, sk)
	cp := make([]model.Finding, len(findings))
	copy(cp, findings)

	sh.mu.Lock()
	sh.entries[sk] = entry{Key: key, Findings: cp, InsertedAt: now.Unix()}
	sh.mu.Unlock()
}

// Invalidate drops any memoized result for path regardless of its
// ruleset hash or engine version.
func (c *Cache) Invalidate(path string) {
	for _, sh := range c.shards {
		sh.mu.Lock()
		for sk, e := range sh.entries {
			if e.Key.Path == path {
				delete(sh.entries, sk)
			}
		}
		sh.mu.Unlock()
	}
}

// persisted is the on-disk form: a flat, sorted entry list so two
// snapshots of an unchanged cache serialize identically.
type persisted struct {
	Entries []entry `json:"entries"`
}

// Save persists the cache to path (cache.db in the engine's .ace layout)
// via atomicstore's durable write.
func (c *Cache) Save(path string) error {
	var all []entry
	for _, sh := range c.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			all = append(all, e)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool {
		ki, kj := all[i].Key, all[j].Key
		if ki.Path != kj.Path {
			return ki.Path < kj.Path
		}
		if ki.FileSHA256 != kj.FileSHA256 {
			return ki.FileSHA256 < kj.FileSHA256
		}
		return ki.RulesetHash < kj.RulesetHash
	})
	return atomicstore.WriteJSON(path, persisted{Entries: all})
}

// Load restores a previously saved cache from path. A missing file yields
// an empty cache, matching a cold start.
func Load(path string, opts ...Option) (*Cache, error) {
	c := New(opts...)
	var p persisted
	if err := atomicstore.ReadJSON(path, &p); err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	for _, e := range p.Entries {
		sk := e.Key.string()
		sh := shardFor(&c.shards, sk)
		sh.entries[sk] = e
	}
	return c, nil
}
