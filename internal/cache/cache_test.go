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

package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/coreace/ace/pkg/model"
)

func sampleKey() Key {
	return Key{
		Path:        "pkg/sample.go",
		FileSHA256:  "abc123",
		RulesetHash: RulesetHash([]string{"go.unused-import", "py.broad-except"}, "v1"),
		EngineVer:   "v1",
	}
}

func TestGetPut_RoundTrip(t *testing.T) {
	c := New()
	now := time.Unix(1_700_000_000, 0)
	key := sampleKey()

	if _, ok := c.Get(key, now); ok {
		t.Fatal("expected miss on empty cache")
	}

	findings := []model.Finding{model.NewFinding("go.unused-import", "pkg/sample.go", 3, 3, 0.3, 0.1, "unused import")}
	c.Put(key, findings, now)

	got, ok := c.Get(key, now)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got) != 1 || got[0].RuleID != "go.unused-import" {
		t.Fatalf("unexpected findings: %+v", got)
	}
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	c := New(WithTTL(time.Hour))
	key := sampleKey()
	t0 := time.Unix(1_700_000_000, 0)
	c.Put(key, []model.Finding{model.NewFinding("r", "f", 1, 1, 0.1, 0.1, "m")}, t0)

	if _, ok := c.Get(key, t0.Add(30*time.Minute)); !ok {
		t.Fatal("expected hit within TTL")
	}
	if _, ok := c.Get(key, t0.Add(2*time.Hour)); ok {
		t.Fatal("expected miss after TTL expiry")
	}
}

func TestDisabled_AlwaysMisses(t *testing.T) {
	c := Disabled()
	now := time.Unix(1_700_000_000, 0)
	key := sampleKey()
	c.Put(key, []model.Finding{model.NewFinding("r", "f", 1, 1, 0.1, 0.1, "m")}, now)
	if _, ok := c.Get(key, now); ok {
		t.Fatal("expected a disabled cache to always miss")
	}
}

func TestInvalidate_DropsAllEntriesForPath(t *testing.T) {
	c := New()
	now := time.Unix(1_700_000_000, 0)
	k1 := Key{Path: "a.go", FileSHA256: "h1", RulesetHash: "r1", EngineVer: "v1"}
	k2 := Key{Path: "a.go", FileSHA256: "h2", RulesetHash: "r2", EngineVer: "v1"}
	k3 := Key{Path: "b.go", FileSHA256: "h3", RulesetHash: "r1", EngineVer: "v1"}
	c.Put(k1, nil, now)
	c.Put(k2, nil, now)
	c.Put(k3, nil, now)

	c.Invalidate("a.go")

	if _, ok := c.Get(k1, now); ok {
		t.Error("expected k1 invalidated")
	}
	if _, ok := c.Get(k2, now); ok {
		t.Error("expected k2 invalidated")
	}
	if _, ok := c.Get(k3, now); !ok {
		t.Error("did not expect k3 to be invalidated")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	now := time.Unix(1_700_000_000, 0)

	c := New()
	key := sampleKey()
	findings := []model.Finding{model.NewFinding("go.unused-import", "pkg/sample.go", 3, 3, 0.3, 0.1, "unused import")}
	c.Put(key, findings, now)
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := loaded.Get(key, now)
	if !ok {
		t.Fatal("expected loaded cache to retain the saved entry")
	}
	if len(got) != 1 || got[0].RuleID != "go.unused-import" {
		t.Fatalf("unexpected findings after reload: %+v", got)
	}
}

func TestLoad_MissingFileYieldsEmptyCache(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.db"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.Get(sampleKey(), time.Unix(1_700_000_000, 0)); ok {
		t.Fatal("expected empty cache for a missing file")
	}
}

func TestRulesetHash_OrderIndependent(t *testing.T) {
	h1 := RulesetHash([]string{"b.rule", "a.rule"}, "v1")
	h2 := RulesetHash([]string{"a.rule", "b.rule"}, "v1")
	if h1 != h2 {
		t.Fatalf("expected ruleset hash to be order-independent, got %s vs %s", h1, h2)
	}
	h3 := RulesetHash([]string{"a.rule", "b.rule"}, "v2")
	if h1 == h3 {
		t.Fatal("expected engine version to affect the ruleset hash")
	}
}
