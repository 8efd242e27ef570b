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

package identity

import (
	"strings"
	"testing"
)

func TestContextHash_DeterministicAndLength(t *testing.T) {
	a := ContextHash("py.bare-except", "app/x.py", "except:", "bare except swallows all errors")
	b := ContextHash("py.bare-except", "app/x.py", "except:", "bare except swallows all errors")
	if a != b {
		t.Errorf("ContextHash not deterministic: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %d (%q)", len(a), a)
	}
}

func TestContextHash_TruncatesRationale(t *testing.T) {
	long := strings.Repeat("x", 500)
	a := ContextHash("r", "f", "slice", long[:100]+"AAAA")
	b := ContextHash("r", "f", "slice", long[:100]+"BBBB")
	if a != b {
		t.Error("expected rationale beyond byte 100 to not affect the hash")
	}
}

func TestStableID_Format(t *testing.T) {
	id := StableID("py.bare-except", "app/x.py", 12, "abcd1234abcd1234")
	want := "py.bare-except:app/x.py:12:abcd1234abcd1234"
	if id != want {
		t.Errorf("StableID = %q, want %q", id, want)
	}
}

func TestBaselineID_Deterministic(t *testing.T) {
	a := BaselineID("r", "f.py", 1, 3, "deadbeefdeadbeef")
	b := BaselineID("r", "f.py", 1, 3, "deadbeefdeadbeef")
	if a != b {
		t.Error("BaselineID not deterministic")
	}
	c := BaselineID("r", "f.py", 1, 4, "deadbeefdeadbeef")
	if a == c {
		t.Error("different end_line produced same BaselineID")
	}
}
