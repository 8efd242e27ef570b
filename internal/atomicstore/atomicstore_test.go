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

package atomicstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWrite_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "file.json")

	if err := AtomicWrite(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

func TestAtomicWrite_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.json")

	if err := AtomicWrite(path, []byte("first")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWrite(path, []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "second" {
		t.Errorf("got %q, want %q", got, "second")
	}

	// No leftover temp files.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly 1 entry in dir, got %d", len(entries))
	}
}

func TestSha256Hex_Deterministic(t *testing.T) {
	a := Sha256Hex([]byte("hello"))
	b := Sha256Hex([]byte("hello"))
	if a != b {
		t.Errorf("Sha256Hex not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if Sha256Hex([]byte("world")) == a {
		t.Error("different inputs produced the same hash")
	}
}

func TestMarshalDeterministic_SortsMapKeys(t *testing.T) {
	m := map[string]int{"zebra": 1, "alpha": 2, "mid": 3}

	b1, err := MarshalDeterministic(m)
	if err != nil {
		t.Fatalf("MarshalDeterministic: %v", err)
	}
	b2, err := MarshalDeterministic(m)
	if err != nil {
		t.Fatalf("MarshalDeterministic: %v", err)
	}
	if string(b1) != string(b2) {
		t.Errorf("non-deterministic output:\n%s\nvs\n%s", b1, b2)
	}

	wantOrder := []byte("alpha")
	if idx := indexOf(b1, wantOrder); idx < 0 {
		t.Fatalf("expected %q in output", wantOrder)
	}
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}

func TestWriteJSONReadJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	in := payload{Name: "foo", Count: 42}

	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var out payload
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}
