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

package suppressions

import "testing"

func TestParse_LineDisableRuleOnlySuppressesThatLine(t *testing.T) {
	content := []byte("a = 1\n" + "b = requests.get(url)  # disable=py.requests-no-timeout\n" + "c = 3\n")
	fs := Parse("x.py", content, nil)

	if !fs.Suppressed("py.requests-no-timeout", 2) {
		t.Fatal("expected line 2 suppressed for the named rule")
	}
	if fs.Suppressed("py.requests-no-timeout", 1) {
		t.Fatal("expected line 1 unaffected")
	}
	if fs.Suppressed("py.other-rule", 2) {
		t.Fatal("expected an unrelated rule to not be suppressed")
	}
}

func TestParse_LineDisableAllSuppressesEveryRule(t *testing.T) {
	content := []byte("x = 1  # disable-all\n")
	fs := Parse("x.py", content, nil)
	if !fs.Suppressed("any.rule", 1) {
		t.Fatal("expected disable-all to suppress any rule on its line")
	}
}

func TestParse_FileDisableRuleAppliesToEveryLine(t *testing.T) {
	content := []byte("# file-disable=py.broad-except\n" + "x = 1\n" + "y = 2\n")
	fs := Parse("x.py", content, nil)
	if !fs.Suppressed("py.broad-except", 2) || !fs.Suppressed("py.broad-except", 3) {
		t.Fatal("expected file-disable to suppress the rule on every line")
	}
	if fs.Suppressed("py.other", 2) {
		t.Fatal("expected an unrelated rule to remain active")
	}
}

func TestParse_FileDisableAllSuppressesEveryRuleEverywhere(t *testing.T) {
	content := []byte("# file-disable-all\nx = 1\ny = 2\n")
	fs := Parse("x.py", content, nil)
	if !fs.Suppressed("rule.a", 2) || !fs.Suppressed("rule.b", 3) {
		t.Fatal("expected file-disable-all to suppress everything")
	}
}

func TestParse_FileDisableAllDoesNotAlsoMatchAsLineDisableAll(t *testing.T) {
	content := []byte("# file-disable-all\nx = 1\n")
	fs := Parse("x.py", content, nil)
	// A line-level disable-all map entry should not spuriously exist at
	// line 1 from the same match the file-level directive consumed.
	if fs.LineDisableAll[1] {
		t.Fatal("expected the file-disable-all line to not also register as a per-line disable-all")
	}
}

func TestParse_BlockFormSuppressesHalfOpenRange(t *testing.T) {
	content := []byte(
		"a = 1\n" + // line 1
			"# disable py.broad-except\n" + // line 2: block opens
			"try:\n" + // line 3
			"    pass\n" + // line 4
			"except:\n" + // line 5
			"    pass\n" + // line 6
			"# enable py.broad-except\n" + // line 7: block closes (half-open end)
			"b = 2\n", // line 8
	)
	fs := Parse("x.py", content, nil)
	for line := 2; line < 7; line++ {
		if !fs.Suppressed("py.broad-except", line) {
			t.Fatalf("expected line %d suppressed inside the block", line)
		}
	}
	if fs.Suppressed("py.broad-except", 7) {
		t.Fatal("expected the enable line itself to not be suppressed (half-open range)")
	}
	if fs.Suppressed("py.broad-except", 8) {
		t.Fatal("expected line 8 (past the block) to not be suppressed")
	}
}

func TestParse_UnclosedBlockRunsToEndOfFile(t *testing.T) {
	content := []byte("# disable rule.x\n" + "a = 1\n" + "b = 2\n")
	fs := Parse("x.py", content, nil)
	if !fs.Suppressed("rule.x", 3) {
		t.Fatal("expected an unclosed block to suppress through end of file")
	}
}

func TestIndex_UnscannedFileReportsNoSuppressions(t *testing.T) {
	idx := NewIndex()
	if idx.IsSuppressed("rule.x", "never-scanned.py", 1) {
		t.Fatal("expected no suppression for a file the index never scanned")
	}
}

func TestIndex_ScanFileThenIsSuppressed(t *testing.T) {
	idx := NewIndex()
	idx.ScanFile("x.py", []byte("x = 1  # disable=rule.a\n"), nil)
	if !idx.IsSuppressed("rule.a", "x.py", 1) {
		t.Fatal("expected the scanned file's suppression to be visible via the index")
	}
	if idx.IsSuppressed("rule.a", "y.py", 1) {
		t.Fatal("expected a different file to be unaffected")
	}
}
