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

package rules

import (
	"context"
	"testing"

	"github.com/coreace/ace/pkg/model"
)

func TestUnusedImportDetector_FlagsNeverReferencedImport(t *testing.T) {
	src := "package main\n\nimport (\n\t\"fmt\"\n\t\"os\"\n)\n\nfunc main() {\n\tos.Exit(0)\n}\n"
	findings, err := UnusedImportDetector{}.Analyze(context.Background(), "main.go", []byte(src), allowAllPolicy{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("want 1 finding, got %d: %+v", len(findings), findings)
	}
	if findings[0].StartLine != 4 {
		t.Fatalf("want line 4 (fmt), got %d", findings[0].StartLine)
	}
}

func TestUnusedImportDetector_IgnoresReferencedImport(t *testing.T) {
	src := "package main\n\nimport (\n\t\"fmt\"\n\t\"os\"\n)\n\nfunc main() {\n\tfmt.Println(\"hi\")\n\tos.Exit(0)\n}\n"
	findings, err := UnusedImportDetector{}.Analyze(context.Background(), "main.go", []byte(src), allowAllPolicy{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("want no findings, got %+v", findings)
	}
}

func TestUnusedImportDetector_SkipsNonGoFiles(t *testing.T) {
	src := "import (\n\t\"fmt\"\n)\n"
	findings, err := UnusedImportDetector{}.Analyze(context.Background(), "notgo.txt", []byte(src), allowAllPolicy{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("want no findings for a non-.go path, got %+v", findings)
	}
}

func TestUnusedImportCodemod_DeletesFlaggedLine(t *testing.T) {
	src := "package main\n\nimport (\n\t\"fmt\"\n\t\"os\"\n)\n\nfunc main() {\n\tos.Exit(0)\n}\n"
	f := model.NewFinding(ruleUnusedImport, "main.go", 4, 4, 0.4, 0.1, `imported package "fmt" is never referenced`)
	edits, err := UnusedImportCodemod{}.Plan(context.Background(), "main.go", []byte(src), []model.Finding{f})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("want 1 edit, got %d", len(edits))
	}
	if edits[0].Op != model.OpDelete {
		t.Fatalf("want OpDelete, got %v", edits[0].Op)
	}
	if edits[0].StartLine != 4 || edits[0].EndLine != 4 {
		t.Fatalf("want line 4-4, got %d-%d", edits[0].StartLine, edits[0].EndLine)
	}
}

func TestUnusedImportDetector_IgnoresBlankAndDotImports(t *testing.T) {
	src := "package main\n\nimport (\n\t_ \"net/http/pprof\"\n\t. \"fmt\"\n)\n\nfunc main() {}\n"
	findings, err := UnusedImportDetector{}.Analyze(context.Background(), "main.go", []byte(src), allowAllPolicy{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("want no findings for blank/dot imports, got %+v", findings)
	}
}
