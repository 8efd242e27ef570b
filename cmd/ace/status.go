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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/coreace/ace/internal/baseline"
	"github.com/coreace/ace/internal/cliui"
	"github.com/coreace/ace/internal/engine"
)

// runStatus reports the finding counts from the last-saved baseline
// without running detection: a quick "where do we stand" check between
// full ace run invocations.
func runStatus(args []string, configPath string, globals GlobalFlags) int {
	_ = parseStatusFlags(args)

	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if configPath != "" {
		root = configPath
	}

	if _, err := os.Stat(engine.ConfigPath(root)); err != nil {
		fmt.Fprintln(os.Stderr, "Error: not an ace project (run 'ace init' first)")
		return 1
	}

	baselinePath := filepath.Join(engine.ConfigDir(root), "baseline.json")
	b, err := baseline.Load(baselinePath)
	if err != nil {
		cliui.Errorln(err.Error())
		return 1
	}

	byRule := map[string]int{}
	for _, e := range b.Entries {
		byRule[e.RuleID]++
	}
	ruleIDs := make([]string, 0, len(byRule))
	for id := range byRule {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)

	if globals.JSON {
		out := struct {
			Total int            `json:"total"`
			Rules map[string]int `json:"by_rule"`
		}{Total: len(b.Entries), Rules: byRule}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return 0
	}

	cliui.Header("ace status")
	if len(b.Entries) == 0 {
		cliui.Info("No baseline saved yet. Run 'ace run --save-baseline' to create one.")
		return 0
	}
	fmt.Printf("%s %s\n", cliui.Label("Baselined findings:"), cliui.CountText(len(b.Entries)))
	for _, id := range ruleIDs {
		fmt.Printf("  %-28s %s\n", id, cliui.CountText(byRule[id]))
	}
	return 0
}

type statusFlags struct{}

func parseStatusFlags(args []string) statusFlags {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ace status [options]

Shows the finding counts recorded in the last saved baseline.
`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	return statusFlags{}
}
