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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/coreace/ace/internal/cliui"
	"github.com/coreace/ace/internal/engine"
	"github.com/coreace/ace/internal/guard"
	"github.com/coreace/ace/internal/packsynth"
	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
	"github.com/coreace/ace/pkg/rules"
)

type runFlags struct {
	apply            bool
	failOnNew        bool
	failOnRegression bool
	saveBaseline     bool
	lenient          bool
}

// detectors and codemods lists the bundled starter rule set (spec.md §6,
// §8); a real deployment would extend this with its own plug-ins.
func detectors() []plugin.Detector {
	return []plugin.Detector{
		rules.RequestsNoTimeoutDetector{},
		rules.BroadExceptDetector{},
		rules.UnusedImportDetector{},
	}
}

func codemods() map[string]plugin.Codemod {
	return map[string]plugin.Codemod{
		"py.requests-no-timeout": rules.RequestsTimeoutCodemod{},
		"py.broad-except":        rules.BroadExceptCodemod{},
		"go.unused-import":       rules.UnusedImportCodemod{},
	}
}

func recipes() []packsynth.Recipe {
	return []packsynth.Recipe{
		packsynth.NewRecipe(
			"py.request-hygiene",
			[]string{"py.requests-no-timeout", "py.broad-except"},
			packsynth.ContextFile,
			"bundles a missing timeout fix with a nearby broad except narrowing",
		),
	}
}

func runRun(args []string, configPath string, globals GlobalFlags) int {
	f := parseRunFlags(args)

	logLevel := slog.LevelWarn
	if globals.Verbose >= 2 {
		logLevel = slog.LevelDebug
	} else if globals.Verbose >= 1 {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if configPath != "" {
		root = configPath
	}

	ec, err := engine.Open(root, detectors(), codemods(), nil, logger)
	if err != nil {
		cliui.Errorln(err.Error())
		return 1
	}
	defer func() {
		if closeErr := ec.Close(); closeErr != nil {
			cliui.Errorln(closeErr.Error())
		}
	}()

	guardMode := guard.ModeStrict
	if f.lenient {
		guardMode = guard.ModeLenient
	}

	summary, runErr := engine.Run(context.Background(), ec, engine.Options{
		GuardMode:        guardMode,
		Recipes:          recipes(),
		Apply:            f.apply,
		FailOnNew:        f.failOnNew,
		FailOnRegression: f.failOnRegression,
		SaveBaseline:     f.saveBaseline,
	})

	if globals.JSON {
		printJSONSummary(summary)
	} else if !globals.Quiet {
		printSummary(summary, f.apply)
	}

	return engine.ExitCode(runErr)
}

func printSummary(s engine.Summary, applied bool) {
	cliui.Header("ace run")
	fmt.Printf("%s %s\n", cliui.Label("Findings:"), cliui.CountText(len(s.Findings)))
	fmt.Printf("%s  %s\n", cliui.Label("New:"), cliui.CountText(len(s.Diff.New)))
	fmt.Printf("%s %s\n", cliui.Label("Fixed:"), cliui.CountText(len(s.Diff.Fixed)))
	if applied {
		fmt.Printf("%s  %s\n", cliui.Label("Applied:"), cliui.CountText(s.Applied))
		fmt.Printf("%s %s\n", cliui.Label("Reverted:"), cliui.CountText(s.Reverted))
	}
	fmt.Printf("%s  %s\n", cliui.Label("Skipped:"), cliui.CountText(s.Skipped))
	fmt.Printf("%s %s\n", cliui.Label("Deferred:"), cliui.CountText(s.Deferred))
	fmt.Printf("%s %s\n", cliui.Label("Journal:"), cliui.DimText(s.JournalPath))
	if s.ExitCode != 0 {
		cliui.Warningf("Quality gate failed (exit %d)", s.ExitCode)
	}
}

func printJSONSummary(s engine.Summary) {
	type jsonAction struct {
		PlanID   string         `json:"plan_id"`
		Decision model.Decision `json:"decision"`
		Priority float64        `json:"priority"`
	}
	out := struct {
		FindingCount int          `json:"finding_count"`
		New          int          `json:"new"`
		Fixed        int          `json:"fixed"`
		Applied      int          `json:"applied"`
		Reverted     int          `json:"reverted"`
		Skipped      int          `json:"skipped"`
		Deferred     int          `json:"deferred"`
		ExitCode     int          `json:"exit_code"`
		JournalPath  string       `json:"journal_path"`
		ReceiptsDir  string       `json:"receipts_dir"`
		Actions      []jsonAction `json:"actions"`
	}{
		FindingCount: len(s.Findings),
		New:          len(s.Diff.New),
		Fixed:        len(s.Diff.Fixed),
		Applied:      s.Applied,
		Reverted:     s.Reverted,
		Skipped:      s.Skipped,
		Deferred:     s.Deferred,
		ExitCode:     s.ExitCode,
		JournalPath:  s.JournalPath,
		ReceiptsDir:  s.ReceiptsDir,
	}
	for _, a := range s.Actions {
		out.Actions = append(out.Actions, jsonAction{PlanID: a.Plan.ID, Decision: a.Decision, Priority: a.Priority})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func parseRunFlags(args []string) runFlags {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var f runFlags
	fs.BoolVar(&f.apply, "apply", false, "Apply AUTO-decision fixes (default: detect and plan only)")
	fs.BoolVar(&f.failOnNew, "fail-on-new", false, "Exit 2 if the run surfaces any new finding vs. the baseline")
	fs.BoolVar(&f.failOnRegression, "fail-on-regression", false, "Exit 2 if a fixed finding regresses")
	fs.BoolVar(&f.saveBaseline, "save-baseline", false, "Overwrite .ace/baseline.json with this run's findings")
	fs.BoolVar(&f.lenient, "lenient", false, "Use Guard's lenient mode instead of strict")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ace run [options]

Detects findings, plans fixes, and (with --apply) applies the ones the
planner decided AUTO, guarded by Guard at every step.

Options:
`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	return f
}
