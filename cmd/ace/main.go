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

// Package main implements the ace CLI, a thin driver over internal/engine.
//
// Usage:
//
//	ace init                 Create .ace/project.yaml and policy.toml
//	ace run [--apply]        Detect findings, plan and optionally apply fixes
//	ace status               Show the last saved baseline's finding counts
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/coreace/ace/internal/cliui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the flags every subcommand inherits.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Project root directory containing .ace/ (default: the current directory)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)

	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `ace - Autonomous Code Engine

ace scans a repository for rule violations, scores each one's risk and
confidence, and either applies a structure-preserving fix automatically or
surfaces it for review, guarded at every step by parse-tree verification.

Usage:
  ace <command> [options]

Commands:
  init      Create .ace/project.yaml and policy.toml for the current repo
  run       Detect findings, plan fixes, and optionally apply them
  status    Show the last saved baseline's finding counts

Global Options:
  --json            Output in JSON format
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Project root directory containing .ace/
  -V, --version     Show version and exit

Examples:
  ace init                  Create configuration with defaults
  ace run                   Detect findings only (no mutation)
  ace run --apply           Detect, plan and apply AUTO-decision fixes
  ace status --json         Show baseline counts as JSON

For detailed command help: ace <command> --help
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("ace version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *quiet && *verbose > 0 {
		fmt.Fprintln(os.Stderr, "Error: cannot use --quiet and --verbose together")
		os.Exit(1)
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	cliui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command, cmdArgs := args[0], args[1:]

	var exitCode int
	switch command {
	case "init":
		exitCode = runInit(cmdArgs, globals)
	case "run":
		exitCode = runRun(cmdArgs, *configPath, globals)
	case "status":
		exitCode = runStatus(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		exitCode = 1
	}
	os.Exit(exitCode)
}
