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
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
	"github.com/pelletier/go-toml/v2"

	"github.com/coreace/ace/internal/cliui"
	"github.com/coreace/ace/internal/engine"
	"github.com/coreace/ace/internal/policy"
)

const defaultIgnoreContents = `.git/**
node_modules/**
vendor/**
dist/**
build/**
*.min.js
`

type initFlags struct {
	force     bool
	projectID string
}

// runInit writes .ace/project.yaml, .ace/policy.toml and .aceignore for
// the current directory, each with spec.md-documented defaults.
func runInit(args []string, globals GlobalFlags) int {
	f := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	configPath := engine.ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !f.force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", configPath)
		return 1
	}

	projectID := f.projectID
	if projectID == "" {
		projectID = filepath.Base(cwd)
	}

	cfg := engine.DefaultConfig(projectID)
	if err := engine.SaveConfig(cfg, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	policyPath := filepath.Join(engine.ConfigDir(cwd), "policy.toml")
	policyBytes, err := toml.Marshal(policy.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: marshal default policy: %v\n", err)
		return 1
	}
	if err := os.WriteFile(policyPath, policyBytes, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: write %s: %v\n", policyPath, err)
		return 1
	}

	ignorePath := filepath.Join(cwd, cfg.IgnoreFile)
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(ignorePath, []byte(defaultIgnoreContents), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: write %s: %v\n", ignorePath, err)
			return 1
		}
	}

	if !globals.Quiet {
		cliui.Successf("Initialized %s", engine.ConfigDir(cwd))
		cliui.Info("Next: run 'ace run' to detect findings, or 'ace run --apply' to fix them.")
	}
	return 0
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite an existing .ace/project.yaml")
	fs.StringVar(&f.projectID, "project-id", "", "Project identifier (default: directory name)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ace init [options]

Creates .ace/project.yaml, .ace/policy.toml and .aceignore with defaults.

Options:
`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	return f
}
