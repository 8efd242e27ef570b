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

package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/coreace/ace/internal/cache"
	"github.com/coreace/ace/internal/journal"
	"github.com/coreace/ace/internal/learner"
	"github.com/coreace/ace/internal/policy"
	"github.com/coreace/ace/internal/repomap"
	"github.com/coreace/ace/pkg/lang/treesitter"
	"github.com/coreace/ace/pkg/plugin"
)

// recoverOrphanedJournals opens every journal file left behind by a
// previous, pid-named run (spec.md §7: a crash between an intent and its
// matching success or revert is "detected and repaired on the next
// invocation") and runs journal.Recover against each. Journals are
// append-only and never deleted, so a prior run's file always survives
// under its own pid-suffixed name for this to find.
func recoverOrphanedJournals(dir, root string, logger *slog.Logger) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("engine: glob journals: %w", err)
	}
	for _, path := range matches {
		jr, err := journal.Open(path, logger)
		if err != nil {
			return fmt.Errorf("engine: open journal %s for recovery: %w", path, err)
		}
		reverted, err := journal.Recover(jr, root)
		closeErr := jr.Close()
		if err != nil {
			return fmt.Errorf("engine: recover journal %s: %w", path, err)
		}
		if closeErr != nil {
			return fmt.Errorf("engine: close journal %s: %w", path, closeErr)
		}
		for _, e := range reverted {
			logger.Warn("engine.journal.crash_recovered", "journal", path, "file", e.File, "plan_id", e.PlanID)
		}
	}
	return nil
}

// Open loads every persisted store under root/.ace (policy, repomap,
// cache, learner, ignore file) and opens the journal for a new run,
// returning a fully-populated Context. A project that has never been
// initialized loads empty/default stores rather than failing — only the
// policy file and project config are required to exist (`ace init`
// writes both).
func Open(root string, detectors []plugin.Detector, codemods map[string]plugin.Codemod, advisor plugin.Advisor, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadConfig(ConfigPath(root))
	if err != nil {
		return nil, err
	}

	pol, err := policy.Load(filepath.Join(ConfigDir(root), "policy.toml"))
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "load policy", Err: err}
	}

	parsers, err := treesitter.NewRegistry()
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "init parsers", Err: err}
	}

	ignore, err := repomap.LoadIgnoreFile(filepath.Join(root, cfg.IgnoreFile))
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "load ignore file", Err: err}
	}

	rmBuilder, err := repomap.NewBuilder(logger)
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "init repomap builder", Err: err}
	}
	rm, err := rmBuilder.Build(root, ignore)
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "build repomap", Err: err}
	}

	c, err := cache.Load(filepath.Join(ConfigDir(root), "cache.db"), cache.WithTTL(cfg.CacheTTL()))
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "load cache", Err: err}
	}

	lrn, err := learner.Load(filepath.Join(ConfigDir(root), "learn.json"), logger)
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "load learner", Err: err}
	}

	journalsDir := filepath.Join(ConfigDir(root), "journals")
	if err := os.MkdirAll(journalsDir, 0o750); err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "mkdir journals", Err: err}
	}
	if err := recoverOrphanedJournals(journalsDir, root, logger); err != nil {
		return nil, &Error{Kind: KindIntegrityError, Reason: "recover orphaned journals", Err: err}
	}
	journalPath := filepath.Join(journalsDir, fmt.Sprintf("%s.jsonl", runID(cfg.ProjectID)))
	jr, err := journal.Open(journalPath, logger)
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "open journal", Err: err}
	}

	return &Context{
		Root:     root,
		Config:   cfg,
		Policy:   pol,
		Registry: NewRegistry(detectors, codemods),
		Parsers:  parsers,
		Cache:    c,
		Journal:  jr,
		Learner:  lrn,
		RepoMap:  rm,
		Ignore:   ignore,
		Advisor:  advisor,
		Metrics:  NewMetrics(),
		Logger:   logger,
	}, nil
}

// Close flushes every persisted store and closes the journal. Callers
// should defer Close immediately after a successful Open.
func (c *Context) Close() error {
	if err := c.Cache.Save(filepath.Join(ConfigDir(c.Root), "cache.db")); err != nil {
		return &Error{Kind: KindIOError, Reason: "save cache", Err: err}
	}
	if err := c.Learner.Save(filepath.Join(ConfigDir(c.Root), "learn.json")); err != nil {
		return &Error{Kind: KindIOError, Reason: "save learner", Err: err}
	}
	if err := c.Journal.Close(); err != nil {
		return &Error{Kind: KindIOError, Reason: "close journal", Err: err}
	}
	return nil
}

// runID derives a stable-looking but run-unique journal file name. It is
// not required to be content-addressed (unlike everything else this
// engine persists): the journal path only needs to not collide with a
// prior run's file under concurrent or resumed invocations.
func runID(projectID string) string {
	return fmt.Sprintf("%s-%d", projectID, os.Getpid())
}
