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

// Package kernel is the detection orchestrator (spec.md §4.3): it
// enumerates the file set, farms detectors across a worker pool, and
// merges results deterministically so --jobs 1 and --jobs N produce
// byte-identical output.
package kernel

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreace/ace/internal/atomicstore"
	"github.com/coreace/ace/internal/cache"
	"github.com/coreace/ace/internal/identity"
	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

// File is one enumerated source file handed to the worker pool.
type File struct {
	Path    string
	Content []byte
}

// ProgressCallback mirrors the teacher's (current, total, phase) shape,
// reused here for the detection phase rather than parsing+embedding.
type ProgressCallback func(current, total int64, phase string)

// Options configures one Run.
type Options struct {
	Workers       int
	EngineVersion string
	RulesetHash   string // cache.RulesetHash(enabledRuleIDs, EngineVersion)
	Now           time.Time
	OnProgress    ProgressCallback
}

// Result is the outcome of one detection run.
type Result struct {
	Findings []model.Finding
	Partial  bool // true if cancellation cut the run short
	Errors   []FileError
}

// FileError records one file a detector could not analyze.
type FileError struct {
	Path string
	Err  error
}

// Kernel drives one or more Detector plug-ins over an enumerated file set.
type Kernel struct {
	logger    *slog.Logger
	detectors []plugin.Detector
	cache     *cache.Cache
	policy    plugin.PolicyView
}

// New constructs a Kernel. A nil logger defaults to slog.Default(); a nil
// cache.Cache defaults to an always-miss cache (equivalent to running
// detection cold every time).
func New(logger *slog.Logger, detectors []plugin.Detector, c *cache.Cache, policy plugin.PolicyView) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.Disabled()
	}
	return &Kernel{logger: logger, detectors: detectors, cache: c, policy: policy}
}

type workerResult struct {
	index    int
	path     string
	findings []model.Finding
	err      error
}

// Run farms all detectors across a worker pool over files, merges the
// results deterministically and assigns dense run-ids. ctx cancellation
// is cooperative: workers check between files, never mid-file, and the
// returned Result has Partial=true when cancellation cut collection short.
func (k *Kernel) Run(ctx context.Context, files []File, opts Options) (Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	if len(files) == 0 {
		return Result{}, nil
	}
	if len(files) < 10 || opts.Workers <= 1 {
		return k.runSequential(ctx, files, opts)
	}
	return k.runParallel(ctx, files, opts)
}

func (k *Kernel) runSequential(ctx context.Context, files []File, opts Options) (Result, error) {
	var (
		findings []model.Finding
		errs     []FileError
		partial  bool
	)
	for i, f := range files {
		select {
		case <-ctx.Done():
			partial = true
		default:
		}
		if partial {
			break
		}
		fr := k.analyzeFile(ctx, f, opts)
		if fr.err != nil {
			errs = append(errs, FileError{Path: f.Path, Err: fr.err})
		} else {
			findings = append(findings, fr.findings...)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(int64(i+1), int64(len(files)), "detect")
		}
	}
	return finalize(findings, errs, partial), nil
}

func (k *Kernel) runParallel(ctx context.Context, files []File, opts Options) (Result, error) {
	jobs := make(chan int, len(files))
	resultsChan := make(chan workerResult, len(files))

	var cancelled int32
	var progressCount int64
	total := int64(len(files))

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					atomic.StoreInt32(&cancelled, 1)
					return
				default:
				}
				fr := k.analyzeFile(ctx, files[i], opts)
				resultsChan <- workerResult{index: i, path: files[i].Path, findings: fr.findings, err: fr.err}
				current := atomic.AddInt64(&progressCount, 1)
				if opts.OnProgress != nil {
					opts.OnProgress(current, total, "detect")
				}
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var (
		findings []model.Finding
		errs     []FileError
	)
	for r := range resultsChan {
		if r.err != nil {
			errs = append(errs, FileError{Path: r.path, Err: r.err})
			continue
		}
		findings = append(findings, r.findings...)
	}

	partial := atomic.LoadInt32(&cancelled) != 0
	return finalize(findings, errs, partial), nil
}

type fileAnalysis struct {
	findings []model.Finding
	err      error
}

func (k *Kernel) analyzeFile(ctx context.Context, f File, opts Options) fileAnalysis {
	fileHash := atomicstore.Sha256Hex(f.Content)
	key := cache.Key{Path: f.Path, FileSHA256: fileHash, RulesetHash: opts.RulesetHash, EngineVer: opts.EngineVersion}

	if cached, ok := k.cache.Get(key, opts.Now); ok {
		return fileAnalysis{findings: cached}
	}

	var all []model.Finding
	for _, d := range k.detectors {
		found, err := d.Analyze(ctx, f.Path, f.Content, k.policy)
		if err != nil {
			return fileAnalysis{err: err}
		}
		for _, fd := range found {
			fd.ContextHash = identity.ContextHash(fd.RuleID, fd.File, contentSlice(f.Content, fd.StartLine, fd.EndLine), fd.Message)
			fd.StableID = identity.StableID(fd.RuleID, fd.File, fd.StartLine, fd.ContextHash)
			all = append(all, fd)
		}
	}

	k.cache.Put(key, all, opts.Now)
	return fileAnalysis{findings: all}
}

// contentSlice extracts the 1-indexed, inclusive line range [start, end]
// from content, used to compute a finding's context hash. Out-of-range
// requests degrade to an empty slice rather than panicking — a detector
// bug should not crash the kernel.
func contentSlice(content []byte, start, end int) string {
	lines := splitLinesKeepEnds(content)
	if start < 1 || start > len(lines) {
		return ""
	}
	if end < start {
		end = start
	}
	if end > len(lines) {
		end = len(lines)
	}
	var out []byte
	for _, l := range lines[start-1 : end] {
		out = append(out, l...)
	}
	return string(out)
}

func splitLinesKeepEnds(content []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}

// finalize sorts findings by (file, start_line, end_line, rule_id,
// context_hash) and assigns dense run-ids in that order, the determinism
// invariant spec.md §4.3 fixes.
func finalize(findings []model.Finding, errs []FileError, partial bool) Result {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.EndLine != b.EndLine {
			return a.EndLine < b.EndLine
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.ContextHash < b.ContextHash
	})
	for i := range findings {
		findings[i].RunID = i
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
	return Result{Findings: findings, Partial: partial, Errors: errs}
}
