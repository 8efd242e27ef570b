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
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coreace/ace/internal/atomicstore"
	"github.com/coreace/ace/internal/baseline"
	"github.com/coreace/ace/internal/cache"
	"github.com/coreace/ace/internal/guard"
	"github.com/coreace/ace/internal/journal"
	"github.com/coreace/ace/internal/kernel"
	"github.com/coreace/ace/internal/packsynth"
	"github.com/coreace/ace/internal/planner"
	"github.com/coreace/ace/internal/repair"
	"github.com/coreace/ace/internal/suppressions"
	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

// Options configures one Run. All fields are optional; the zero value
// runs detect-only with no baseline and strict Guard.
type Options struct {
	GuardMode        guard.Mode
	Recipes          []packsynth.Recipe
	Apply            bool // false: never apply anything, findings/plan only
	FailOnNew        bool
	FailOnRegression bool
	SaveBaseline     bool
	BaselinePath     string // defaults to <root>/.ace/baseline.json
	Now              time.Time
}

// Summary is the structured, user-visible run report spec.md §7 requires:
// counts by outcome plus enough to locate the receipts and journal.
type Summary struct {
	Findings    []model.Finding
	Actions     []model.Action
	Applied     int
	Reverted    int
	Skipped     int
	Deferred    int
	Diff        baseline.Diff
	ExitCode    int
	ReceiptsDir string
	JournalPath string
}

// Run executes one full cycle: detect, suppress, diff against baseline,
// plan, apply, learn. It is the single place that owns the data-flow
// spec.md §2 describes; every step delegates to an already-independent
// package.
func Run(ctx context.Context, ec *Context, opts Options) (Summary, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	guardMode := opts.GuardMode
	if guardMode == "" {
		guardMode = guard.ModeStrict
	}

	files, err := enumerateFiles(ec.Root, ec.Ignore)
	if err != nil {
		return Summary{}, &Error{Kind: KindIOError, Reason: "enumerate files", Err: err}
	}

	ruleIDs := make([]string, 0, len(ec.Registry.Effects))
	for id := range ec.Registry.Effects {
		ruleIDs = append(ruleIDs, id)
	}
	rulesetHash := cache.RulesetHash(ruleIDs, EngineVersion)

	kernelFiles := make([]kernel.File, 0, len(files))
	byPath := make(map[string][]byte, len(files))
	for _, path := range files {
		content, err := os.ReadFile(filepath.Join(ec.Root, path))
		if err != nil {
			return Summary{}, &Error{Kind: KindIOError, Reason: "read file", File: path, Err: err}
		}
		byPath[path] = content
		kernelFiles = append(kernelFiles, kernel.File{Path: path, Content: content})
	}

	kn := kernel.New(ec.Logger, ec.Registry.Detectors, ec.Cache, ec.PolicyView())
	det, err := kn.Run(ctx, kernelFiles, kernel.Options{
		Workers:       ec.Config.Workers,
		EngineVersion: EngineVersion,
		RulesetHash:   rulesetHash,
		Now:           now,
	})
	if err != nil {
		return Summary{}, &Error{Kind: KindIOError, Reason: "detect", Err: err}
	}
	for _, f := range det.Findings {
		ec.Metrics.FindingsTotal.WithLabelValues(f.RuleID).Inc()
	}

	findings := filterSuppressed(ec, byPath, det.Findings)

	baselinePath := opts.BaselinePath
	if baselinePath == "" {
		baselinePath = filepath.Join(ConfigDir(ec.Root), "baseline.json")
	}
	base, err := baseline.Load(baselinePath)
	if err != nil {
		return Summary{}, &Error{Kind: KindIOError, Reason: "load baseline", Err: err}
	}
	diff := baseline.Compare(base, findings)

	singletons, codemodErrs := buildSingletonPlans(ctx, ec, byPath, findings)
	for _, ce := range codemodErrs {
		ec.Logger.Warn("engine.codemod.error", "rule_id", ce.ruleID, "file", ce.file, "error", ce.err)
	}

	packs, consumed := packsynth.Synthesize(packsynth.Input{
		Recipes:        opts.Recipes,
		Findings:       findings,
		SingletonPlans: singletons,
		RepoMap:        ec.RepoMap,
		MinFindings:    ec.Policy.Packs.MinFindings,
		Logger:         ec.Logger,
	})

	plans := make([]model.EditPlan, 0, len(singletons)+len(packs))
	for stableID, p := range singletons {
		if !consumed[stableID] {
			plans = append(plans, p)
		}
	}
	plans = append(plans, packs...)
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })

	ec.Learner.Decay(now)

	mtimes := fileMtimes(ec.Root, byPath)
	actions := planner.Plan(ctx, planner.Input{
		Findings: findings,
		Plans:    plans,
		Policy:   ec.Policy,
		Learner:  ec.Learner,
		RepoMap:  ec.RepoMap,
		Mtimes:   mtimes,
		Advisor:  advisorBudget(ec.Advisor),
		Logger:   ec.Logger,
	})

	summary := Summary{
		Findings:    findings,
		Actions:     actions,
		Diff:        diff,
		ReceiptsDir: filepath.Join(ConfigDir(ec.Root), "receipts"),
		JournalPath: ec.Journal.Path(),
	}

	if opts.Apply {
		findingByID := make(map[string]model.Finding, len(findings))
		for _, f := range findings {
			findingByID[f.StableID] = f
		}
		applyActions(ctx, ec, actions, findingByID, guardMode, now, &summary)
	} else {
		for _, a := range actions {
			if a.Decision == model.DecisionSkip {
				summary.Skipped++
			} else {
				summary.Deferred++
			}
			ec.Metrics.PlansAppliedTotal.WithLabelValues(string(a.Decision)).Inc()
		}
	}

	if opts.SaveBaseline {
		if err := baseline.Save(baselinePath, baseline.FromFindings(findings)); err != nil {
			return summary, &Error{Kind: KindIOError, Reason: "save baseline", Err: err}
		}
	}

	summary.ExitCode = baseline.Gate(base, diff, opts.FailOnNew, opts.FailOnRegression)
	if summary.ExitCode != 0 {
		return summary, &Error{Kind: KindPolicyViolation, Reason: "quality gate"}
	}
	return summary, nil
}

// singletonPlanID is "plan-" + SHA-256 over its edits (spec.md §3), mirroring
// packsynth.packID's "pack-" + SHA-256 over pack context and finding ids so
// both plan kinds derive their id from content rather than a finding's own
// stable_id.
func singletonPlanID(e model.Edit) string {
	payload := strings.Join([]string{e.File, strconv.Itoa(e.StartLine), strconv.Itoa(e.EndLine), string(e.Op), e.Payload}, "|")
	return "plan-" + atomicstore.Sha256Hex([]byte(payload))[:12]
}

type codemodError struct {
	ruleID, file string
	err          error
}

// buildSingletonPlans runs each finding's rule codemod to produce an
// EditPlan, keyed by the finding's stable id so packsynth can look
// singletons up when deciding what to discard into a pack.
func buildSingletonPlans(ctx context.Context, ec *Context, byPath map[string][]byte, findings []model.Finding) (map[string]model.EditPlan, []codemodError) {
	byRuleFile := map[string][]model.Finding{}
	for _, f := range findings {
		key := f.RuleID + "\x00" + f.File
		byRuleFile[key] = append(byRuleFile[key], f)
	}

	plans := map[string]model.EditPlan{}
	var errs []codemodError
	for _, group := range byRuleFile {
		ruleID, file := group[0].RuleID, group[0].File
		cm, ok := ec.Registry.Codemods[ruleID]
		if !ok {
			continue
		}
		edits, err := cm.Plan(ctx, file, byPath[file], group)
		if err != nil {
			errs = append(errs, codemodError{ruleID: ruleID, file: file, err: err})
			continue
		}
		if len(edits) == 0 {
			continue
		}
		byLine := map[int]model.Edit{}
		for _, e := range edits {
			byLine[e.StartLine] = e
		}
		for _, f := range group {
			e, ok := byLine[f.StartLine]
			if !ok {
				continue
			}
			plans[f.StableID] = model.EditPlan{
				ID:            singletonPlanID(e),
				Findings:      []string{f.StableID},
				Edits:         []model.Edit{e},
				RuleIDs:       []string{ruleID},
				EstimatedRisk: f.Severity,
				Kind:          model.KindSingleton,
			}
		}
	}
	return plans, errs
}

// applyActions runs the journal apply sequence for every AUTO action,
// falling back to binary-search repair when a multi-edit plan fails
// Guard as a whole (spec.md §4.9), and records learner outcomes. findingByID
// resolves a plan's finding stable_ids back to their rule_id, so repair's
// per-edit {applied, failed} report can credit and penalize the Learner at
// the same granularity it isolated edits at, rather than at the whole
// plan's rule set.
func applyActions(ctx context.Context, ec *Context, actions []model.Action, findingByID map[string]model.Finding, guardMode guard.Mode, now time.Time, summary *Summary) {
	policyHash := ec.Policy.Hash()
	for _, a := range actions {
		ec.Metrics.PlansAppliedTotal.WithLabelValues(string(a.Decision)).Inc()
		if a.Decision != model.DecisionAuto {
			if a.Decision == model.DecisionSkip {
				summary.Skipped++
			} else {
				summary.Deferred++
			}
			continue
		}

		edits := append([]model.Edit(nil), a.Plan.Edits...)
		effects := effectsFor(ec, a.Plan.RuleIDs, edits)
		sort.Slice(edits, func(i, j int) bool { return edits[i].StartLine > edits[j].StartLine })
		file := edits[0].File

		start := time.Now()
		outcome, err := journal.ApplyFile(ec.Journal, ec.Parsers.ForPath(file), ec.Root, file, edits, a.Plan.RuleIDs, effects, guardMode, policyHash, now)
		ec.Metrics.ApplyDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			ec.Logger.Warn("engine.apply.error", "file", file, "error", err)
			summary.Deferred++
			continue
		}

		if outcome.Applied {
			summary.Applied++
			for _, ruleID := range a.Plan.RuleIDs {
				ec.Learner.RecordApplied(ruleID, file, now)
			}
			continue
		}

		ec.Metrics.GuardFailuresTotal.WithLabelValues(string(outcome.FailedLayer)).Inc()

		if len(edits) > 1 {
			if repaired, report := tryRepair(ec, a, effects, guardMode, file, policyHash, now); repaired {
				summary.Applied++
				recordRepairOutcomes(ec, findingByID, report, file, now)
				continue
			}
		}

		summary.Reverted++
		for _, ruleID := range a.Plan.RuleIDs {
			ec.Learner.RecordReverted(ruleID, file, fileContentHash(ec.Root, file), now)
		}
	}
}

// recordRepairOutcomes feeds repair.Report's per-candidate {applied, failed}
// outcome into the Learner (spec.md §4.9's "Repair -> Learner records
// outcome"): an isolated-out edit is a revert for its rule just as a whole
// plan's Guard failure would be, and an edit repair did manage to land
// credits its rule exactly as a clean apply would.
func recordRepairOutcomes(ec *Context, findingByID map[string]model.Finding, report repair.Report, file string, now time.Time) {
	contentHash := fileContentHash(ec.Root, file)
	for _, id := range report.Applied {
		if f, ok := findingByID[id]; ok {
			ec.Learner.RecordApplied(f.RuleID, file, now)
		}
	}
	for _, id := range report.Failed {
		if f, ok := findingByID[id]; ok {
			ec.Learner.RecordReverted(f.RuleID, file, contentHash, now)
		}
	}
}

// tryRepair attempts repair.Run's binary-search isolation on a pack plan
// whose full-bundle Guard check already failed. It writes and journals
// only the maximal passing subset it finds; a fully-empty result counts
// as a normal Guard failure handled by the caller, which still receives
// the report so its Failed ids (all of them, in that case) are available.
func tryRepair(ec *Context, a model.Action, effects model.RuleEffects, guardMode guard.Mode, file, policyHash string, now time.Time) (bool, repair.Report) {
	current, err := os.ReadFile(filepath.Join(ec.Root, file))
	if err != nil {
		return false, repair.Report{}
	}
	candidates := make([]repair.Candidate, len(a.Plan.Edits))
	for i, e := range a.Plan.Edits {
		stableID := ""
		if i < len(a.Plan.Findings) {
			stableID = a.Plan.Findings[i]
		}
		candidates[i] = repair.Candidate{ID: stableID, Edit: e}
	}
	repair.SortByStartLineDescending(candidates)

	_, report, _ := repair.Run(ec.Parsers.ForPath(file), effects, guardMode, current, candidates)
	if len(report.Applied) == 0 {
		return false, report
	}

	appliedEdits := make([]model.Edit, 0, len(report.Applied))
	appliedSet := map[string]bool{}
	for _, id := range report.Applied {
		appliedSet[id] = true
	}
	for _, c := range candidates {
		if appliedSet[c.ID] {
			appliedEdits = append(appliedEdits, c.Edit)
		}
	}

	outcome, err := journal.ApplyFile(ec.Journal, ec.Parsers.ForPath(file), ec.Root, file, appliedEdits, a.Plan.RuleIDs, effects, guardMode, policyHash, now)
	return err == nil && outcome.Applied, report
}

// effectsFor merges the registered static manifest for each rule in a plan
// into the single RuleEffects value Guard checks against. A manifest's
// RemovedImports is a fixed list declared at registration time, which only
// works for a codemod that always removes the same, known import; a rule
// like go.unused-import removes whatever import its detector flagged on
// that specific file, which a static Manifest() cannot name in advance. For
// any merged rule set with ImportRemoving set, dynamicRemovedImports reads
// the import path straight off the edit's own deleted line and adds it to
// the allow-list Guard's layer 6 checks, so the per-invocation import name
// never has to round-trip through a manifest.
func effectsFor(ec *Context, ruleIDs []string, edits []model.Edit) model.RuleEffects {
	var merged model.RuleEffects
	for _, id := range ruleIDs {
		if e, ok := ec.Registry.Effects[id]; ok {
			merged.StructurePreserving = merged.StructurePreserving || e.StructurePreserving
			merged.MayChangeSymbolCounts = merged.MayChangeSymbolCounts || e.MayChangeSymbolCounts
			merged.ImportRemoving = merged.ImportRemoving || e.ImportRemoving
			merged.RemovedImports = append(merged.RemovedImports, e.RemovedImports...)
			merged.PermittedASTHashChange = merged.PermittedASTHashChange || e.PermittedASTHashChange
		}
	}
	if merged.ImportRemoving && len(edits) > 0 {
		merged.RemovedImports = append(merged.RemovedImports, dynamicRemovedImports(ec.Root, edits)...)
	}
	return merged
}

var importPathPattern = regexp.MustCompile(`"([^"]+)"`)

// dynamicRemovedImports reads the pre-edit source of every deleting or
// replacing edit and extracts the quoted import path on each touched line,
// so Guard's per-call RemovedImports allow-list matches whatever a detector
// actually flagged rather than a value fixed at registration time.
func dynamicRemovedImports(root string, edits []model.Edit) []string {
	byFile := map[string][]model.Edit{}
	for _, e := range edits {
		if e.Op == model.OpInsert {
			continue
		}
		byFile[e.File] = append(byFile[e.File], e)
	}
	var out []string
	for file, fileEdits := range byFile {
		content, err := os.ReadFile(filepath.Join(root, file))
		if err != nil {
			continue
		}
		lines := strings.Split(string(content), "\n")
		for _, e := range fileEdits {
			for ln := e.StartLine; ln <= e.EndLine; ln++ {
				if ln < 1 || ln > len(lines) {
					continue
				}
				if m := importPathPattern.FindStringSubmatch(lines[ln-1]); m != nil {
					out = append(out, m[1])
				}
			}
		}
	}
	return out
}

func fileContentHash(root, file string) string {
	content, err := os.ReadFile(filepath.Join(root, file))
	if err != nil {
		return ""
	}
	return atomicstore.Sha256Hex(content)
}

func filterSuppressed(ec *Context, byPath map[string][]byte, findings []model.Finding) []model.Finding {
	idx := suppressions.NewIndex()
	for path, content := range byPath {
		idx.ScanFile(path, content, ec.Logger)
	}
	hashes := make(map[string]string, len(byPath))
	for path, content := range byPath {
		hashes[path] = atomicstore.Sha256Hex(content)
	}
	out := make([]model.Finding, 0, len(findings))
	for _, f := range findings {
		if ec.Policy.IsSuppressedPath(f.File) || ec.Policy.IsSuppressedForRule(f.RuleID, f.File) {
			continue
		}
		if idx.IsSuppressed(f.RuleID, f.File, f.StartLine) {
			continue
		}
		if ec.Learner.IsSkiplisted(f.RuleID, f.File, hashes[f.File]) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func fileMtimes(root string, byPath map[string][]byte) map[string]int64 {
	out := make(map[string]int64, len(byPath))
	for path := range byPath {
		info, err := os.Stat(filepath.Join(root, path))
		if err != nil {
			continue
		}
		out[path] = info.ModTime().Unix()
	}
	return out
}

func advisorBudget(a plugin.Advisor) *planner.AdvisorBudget {
	if a == nil {
		return nil
	}
	return planner.NewAdvisorBudget(a)
}

func enumerateFiles(root string, ignore interface{ Match(string) bool }) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			if ignore.Match(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.Match(rel) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
