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

package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/coreace/ace/internal/atomicstore"
)

type fileKey struct{ planID, file string }

// Recover scans the journal for trailing intents with no matching success
// or revert — evidence of a crash mid-apply — and repairs each: no action
// if the file is unchanged from before_sha, otherwise a restore to the
// pre-image and a crash-orphan revert entry.
func Recover(j *Journal, root string) ([]Entry, error) {
	entries, err := ReadAll(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	open := map[fileKey]Entry{}
	for _, e := range entries {
		k := fileKey{e.PlanID, e.File}
		switch e.Kind {
		case KindIntent:
			open[k] = e
		case KindSuccess, KindRevert:
			delete(open, k)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}

	keys := make([]fileKey, 0, len(open))
	for k := range open {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].planID != keys[j].planID {
			return keys[i].planID < keys[j].planID
		}
		return keys[i].file < keys[j].file
	})

	var appended []Entry
	for _, k := range keys {
		e := open[k]
		fullPath := filepath.Join(root, e.File)

		current, err := os.ReadFile(fullPath)
		if err != nil {
			j.logger.Warn("journal.recover.read_error", "file", e.File, "err", err)
			continue
		}
		if atomicstore.Sha256Hex(current) == e.BeforeSHA {
			// The crash happened before the write landed; nothing to undo.
			continue
		}

		pre, err := j.PreImageBytes(e)
		if err != nil {
			j.logger.Warn("journal.recover.preimage_error", "file", e.File, "err", err)
			continue
		}
		if err := atomicstore.AtomicWrite(fullPath, pre); err != nil {
			j.logger.Warn("journal.recover.restore_error", "file", e.File, "err", err)
			continue
		}
		if atomicstore.Sha256Hex(pre) != e.BeforeSHA {
			j.logger.Warn("journal.recover.hash_mismatch_after_restore", "file", e.File)
		}

		re, err := j.AppendRevert(e.PlanID, e.File, "crash-orphan")
		if err != nil {
			return appended, err
		}
		appended = append(appended, re)
	}
	return appended, nil
}

type appliedState struct {
	intent  Entry
	success Entry
}

// RevertByID reverts every file still in the applied state for planID:
// verifies the file's current hash matches the recorded after_sha (skips
// with a warning otherwise), restores the pre-image, verifies the
// restored hash matches before_sha, and appends a revert entry. Files are
// processed in descending apply order (most recent first). It returns an
// error when every file was skipped and nothing could be reverted.
func RevertByID(j *Journal, root, planID string) ([]Entry, error) {
	entries, err := ReadAll(j.path)
	if err != nil {
		return nil, err
	}

	lastIntent := map[string]Entry{}
	applied := map[string]appliedState{}
	for _, e := range entries {
		if e.PlanID != planID {
			continue
		}
		switch e.Kind {
		case KindIntent:
			lastIntent[e.File] = e
		case KindSuccess:
			if in, ok := lastIntent[e.File]; ok {
				applied[e.File] = appliedState{intent: in, success: e}
			}
		case KindRevert:
			delete(applied, e.File)
		}
	}
	if len(applied) == 0 {
		return nil, fmt.Errorf("journal: plan %s has no reversible applied state", planID)
	}

	files := make([]string, 0, len(applied))
	for f := range applied {
		files = append(files, f)
	}
	sort.Slice(files, func(i, k int) bool {
		return applied[files[i]].success.Seq > applied[files[k]].success.Seq
	})

	var reverts []Entry
	for _, file := range files {
		st := applied[file]
		fullPath := filepath.Join(root, file)

		current, err := os.ReadFile(fullPath)
		if err != nil {
			j.logger.Warn("journal.revert.read_error", "file", file, "err", err)
			continue
		}
		if atomicstore.Sha256Hex(current) != st.success.AfterSHA {
			j.logger.Warn("journal.revert.hash_mismatch_skip", "file", file, "plan_id", planID)
			continue
		}

		pre, err := j.PreImageBytes(st.intent)
		if err != nil {
			return reverts, fmt.Errorf("journal: recover pre-image for %s: %w", file, err)
		}
		if err := atomicstore.AtomicWrite(fullPath, pre); err != nil {
			return reverts, fmt.Errorf("journal: restore %s: %w", file, err)
		}
		if atomicstore.Sha256Hex(pre) != st.intent.BeforeSHA {
			j.logger.Warn("journal.revert.restored_hash_mismatch", "file", file, "plan_id", planID)
		}

		re, err := j.AppendRevert(planID, file, "manual-revert")
		if err != nil {
			return reverts, err
		}
		reverts = append(reverts, re)
	}
	if len(reverts) == 0 {
		return nil, fmt.Errorf("journal: plan %s: no file could be reverted (none matches its recorded after_sha)", planID)
	}
	return reverts, nil
}
