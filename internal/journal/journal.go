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

// Package journal is the append-only, fsync-ordered apply log (spec.md
// §4.5): intent precedes success or revert for every file touched in a
// run, and a crash between them is detected and repaired on the next
// invocation. A single-writer mutex serializes appends; each line is
// fsynced before the call returns.
package journal

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/coreace/ace/internal/atomicstore"
)

// preImageCap is the inline pre-image size named in spec.md §4.5. Files
// larger than this also get their full original bytes backed up to a
// content-addressed side file, referenced by PreImageRef (see DESIGN.md's
// resolution of the "4 KiB truncation" open question).
const preImageCap = 4096

// Kind distinguishes the three journal entry shapes.
type Kind string

const (
	KindIntent  Kind = "intent"
	KindSuccess Kind = "success"
	KindRevert  Kind = "revert"
)

// Entry is one JSONL line. Fields are optional per Kind; see AppendIntent,
// AppendSuccess and AppendRevert for which fields each populates.
type Entry struct {
	Seq         int64    `json:"seq"`
	Kind        Kind     `json:"kind"`
	PlanID      string   `json:"plan_id"`
	File        string   `json:"file"`
	RuleIDs     []string `json:"rule_ids,omitempty"`
	BeforeSHA   string   `json:"before_sha,omitempty"`
	BeforeSize  int64    `json:"before_size,omitempty"`
	PreImage    string   `json:"pre_image,omitempty"`     // base64, first 4 KiB
	PreImageRef string   `json:"pre_image_ref,omitempty"` // sha256 of full original bytes, when > 4 KiB
	AfterSHA    string   `json:"after_sha,omitempty"`
	AfterSize   int64    `json:"after_size,omitempty"`
	ReceiptID   string   `json:"receipt_id,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// Journal is the single-writer append log for one run directory.
type Journal struct {
	mu       sync.Mutex
	path     string
	blobsDir string
	f        *os.File
	seq      int64
	logger   *slog.Logger
}

// Open appends to (creating if absent) the journal file at path. blobs
// are stored as siblings under <dir(path)>/blobs/.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("journal: mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	seq, err := lastSeq(path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Journal{path: path, blobsDir: filepath.Join(dir, "blobs"), f: f, seq: seq, logger: logger}, nil
}

// Path returns the journal file's path, for a run summary to report.
func (j *Journal) Path() string { return j.path }

// Close releases the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

func lastSeq(path string) (int64, error) {
	entries, err := ReadAll(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var max int64
	for _, e := range entries {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max, nil
}

// AppendIntent records an about-to-apply edit: before_sha, before_size,
// rule_ids, plan_id and the pre-image, per step 2 of the apply sequence.
func (j *Journal) AppendIntent(planID, file string, ruleIDs []string, beforeBytes []byte) (Entry, error) {
	e := Entry{
		Kind:       KindIntent,
		PlanID:     planID,
		File:       file,
		RuleIDs:    ruleIDs,
		BeforeSHA:  atomicstore.Sha256Hex(beforeBytes),
		BeforeSize: int64(len(beforeBytes)),
	}
	capped := beforeBytes
	if len(capped) > preImageCap {
		capped = capped[:preImageCap]
	}
	e.PreImage = base64.StdEncoding.EncodeToString(capped)
	if len(beforeBytes) > preImageCap {
		ref := e.BeforeSHA
		blobPath := filepath.Join(j.blobsDir, ref+".blob")
		if _, err := os.Stat(blobPath); os.IsNotExist(err) {
			if err := atomicstore.AtomicWrite(blobPath, beforeBytes); err != nil {
				return Entry{}, fmt.Errorf("journal: write pre-image blob: %w", err)
			}
		}
		e.PreImageRef = ref
	}
	return j.append(e)
}

// AppendSuccess records a completed apply: after_sha, after_size and the
// receipt id, per step 6 of the apply sequence.
func (j *Journal) AppendSuccess(planID, file, afterSHA string, afterSize int64, receiptID string) (Entry, error) {
	return j.append(Entry{
		Kind:      KindSuccess,
		PlanID:    planID,
		File:      file,
		AfterSHA:  afterSHA,
		AfterSize: afterSize,
		ReceiptID: receiptID,
	})
}

// AppendRevert records an abort or a manual/crash-recovery revert with a
// free-form reason ("guard layer name", "crash-orphan", "manual-revert").
func (j *Journal) AppendRevert(planID, file, reason string) (Entry, error) {
	return j.append(Entry{
		Kind:   KindRevert,
		PlanID: planID,
		File:   file,
		Reason: reason,
	})
}

func (j *Journal) append(e Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	e.Seq = j.seq

	b, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: marshal entry: %w", err)
	}
	b = append(b, '\n')
	if _, err := j.f.Write(b); err != nil {
		return Entry{}, fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return Entry{}, fmt.Errorf("journal: fsync entry: %w", err)
	}
	return e, nil
}

// ReadAll parses every entry in a journal file, in line order.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("journal: parse line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", path, err)
	}
	return entries, nil
}

// PreImageBytes recovers the original bytes an intent entry backed up,
// reading the content-addressed blob when the inline pre_image was
// truncated.
func (j *Journal) PreImageBytes(e Entry) ([]byte, error) {
	if e.PreImageRef != "" {
		blobPath := filepath.Join(j.blobsDir, e.PreImageRef+".blob")
		return os.ReadFile(blobPath)
	}
	return base64.StdEncoding.DecodeString(e.PreImage)
}
