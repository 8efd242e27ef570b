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

// Package atomicstore provides the one primitive every persisted store in
// the engine is built on: write-to-sibling-temp, fsync, rename,
// fsync-directory. All persistent JSON stores (symbol index, skiplist,
// learner state, content index, receipts, baselines) go through it.
package atomicstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IOKind distinguishes a failure that happened after rename was attempted
// (durability can no longer be guaranteed either way) from an ordinary I/O
// error surfaced as-is.
type IOKind int

const (
	IOKindUnspecified IOKind = iota
	IOKindDurability
)

// Error wraps an I/O failure from AtomicWrite with its IOKind.
type Error struct {
	Kind IOKind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("atomicstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AtomicWrite writes bytes to path durably: create a sibling temp file in
// the same directory, write, fsync the file descriptor, rename over the
// target, then fsync the containing directory so the rename itself is
// durable. Keeping the temp file in the target's directory guarantees the
// rename is atomic on POSIX filesystems.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &Error{Kind: IOKindUnspecified, Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return &Error{Kind: IOKindUnspecified, Op: "create_temp", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &Error{Kind: IOKindUnspecified, Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &Error{Kind: IOKindUnspecified, Op: "fsync_file", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Kind: IOKindUnspecified, Op: "close", Path: tmpPath, Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		// Once rename has been attempted, a failure here leaves durability
		// unresolved: the target may or may not have been replaced.
		return &Error{Kind: IOKindDurability, Op: "rename", Path: path, Err: err}
	}

	if err := fsyncDir(dir); err != nil {
		return &Error{Kind: IOKindDurability, Op: "fsync_dir", Path: dir, Err: err}
	}

	return nil
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Sha256Hex returns the lowercase hex SHA-256 digest of b. Content
// fingerprints are always computed on raw bytes; no newline or encoding
// normalization is applied here.
func Sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// MarshalDeterministic serializes v as UTF-8 JSON with 2-space indentation
// and no insignificant whitespace otherwise. encoding/json already emits
// object keys in codepoint (byte) order for Go maps and preserves struct
// field declaration order and slice order verbatim, which is exactly the
// ordering contract every serialized store in this package relies on.
func MarshalDeterministic(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal deterministic: %w", err)
	}
	return append(b, '\n'), nil
}

// WriteJSON marshals v deterministically and writes it through AtomicWrite.
func WriteJSON(path string, v any) error {
	b, err := MarshalDeterministic(v)
	if err != nil {
		return err
	}
	return AtomicWrite(path, b)
}

// ReadJSON reads and unmarshals a JSON file written by WriteJSON. Returns
// os.ErrNotExist (wrapped) if the file does not exist so callers can treat
// an absent store as "empty" uniformly.
func ReadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
