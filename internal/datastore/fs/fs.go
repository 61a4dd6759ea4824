// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fs is the reference datastore.Backend: a filesystem tree laid out
// exactly as spec.md §6 describes, with a non-secure base for vectors,
// responses, and verdicts, and a separate secure base (mode 0700) for auth
// tokens (mode 0600) and module-definition snapshots.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"acvpproxy/internal/acvperr"
	"acvpproxy/internal/config"
	"acvpproxy/internal/datastore"
	"acvpproxy/internal/support"
)

// version is the single-byte ASCII marker written to <base>/VERSION and
// <secure-base>/VERSION. Bumping it invalidates every datastore built by an
// older release of this package.
const version = "1"

const (
	maxTokenFileBytes = 1 << 16 // generous upper bound on a JWT's size
)

// Store is the filesystem-backed datastore.Backend.
type Store struct {
	base       string
	secureBase string

	// dirMu serializes directory-creation races; file writes to distinct
	// paths never contend, only the mkdir-all prefix does.
	dirMu sync.Mutex
}

// New opens (or initializes) a Store rooted at base and secureBase. A fresh
// root gets the current version written to it; an existing root with a
// mismatched version fails with acvperr.ErrStaleDatastore.
func New(base, secureBase string) (*Store, error) {
	s := &Store{base: base, secureBase: secureBase}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("fs: create base %s: %w", base, err)
	}
	if err := os.MkdirAll(secureBase, 0o700); err != nil {
		return nil, fmt.Errorf("fs: create secure base %s: %w", secureBase, err)
	}
	if err := os.Chmod(secureBase, 0o700); err != nil {
		return nil, fmt.Errorf("fs: chmod secure base %s: %w", secureBase, err)
	}

	if err := checkOrWriteVersion(filepath.Join(base, "VERSION")); err != nil {
		return nil, err
	}
	if err := checkOrWriteVersion(filepath.Join(secureBase, "VERSION")); err != nil {
		return nil, err
	}
	return s, nil
}

func checkOrWriteVersion(path string) error {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if strings.TrimSpace(string(data)) != version {
			return fmt.Errorf("%s: want version %s, got %q: %w", path, version, data, acvperr.ErrStaleDatastore)
		}
		return nil
	case os.IsNotExist(err):
		if werr := os.WriteFile(path, []byte(version), 0o644); werr != nil {
			return fmt.Errorf("fs: write %s: %w", path, werr)
		}
		return nil
	default:
		return fmt.Errorf("fs: stat %s: %w", path, err)
	}
}

func moduleDir(root string, def config.ModuleDefinition) string {
	return filepath.Join(root,
		support.SanitizePathComponent(def.Vendor),
		support.SanitizePathComponent(def.Module),
		support.SanitizePathComponent(def.Version))
}

func testIDDir(root string, def config.ModuleDefinition, testID uint64) string {
	return filepath.Join(moduleDir(root, def), support.SanitizePathComponent(strconv.FormatUint(testID, 10)))
}

func vsIDDir(root string, def config.ModuleDefinition, testID, vsID uint64) string {
	return filepath.Join(testIDDir(root, def, testID), support.SanitizePathComponent(strconv.FormatUint(vsID, 10)))
}

// FindTestSessions implements datastore.Backend.
func (s *Store) FindTestSessions(ctx context.Context, def config.ModuleDefinition, filter []uint64, limit int) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := moduleDir(s.base, def)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fs: read %s: %w", dir, err)
	}

	allow := make(map[uint64]bool, len(filter))
	for _, id := range filter {
		allow[id] = true
	}

	var out []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue // non-numeric directory name, ignored
		}
		if id == 0 {
			continue // reserved for session-wide metadata
		}
		if len(filter) > 0 && !allow[id] {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FindResponses implements datastore.Backend. It runs every callback
// invocation inline on the caller's goroutine; bounding the concurrency of
// those calls across the whole testID is the orchestrator's worker-group-B
// pool's job, not the backend's.
func (s *Store) FindResponses(ctx context.Context, tctx *datastore.TestIDCtx, cb datastore.Callback) error {
	if err := s.checkModuleDefinition(tctx); err != nil {
		return err
	}

	dir := testIDDir(s.base, tctx.Def, tctx.TestID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fs: read %s: %w", dir, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() {
			continue
		}
		vsID, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}

		vctx := &datastore.VsidCtx{
			TestIDCtx: tctx,
			VsID:      vsID,
			StartedAt: time.Now(),
		}
		vdir := vsIDDir(s.base, tctx.Def, tctx.TestID, vsID)
		vctx.VectorFilePresent = fileExists(filepath.Join(vdir, datastore.FileVector))
		vctx.VerdictFilePresent = fileExists(filepath.Join(vdir, datastore.FileVerdict))
		vctx.SampleFilePresent = fileExists(filepath.Join(vdir, datastore.FileExpected))

		var resp []byte
		if fileExists(filepath.Join(vdir, datastore.FileResponse)) {
			resp, err = os.ReadFile(filepath.Join(vdir, datastore.FileResponse))
			if err != nil {
				return fmt.Errorf("fs: read response for vsID %d: %w", vsID, err)
			}
		}

		if err := cb(vctx, resp); err != nil {
			// a single vsID's failure never aborts its siblings.
			continue
		}
	}
	return nil
}

func (s *Store) checkModuleDefinition(tctx *datastore.TestIDCtx) error {
	path := filepath.Join(testIDDir(s.secureBase, tctx.Def, tctx.TestID), datastore.FileModuleDefinition)
	want, err := json.Marshal(tctx.Def)
	if err != nil {
		return fmt.Errorf("fs: marshal module definition: %w", err)
	}

	got, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s.writeSecure(filepath.Dir(path), datastore.FileModuleDefinition, want, 0o644)
	}
	if err != nil {
		return fmt.Errorf("fs: read %s: %w", path, err)
	}
	if !jsonEqual(got, want) {
		return fmt.Errorf("fs: module definition snapshot mismatch at %s: %w", path, acvperr.ErrMismatch)
	}
	return nil
}

func jsonEqual(a, b []byte) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	ma, aok := va.(map[string]any)
	mb, bok := vb.(map[string]any)
	if !aok || !bok || len(ma) != len(mb) {
		return false
	}
	for k, v := range ma {
		if mb[k] != v {
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteVsid implements datastore.Backend.
func (s *Store) WriteVsid(ctx context.Context, vctx *datastore.VsidCtx, logicalName string, secure bool, data []byte) error {
	root := s.base
	if secure {
		root = s.secureBase
	}
	dir := vsIDDir(root, vctx.TestIDCtx.Def, vctx.TestIDCtx.TestID, vctx.VsID)
	return s.writeSecure(dir, logicalName, data, 0o644)
}

// WriteTestid implements datastore.Backend.
func (s *Store) WriteTestid(ctx context.Context, tctx *datastore.TestIDCtx, logicalName string, secure bool, data []byte) error {
	root := s.base
	if secure {
		root = s.secureBase
	}
	dir := testIDDir(root, tctx.Def, tctx.TestID)
	return s.writeSecure(dir, logicalName, data, 0o644)
}

// writeSecure atomically writes data at dir/name (via a temp file and
// rename) after ensuring dir exists, leaving no partial file visible under
// the final name on failure.
func (s *Store) writeSecure(dir, name string, data []byte, mode os.FileMode) error {
	s.dirMu.Lock()
	err := os.MkdirAll(dir, 0o755)
	s.dirMu.Unlock()
	if err != nil {
		return fmt.Errorf("fs: mkdir %s: %w", dir, err)
	}

	final := filepath.Join(dir, support.SanitizePathComponent(name))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fs: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fs: rename %s -> %s: %w", tmp, final, err)
	}
	return nil
}

// Compare implements datastore.Backend.
func (s *Store) Compare(ctx context.Context, vctx *datastore.VsidCtx, logicalName string, secure bool, data []byte) (datastore.CompareResult, error) {
	root := s.base
	if secure {
		root = s.secureBase
	}
	dir := vsIDDir(root, vctx.TestIDCtx.Def, vctx.TestIDCtx.TestID, vctx.VsID)
	path := filepath.Join(dir, support.SanitizePathComponent(logicalName))

	got, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return datastore.Absent, nil
	}
	if err != nil {
		return datastore.Absent, fmt.Errorf("fs: read %s: %w", path, err)
	}
	if string(got) == string(data) {
		return datastore.Equal, nil
	}
	return datastore.Differ, nil
}

// ReadAuthToken implements datastore.Backend.
func (s *Store) ReadAuthToken(ctx context.Context, tctx *datastore.TestIDCtx) (string, time.Time, error) {
	dir := testIDDir(s.secureBase, tctx.Def, tctx.TestID)
	path := filepath.Join(dir, datastore.FileAuthToken)

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("fs: stat %s: %w", path, err)
	}
	if info.Size() > maxTokenFileBytes {
		return "", time.Time{}, fmt.Errorf("fs: %s exceeds %d bytes: %w", path, maxTokenFileBytes, acvperr.ErrIO)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("fs: read %s: %w", path, err)
	}
	return string(data), info.ModTime(), nil
}

// WriteAuthToken implements datastore.Backend. The file is created with
// mode 0600 directly (not via the 0644 writeSecure helper) and removed on
// any failure so a half-written token can never be read back.
func (s *Store) WriteAuthToken(ctx context.Context, tctx *datastore.TestIDCtx, token string) error {
	dir := testIDDir(s.secureBase, tctx.Def, tctx.TestID)

	s.dirMu.Lock()
	err := os.MkdirAll(dir, 0o700)
	s.dirMu.Unlock()
	if err != nil {
		return fmt.Errorf("fs: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, datastore.FileAuthToken)
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		os.Remove(path)
		return fmt.Errorf("fs: write %s: %w", path, err)
	}
	return nil
}
