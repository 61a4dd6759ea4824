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

package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acvpproxy/internal/acvperr"
	"acvpproxy/internal/config"
	"acvpproxy/internal/datastore"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "base"), filepath.Join(dir, "secure"))
	require.NoError(t, err)
	return s
}

var def = config.ModuleDefinition{Vendor: "acme", Module: "widget", Version: "1.0"}

func TestNewWritesVersionOnFreshRoot(t *testing.T) {
	dir := t.TempDir()
	_, err := New(filepath.Join(dir, "base"), filepath.Join(dir, "secure"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "base", "VERSION"))
	require.NoError(t, err)
	assert.Equal(t, version, string(data))
}

func TestNewRejectsMismatchedVersion(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base")
	secure := filepath.Join(dir, "secure")
	require.NoError(t, os.MkdirAll(base, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "VERSION"), []byte("99"), 0o644))

	_, err := New(base, secure)
	require.Error(t, err)
	assert.True(t, errors.Is(err, acvperr.ErrStaleDatastore))
}

func TestSecureBaseIsMode0700(t *testing.T) {
	dir := t.TempDir()
	secure := filepath.Join(dir, "secure")
	_, err := New(filepath.Join(dir, "base"), secure)
	require.NoError(t, err)

	info, err := os.Stat(secure)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestWriteAuthTokenIsMode0600(t *testing.T) {
	s := newStore(t)
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	require.NoError(t, s.WriteAuthToken(context.Background(), tctx, "jwt-bytes"))

	path := filepath.Join(s.secureBase, "acme", "widget", "1.0", "1234", datastore.FileAuthToken)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteThenReadAuthTokenRoundTrips(t *testing.T) {
	s := newStore(t)
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	require.NoError(t, s.WriteAuthToken(context.Background(), tctx, "abc.def.ghi"))

	token, generatedAt, err := s.ReadAuthToken(context.Background(), tctx)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
	assert.False(t, generatedAt.IsZero())
}

func TestReadAuthTokenAbsentIsNotAnError(t *testing.T) {
	s := newStore(t)
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	token, generatedAt, err := s.ReadAuthToken(context.Background(), tctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.True(t, generatedAt.IsZero())
}

func TestFindTestSessionsIgnoresZeroAndNonNumeric(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"0", "1234", "5678", "not-a-number"} {
		require.NoError(t, os.MkdirAll(filepath.Join(s.base, "acme", "widget", "1.0", name), 0o755))
	}

	ids, err := s.FindTestSessions(context.Background(), def, nil, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1234, 5678}, ids)
}

func TestFindTestSessionsAppliesFilterAndLimit(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"1", "2", "3"} {
		require.NoError(t, os.MkdirAll(filepath.Join(s.base, "acme", "widget", "1.0", name), 0o755))
	}

	ids, err := s.FindTestSessions(context.Background(), def, []uint64{2, 3}, 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Contains(t, []uint64{2, 3}, ids[0])
}

func TestFindResponsesScenario3(t *testing.T) {
	// spec.md §8 scenario 3: two vsIDs with response.json and no verdict.
	s := newStore(t)
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	for _, vsID := range []string{"5678", "5679"} {
		dir := filepath.Join(s.base, "acme", "widget", "1.0", "1234", vsID)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, datastore.FileResponse), []byte(`{"ok":true}`), 0o644))
	}

	var seen []uint64
	err := s.FindResponses(context.Background(), tctx, func(vctx *datastore.VsidCtx, resp []byte) error {
		seen = append(seen, vctx.VsID)
		assert.NotNil(t, resp)
		assert.False(t, vctx.VerdictFilePresent)
		assert.False(t, vctx.SampleFilePresent)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{5678, 5679}, seen)
}

func TestFindResponsesScenario4ExpectedFileMarksSampleFilePresent(t *testing.T) {
	s := newStore(t)
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	dir := filepath.Join(s.base, "acme", "widget", "1.0", "1234", "5679")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, datastore.FileExpected), []byte(`{}`), 0o644))

	err := s.FindResponses(context.Background(), tctx, func(vctx *datastore.VsidCtx, resp []byte) error {
		assert.True(t, vctx.SampleFilePresent)
		assert.Nil(t, resp)
		return nil
	})
	require.NoError(t, err)
}

func TestFindResponsesDetectsModuleDefinitionMismatch(t *testing.T) {
	s := newStore(t)
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	require.NoError(t, s.FindResponses(context.Background(), tctx, func(*datastore.VsidCtx, []byte) error { return nil }))

	// Corrupt the persisted snapshot in place to simulate a module
	// definition that changed since the snapshot was first written.
	snapshotDir := filepath.Join(s.secureBase, "acme", "widget", "1.0", "1234")
	require.NoError(t, os.WriteFile(filepath.Join(snapshotDir, datastore.FileModuleDefinition), []byte(`{"vendor":"other","module":"widget","version":"1.0"}`), 0o644))

	err := s.FindResponses(context.Background(), tctx, func(*datastore.VsidCtx, []byte) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, acvperr.ErrMismatch))
}

func TestWriteVsidThenCompare(t *testing.T) {
	s := newStore(t)
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	vctx := &datastore.VsidCtx{TestIDCtx: tctx, VsID: 5678}

	require.NoError(t, s.WriteVsid(context.Background(), vctx, datastore.FileVerdict, false, []byte(`{"disposition":"passed"}`)))

	result, err := s.Compare(context.Background(), vctx, datastore.FileVerdict, false, []byte(`{"disposition":"passed"}`))
	require.NoError(t, err)
	assert.Equal(t, datastore.Equal, result)

	result, err = s.Compare(context.Background(), vctx, datastore.FileVerdict, false, []byte(`{"disposition":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, datastore.Differ, result)

	result, err = s.Compare(context.Background(), vctx, datastore.FileProcessed, false, nil)
	require.NoError(t, err)
	assert.Equal(t, datastore.Absent, result)
}
