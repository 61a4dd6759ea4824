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

package rds

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acvpproxy/internal/acvperr"
	"acvpproxy/internal/config"
	"acvpproxy/internal/datastore"
)

var def = config.ModuleDefinition{Vendor: "acme", Module: "widget", Version: "1.0"}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := newWithClient(context.Background(), newFakeClient())
	require.NoError(t, err)
	return s
}

func TestNewWritesVersionMarkerOnFreshClient(t *testing.T) {
	fc := newFakeClient()
	_, err := newWithClient(context.Background(), fc)
	require.NoError(t, err)
	assert.Equal(t, version, fc.values[versionKey])
}

func TestNewRejectsMismatchedVersion(t *testing.T) {
	fc := newFakeClient()
	fc.values[versionKey] = "99"
	_, err := newWithClient(context.Background(), fc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, acvperr.ErrStaleDatastore))
}

func TestWriteVsidRegistersMembershipForFindTestSessions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	vctx := &datastore.VsidCtx{TestIDCtx: tctx, VsID: 5678}

	require.NoError(t, s.WriteVsid(ctx, vctx, datastore.FileResponse, false, []byte(`{"ok":true}`)))

	ids, err := s.FindTestSessions(ctx, def, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1234}, ids)
}

func TestWriteVsidThenCompare(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	vctx := &datastore.VsidCtx{TestIDCtx: tctx, VsID: 5678}

	require.NoError(t, s.WriteVsid(ctx, vctx, datastore.FileVerdict, false, []byte(`{"disposition":"passed"}`)))

	result, err := s.Compare(ctx, vctx, datastore.FileVerdict, false, []byte(`{"disposition":"passed"}`))
	require.NoError(t, err)
	assert.Equal(t, datastore.Equal, result)

	result, err = s.Compare(ctx, vctx, datastore.FileVerdict, false, []byte(`{"disposition":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, datastore.Differ, result)

	result, err = s.Compare(ctx, vctx, datastore.FileProcessed, false, nil)
	require.NoError(t, err)
	assert.Equal(t, datastore.Absent, result)
}

func TestFindResponsesEnumeratesRegisteredVsids(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}

	for _, vsID := range []uint64{5678, 5679} {
		vctx := &datastore.VsidCtx{TestIDCtx: tctx, VsID: vsID}
		require.NoError(t, s.WriteVsid(ctx, vctx, datastore.FileResponse, false, []byte(`{}`)))
	}

	var seen []uint64
	err := s.FindResponses(ctx, tctx, func(vctx *datastore.VsidCtx, resp []byte) error {
		seen = append(seen, vctx.VsID)
		assert.NotNil(t, resp)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{5678, 5679}, seen)
}

func TestModuleDefinitionMismatchIsFatal(t *testing.T) {
	fc := newFakeClient()
	s, err := newWithClient(context.Background(), fc)
	require.NoError(t, err)

	ctx := context.Background()
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}
	require.NoError(t, s.FindResponses(ctx, tctx, func(*datastore.VsidCtx, []byte) error { return nil }))

	// Simulate the snapshot changing out from under us between runs.
	fc.values[testIDKey(def, 1234)+":moduledef"] = `{"vendor":"other","module":"widget","version":"1.0"}`

	err = s.checkModuleDefinition(ctx, tctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, acvperr.ErrMismatch))
}

func TestWriteThenReadAuthTokenRoundTrips(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tctx := &datastore.TestIDCtx{Def: def, TestID: 1234}

	require.NoError(t, s.WriteAuthToken(ctx, tctx, "abc.def.ghi"))
	token, generatedAt, err := s.ReadAuthToken(ctx, tctx)
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
