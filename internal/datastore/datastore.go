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

// Package datastore defines the capability interface the orchestrator
// consumes for all persisted state, and the context types (TestID, vsID)
// that flow through it. Concrete backends live in subpackages (fs, rds).
package datastore

import (
	"context"
	"time"

	"acvpproxy/internal/config"
	"acvpproxy/internal/support"
)

// CompareResult is the outcome of comparing a caller-supplied buffer against
// the persisted content at a logical name.
type CompareResult int

const (
	// Equal means the persisted bytes match the supplied bytes exactly.
	Equal CompareResult = iota
	// Differ means the persisted bytes exist but do not match.
	Differ
	// Absent means nothing is persisted at that logical name.
	Absent
)

// TestIDCtx is bound to one module definition and one server-assigned
// testID. It owns the two monotonic counters for the vsIDs it spawns and a
// start timestamp; the auth context for the testID is attached by the
// caller after construction (datastore does not import internal/auth, so
// the field is an opaque value here).
type TestIDCtx struct {
	Def       config.ModuleDefinition
	TestID    uint64
	Counters  support.Counters
	StartedAt time.Time

	// Auth is set by the orchestrator once the auth context for this
	// testID has been initialized; datastore code never dereferences it.
	Auth any
}

// VsidCtx belongs to exactly one TestIDCtx and is never persisted across
// process restarts; it is reconstructed fresh by FindResponses on every run.
type VsidCtx struct {
	TestIDCtx *TestIDCtx
	VsID      uint64
	StartedAt time.Time

	VectorFilePresent  bool
	VerdictFilePresent bool
	SampleFilePresent  bool

	// ResubmitResult is set by the caller (from --resubmit-result) before
	// FindResponses's callback runs; the backend never sets it itself.
	ResubmitResult bool
}

// Callback is invoked once per enumerated vsID by FindResponses. resp is nil
// when no response.json exists yet ("download-only" mode); a non-nil error
// aborts only that one vsID, never its siblings.
type Callback func(vctx *VsidCtx, resp []byte) error

// Backend is the capability interface the orchestrator consumes for all
// persisted artifacts: vectors, responses, verdicts, auth tokens, and module
// definition snapshots, keyed by (vendor, module, version, testID, vsID).
//
// Implementations must sanitize every path component built from an external
// string via internal/support.SanitizePathComponent, must never allow a
// concurrent write to the same logical file, and must treat a missing
// directory on read as Absent rather than surfacing a raw I/O error, except
// where the caller explicitly wants stat failures to propagate (Compare).
type Backend interface {
	// FindTestSessions returns up to limit testIDs recorded under def. If
	// filter is non-empty, only those testIDs are considered at all;
	// testID 0 is reserved for session-wide metadata and is never
	// returned.
	FindTestSessions(ctx context.Context, def config.ModuleDefinition, filter []uint64, limit int) ([]uint64, error)

	// FindResponses enumerates every vsID recorded under tctx, building a
	// VsidCtx for each (with presence flags pre-populated) and invoking cb.
	// Before enumeration it compares any persisted module-definition
	// snapshot in the secure tree against tctx.Def; a mismatch is fatal
	// (ErrMismatch) and cb is never invoked.
	FindResponses(ctx context.Context, tctx *TestIDCtx, cb Callback) error

	// WriteVsid atomically writes data under logicalName for vctx, in the
	// secure tree when secure is true, creating directories as needed.
	WriteVsid(ctx context.Context, vctx *VsidCtx, logicalName string, secure bool, data []byte) error

	// WriteTestid is WriteVsid's testID-scoped counterpart, used for the
	// module-definition snapshot and the session-level verdict file.
	WriteTestid(ctx context.Context, tctx *TestIDCtx, logicalName string, secure bool, data []byte) error

	// Compare reports whether the persisted bytes at logicalName equal
	// data, differ, or are Absent.
	Compare(ctx context.Context, vctx *VsidCtx, logicalName string, secure bool, data []byte) (CompareResult, error)

	// ReadAuthToken loads the JWT persisted for tctx, along with its
	// generation time (the file's modification time). Returns Absent via
	// an empty token and the zero time when none is persisted.
	ReadAuthToken(ctx context.Context, tctx *TestIDCtx) (token string, generatedAt time.Time, err error)

	// WriteAuthToken persists token for tctx with file mode 0600. On any
	// write failure the partially-written file is removed so a stale
	// token can never be read back.
	WriteAuthToken(ctx context.Context, tctx *TestIDCtx, token string) error
}

// Logical file names used under a vsID or testID directory, per spec.md §6.
const (
	FileVector    = "vector.json"
	FileResponse  = "response.json"
	FileExpected  = "expected.json"
	FileVerdict   = "verdict.json"
	FileProcessed = "processed"

	FileAuthToken        = "auth.jwt"
	FileModuleDefinition = "module_definition.json"

	// FileSourceServer is an implementation-level bookkeeping file (not
	// named by the persisted layout's literal list) recording which
	// server's vectors a vsID directory holds, so a later submission
	// against a differently configured server can be refused instead of
	// silently cross-contaminating demo and production results.
	FileSourceServer = "source_server"
)
