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

// Package rds is an alternate datastore.Backend backed by Redis, for
// deployments where many proxy instances share one datastore and a shared
// filesystem is unavailable. The module-definition snapshot is written
// through a Lua script, so a byte-identical retry succeeds while a differing
// snapshot is left in place and reported, mirroring the idempotent-commit
// pattern the rate-limiter demo used for its own Redis adapter. All other
// writes are plain SETs that overwrite the key.
package rds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"acvpproxy/internal/acvperr"
	"acvpproxy/internal/config"
	"acvpproxy/internal/datastore"
	"acvpproxy/internal/support"
)

// version mirrors fs.Store's single-byte ASCII marker, stored at a
// well-known key instead of a file.
const version = "1"

const versionKey = "acvpproxy:version"

// idempotentSet applies SET key value only if the key is empty, or if it
// already holds the identical value (so a retried write to the same
// logical file is a no-op instead of an error), returning 1 when the key
// was empty or already held the same value, and 0 (without writing) when it
// held a different value.
const idempotentSet = `
local key = KEYS[1]
local value = ARGV[1]
local existing = redis.call('GET', key)
if existing == false or existing == value then
  redis.call('SET', key, value)
  return 1
end
return 0
`

// client is the narrow slice of redis.Cmdable that Store needs. *redis.Client
// satisfies it directly; tests substitute an in-memory fake so the suite
// runs without a live Redis instance, the same way the rate-limiter demo's
// LoggingRedisEvaler let its Redis adapter be exercised dependency-free.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Store is the Redis-backed datastore.Backend.
type Store struct {
	client client
}

// New connects to addr and verifies (or initializes) the version marker.
func New(ctx context.Context, addr string) (*Store, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	return newWithClient(ctx, c)
}

func newWithClient(ctx context.Context, c client) (*Store, error) {
	s := &Store{client: c}

	got, err := c.Get(ctx, versionKey).Result()
	switch {
	case err == nil:
		if got != version {
			return nil, fmt.Errorf("rds: want version %s, got %q: %w", version, got, acvperr.ErrStaleDatastore)
		}
	case errors.Is(err, redis.Nil):
		if err := c.Set(ctx, versionKey, version, 0).Err(); err != nil {
			return nil, fmt.Errorf("rds: write version marker: %w", err)
		}
	default:
		return nil, fmt.Errorf("rds: read version marker: %w", err)
	}
	return s, nil
}

func moduleKey(def config.ModuleDefinition) string {
	return support.JoinPath(def.Vendor, def.Module, def.Version)
}

func testIDKey(def config.ModuleDefinition, testID uint64) string {
	return support.JoinPath(def.Vendor, def.Module, def.Version, strconv.FormatUint(testID, 10))
}

func vsIDKey(def config.ModuleDefinition, testID, vsID uint64) string {
	return support.JoinPath(def.Vendor, def.Module, def.Version, strconv.FormatUint(testID, 10), strconv.FormatUint(vsID, 10))
}

func fileKey(base, name string) string {
	return base + "/" + support.SanitizePathComponent(name)
}

// FindTestSessions implements datastore.Backend using a Redis set per
// module that WriteTestid/WriteVsid populate as a side effect of their
// first write under a new testID.
func (s *Store) FindTestSessions(ctx context.Context, def config.ModuleDefinition, filter []uint64, limit int) ([]uint64, error) {
	members, err := s.client.SMembers(ctx, moduleKey(def)+":testids").Result()
	if err != nil {
		return nil, fmt.Errorf("rds: smembers: %w", err)
	}

	allow := make(map[uint64]bool, len(filter))
	for _, id := range filter {
		allow[id] = true
	}

	var out []uint64
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil || id == 0 {
			continue
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

// FindResponses implements datastore.Backend.
func (s *Store) FindResponses(ctx context.Context, tctx *datastore.TestIDCtx, cb datastore.Callback) error {
	if err := s.checkModuleDefinition(ctx, tctx); err != nil {
		return err
	}

	members, err := s.client.SMembers(ctx, testIDKey(tctx.Def, tctx.TestID)+":vsids").Result()
	if err != nil {
		return fmt.Errorf("rds: smembers: %w", err)
	}

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		vsID, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}

		vctx := &datastore.VsidCtx{TestIDCtx: tctx, VsID: vsID, StartedAt: time.Now()}
		base := vsIDKey(tctx.Def, tctx.TestID, vsID)

		vctx.VectorFilePresent = s.exists(ctx, fileKey(base, datastore.FileVector))
		vctx.VerdictFilePresent = s.exists(ctx, fileKey(base, datastore.FileVerdict))
		vctx.SampleFilePresent = s.exists(ctx, fileKey(base, datastore.FileExpected))

		var resp []byte
		if val, err := s.client.Get(ctx, fileKey(base, datastore.FileResponse)).Result(); err == nil {
			resp = []byte(val)
		} else if !errors.Is(err, redis.Nil) {
			return fmt.Errorf("rds: read response for vsID %d: %w", vsID, err)
		}

		if err := cb(vctx, resp); err != nil {
			continue
		}
	}
	return nil
}

func (s *Store) exists(ctx context.Context, key string) bool {
	n, err := s.client.Exists(ctx, key).Result()
	return err == nil && n > 0
}

func (s *Store) checkModuleDefinition(ctx context.Context, tctx *datastore.TestIDCtx) error {
	key := testIDKey(tctx.Def, tctx.TestID) + ":moduledef"
	want, err := json.Marshal(tctx.Def)
	if err != nil {
		return fmt.Errorf("rds: marshal module definition: %w", err)
	}

	applied, err := s.client.Eval(ctx, idempotentSet, []string{key}, string(want)).Result()
	if err != nil {
		return fmt.Errorf("rds: eval idempotent-set: %w", err)
	}
	if n, _ := applied.(int64); n == 1 {
		return nil // first write, or a byte-identical retry
	}

	got, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("rds: read %s: %w", key, err)
	}
	if got != string(want) {
		return fmt.Errorf("rds: module definition snapshot mismatch at %s: %w", key, acvperr.ErrMismatch)
	}
	return nil
}

// WriteVsid implements datastore.Backend.
func (s *Store) WriteVsid(ctx context.Context, vctx *datastore.VsidCtx, logicalName string, secure bool, data []byte) error {
	def := vctx.TestIDCtx.Def
	testID := vctx.TestIDCtx.TestID
	if err := s.registerMembership(ctx, def, testID, vctx.VsID); err != nil {
		return err
	}
	key := fileKey(vsIDKey(def, testID, vctx.VsID), logicalName)
	return s.set(ctx, key, data)
}

// WriteTestid implements datastore.Backend.
func (s *Store) WriteTestid(ctx context.Context, tctx *datastore.TestIDCtx, logicalName string, secure bool, data []byte) error {
	if err := s.client.SAdd(ctx, moduleKey(tctx.Def)+":testids", tctx.TestID).Err(); err != nil {
		return fmt.Errorf("rds: sadd testids: %w", err)
	}
	key := fileKey(testIDKey(tctx.Def, tctx.TestID), logicalName)
	return s.set(ctx, key, data)
}

func (s *Store) registerMembership(ctx context.Context, def config.ModuleDefinition, testID, vsID uint64) error {
	if err := s.client.SAdd(ctx, moduleKey(def)+":testids", testID).Err(); err != nil {
		return fmt.Errorf("rds: sadd testids: %w", err)
	}
	if err := s.client.SAdd(ctx, testIDKey(def, testID)+":vsids", vsID).Err(); err != nil {
		return fmt.Errorf("rds: sadd vsids: %w", err)
	}
	return nil
}

func (s *Store) set(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("rds: set %s: %w", key, err)
	}
	return nil
}

// Compare implements datastore.Backend.
func (s *Store) Compare(ctx context.Context, vctx *datastore.VsidCtx, logicalName string, secure bool, data []byte) (datastore.CompareResult, error) {
	key := fileKey(vsIDKey(vctx.TestIDCtx.Def, vctx.TestIDCtx.TestID, vctx.VsID), logicalName)
	got, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return datastore.Absent, nil
	}
	if err != nil {
		return datastore.Absent, fmt.Errorf("rds: get %s: %w", key, err)
	}
	if got == string(data) {
		return datastore.Equal, nil
	}
	return datastore.Differ, nil
}

// ReadAuthToken implements datastore.Backend. Redis has no mtime, so the
// generation time is stored alongside the token as a companion key.
func (s *Store) ReadAuthToken(ctx context.Context, tctx *datastore.TestIDCtx) (string, time.Time, error) {
	base := testIDKey(tctx.Def, tctx.TestID)
	token, err := s.client.Get(ctx, fileKey(base, datastore.FileAuthToken)).Result()
	if errors.Is(err, redis.Nil) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("rds: get auth token: %w", err)
	}

	genRaw, err := s.client.Get(ctx, fileKey(base, datastore.FileAuthToken)+":generated_at").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", time.Time{}, fmt.Errorf("rds: get auth token timestamp: %w", err)
	}
	generatedAt := time.Time{}
	if genRaw != "" {
		if unixNano, perr := strconv.ParseInt(genRaw, 10, 64); perr == nil {
			generatedAt = time.Unix(0, unixNano)
		}
	}
	return token, generatedAt, nil
}

// WriteAuthToken implements datastore.Backend.
func (s *Store) WriteAuthToken(ctx context.Context, tctx *datastore.TestIDCtx, token string) error {
	base := testIDKey(tctx.Def, tctx.TestID)
	if err := s.client.Set(ctx, fileKey(base, datastore.FileAuthToken), token, 0).Err(); err != nil {
		return fmt.Errorf("rds: set auth token: %w", err)
	}
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := s.client.Set(ctx, fileKey(base, datastore.FileAuthToken)+":generated_at", now, 0).Err(); err != nil {
		return fmt.Errorf("rds: set auth token timestamp: %w", err)
	}
	return nil
}
