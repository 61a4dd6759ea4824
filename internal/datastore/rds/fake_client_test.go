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
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// fakeClient is an in-memory stand-in for the narrow client interface,
// enough to exercise Store without a live Redis instance. It implements
// only the Lua script this package actually sends (idempotentSet); any
// other script is rejected so a future script addition fails loudly here
// instead of silently no-opping.
type fakeClient struct {
	mu     sync.Mutex
	values map[string]string
	sets   map[string]map[string]struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		values: make(map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (f *fakeClient) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]struct{})
		f.sets[key] = set
	}
	var added int64
	for _, m := range members {
		s := fmt.Sprint(m)
		if _, exists := set[s]; !exists {
			set[s] = struct{}{}
			added++
		}
	}
	return redis.NewIntResult(added, nil)
}

func (f *fakeClient) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if script != idempotentSet {
		return redis.NewCmd(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := keys[0]
	value := fmt.Sprint(args[0])
	existing, had := f.values[key]
	if !had || existing == value {
		f.values[key] = value
		cmd := redis.NewCmd(ctx)
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd := redis.NewCmd(ctx)
	cmd.SetVal(int64(0))
	return cmd
}
