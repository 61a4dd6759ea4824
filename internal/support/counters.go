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

package support

import "sync/atomic"

// padSize over-pads a counter to a full cache line so the two global
// counters (to-process, processed) never false-share a line under the
// heavy concurrent Add() traffic from every group-A/B worker. Same
// technique as the teacher's striped vsa.VSA accumulator.
const padSize = 128 - 8

// Counter is a monotonic, cache-line-padded atomic counter.
type Counter struct {
	v   atomic.Int64
	_   [padSize]byte
}

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int64) int64 { return c.v.Add(delta) }

// Load returns the current value.
func (c *Counter) Load() int64 { return c.v.Load() }

// Counters tracks a to-process/processed pair, enforcing invariant 2 of
// spec.md §3 (processed ≤ to-process) is never violated by construction:
// to-process is always bumped before the corresponding unit of work starts.
type Counters struct {
	ToProcess Counter
	Processed Counter
}

// Snapshot returns (toProcess, processed) read independently; callers that
// need them to agree at a single instant must otherwise synchronize (see
// orchestrator's use after find_responses returns).
func (c *Counters) Snapshot() (toProcess, processed int64) {
	return c.ToProcess.Load(), c.Processed.Load()
}
