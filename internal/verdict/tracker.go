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

// Package verdict holds the process-wide, bounded record of pass/fail
// verdicts keyed by vsID, used by the CLI's --list-verdicts surface.
package verdict

import (
	"sync"
	"sync/atomic"
)

// MaxEntries bounds each ordered sequence. Overflow past this is dropped and
// counted (see Tracker.Dropped); nothing is logged, by Tracker or by its
// caller. Tracker itself never allocates past it.
const MaxEntries = 512

// seq is an append-only, overflow-bounded ordered sequence of vsIDs.
//
// Writers take mu, write the value into the next free slot, and only then
// advance published — so a concurrent reader calling List never observes a
// slot whose write is still in flight (resolves spec.md §9's cursor Open
// Question: store the value, then publish the cursor).
type seq struct {
	mu        sync.Mutex
	slots     [MaxEntries]uint64
	next      int       // next free index, protected by mu
	published atomic.Int64
	dropped   atomic.Int64
}

func (s *seq) append(vsid uint64) (appended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= MaxEntries {
		s.dropped.Add(1)
		return false
	}
	s.slots[s.next] = vsid
	s.next++
	s.published.Store(int64(s.next))
	return true
}

// list returns entries with index >= cursor; Tracker.List derives the next
// cursor from the number returned.
func (s *seq) list(cursor int64) []uint64 {
	n := s.published.Load()
	if cursor >= n {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, n-cursor)
	copy(out, s.slots[cursor:n])
	return out
}

// Tracker holds the pass and fail sequences for one process.
type Tracker struct {
	pass seq
	fail seq
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Record appends vsid to the pass or fail sequence. It never fails the
// caller: overflow past MaxEntries is silently counted (see Dropped) rather
// than returned as an error, matching spec.md §4.6 ("logs and returns").
func (t *Tracker) Record(vsid uint64, passed bool) {
	if passed {
		t.pass.append(vsid)
		return
	}
	t.fail.append(vsid)
}

// List returns every vsID appended to the requested sequence strictly after
// cursor, along with the cursor value to supply on the next call. Passing
// cursor=0 on the first call lists from the beginning.
func (t *Tracker) List(passed bool, cursor int64) (items []uint64, nextCursor int64) {
	s := &t.fail
	if passed {
		s = &t.pass
	}
	items = s.list(cursor)
	return items, cursor + int64(len(items))
}

// Dropped reports how many verdicts were discarded because the sequence
// (pass or fail) had already reached MaxEntries.
func (t *Tracker) Dropped(passed bool) int64 {
	if passed {
		return t.pass.dropped.Load()
	}
	return t.fail.dropped.Load()
}
