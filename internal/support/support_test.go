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

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePathComponent(t *testing.T) {
	assert.Equal(t, "acme_widget", SanitizePathComponent("acme widget"))
	assert.Equal(t, "1.0", SanitizePathComponent("1.0"))
	assert.Equal(t, "___rm_-rf_", SanitizePathComponent("; `rm -rf`"))
	assert.Equal(t, "a/b-c.d_e", SanitizePathComponent("a/b-c.d_e"))
}

func TestJoinPathSanitizesEachComponent(t *testing.T) {
	got := JoinPath("acme", "widget v2", "1234", "5678")
	assert.Equal(t, "acme/widget_v2/1234/5678", got)
}

func TestCountersInvariant(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ToProcess.Add(1)
			c.Processed.Add(1)
		}()
	}
	wg.Wait()
	toProcess, processed := c.Snapshot()
	assert.Equal(t, int64(100), toProcess)
	assert.Equal(t, int64(100), processed)
	assert.LessOrEqual(t, processed, toProcess)
}
