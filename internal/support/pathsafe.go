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

// Package support holds small, dependency-free helpers shared by the
// datastore and orchestrator packages: path sanitization, path
// composition, and contention-aware atomic counters.
package support

import "strings"

// SanitizePathComponent replaces every byte outside [A-Za-z0-9_./-] with
// '_'. Every path component built from an externally supplied string
// (vendor, module, version, testID, vsID, logical file name) must be run
// through this before touching the filesystem.
func SanitizePathComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '_', c == '.', c == '/', c == '-':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// JoinPath sanitizes each component and joins them with "/". It never
// consults the filesystem; callers still own turning the result into an
// absolute path under their configured base directory.
func JoinPath(components ...string) string {
	clean := make([]string, len(components))
	for i, c := range components {
		clean[i] = SanitizePathComponent(c)
	}
	return strings.Join(clean, "/")
}
