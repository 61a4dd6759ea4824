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

// Package logging constructs the process-wide structured logger. Every
// component that needs to log takes a zerolog.Logger (or the *Logger
// wrapper below) by value rather than reaching for a package-level global,
// so tests can inject a buffer and assert on emitted fields.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's levels but keeps callers from importing zerolog
// directly just to pick a verbosity.
type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// New builds a logger writing to w (os.Stderr in production, a bytes.Buffer
// in tests) at the given level. When pretty is true, output is rendered
// through zerolog.ConsoleWriter for local/demo use; production deployments
// should leave it false for plain JSON lines.
func New(w io.Writer, level Level, pretty bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a CLI/config string ("debug", "info", "warn", "error") to
// a Level, defaulting to Info on anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebug reports whether level enables debug-mode behavior. It is the same
// level test orchestrator.New applies to its logger's level when deciding
// whether to run its worker pools inline (spec.md §5, "Debug mode
// override") for deterministic test ordering.
func IsDebug(level Level) bool {
	return level <= LevelDebug
}
