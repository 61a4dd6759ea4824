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

// Package acvperr defines the error taxonomy shared by every layer of the
// proxy, plus two non-error sentinels (Restarted, AlreadyDone) that signal
// outcomes rather than failures. Callers compare with errors.Is; wrap with
// fmt.Errorf("...: %w", acvperr.ErrX) to preserve context.
package acvperr

import "errors"

var (
	ErrInvalidInput   = errors.New("acvp: invalid input")
	ErrOOM            = errors.New("acvp: out of memory")
	ErrIO             = errors.New("acvp: io error")
	ErrStaleDatastore = errors.New("acvp: stale datastore version")
	ErrAuthFailed     = errors.New("acvp: authentication failed")
	ErrHTTPTransport  = errors.New("acvp: http transport error")
	ErrHTTP4xx        = errors.New("acvp: http 4xx response")
	ErrHTTP5xx        = errors.New("acvp: http 5xx response")
	ErrPollTimeout    = errors.New("acvp: poll time cap exceeded")
	ErrWrongServer    = errors.New("acvp: vsID served by a different server than configured")
	ErrMismatch       = errors.New("acvp: module definition mismatch")
	ErrCancelled      = errors.New("acvp: operation cancelled")

	// Restarted and AlreadyDone are positive sentinels: returned alongside a
	// nil error to tell a caller which non-error path a vsID took.
	Restarted   = errors.New("acvp: vsID download restarted")
	AlreadyDone = errors.New("acvp: vsID already processed")
)
