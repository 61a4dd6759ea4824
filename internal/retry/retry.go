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

// Package retry interprets the ACVP server's "retry later" envelope: a GET
// response of the shape {"retry": N} means wait N seconds and re-issue the
// same GET. The engine owns the sleep, the total-time cap, and cancellation.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"acvpproxy/internal/acvperr"
)

// Getter issues one GET against url and returns its raw body.
type Getter func(ctx context.Context, url string) ([]byte, error)

// Trace is called with every intermediate (retry-envelope) response body
// before the engine sleeps and re-issues the GET; used to persist a debug
// copy under the vsID when tracing is enabled. A nil Trace disables this.
type Trace func(body []byte)

// Config bounds one Poll call.
type Config struct {
	// MaxTotal caps the cumulative time spent polling one URL, including
	// sleeps. Exceeding it returns acvperr.ErrPollTimeout.
	MaxTotal time.Duration
	// MaxSleep caps any single retry-envelope sleep, regardless of what
	// the server asked for.
	MaxSleep time.Duration
	Trace    Trace
}

type retryEnvelope struct {
	Retry *int `json:"retry"`
}

// Poll issues the initial GET via get, then, while the response parses as a
// retry envelope, sleeps for min(N, cfg.MaxSleep) and re-issues the same
// GET, until a non-retry payload arrives, the total time cap is exceeded
// (acvperr.ErrPollTimeout), or ctx is cancelled (acvperr.ErrCancelled, with
// the datastore left untouched).
func Poll(ctx context.Context, cfg Config, url string, get Getter) ([]byte, error) {
	deadline := time.Now().Add(cfg.MaxTotal)

	for {
		if cfg.MaxTotal > 0 && time.Now().After(deadline) {
			return nil, fmt.Errorf("retry: polling %s: %w", url, acvperr.ErrPollTimeout)
		}

		body, err := get(ctx, url)
		if err != nil {
			return nil, err
		}

		var env retryEnvelope
		if jsonErr := json.Unmarshal(body, &env); jsonErr != nil || env.Retry == nil {
			// Not a retry envelope (or not JSON at all): this is the
			// final payload.
			return body, nil
		}

		if cfg.Trace != nil {
			cfg.Trace(body)
		}

		wait := time.Duration(*env.Retry) * time.Second
		if cfg.MaxSleep > 0 && wait > cfg.MaxSleep {
			wait = cfg.MaxSleep
		}
		if cfg.MaxTotal > 0 {
			if remaining := time.Until(deadline); wait > remaining {
				wait = remaining
			}
		}

		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// sleep blocks for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry: %w", acvperr.ErrCancelled)
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry: %w", acvperr.ErrCancelled)
	}
}
