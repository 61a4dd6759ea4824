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

// Package orchestrator walks module definitions, spawns a worker-group-A
// task per testID, each of which spawns worker-group-B tasks per vsID, and
// aggregates counters, durations, and verdicts across the whole run.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"acvpproxy/internal/acvperr"
	"acvpproxy/internal/auth"
	"acvpproxy/internal/cancel"
	"acvpproxy/internal/config"
	"acvpproxy/internal/datastore"
	"acvpproxy/internal/network"
	"acvpproxy/internal/retry"
	"acvpproxy/internal/support"
	"acvpproxy/internal/telemetry"
	"acvpproxy/internal/verdict"
)

// Orchestrator is the hardest component: it owns the two bounded worker
// pools and every cross-cutting service the per-testID and per-vsID work
// needs.
type Orchestrator struct {
	Cfg      config.Config
	Backend  datastore.Backend
	Network  network.Client
	Verdicts *verdict.Tracker
	Metrics  *telemetry.Metrics
	Cancel   *cancel.Stack
	Logger   zerolog.Logger

	Global support.Counters

	poolA *Pool
	poolB *Pool
}

// New constructs an Orchestrator and its two worker pools, sized from cfg
// and honoring the debug-mode inline-dispatch override.
func New(cfg config.Config, backend datastore.Backend, net network.Client, verdicts *verdict.Tracker, metrics *telemetry.Metrics, cancelStack *cancel.Stack, logger zerolog.Logger) *Orchestrator {
	debug := logger.GetLevel() <= zerolog.DebugLevel
	return &Orchestrator{
		Cfg:      cfg,
		Backend:  backend,
		Network:  net,
		Verdicts: verdicts,
		Metrics:  metrics,
		Cancel:   cancelStack,
		Logger:   logger,
		poolA:    NewPool(cfg.GroupAWorkers, debug),
		poolB:    NewPool(cfg.GroupBWorkers, debug),
	}
}

// Run walks every configured module definition, spawning one group-A task
// per matching testID, and returns once the whole group has completed. A
// fatal error (stale datastore, module-definition mismatch) stops the outer
// walk from visiting further module definitions, but never retroactively
// cancels testIDs already dispatched.
func (o *Orchestrator) Run(ctx context.Context) error {
	var mu sync.Mutex
	var errs []error
	var fatal error

	for _, def := range o.Cfg.Modules {
		mu.Lock()
		f := fatal
		mu.Unlock()
		if f != nil {
			break
		}

		testIDs, err := o.Backend.FindTestSessions(ctx, def, o.Cfg.TestIDs, 0)
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			continue
		}

		for _, testID := range testIDs {
			def, testID := def, testID
			o.poolA.Spawn(func() {
				o.Metrics.WorkerPoolInflight.WithLabelValues(telemetry.GroupA).Inc()
				defer o.Metrics.WorkerPoolInflight.WithLabelValues(telemetry.GroupA).Dec()
				err := o.handleTestID(ctx, def, testID)
				if err == nil {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				errs = append(errs, err)
				if isFatal(err) && fatal == nil {
					fatal = err
				}
			})
		}
	}
	o.poolA.Wait()

	mu.Lock()
	defer mu.Unlock()
	if fatal != nil {
		return fatal
	}
	return errors.Join(errs...)
}

func isFatal(err error) bool {
	return errors.Is(err, acvperr.ErrStaleDatastore) || errors.Is(err, acvperr.ErrMismatch)
}

// handleTestID implements spec.md §4.7's handle_testid.
func (o *Orchestrator) handleTestID(ctx context.Context, def config.ModuleDefinition, testID uint64) error {
	tctx := &datastore.TestIDCtx{Def: def, TestID: testID, StartedAt: time.Now()}

	authCtx := auth.Init(o.Cfg.AuthTTL, func(ctx context.Context) (string, error) {
		return o.login(ctx, tctx)
	})
	authCtx.SetPersist(func(jwt string, generatedAt time.Time) {
		if err := o.Backend.WriteAuthToken(context.Background(), tctx, jwt); err != nil {
			o.Logger.Warn().Uint64("test_id", testID).Err(err).Msg("writing refreshed auth token failed")
		}
	})
	tctx.Auth = authCtx

	result := o.acvpRespondTestID(ctx, tctx, authCtx)

	restarted := errors.Is(result, acvperr.Restarted)
	alreadyDone := errors.Is(result, acvperr.AlreadyDone)
	if !restarted && !alreadyDone {
		if err := o.getTestIDVerdict(ctx, tctx, authCtx); err != nil {
			o.Logger.Warn().Uint64("test_id", testID).Err(err).Msg("session verdict fetch failed")
		}
	}

	toProcess, processed := tctx.Counters.Snapshot()
	if processed < toProcess {
		o.Logger.Warn().
			Uint64("test_id", testID).
			Int64("missing", toProcess-processed).
			Msgf("%d vsIDs missing for testID %d, re-run with --testid=%d", toProcess-processed, testID, testID)
	}

	if restarted || alreadyDone {
		return nil
	}
	return result
}

// acvpRespondTestID implements spec.md §4.7's acvp_respond_testid: it
// initializes auth, reads any persisted token, registers this testID with
// the cancellation stack, walks its vsIDs via FindResponses dispatched onto
// worker group B, and tears the registration down on every exit path.
func (o *Orchestrator) acvpRespondTestID(ctx context.Context, tctx *datastore.TestIDCtx, authCtx *auth.Context) error {
	if token, generatedAt, err := o.Backend.ReadAuthToken(ctx, tctx); err == nil && token != "" {
		authCtx.Seed(token, generatedAt)
	}

	token := o.Cancel.Push(cancel.Entry{
		Flush: func() {
			jwt, _ := authCtx.Flush()
			if jwt == "" {
				return
			}
			_ = o.Backend.WriteAuthToken(context.Background(), tctx, jwt)
		},
		Cancel: func() {},
	})
	defer o.Cancel.Pop(token)

	var localWG sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	sawRestarted, sawAlreadyDone := false, false

	findErr := o.Backend.FindResponses(ctx, tctx, func(vctx *datastore.VsidCtx, resp []byte) error {
		if len(o.Cfg.VsIDs) > 0 && !slices.Contains(o.Cfg.VsIDs, vctx.VsID) {
			return nil
		}
		vctx.ResubmitResult = o.Cfg.ResubmitResult
		localWG.Add(1)
		o.Metrics.WorkerPoolInflight.WithLabelValues(telemetry.GroupB).Inc()
		o.poolB.Spawn(func() {
			defer localWG.Done()
			defer o.Metrics.WorkerPoolInflight.WithLabelValues(telemetry.GroupB).Dec()

			verr := o.processOneVsid(ctx, vctx, resp, authCtx)
			switch {
			case verr == nil:
			case errors.Is(verr, acvperr.Restarted):
				mu.Lock()
				sawRestarted = true
				mu.Unlock()
			case errors.Is(verr, acvperr.AlreadyDone):
				mu.Lock()
				sawAlreadyDone = true
				mu.Unlock()
			default:
				mu.Lock()
				if firstErr == nil {
					firstErr = verr
				}
				mu.Unlock()
				o.Logger.Warn().Uint64("vs_id", vctx.VsID).Err(verr).Msg("vsID processing failed")
			}
		})
		return nil
	})
	localWG.Wait()

	if findErr != nil {
		return findErr
	}

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return firstErr
	}
	if sawRestarted {
		return acvperr.Restarted
	}
	if sawAlreadyDone {
		return acvperr.AlreadyDone
	}
	return nil
}

// getTestIDVerdict implements spec.md §4.7's get_testid_verdict: it runs
// only once every dispatched vsID for this testID has been processed.
func (o *Orchestrator) getTestIDVerdict(ctx context.Context, tctx *datastore.TestIDCtx, authCtx *auth.Context) error {
	toProcess, processed := tctx.Counters.Snapshot()
	if processed != toProcess {
		return nil
	}

	url := fmt.Sprintf("%s/testSessions/%d/results", o.Cfg.Server, tctx.TestID)
	var body []byte
	err := authCtx.SendUnderRead(ctx, func(ctx context.Context, jwt string) error {
		b, e := retry.Poll(ctx, o.retryConfig(), url, o.getter(jwt))
		body = b
		return e
	})
	if err != nil {
		return err
	}
	return o.Backend.WriteTestid(ctx, tctx, datastore.FileVerdict, false, body)
}

// getter adapts network.Client.Get to retry.Getter for one fixed JWT.
func (o *Orchestrator) getter(jwt string) retry.Getter {
	return func(ctx context.Context, url string) ([]byte, error) {
		body, err := o.Network.Get(ctx, url, jwt)
		o.recordHTTP("GET", err)
		return body, err
	}
}

func (o *Orchestrator) recordHTTP(method string, err error) {
	status := "200"
	switch {
	case errors.Is(err, acvperr.ErrHTTP4xx):
		status = "4xx"
	case errors.Is(err, acvperr.ErrHTTP5xx):
		status = "5xx"
	case errors.Is(err, acvperr.ErrHTTPTransport):
		status = "transport-error"
	}
	o.Metrics.RecordHTTP(method, status)
}

// retryConfig builds the Poll bounds for a testID-scoped call (no vsID to
// write intermediate trace artifacts under, e.g. get_testid_verdict). Debug
// tracing, when enabled, is logged only; use vsidRetryConfig for any poll
// scoped to a vsID so the spec's persisted trace artifact requirement is met.
func (o *Orchestrator) retryConfig() retry.Config {
	cfg := retry.Config{MaxTotal: o.Cfg.RetryMaxTotal, MaxSleep: o.Cfg.RetryMaxSleep}
	if o.Cfg.RetryDebugTrace {
		cfg.Trace = func(body []byte) {
			o.Logger.Debug().RawJSON("retry_envelope", body).Msg("poll retry envelope")
		}
	}
	return cfg
}

// vsidRetryConfig is retryConfig's vsID-scoped counterpart: per spec.md
// §4.5 item 4, when debug tracing is enabled every intermediate retry
// envelope is persisted under the vsID as retry_trace_N.json, not merely
// logged.
func (o *Orchestrator) vsidRetryConfig(ctx context.Context, vctx *datastore.VsidCtx) retry.Config {
	cfg := retry.Config{MaxTotal: o.Cfg.RetryMaxTotal, MaxSleep: o.Cfg.RetryMaxSleep}
	if o.Cfg.RetryDebugTrace {
		var n int
		cfg.Trace = func(body []byte) {
			n++
			name := fmt.Sprintf("retry_trace_%d.json", n)
			if err := o.Backend.WriteVsid(ctx, vctx, name, false, body); err != nil {
				o.Logger.Warn().Uint64("vs_id", vctx.VsID).Err(err).Msg("writing retry trace artifact failed")
			}
		}
	}
	return cfg
}

// login performs the network login dance against the configured server's
// /login endpoint, returning the access token ACVP wraps in the JWT bearer
// header for every subsequent request.
func (o *Orchestrator) login(ctx context.Context, tctx *datastore.TestIDCtx) (string, error) {
	url := o.Cfg.Server + "/login"
	body, err := o.Network.Post(ctx, url, "", nil)
	o.recordHTTP("POST", err)
	if err != nil {
		return "", fmt.Errorf("orchestrator: login testID %d: %w", tctx.TestID, acvperr.ErrAuthFailed)
	}

	var env struct {
		AccessToken string `json:"accessToken"`
	}
	if jerr := json.Unmarshal(body, &env); jerr != nil || env.AccessToken == "" {
		return "", fmt.Errorf("orchestrator: parse login response for testID %d: %w", tctx.TestID, acvperr.ErrAuthFailed)
	}
	return env.AccessToken, nil
}
