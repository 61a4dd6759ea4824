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

// Package main is the acvpproxy CLI: it loads configuration, wires the
// datastore backend, network client, and telemetry, then drives the
// orchestrator over every configured module definition.
//
// This file is responsible for orchestrating the whole process:
//  1. Resolving configuration from a YAML file layered under CLI flags.
//  2. Constructing the datastore backend, network client, and metrics.
//  3. Running the orchestrator to completion, then printing the verdicts it
//     recorded when --list-verdicts is set.
//  4. Reacting to SIGINT/SIGTERM by flushing every in-flight testID before
//     exiting, instead of dropping state on the floor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"acvpproxy/internal/acvperr"
	"acvpproxy/internal/cancel"
	"acvpproxy/internal/config"
	"acvpproxy/internal/datastore"
	"acvpproxy/internal/datastore/fs"
	"acvpproxy/internal/datastore/rds"
	"acvpproxy/internal/logging"
	"acvpproxy/internal/network"
	"acvpproxy/internal/orchestrator"
	"acvpproxy/internal/telemetry"
	"acvpproxy/internal/verdict"
)

// Exit codes per spec.md §6.
const (
	exitOK            = 0
	exitGeneric       = 1
	exitRetryExceeded = 75
	exitInvalidConfig = 22
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(os.Getenv("ACVPPROXY_CONFIG"), args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "acvpproxy:", err)
		return exitInvalidConfig
	}

	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogPretty)

	backend, err := buildBackend(context.Background(), cfg)
	if err != nil {
		logger.Error().Err(err).Msg("datastore initialization failed")
		return exitGeneric
	}

	verdicts := verdict.New()
	metrics := telemetry.New()

	rootCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	cancelStack := cancel.New()
	metrics.ServeBackground(rootCtx, cfg.MetricsAddr)

	netClient := network.New(network.DefaultConfig())
	orch := orchestrator.New(cfg, backend, netClient, verdicts, metrics, cancelStack, logger)

	done := make(chan error, 1)
	go func() { done <- orch.Run(rootCtx) }()

	var runErr error
	select {
	case <-rootCtx.Done():
		logger.Warn().Msg("signal received, flushing in-flight testIDs")
		cancelStack.FlushAll()
		runErr = <-done
	case runErr = <-done:
	}

	// --list-verdicts enumerates this invocation's recorded outcomes after
	// the run completes, per spec.md §4.6's tracker being the CLI's source
	// for listing outcomes, rather than a standalone query against state
	// from a prior process.
	if cfg.ListVerdicts != "" {
		listVerdicts(verdicts, cfg.ListVerdicts)
	}

	if runErr == nil {
		return exitOK
	}
	logger.Error().Err(runErr).Msg("orchestrator run failed")
	if errors.Is(runErr, acvperr.ErrPollTimeout) {
		return exitRetryExceeded
	}
	return exitGeneric
}

// buildBackend is the kind-string -> datastore.Backend selector. It lives
// here rather than in internal/datastore because fs and rds both import
// datastore for shared types; a factory inside datastore itself would
// import them back and cycle.
func buildBackend(ctx context.Context, cfg config.Config) (datastore.Backend, error) {
	switch cfg.DatastoreKind {
	case "redis":
		return rds.New(ctx, cfg.RedisAddr)
	default:
		return fs.New(cfg.DatastoreBase, cfg.SecureBase)
	}
}

func listVerdicts(tracker *verdict.Tracker, which string) {
	passed := which == "passed"
	items, _ := tracker.List(passed, 0)
	for _, vsID := range items {
		fmt.Println(vsID)
	}
}

