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

// Package config loads the proxy's configuration: a YAML file holding the
// durable settings (datastore roots, module definitions, pool sizes, TTLs),
// layered under a set of CLI flags that override it for one invocation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ModuleDefinition is the (vendor, module, version) triple that owns all
// persisted state for one test target.
type ModuleDefinition struct {
	Vendor  string `yaml:"vendor"`
	Module  string `yaml:"module"`
	Version string `yaml:"version"`
}

// Config is the fully resolved configuration for one run.
type Config struct {
	Server      string `yaml:"server"`
	DatastoreBase string `yaml:"datastore_base"`
	SecureBase    string `yaml:"secure_base"`

	AuthTTL time.Duration `yaml:"auth_ttl"`

	GroupAWorkers int `yaml:"group_a_workers"`
	GroupBWorkers int `yaml:"group_b_workers"`

	RetryMaxTotal time.Duration `yaml:"retry_max_total"`
	RetryMaxSleep time.Duration `yaml:"retry_max_sleep"`
	RetryDebugTrace bool `yaml:"retry_debug_trace"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	MetricsAddr string `yaml:"metrics_addr"`

	DatastoreKind string `yaml:"datastore_kind"`
	RedisAddr     string `yaml:"redis_addr"`

	Modules []ModuleDefinition `yaml:"modules"`

	// CLI-only, never persisted to YAML.
	DownloadPendingVsid bool
	ResubmitResult      bool
	TestIDs             []uint64
	VsIDs               []uint64
	ListVerdicts        string
}

// Default returns a Config with every field set to its production default,
// before the YAML file and flags are layered on top.
func Default() Config {
	return Config{
		Server:        "https://demo.acvts.nist.gov",
		DatastoreBase: "datastore",
		SecureBase:    "secure-datastore",
		AuthTTL:       25 * time.Minute,
		GroupAWorkers: 4,
		GroupBWorkers: 16,
		RetryMaxTotal: 30 * time.Minute,
		RetryMaxSleep: 30 * time.Second,
		LogLevel:      "info",
		DatastoreKind: "fs",
	}
}

// Load reads path (if non-empty and it exists) over Default(), then applies
// flags parsed from args, and returns the resolved Config. A missing path is
// not an error: flags and defaults alone are a valid configuration for tests
// and one-off invocations.
func Load(path string, args []string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, uerr)
			}
		case os.IsNotExist(err):
			// no config file is fine; fall through to flags.
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := applyFlags(&cfg, args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a Config that would make the orchestrator misbehave,
// mapping to spec.md §6's exit code 22 ("invalid config").
func (c Config) Validate() error {
	if c.GroupAWorkers <= 0 {
		return fmt.Errorf("config: group_a_workers must be positive, got %d", c.GroupAWorkers)
	}
	if c.GroupBWorkers <= 0 {
		return fmt.Errorf("config: group_b_workers must be positive, got %d", c.GroupBWorkers)
	}
	if c.Server == "" {
		return fmt.Errorf("config: server must be set")
	}
	if c.DatastoreKind != "fs" && c.DatastoreKind != "redis" {
		return fmt.Errorf("config: unknown datastore_kind %q", c.DatastoreKind)
	}
	if c.ListVerdicts != "" && c.ListVerdicts != "passed" && c.ListVerdicts != "failed" {
		return fmt.Errorf("config: --list-verdicts must be 'passed' or 'failed', got %q", c.ListVerdicts)
	}
	return nil
}

func applyFlags(cfg *Config, args []string) error {
	fs := pflag.NewFlagSet("acvpproxy", pflag.ContinueOnError)

	server := fs.String("server", cfg.Server, "ACVP server base URL")
	dsBase := fs.String("datastore-base", cfg.DatastoreBase, "filesystem root for non-secure artifacts")
	secureBase := fs.String("secure-base", cfg.SecureBase, "filesystem root for tokens and module-definition snapshots")
	dsKind := fs.String("datastore-kind", cfg.DatastoreKind, "datastore backend: fs or redis")
	redisAddr := fs.String("redis-addr", cfg.RedisAddr, "redis address, when datastore-kind=redis")
	groupA := fs.Int("group-a-workers", cfg.GroupAWorkers, "bounded worker pool size for per-testID tasks")
	groupB := fs.Int("group-b-workers", cfg.GroupBWorkers, "bounded worker pool size for per-vsID tasks")
	logLevel := fs.String("log-level", cfg.LogLevel, "debug, info, warn, or error")
	logPretty := fs.Bool("log-pretty", cfg.LogPretty, "render logs for a terminal instead of JSON")
	metricsAddr := fs.String("metrics-addr", cfg.MetricsAddr, "address to serve /metrics on; empty disables it")

	downloadPending := fs.Bool("download-pending-vsid", cfg.DownloadPendingVsid, "download vectors for vsIDs with no response yet")
	resubmit := fs.Bool("resubmit-result", cfg.ResubmitResult, "force re-upload even if a verdict is already present")
	var testIDs []string
	var vsIDs []string
	fs.StringArrayVar(&testIDs, "testid", nil, "restrict to this testID (repeatable)")
	fs.StringArrayVar(&vsIDs, "vsid", nil, "restrict to this vsID (repeatable)")
	listVerdicts := fs.String("list-verdicts", cfg.ListVerdicts, "passed or failed: after the run, list the verdicts it recorded")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: parse flags: %w", err)
	}

	cfg.Server = *server
	cfg.DatastoreBase = *dsBase
	cfg.SecureBase = *secureBase
	cfg.DatastoreKind = *dsKind
	cfg.RedisAddr = *redisAddr
	cfg.GroupAWorkers = *groupA
	cfg.GroupBWorkers = *groupB
	cfg.LogLevel = *logLevel
	cfg.LogPretty = *logPretty
	cfg.MetricsAddr = *metricsAddr
	cfg.DownloadPendingVsid = *downloadPending
	cfg.ResubmitResult = *resubmit
	cfg.ListVerdicts = *listVerdicts

	ids, err := parseUints(testIDs)
	if err != nil {
		return fmt.Errorf("config: --testid: %w", err)
	}
	cfg.TestIDs = ids

	vids, err := parseUints(vsIDs)
	if err != nil {
		return fmt.Errorf("config: --vsid: %w", err)
	}
	cfg.VsIDs = vids

	return nil
}

func parseUints(ss []string) ([]uint64, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]uint64, 0, len(ss))
	for _, s := range ss {
		var v uint64
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}
