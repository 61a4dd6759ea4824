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

// Package telemetry exposes the proxy's Prometheus metrics. Unlike a
// package-scope global registry, Metrics owns its own prometheus.Registry so
// tests can construct one per case without tripping "duplicate metrics
// collector registration" panics.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the orchestrator reports to, including the
// per-call HTTP outcomes it records for the network layer.
type Metrics struct {
	registry *prometheus.Registry

	VsidsToProcessTotal prometheus.Counter
	VsidsProcessedTotal prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	RetrySleepSeconds   prometheus.Histogram
	WorkerPoolInflight  *prometheus.GaugeVec
}

// New constructs a Metrics with a fresh registry and registers every
// collector on it.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		VsidsToProcessTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acvp_vsids_to_process_total",
			Help: "Total vsIDs the orchestrator has decided to process",
		}),
		VsidsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acvp_vsids_processed_total",
			Help: "Total vsIDs for which a verdict has been recorded",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acvp_http_requests_total",
			Help: "Total HTTP requests issued against the ACVP server",
		}, []string{"method", "status"}),
		RetrySleepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "acvp_retry_sleep_seconds",
			Help:    "Distribution of sleep durations honored by the retry engine",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		WorkerPoolInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acvp_worker_pool_inflight",
			Help: "In-flight tasks per worker group (a or b)",
		}, []string{"group"}),
	}

	m.registry.MustRegister(
		m.VsidsToProcessTotal,
		m.VsidsProcessedTotal,
		m.HTTPRequestsTotal,
		m.RetrySleepSeconds,
		m.WorkerPoolInflight,
	)
	return m
}

// Handler returns the promhttp handler serving this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ServeBackground starts a dedicated HTTP server for /metrics on addr in a
// background goroutine, matching the opt-in behavior of the rate-limiter
// demo's churn exporter: callers that already expose Prometheus elsewhere
// should leave addr empty and mount Handler themselves instead.
func (m *Metrics) ServeBackground(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		_ = srv.ListenAndServe()
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// RecordHTTP reports one completed HTTP call for the method/status label
// pair.
func (m *Metrics) RecordHTTP(method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(method, status).Inc()
}

// Group names used with WorkerPoolInflight, matching the two worker groups
// the scheduling model requires.
const (
	GroupA = "a"
	GroupB = "b"
)
