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

// Package network is the HTTP layer between the orchestrator and the ACVP
// server: GET/POST/PUT with the JWT injected, a client-side rate limiter,
// and a circuit breaker that opens on sustained 5xx/transport failure runs.
package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"acvpproxy/internal/acvperr"
)

// Client is the capability interface the retry engine and orchestrator
// consume for talking to the ACVP server. jwt is injected as a bearer token
// by the implementation; callers never assemble the Authorization header
// themselves.
type Client interface {
	Get(ctx context.Context, url, jwt string) ([]byte, error)
	Post(ctx context.Context, url, jwt string, body []byte) ([]byte, error)
	Put(ctx context.Context, url, jwt string, body []byte) ([]byte, error)
}

// Config configures the real Client.
type Config struct {
	// RequestTimeout bounds one HTTP call's connect+read time.
	RequestTimeout time.Duration
	// RateLimit caps outbound requests per second; Burst allows a short
	// spike above that steady rate. Zero RateLimit disables limiting.
	RateLimit rate.Limit
	Burst     int
	// BreakerName is cosmetic, surfaced in gobreaker's state-change events.
	BreakerName string
}

// DefaultConfig matches the teacher's production defaults: a conservative
// steady rate with headroom for bursts, and a 30s per-call timeout.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		RateLimit:      10,
		Burst:          20,
		BreakerName:    "acvp-server",
	}
}

type client struct {
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// New builds the production Client.
func New(cfg Config) Client {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, cfg.Burst)
	}

	st := gobreaker.Settings{
		Name:    cfg.BreakerName,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx is the server answering normally about one request, not a
		// sign it is failing, so it does not count toward tripping.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, acvperr.ErrHTTP4xx)
		},
	}

	return &client{
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (c *client) Get(ctx context.Context, url, jwt string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, jwt, nil)
}

func (c *client) Post(ctx context.Context, url, jwt string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, jwt, body)
}

func (c *client) Put(ctx context.Context, url, jwt string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPut, url, jwt, body)
}

func (c *client) do(ctx context.Context, method, url, jwt string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("network: rate limiter: %w", acvperr.ErrCancelled)
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doOnce(ctx, method, url, jwt, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("network: circuit open for %s: %w", url, acvperr.ErrHTTPTransport)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *client) doOnce(ctx context.Context, method, url, jwt string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("network: build request: %w", acvperr.ErrInvalidInput)
	}
	if jwt != "" {
		req.Header.Set("Authorization", "Bearer "+jwt)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network: %s %s: %w", method, url, acvperr.ErrHTTPTransport)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("network: read body %s %s: %w", method, url, acvperr.ErrIO)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("network: %s %s: status %d: %w", method, url, resp.StatusCode, acvperr.ErrHTTP5xx)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("network: %s %s: status %d: %w", method, url, resp.StatusCode, acvperr.ErrHTTP4xx)
	}
	return respBody, nil
}
