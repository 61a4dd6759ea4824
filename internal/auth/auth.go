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

// Package auth holds the per-testID JWT lifecycle: load from the datastore,
// refresh by re-login, expiry test, and the reader/writer lock that keeps a
// refresh from racing an in-flight request still reading the old token.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"acvpproxy/internal/acvperr"
)

// Login performs the network login dance for a testID and returns the fresh
// JWT. It is supplied by the caller (internal/network) so this package never
// imports the network layer directly.
type Login func(ctx context.Context) (jwt string, err error)

// Persist is invoked with every freshly acquired JWT so the caller can write
// it to the datastore. Set via SetPersist; nil means no persistence.
type Persist func(jwt string, generatedAt time.Time)

// Context holds at most one active JWT for one testID. The zero value is
// not usable; construct with Init.
type Context struct {
	mu sync.RWMutex

	jwt         string
	generatedAt time.Time
	ttl         time.Duration
	login       Login
	persist     Persist
}

// Init allocates the lock and marks the token empty. ttl governs local
// expiry decisions; login is invoked whenever the current token is empty or
// expired.
func Init(ttl time.Duration, login Login) *Context {
	return &Context{ttl: ttl, login: login}
}

// SetPersist installs the callback Login uses to write a freshly acquired
// token to the datastore. Must be called before the first Login/SendUnderRead
// if persistence is desired.
func (c *Context) SetPersist(persist Persist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persist = persist
}

// Seed installs a token loaded from the datastore (jwt, generatedAt) without
// going through the writer lock's login path; used once at testID startup
// when a persisted token already exists.
func (c *Context) Seed(jwt string, generatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jwt = jwt
	c.generatedAt = generatedAt
}

// expiredLocked reports whether the held token is empty or past its TTL. c.mu
// must be held (read or write) by the caller.
func (c *Context) expiredLocked() bool {
	if c.jwt == "" {
		return true
	}
	if c.ttl <= 0 {
		return false
	}
	return time.Since(c.generatedAt) >= c.ttl
}

// Login is the writer operation: it unconditionally performs the network
// login dance, installs the returned JWT, records its generation time as
// now, and writes the fresh token to the datastore via the installed
// Persist callback (if any), per spec.md §4.4. Callers that only want a
// refresh-if-needed should use SendUnderRead.
func (c *Context) Login(ctx context.Context) error {
	jwt, err := c.login(ctx)
	if err != nil {
		return fmt.Errorf("auth: login: %w", acvperr.ErrAuthFailed)
	}

	c.mu.Lock()
	c.jwt = jwt
	c.generatedAt = time.Now()
	generatedAt := c.generatedAt
	persist := c.persist
	c.mu.Unlock()

	if persist != nil {
		persist(jwt, generatedAt)
	}
	return nil
}

// SendUnderRead takes the reader lock and invokes op with the current JWT.
// If the held token is empty or expired, it first performs a writer-locked
// login so op never observes a stale or missing token. op is expected to
// issue exactly one HTTP call.
func (c *Context) SendUnderRead(ctx context.Context, op func(ctx context.Context, jwt string) error) error {
	c.mu.RLock()
	expired := c.expiredLocked()
	c.mu.RUnlock()

	if expired {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return op(ctx, c.jwt)
}

// Flush returns the currently held token and its generation time, for the
// signal/cancellation stack to persist on interrupt.
func (c *Context) Flush() (jwt string, generatedAt time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwt, c.generatedAt
}
