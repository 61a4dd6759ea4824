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

package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acvpproxy/internal/acvperr"
)

func TestSendUnderReadLogsInWhenTokenEmpty(t *testing.T) {
	var calls atomic.Int64
	c := Init(time.Hour, func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "jwt-1", nil
	})

	var seen string
	err := c.SendUnderRead(context.Background(), func(ctx context.Context, jwt string) error {
		seen = jwt
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", seen)
	assert.Equal(t, int64(1), calls.Load())
}

func TestSendUnderReadReusesUnexpiredToken(t *testing.T) {
	var calls atomic.Int64
	c := Init(time.Hour, func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "jwt-1", nil
	})

	for i := 0; i < 3; i++ {
		err := c.SendUnderRead(context.Background(), func(ctx context.Context, jwt string) error {
			assert.Equal(t, "jwt-1", jwt)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestSendUnderReadRefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int64
	c := Init(time.Millisecond, func(ctx context.Context) (string, error) {
		n := calls.Add(1)
		return "jwt-" + string(rune('0'+n)), nil
	})

	require.NoError(t, c.SendUnderRead(context.Background(), func(context.Context, string) error { return nil }))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.SendUnderRead(context.Background(), func(context.Context, string) error { return nil }))

	assert.Equal(t, int64(2), calls.Load())
}

func TestSeedInstallsTokenWithoutLogin(t *testing.T) {
	var calls atomic.Int64
	c := Init(time.Hour, func(context.Context) (string, error) {
		calls.Add(1)
		return "should-not-be-used", nil
	})
	then := time.Now().Add(-time.Minute)
	c.Seed("persisted-jwt", then)

	jwt, generatedAt := c.Flush()
	assert.Equal(t, "persisted-jwt", jwt)
	assert.Equal(t, then, generatedAt)
	assert.Equal(t, int64(0), calls.Load())
}

func TestLoginErrorWrapsAuthFailed(t *testing.T) {
	c := Init(time.Hour, func(context.Context) (string, error) {
		return "", assert.AnError
	})
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, acvperr.ErrAuthFailed)
}
