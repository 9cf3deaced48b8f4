// Copyright (c) 2026 John Earle
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

// Package dedup remembers Idempotency-Key values of reply submissions in
// Redis, so a client that retries a send after a timeout does not create the
// same reply twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a submitted key is remembered.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces idempotency keys in Redis.
	keyPrefix = "inbox:idem:"
)

// Filter tracks which idempotency keys have been claimed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a filter backed by Redis. A non-positive ttl selects
// DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{rdb: rdb, ttl: ttl}
}

// Claim returns true the first time key is seen for the given scope, marking
// it atomically (SET NX). Later calls within the TTL return false.
func (f *Filter) Claim(ctx context.Context, scope, key string) (bool, error) {
	k := fmt.Sprintf("%s%s:%s", keyPrefix, scope, key)

	set, err := f.rdb.SetNX(ctx, k, time.Now().Unix(), f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency SETNX: %w", err)
	}
	return set, nil
}

// Release forgets a claimed key so the request can be retried. Used when
// the guarded operation failed.
func (f *Filter) Release(ctx context.Context, scope, key string) error {
	k := fmt.Sprintf("%s%s:%s", keyPrefix, scope, key)
	if err := f.rdb.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("idempotency DEL: %w", err)
	}
	return nil
}
