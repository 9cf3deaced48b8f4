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

package dedup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestClient connects to TEST_REDIS_URL or skips the test.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestNewFilter_DefaultTTL(t *testing.T) {
	if f := NewFilter(nil, 0); f.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", f.ttl, DefaultTTL)
	}
	if f := NewFilter(nil, time.Minute); f.ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", f.ttl)
	}
}

func TestFilter_ClaimAndRelease(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	f := NewFilter(rdb, time.Minute)
	key := uuid.NewString()

	first, err := f.Claim(ctx, "1", key)
	if err != nil || !first {
		t.Fatalf("first Claim = %v, %v; want true", first, err)
	}
	second, err := f.Claim(ctx, "1", key)
	if err != nil || second {
		t.Fatalf("second Claim = %v, %v; want false", second, err)
	}

	// Scopes are independent.
	other, err := f.Claim(ctx, "2", key)
	if err != nil || !other {
		t.Fatalf("Claim in other scope = %v, %v; want true", other, err)
	}

	if err := f.Release(ctx, "1", key); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := f.Claim(ctx, "1", key)
	if err != nil || !again {
		t.Fatalf("Claim after release = %v, %v; want true", again, err)
	}

	ttl, err := rdb.TTL(ctx, keyPrefix+"1:"+key).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, %v; want within 1m", ttl, err)
	}

	rdb.Del(ctx, keyPrefix+"1:"+key, keyPrefix+"2:"+key)
}
