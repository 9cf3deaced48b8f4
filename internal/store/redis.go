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

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sunrise-clinic/inbox/internal/models"
)

const (
	// redisKeyPrefix namespaces outbox keys in Redis.
	redisKeyPrefix = "inbox:sent"

	seqKey   = redisKeyPrefix + ":seq"
	listKey  = redisKeyPrefix + ":list"
	indexKey = redisKeyPrefix + ":byid"
)

// RedisOutbox keeps sent replies in Redis. Ids come from INCR on a counter
// key, so concurrent appends never collide. The list key preserves insertion
// order and a hash indexes replies by id.
type RedisOutbox struct {
	rdb *redis.Client
}

// NewRedisOutbox creates an outbox backed by Redis.
func NewRedisOutbox(rdb *redis.Client) *RedisOutbox {
	return &RedisOutbox{rdb: rdb}
}

// ListReplies returns every reply in insertion order.
func (o *RedisOutbox) ListReplies(ctx context.Context) ([]models.Reply, error) {
	raw, err := o.rdb.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE: %w", err)
	}

	replies := make([]models.Reply, 0, len(raw))
	for _, item := range raw {
		var r models.Reply
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		replies = append(replies, r)
	}
	return replies, nil
}

// AppendReply reserves the next id and stores the reply in one transaction.
func (o *RedisOutbox) AppendReply(ctx context.Context, r models.Reply) (models.Reply, error) {
	n, err := o.rdb.Incr(ctx, seqKey).Result()
	if err != nil {
		return models.Reply{}, fmt.Errorf("redis INCR: %w", err)
	}
	r.ID = strconv.FormatInt(n, 10)

	data, err := json.Marshal(r)
	if err != nil {
		return models.Reply{}, fmt.Errorf("marshal reply: %w", err)
	}

	// MULTI/EXEC so the list and the index never disagree.
	_, err = o.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, listKey, data)
		pipe.HSet(ctx, indexKey, r.ID, data)
		return nil
	})
	if err != nil {
		return models.Reply{}, fmt.Errorf("redis store reply: %w", err)
	}
	return r, nil
}

// FindReply looks a reply up by id. Returns nil, nil when absent.
func (o *RedisOutbox) FindReply(ctx context.Context, id string) (*models.Reply, error) {
	data, err := o.rdb.HGet(ctx, indexKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET: %w", err)
	}

	var r models.Reply
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode reply %s: %w", id, err)
	}
	return &r, nil
}
