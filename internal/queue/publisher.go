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

// Package queue publishes reply events to a Redis list. Downstream
// consumers (audit, delivery) pop them with BRPOP; this service never
// delivers mail itself.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sunrise-clinic/inbox/internal/models"
)

// EventReplyCreated is the type of the event published after an append.
const EventReplyCreated = "reply.created"

// Publisher sends reply events to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

// NotifyReplyCreated wraps the reply in a ReplyEvent and pushes it onto the
// queue.
func (p *Publisher) NotifyReplyCreated(ctx context.Context, reply models.Reply) error {
	event := models.ReplyEvent{
		EventID:   uuid.New().String(),
		Type:      EventReplyCreated,
		Reply:     reply,
		CreatedAt: p.now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal reply event: %w", err)
	}

	// LPUSH + consumer BRPOP gives FIFO.
	if err := p.rdb.LPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published reply event",
		"event_id", event.EventID,
		"reply_id", reply.ID,
		"parent", reply.Parent,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
