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

package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sunrise-clinic/inbox/internal/models"
)

func TestPublisher_NotifyReplyCreated(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	queueName := "test-reply-events-" + uuid.NewString()
	defer rdb.Del(ctx, queueName)

	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	p := NewPublisher(rdb, queueName)
	p.now = func() time.Time { return fixed }

	if err := p.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	first := models.Reply{ID: "1", To: "pat@example.com", Subject: "Re: Hi", Body: "x", Parent: "7"}
	second := models.Reply{ID: "2", To: "pat@example.com", Subject: "Re: Hi", Body: "y", Parent: "7"}
	if err := p.NotifyReplyCreated(ctx, first); err != nil {
		t.Fatalf("NotifyReplyCreated: %v", err)
	}
	if err := p.NotifyReplyCreated(ctx, second); err != nil {
		t.Fatalf("NotifyReplyCreated: %v", err)
	}

	// Consumers pop from the right: oldest first.
	for _, want := range []models.Reply{first, second} {
		data, err := rdb.RPop(ctx, queueName).Bytes()
		if err != nil {
			t.Fatalf("RPOP: %v", err)
		}
		var event models.ReplyEvent
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if event.Type != EventReplyCreated {
			t.Errorf("Type = %q, want %q", event.Type, EventReplyCreated)
		}
		if event.EventID == "" {
			t.Error("EventID is empty")
		}
		if !event.CreatedAt.Equal(fixed) {
			t.Errorf("CreatedAt = %v, want %v", event.CreatedAt, fixed)
		}
		if event.Reply != want {
			t.Errorf("Reply = %+v, want %+v", event.Reply, want)
		}
	}
}
