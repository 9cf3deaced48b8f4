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
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sunrise-clinic/inbox/internal/models"
)

// These tests need live services and are skipped unless TEST_DATABASE_URL or
// TEST_REDIS_URL point at disposable instances. They drop the data they use.

func TestPostgres_RoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	s, err := NewPostgres(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE inbound_emails, sent_replies RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO inbound_emails (id, from_address, patient_name, subject, body)
		VALUES ('1', 'a@b.com', 'Pat', 'Test', 'Hello')
	`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	e, err := s.FindEmail(ctx, "1")
	if err != nil || e == nil || e.PatientName != "Pat" {
		t.Fatalf("FindEmail(1) = %+v, %v", e, err)
	}
	if missing, err := s.FindEmail(ctx, "2"); err != nil || missing != nil {
		t.Errorf("FindEmail(2) = %+v, %v; want nil, nil", missing, err)
	}

	r, err := s.AppendReply(ctx, models.Reply{To: "a@b.com", Subject: "s", Body: "b", Parent: "1"})
	if err != nil {
		t.Fatalf("AppendReply: %v", err)
	}
	if r.ID != "1" {
		t.Errorf("id = %q, want 1", r.ID)
	}

	replies, err := s.ListReplies(ctx)
	if err != nil || len(replies) != 1 {
		t.Fatalf("ListReplies = %v, %v", replies, err)
	}
	if got, err := s.FindReply(ctx, "not-a-number"); err != nil || got != nil {
		t.Errorf("FindReply(not-a-number) = %+v, %v; want nil, nil", got, err)
	}

	imported, err := s.ImportEmail(ctx, models.Email{ID: "2", From: "c@d.com", PatientName: "Dee", Subject: "Hi", Body: "x"})
	if err != nil || !imported {
		t.Fatalf("ImportEmail(2) = %v, %v; want true", imported, err)
	}
	again, err := s.ImportEmail(ctx, models.Email{ID: "2", From: "other@d.com", Body: "y"})
	if err != nil || again {
		t.Errorf("ImportEmail(2) again = %v, %v; want false", again, err)
	}
	if e, err := s.FindEmail(ctx, "2"); err != nil || e == nil || e.From != "c@d.com" {
		t.Errorf("FindEmail(2) = %+v, %v; want original record", e, err)
	}
}

func TestRedisOutbox_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	if err := rdb.Del(ctx, seqKey, listKey, indexKey).Err(); err != nil {
		t.Fatalf("reset keys: %v", err)
	}

	o := NewRedisOutbox(rdb)
	for _, want := range []string{"1", "2"} {
		r, err := o.AppendReply(ctx, models.Reply{To: "a@b.com", Subject: "s", Body: "b", Parent: "1"})
		if err != nil {
			t.Fatalf("AppendReply: %v", err)
		}
		if r.ID != want {
			t.Errorf("id = %q, want %q", r.ID, want)
		}
	}

	replies, err := o.ListReplies(ctx)
	if err != nil || len(replies) != 2 || replies[0].ID != "1" {
		t.Fatalf("ListReplies = %+v, %v", replies, err)
	}

	found, err := o.FindReply(ctx, "2")
	if err != nil || found == nil || found.ID != "2" {
		t.Errorf("FindReply(2) = %+v, %v", found, err)
	}
	if missing, err := o.FindReply(ctx, "99"); err != nil || missing != nil {
		t.Errorf("FindReply(99) = %+v, %v; want nil, nil", missing, err)
	}
}
