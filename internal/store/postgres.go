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
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sunrise-clinic/inbox/internal/models"
)

// Postgres serves both the inbox and the outbox from PostgreSQL. Reply ids
// come from a BIGSERIAL, so concurrent appends never collide.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store backed by the given pool.
// It ensures the inbound_emails and sent_replies tables exist on creation.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure mailbox schema: %w", err)
	}
	slog.Info("postgres mailbox store initialised")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inbound_emails (
			id           TEXT PRIMARY KEY,
			from_address TEXT NOT NULL,
			patient_name TEXT DEFAULT '',
			subject      TEXT DEFAULT '',
			body         TEXT NOT NULL,
			received_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS sent_replies (
			id         BIGSERIAL PRIMARY KEY,
			to_address TEXT NOT NULL,
			subject    TEXT NOT NULL,
			body       TEXT NOT NULL,
			parent     TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sent_parent ON sent_replies(parent);
	`)
	return err
}

// ListEmails returns every inbound email in arrival order.
func (s *Postgres) ListEmails(ctx context.Context) ([]models.Email, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_address, patient_name, subject, body
		FROM inbound_emails
		ORDER BY received_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []models.Email
	for rows.Next() {
		var e models.Email
		if err := rows.Scan(&e.ID, &e.From, &e.PatientName, &e.Subject, &e.Body); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// FindEmail retrieves a single inbound email. Returns nil, nil when absent.
func (s *Postgres) FindEmail(ctx context.Context, id string) (*models.Email, error) {
	var e models.Email
	err := s.pool.QueryRow(ctx, `
		SELECT id, from_address, patient_name, subject, body
		FROM inbound_emails
		WHERE id = $1
	`, id).Scan(&e.ID, &e.From, &e.PatientName, &e.Subject, &e.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListReplies returns every sent reply in insertion order.
func (s *Postgres) ListReplies(ctx context.Context) ([]models.Reply, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, to_address, subject, body, parent
		FROM sent_replies
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReplies(rows)
}

// AppendReply inserts the reply and returns it with its assigned id.
func (s *Postgres) AppendReply(ctx context.Context, r models.Reply) (models.Reply, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sent_replies (to_address, subject, body, parent)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, r.To, r.Subject, r.Body, r.Parent).Scan(&id)
	if err != nil {
		return models.Reply{}, fmt.Errorf("insert reply: %w", err)
	}
	r.ID = strconv.FormatInt(id, 10)
	return r, nil
}

// FindReply retrieves a single reply. Returns nil, nil when absent or when id
// is not numeric.
func (s *Postgres) FindReply(ctx context.Context, id string) (*models.Reply, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, to_address, subject, body, parent
		FROM sent_replies
		WHERE id = $1
	`, n)
	return scanReply(row)
}

// scanReply scans a single row into a Reply.
func scanReply(row pgx.Row) (*models.Reply, error) {
	var (
		r  models.Reply
		id int64
	)
	err := row.Scan(&id, &r.To, &r.Subject, &r.Body, &r.Parent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ID = strconv.FormatInt(id, 10)
	return &r, nil
}

// collectReplies scans multiple rows into a slice of Replies.
func collectReplies(rows pgx.Rows) ([]models.Reply, error) {
	replies := []models.Reply{}
	for rows.Next() {
		var (
			r  models.Reply
			id int64
		)
		if err := rows.Scan(&id, &r.To, &r.Subject, &r.Body, &r.Parent); err != nil {
			return nil, err
		}
		r.ID = strconv.FormatInt(id, 10)
		replies = append(replies, r)
	}
	return replies, rows.Err()
}

// ImportEmail inserts an inbound email under its existing id. It reports
// false when an email with that id is already stored.
func (s *Postgres) ImportEmail(ctx context.Context, e models.Email) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO inbound_emails (id, from_address, patient_name, subject, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.From, e.PatientName, e.Subject, e.Body)
	if err != nil {
		return false, fmt.Errorf("insert email %s: %w", e.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}
