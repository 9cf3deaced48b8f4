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

// Package backfill copies mailbox records between stores. It seeds a
// PostgreSQL inbox from an emails.json document and moves sent replies off
// the JSON document into a database-backed outbox.
package backfill

import (
	"context"
	"log/slog"
	"time"

	"github.com/sunrise-clinic/inbox/internal/models"
)

// EmailSource lists inbound emails to copy.
type EmailSource interface {
	ListEmails(ctx context.Context) ([]models.Email, error)
}

// EmailSink stores inbound emails under their existing ids.
type EmailSink interface {
	ImportEmail(ctx context.Context, e models.Email) (bool, error)
}

// ReplySource lists sent replies to copy.
type ReplySource interface {
	ListReplies(ctx context.Context) ([]models.Reply, error)
}

// ReplySink appends replies. It assigns new ids.
type ReplySink interface {
	AppendReply(ctx context.Context, r models.Reply) (models.Reply, error)
}

// Claimer remembers which source replies were already copied, so a re-run
// does not append them twice.
type Claimer interface {
	Claim(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

// claimScope namespaces backfill keys apart from client idempotency keys.
const claimScope = "backfill"

// Result summarises a completed backfill run.
type Result struct {
	EmailsImported  int
	EmailsSkipped   int
	RepliesImported int
	RepliesSkipped  int
	Errors          int
	Elapsed         time.Duration
}

// RunnerConfig holds the stores to copy between. Either pair may be left
// nil to skip that half of the run.
type RunnerConfig struct {
	Emails    EmailSource
	EmailSink EmailSink
	Replies   ReplySource
	ReplySink ReplySink
	Claimer   Claimer
}

// Runner performs a backfill.
type Runner struct {
	emails    EmailSource
	emailSink EmailSink
	replies   ReplySource
	replySink ReplySink
	claimer   Claimer
}

// NewRunner creates a backfill runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		emails:    cfg.Emails,
		emailSink: cfg.EmailSink,
		replies:   cfg.Replies,
		replySink: cfg.ReplySink,
		claimer:   cfg.Claimer,
	}
}

// Run copies emails first, then replies, so every copied reply's parent is
// already present. A failing record is counted and skipped; listing a source
// or a cancelled context aborts the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if r.emails != nil && r.emailSink != nil {
		if err := r.copyEmails(ctx, result); err != nil {
			return result, err
		}
	}
	if r.replies != nil && r.replySink != nil {
		if err := r.copyReplies(ctx, result); err != nil {
			return result, err
		}
	}

	result.Elapsed = time.Since(start)

	slog.Info("backfill complete",
		"emails_imported", result.EmailsImported,
		"emails_skipped", result.EmailsSkipped,
		"replies_imported", result.RepliesImported,
		"replies_skipped", result.RepliesSkipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (r *Runner) copyEmails(ctx context.Context, result *Result) error {
	emails, err := r.emails.ListEmails(ctx)
	if err != nil {
		return err
	}
	slog.Info("backfilling inbound emails", "count", len(emails))

	for _, e := range emails {
		if err := ctx.Err(); err != nil {
			return err
		}
		inserted, err := r.emailSink.ImportEmail(ctx, e)
		if err != nil {
			slog.Warn("backfill: import email failed", "email_id", e.ID, "error", err)
			result.Errors++
			continue
		}
		if !inserted {
			result.EmailsSkipped++
			continue
		}
		result.EmailsImported++
	}
	return nil
}

func (r *Runner) copyReplies(ctx context.Context, result *Result) error {
	replies, err := r.replies.ListReplies(ctx)
	if err != nil {
		return err
	}
	slog.Info("backfilling sent replies", "count", len(replies))

	for _, reply := range replies {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed := false
		if r.claimer != nil {
			isNew, err := r.claimer.Claim(ctx, claimScope, reply.ID)
			switch {
			case err != nil:
				slog.Warn("backfill: claim check failed", "error", err)
			case !isNew:
				result.RepliesSkipped++
				continue
			default:
				claimed = true
			}
		}

		sourceID := reply.ID
		stored, err := r.replySink.AppendReply(ctx, reply)
		if err != nil {
			slog.Warn("backfill: append reply failed", "reply_id", sourceID, "error", err)
			result.Errors++
			if claimed {
				if rerr := r.claimer.Release(ctx, claimScope, sourceID); rerr != nil {
					slog.Warn("backfill: release claim failed", "reply_id", sourceID, "error", rerr)
				}
			}
			continue
		}
		slog.Debug("reply copied", "source_id", sourceID, "new_id", stored.ID, "parent", stored.Parent)
		result.RepliesImported++
	}
	return nil
}
