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

// Package mailbox is the core of the inbox service. It lists and looks up
// inbound patient emails, threads sent replies under their parent email,
// validates and persists new replies, and drafts replies with a language
// model.
//
// Storage and the model are injected; the package never touches files,
// databases or the network itself.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/sunrise-clinic/inbox/internal/models"
)

var (
	// ErrInvalidInput marks caller mistakes: bad addresses, empty bodies,
	// missing ids, unusable draft requests. Detected before any write or
	// external call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedResponse means the language model answered without the
	// expected <response_email> block. It is an internal failure, not a
	// caller mistake.
	ErrMalformedResponse = errors.New("malformed completion response")
)

// Inbox is the read-only store of inbound emails.
type Inbox interface {
	// ListEmails returns every inbound email in storage order.
	ListEmails(ctx context.Context) ([]models.Email, error)
	// FindEmail returns nil, nil when no email has the id.
	FindEmail(ctx context.Context, id string) (*models.Email, error)
}

// Outbox is the append-only store of sent replies.
type Outbox interface {
	// ListReplies returns every reply in insertion order.
	ListReplies(ctx context.Context) ([]models.Reply, error)
	// AppendReply assigns the reply a numeric string id, persists it and
	// returns the stored record. A failed append persists nothing.
	AppendReply(ctx context.Context, r models.Reply) (models.Reply, error)
	// FindReply returns nil, nil when no reply has the id.
	FindReply(ctx context.Context, id string) (*models.Reply, error)
}

// Completer sends a single user prompt to a language model and returns the
// primary text of its answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Notifier is told about replies after they are persisted.
type Notifier interface {
	NotifyReplyCreated(ctx context.Context, reply models.Reply) error
}

// Config wires a Service. Inbox and Outbox are required; Completer is only
// needed by DraftReply and Notifier is optional.
type Config struct {
	Inbox     Inbox
	Outbox    Outbox
	Completer Completer
	Notifier  Notifier
	Prompts   Prompts
	Identity  Identity
}

// Service implements the mailbox operations.
type Service struct {
	inbox     Inbox
	outbox    Outbox
	completer Completer
	notifier  Notifier
	prompts   Prompts
	identity  Identity
	validate  *validator.Validate
}

// New creates a mailbox service. Empty prompts and identity fields fall back
// to the built-in defaults.
func New(cfg Config) *Service {
	return &Service{
		inbox:     cfg.Inbox,
		outbox:    cfg.Outbox,
		completer: cfg.Completer,
		notifier:  cfg.Notifier,
		prompts:   cfg.Prompts.withDefaults(),
		identity:  cfg.Identity.withDefaults(),
		validate:  newValidator(),
	}
}

// ListEmails returns the index view of every inbound email. Bodies are never
// included.
func (s *Service) ListEmails(ctx context.Context) ([]models.EmailSummary, error) {
	emails, err := s.inbox.ListEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list inbound emails: %w", err)
	}

	slog.Debug("loaded inbound emails", "count", len(emails))

	summaries := make([]models.EmailSummary, 0, len(emails))
	for _, e := range emails {
		summaries = append(summaries, e.Summary())
	}
	return summaries, nil
}

// GetEmail returns the email with its replies, or nil, nil when no email
// has the id.
func (s *Service) GetEmail(ctx context.Context, id string) (*models.EmailDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: no email id provided", ErrInvalidInput)
	}

	email, err := s.inbox.FindEmail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find email %s: %w", id, err)
	}
	if email == nil {
		slog.Warn("email not found", "email_id", id)
		return nil, nil
	}

	replies, err := s.ListRepliesFor(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.EmailDetail{Email: *email, Replies: replies}, nil
}

// ListRepliesFor returns the thread of an email: every reply whose parent is
// parentID, in insertion order. The result is never nil.
func (s *Service) ListRepliesFor(ctx context.Context, parentID string) ([]models.Reply, error) {
	sent, err := s.outbox.ListReplies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sent replies: %w", err)
	}

	replies := make([]models.Reply, 0)
	for _, r := range sent {
		if r.Parent == parentID {
			replies = append(replies, r)
		}
	}

	slog.Debug("found replies", "email_id", parentID, "count", len(replies))
	return replies, nil
}

// ListSent returns every sent reply in insertion order.
func (s *Service) ListSent(ctx context.Context) ([]models.Reply, error) {
	sent, err := s.outbox.ListReplies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sent replies: %w", err)
	}
	if sent == nil {
		sent = []models.Reply{}
	}
	return sent, nil
}

// GetSent returns a single sent reply, or nil, nil when none has the id.
func (s *Service) GetSent(ctx context.Context, id string) (*models.Reply, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: no reply id provided", ErrInvalidInput)
	}

	reply, err := s.outbox.FindReply(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find reply %s: %w", id, err)
	}
	return reply, nil
}
