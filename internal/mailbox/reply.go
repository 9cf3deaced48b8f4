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

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/sunrise-clinic/inbox/internal/models"
)

// DefaultSubject is stored when a reply arrives without a subject.
const DefaultSubject = "No Subject"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// IsValidAddress reports whether s looks like an email address.
func IsValidAddress(s string) bool {
	return s != "" && emailPattern.MatchString(s)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("clinic_email", func(fl validator.FieldLevel) bool {
		return IsValidAddress(fl.Field().String())
	})
	return v
}

// CreateReply validates the draft, threads it under parentID and appends it
// to the outbox. The outbox assigns the id.
func (s *Service) CreateReply(ctx context.Context, draft models.ReplyDraft, parentID string) (models.CreateResult, error) {
	if err := s.validate.Struct(draft); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return models.CreateResult{}, fmt.Errorf("%w: field %s failed %q",
				ErrInvalidInput, verrs[0].Field(), verrs[0].Tag())
		}
		return models.CreateResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	subject := DefaultSubject
	if draft.Subject != nil {
		subject = *draft.Subject
	}

	stored, err := s.outbox.AppendReply(ctx, models.Reply{
		To:      draft.To,
		Subject: subject,
		Body:    draft.Body,
		Parent:  parentID,
	})
	if err != nil {
		return models.CreateResult{}, fmt.Errorf("append reply: %w", err)
	}

	slog.Info("created reply", "reply_id", stored.ID, "parent", parentID)

	if s.notifier != nil {
		if err := s.notifier.NotifyReplyCreated(ctx, stored); err != nil {
			// The reply is already persisted; a lost event must not undo it.
			slog.Warn("reply event publish failed",
				"reply_id", stored.ID,
				"error", err,
			)
		}
	}

	return models.CreateResult{Success: true, ID: stored.ID}, nil
}
