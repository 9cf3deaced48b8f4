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

// Package models defines the data structures shared across the inbox service.
package models

import (
	"encoding/json"
	"time"
)

// Email is an inbound patient message. Read-only to this service.
//
// The JSON field names MUST match the emails.json document and the
// frontend's EmailPart/Email interfaces.
type Email struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	PatientName string `json:"patient_name"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// Summary projects the email for index views, without the body.
func (e Email) Summary() EmailSummary {
	return EmailSummary{
		ID:          e.ID,
		From:        e.From,
		PatientName: e.PatientName,
		Subject:     e.Subject,
	}
}

// EmailSummary is the index view of an inbound email.
type EmailSummary struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	PatientName string `json:"patient_name"`
	Subject     string `json:"subject"`
}

// EmailDetail is an inbound email with its thread of sent replies.
type EmailDetail struct {
	Email
	Replies []Reply `json:"replies"`
}

// Reply is a sent message persisted under a parent inbound email.
type Reply struct {
	ID      string `json:"id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Parent  string `json:"parent"`
}

// ReplyDraft is the caller-supplied part of a reply. Subject is a pointer so
// an absent subject can be told apart from an empty one.
type ReplyDraft struct {
	To      string  `json:"to" validate:"required,clinic_email"`
	Subject *string `json:"subject"`
	Body    string  `json:"body" validate:"required"`
}

// CreateResult is returned after a reply has been persisted.
type CreateResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// DraftRequest asks for an AI-drafted reply to an email. Email is kept raw
// because callers may send anything; the mailbox decides whether it is a
// usable record.
type DraftRequest struct {
	Email             json.RawMessage `json:"email"`
	PractitionerNotes string          `json:"practitioner_notes"`
}

// Draft is an AI-generated candidate reply body, not yet persisted.
type Draft struct {
	Reply string `json:"reply"`
}

// ReplyEvent is published to the events queue after a reply is persisted.
type ReplyEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Reply     Reply     `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}
