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
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sunrise-clinic/inbox/internal/models"
)

// DefaultPatientName replaces [patient_name] when the email has no patient.
const DefaultPatientName = "Patient"

//go:embed templates/prompt_body.txt
var defaultPromptBody string

//go:embed templates/prompt_notes.txt
var defaultPromptNotes string

var responsePattern = regexp.MustCompile(`(?s)<response_email>(.*?)</response_email>`)

// Prompts holds the drafting templates. Body must contain {{SUBJECT}},
// {{BODY}} and {{NOTES}}; Notes must contain {{PRACTITIONER_NOTES}}.
type Prompts struct {
	Body  string
	Notes string
}

// DefaultPrompts returns the templates compiled into the binary.
func DefaultPrompts() Prompts {
	return Prompts{Body: defaultPromptBody, Notes: defaultPromptNotes}
}

func (p Prompts) withDefaults() Prompts {
	if p.Body == "" {
		p.Body = defaultPromptBody
	}
	if p.Notes == "" {
		p.Notes = defaultPromptNotes
	}
	return p
}

// Identity is the clinic signature substituted into drafted replies.
type Identity struct {
	NurseName          string
	OfficeName         string
	ContactInformation string
}

// DefaultIdentity returns the clinic identity used when none is configured.
func DefaultIdentity() Identity {
	return Identity{
		NurseName:          "Nurse Ratchet, NP",
		OfficeName:         "Sunrise Medical Clinic",
		ContactInformation: "123-456-7890",
	}
}

func (id Identity) withDefaults() Identity {
	def := DefaultIdentity()
	if id.NurseName == "" {
		id.NurseName = def.NurseName
	}
	if id.OfficeName == "" {
		id.OfficeName = def.OfficeName
	}
	if id.ContactInformation == "" {
		id.ContactInformation = def.ContactInformation
	}
	return id
}

// draftEmail is the subset of an email record that drafting reads. Pointers
// distinguish absent fields from empty ones.
type draftEmail struct {
	Subject     *string `json:"subject"`
	Body        string  `json:"body"`
	PatientName *string `json:"patient_name"`
}

// DraftReply asks the language model for a reply to req.Email, steered by
// the optional practitioner notes.
func (s *Service) DraftReply(ctx context.Context, req models.DraftRequest) (models.Draft, error) {
	email, err := decodeDraftEmail(req.Email)
	if err != nil {
		return models.Draft{}, err
	}

	if s.completer == nil {
		return models.Draft{}, fmt.Errorf("no language model configured")
	}

	prompt := s.prompts.render(email, req.PractitionerNotes)

	slog.Debug("requesting reply draft",
		"prompt_len", len(prompt),
		"has_notes", req.PractitionerNotes != "",
	)

	completion, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return models.Draft{}, fmt.Errorf("complete draft prompt: %w", err)
	}

	reply, err := s.identity.formatReply(completion, email)
	if err != nil {
		return models.Draft{}, err
	}

	return models.Draft{Reply: reply}, nil
}

// decodeDraftEmail requires raw to be a JSON object with a non-empty string
// body.
func decodeDraftEmail(raw json.RawMessage) (draftEmail, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return draftEmail{}, fmt.Errorf("%w: email must be a record", ErrInvalidInput)
	}

	var email draftEmail
	if err := json.Unmarshal(trimmed, &email); err != nil {
		return draftEmail{}, fmt.Errorf("%w: email record: %v", ErrInvalidInput, err)
	}
	if email.Body == "" {
		return draftEmail{}, fmt.Errorf("%w: email body cannot be empty", ErrInvalidInput)
	}
	return email, nil
}

// render fills the body template. Notes are wrapped in the notes template
// only when non-empty.
func (p Prompts) render(email draftEmail, notes string) string {
	subject := DefaultSubject
	if email.Subject != nil {
		subject = *email.Subject
	}

	if notes != "" {
		notes = strings.ReplaceAll(p.Notes, "{{PRACTITIONER_NOTES}}", notes)
	}

	prompt := strings.ReplaceAll(p.Body, "{{SUBJECT}}", subject)
	prompt = strings.ReplaceAll(prompt, "{{BODY}}", email.Body)
	return strings.ReplaceAll(prompt, "{{NOTES}}", notes)
}

// formatReply extracts the <response_email> block and fills the signature
// placeholders.
func (id Identity) formatReply(completion string, email draftEmail) (string, error) {
	m := responsePattern.FindStringSubmatch(completion)
	if m == nil {
		return "", fmt.Errorf("%w: no <response_email> block", ErrMalformedResponse)
	}

	patient := DefaultPatientName
	if email.PatientName != nil {
		patient = *email.PatientName
	}

	r := strings.NewReplacer(
		"[patient_name]", patient,
		"[nurse_name]", id.NurseName,
		"[office_name]", id.OfficeName,
		"[contact_information]", id.ContactInformation,
	)
	return r.Replace(strings.TrimSpace(m[1])), nil
}
