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

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sunrise-clinic/inbox/internal/mailbox"
	"github.com/sunrise-clinic/inbox/internal/models"
)

// IdempotencyHeader lets clients retry a reply submission safely.
const IdempotencyHeader = "Idempotency-Key"

// Handler serves the mailbox endpoints.
type Handler struct {
	mailbox Mailbox
	idem    IdempotencyFilter
}

// NewHandler creates the endpoint handlers. idem may be nil.
func NewHandler(mailbox Mailbox, idem IdempotencyFilter) *Handler {
	return &Handler{mailbox: mailbox, idem: idem}
}

// DraftResponse wraps a draft the way the frontend reads it: data.reply.
type DraftResponse struct {
	Data models.Draft `json:"data"`
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// fail maps a service error to 400 or 500. Internal details are logged only.
func fail(c echo.Context, err error, badRequest, internal string) error {
	if errors.Is(err, mailbox.ErrInvalidInput) {
		slog.Warn(badRequest, "error", err, "path", c.Path())
		return errorJSON(c, http.StatusBadRequest, badRequest)
	}
	slog.Error(internal, "error", err, "path", c.Path())
	return errorJSON(c, http.StatusInternalServerError, internal)
}

// ListEmails handles GET /emails.
func (h *Handler) ListEmails(c echo.Context) error {
	emails, err := h.mailbox.ListEmails(c.Request().Context())
	if err != nil {
		return fail(c, err, "Invalid request", "Failed to retrieve email list")
	}
	return c.JSON(http.StatusOK, emails)
}

// GetEmail handles GET /emails/:id.
func (h *Handler) GetEmail(c echo.Context) error {
	email, err := h.mailbox.GetEmail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err, "Invalid email ID", "Failed to retrieve email")
	}
	if email == nil {
		return errorJSON(c, http.StatusNotFound, "Email not found")
	}
	return c.JSON(http.StatusOK, email)
}

// CreateReply handles POST /emails/:id/reply.
//
// With an idempotency filter configured, a repeated Idempotency-Key for the
// same parent is rejected with 409. A failed create releases the key.
func (h *Handler) CreateReply(c echo.Context) error {
	ctx := c.Request().Context()
	parentID := c.Param("id")

	var draft models.ReplyDraft
	if err := c.Bind(&draft); err != nil {
		slog.Warn("failed to bind reply", "error", err)
		return errorJSON(c, http.StatusBadRequest, "Invalid email data")
	}

	key := c.Request().Header.Get(IdempotencyHeader)
	claimed := false
	if h.idem != nil && key != "" {
		isNew, err := h.idem.Claim(ctx, parentID, key)
		switch {
		case err != nil:
			slog.Warn("idempotency check failed, proceeding", "error", err)
		case !isNew:
			slog.Info("duplicate reply submission", "parent", parentID, "key", key)
			return errorJSON(c, http.StatusConflict, "Duplicate reply submission")
		default:
			claimed = true
		}
	}

	res, err := h.mailbox.CreateReply(ctx, draft, parentID)
	if err != nil {
		if claimed {
			if rerr := h.idem.Release(ctx, parentID, key); rerr != nil {
				slog.Warn("failed to release idempotency key", "error", rerr)
			}
		}
		return fail(c, err, "Invalid email data", "Failed to create email")
	}
	return c.JSON(http.StatusOK, res)
}

// GenerateReply handles POST /generate-reply.
func (h *Handler) GenerateReply(c echo.Context) error {
	var req models.DraftRequest
	if err := c.Bind(&req); err != nil {
		slog.Warn("failed to bind draft request", "error", err)
		return errorJSON(c, http.StatusBadRequest, "Invalid AI email drafting request")
	}

	draft, err := h.mailbox.DraftReply(c.Request().Context(), req)
	if err != nil {
		return fail(c, err, "Invalid AI email drafting request", "Failed to draft email")
	}
	return c.JSON(http.StatusOK, DraftResponse{Data: draft})
}

// ListSent handles GET /sent.
func (h *Handler) ListSent(c echo.Context) error {
	sent, err := h.mailbox.ListSent(c.Request().Context())
	if err != nil {
		return fail(c, err, "Invalid request", "Failed to retrieve sent list")
	}
	return c.JSON(http.StatusOK, sent)
}

// GetSent handles GET /sent/:id.
func (h *Handler) GetSent(c echo.Context) error {
	reply, err := h.mailbox.GetSent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err, "Invalid reply ID", "Failed to retrieve reply")
	}
	if reply == nil {
		return errorJSON(c, http.StatusNotFound, "Reply not found")
	}
	return c.JSON(http.StatusOK, reply)
}
