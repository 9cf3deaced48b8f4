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

// Package api exposes the mailbox as a REST API for the clinic frontend.
//
// Domain errors map to status codes here and nowhere else:
//   - mailbox.ErrInvalidInput → 400
//   - a nil lookup result     → 404
//   - a repeated Idempotency-Key on a reply → 409
//   - anything else           → 500 with an opaque message
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sunrise-clinic/inbox/internal/models"
)

// Mailbox is the service the API serves.
type Mailbox interface {
	ListEmails(ctx context.Context) ([]models.EmailSummary, error)
	GetEmail(ctx context.Context, id string) (*models.EmailDetail, error)
	CreateReply(ctx context.Context, draft models.ReplyDraft, parentID string) (models.CreateResult, error)
	DraftReply(ctx context.Context, req models.DraftRequest) (models.Draft, error)
	ListSent(ctx context.Context) ([]models.Reply, error)
	GetSent(ctx context.Context, id string) (*models.Reply, error)
}

// IdempotencyFilter guards reply creation against client retries.
type IdempotencyFilter interface {
	Claim(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options carries the optional collaborators of a Server.
type Options struct {
	// Idempotency is nil when Redis is not configured; the
	// Idempotency-Key header is then ignored.
	Idempotency IdempotencyFilter
	// Checks are run by /health, keyed by dependency name.
	Checks map[string]HealthCheck
	// AllowOrigins for CORS; empty allows any origin.
	AllowOrigins []string
}

// Server is the HTTP front of the mailbox.
type Server struct {
	echo    *echo.Echo
	handler *Handler
	checks  map[string]HealthCheck
}

// NewServer builds the echo instance, middleware and routes.
func NewServer(mailbox Mailbox, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			)
			return nil
		},
	}))
	cors := middleware.DefaultCORSConfig
	if len(opts.AllowOrigins) > 0 {
		cors.AllowOrigins = opts.AllowOrigins
	}
	e.Use(middleware.CORSWithConfig(cors))

	s := &Server{
		echo:    e,
		handler: NewHandler(mailbox, opts.Idempotency),
		checks:  opts.Checks,
	}

	// Routes
	e.GET("/health", s.healthCheck)
	e.GET("/emails", s.handler.ListEmails)
	e.GET("/emails/:id", s.handler.GetEmail)
	e.POST("/emails/:id/reply", s.handler.CreateReply)
	e.POST("/generate-reply", s.handler.GenerateReply)
	e.GET("/sent", s.handler.ListSent)
	e.GET("/sent/:id", s.handler.GetSent)

	return s
}

// ServeHTTP lets the server be mounted or exercised with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) healthCheck(c echo.Context) error {
	for name, check := range s.checks {
		if err := check(c.Request().Context()); err != nil {
			slog.Warn("health check failed", "dependency", name, "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": fmt.Sprintf("%s unhealthy", name),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "inbox",
	})
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	slog.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
