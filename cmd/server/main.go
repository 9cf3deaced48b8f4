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

// Sunrise Clinic Inbox service
//
// Entry point for the inbox REST API. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Opens the inbox and outbox stores (JSON files, PostgreSQL or Redis)
//  3. Connects to Redis for idempotency keys and reply events, when configured
//  4. Builds the Anthropic drafting client, when a model is configured
//  5. Serves the mailbox API used by the clinic frontend
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sunrise-clinic/inbox/internal/ai"
	"github.com/sunrise-clinic/inbox/internal/api"
	"github.com/sunrise-clinic/inbox/internal/config"
	"github.com/sunrise-clinic/inbox/internal/dedup"
	"github.com/sunrise-clinic/inbox/internal/mailbox"
	"github.com/sunrise-clinic/inbox/internal/queue"
	"github.com/sunrise-clinic/inbox/internal/store"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting inbox service",
		"inbox_backend", cfg.InboxBackend,
		"outbox_backend", cfg.OutboxBackend,
		"ai_enabled", cfg.AIEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := make(map[string]api.HealthCheck)

	// --- Connect to PostgreSQL ---
	var pg *store.Postgres
	var pgPool *pgxpool.Pool
	if cfg.UsesPostgres() {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		pg, err = store.NewPostgres(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise postgres store", "error", err)
			os.Exit(1)
		}
		checks["postgres"] = pgPool.Ping
	}

	// --- Connect to Redis ---
	var rdb *redis.Client
	var notifier mailbox.Notifier
	var idem api.IdempotencyFilter
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()

		publisher := queue.NewPublisher(rdb, cfg.EventsQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis", "events_queue", cfg.EventsQueue)

		notifier = publisher
		idem = dedup.NewFilter(rdb, cfg.IdempotencyTTL)
		checks["redis"] = publisher.Ping
	}

	// --- Stores ---
	var inbox mailbox.Inbox
	switch cfg.InboxBackend {
	case config.BackendPostgres:
		inbox = pg
	default:
		inbox = store.NewFileInbox(cfg.EmailsPath)
	}

	var outbox mailbox.Outbox
	switch cfg.OutboxBackend {
	case config.BackendPostgres:
		outbox = pg
	case config.BackendRedis:
		outbox = store.NewRedisOutbox(rdb)
	default:
		outbox = store.NewFileOutbox(cfg.SentPath)
	}

	// --- Drafting client ---
	var completer mailbox.Completer
	if cfg.AIEnabled() {
		var oauth *ai.OAuthConfig
		if cfg.AIOAuth != nil {
			oauth = &ai.OAuthConfig{
				TokenURL:     cfg.AIOAuth.TokenURL,
				ClientID:     cfg.AIOAuth.ClientID,
				ClientSecret: cfg.AIOAuth.ClientSecret,
				Scopes:       cfg.AIOAuth.Scopes,
			}
		}
		client, err := ai.NewClient(ctx, ai.Config{
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
			BaseURL: cfg.AIBaseURL,
			Timeout: cfg.AITimeout,
			OAuth:   oauth,
		})
		if err != nil {
			slog.Error("failed to create ai client", "error", err)
			os.Exit(1)
		}
		completer = client
	} else {
		slog.Warn("no ai model configured, /generate-reply will fail")
	}

	bodyTemplate, notesTemplate, err := cfg.ReadPrompts()
	if err != nil {
		slog.Error("failed to read prompt templates", "error", err)
		os.Exit(1)
	}

	svc := mailbox.New(mailbox.Config{
		Inbox:     inbox,
		Outbox:    outbox,
		Completer: completer,
		Notifier:  notifier,
		Prompts: mailbox.Prompts{
			Body:  bodyTemplate,
			Notes: notesTemplate,
		},
		Identity: mailbox.Identity{
			NurseName:          cfg.NurseName,
			OfficeName:         cfg.OfficeName,
			ContactInformation: cfg.ContactInformation,
		},
	})

	server := api.NewServer(svc, api.Options{
		Idempotency: idem,
		Checks:      checks,
	})

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("inbox service stopped")
}
