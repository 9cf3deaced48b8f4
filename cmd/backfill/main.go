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

// Sunrise Clinic Inbox: Backfill Command
//
// Standalone CLI tool that copies the JSON mailbox documents into the
// database backends. Intended for seeding new deployments and for moving
// off the file outbox.
//
// Usage:
//
//	go run ./cmd/backfill/ [--emails emails.json] [--sent sent.json] [--replies]
//
// Emails go to PostgreSQL (DATABASE_URL). With --replies, sent replies go
// to the configured outbox backend and get new ids; their parent links are
// kept. Copied replies are remembered in Redis when REDIS_URL is set, so a
// re-run does not append them twice.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sunrise-clinic/inbox/internal/backfill"
	"github.com/sunrise-clinic/inbox/internal/config"
	"github.com/sunrise-clinic/inbox/internal/dedup"
	"github.com/sunrise-clinic/inbox/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// --- CLI Flags ---
	emailsFlag := flag.String("emails", cfg.EmailsPath, "Inbound emails document to import")
	sentFlag := flag.String("sent", cfg.SentPath, "Sent replies document to import")
	repliesFlag := flag.Bool("replies", false, "Also copy sent replies into the configured outbox")
	flag.Parse()

	if cfg.DatabaseURL == "" {
		fmt.Fprintf(os.Stderr, "Error: DATABASE_URL is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	pg, err := store.NewPostgres(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise postgres store", "error", err)
		os.Exit(1)
	}

	runnerCfg := backfill.RunnerConfig{
		Emails:    store.NewFileInbox(*emailsFlag),
		EmailSink: pg,
	}

	// --- Connect to Redis ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		runnerCfg.Claimer = dedup.NewFilter(rdb, 0)
	}

	if *repliesFlag {
		runnerCfg.Replies = store.NewFileOutbox(*sentFlag)
		switch cfg.OutboxBackend {
		case config.BackendPostgres:
			runnerCfg.ReplySink = pg
		case config.BackendRedis:
			runnerCfg.ReplySink = store.NewRedisOutbox(rdb)
		default:
			slog.Error("--replies needs a postgres or redis outbox backend", "outbox_backend", cfg.OutboxBackend)
			os.Exit(1)
		}
	}

	slog.Info("starting backfill",
		"emails", *emailsFlag,
		"replies", *repliesFlag,
		"outbox_backend", cfg.OutboxBackend,
	)

	// --- Run Backfill ---
	result, err := backfill.NewRunner(runnerCfg).Run(ctx)
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	if result.Errors > 0 {
		slog.Warn("backfill finished with errors", "errors", result.Errors)
		os.Exit(2)
	}
}
