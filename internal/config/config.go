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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const defaultConfigPath = "config.yaml"

// OAuthConfig holds client-credentials settings for an AI gateway.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config holds all configuration for the inbox service.
type Config struct {
	// Server
	Port     int
	LogLevel slog.Level

	// Storage
	InboxBackend  string
	OutboxBackend string
	EmailsPath    string
	SentPath      string
	DatabaseURL   string

	// Redis (optional unless a Redis backend is selected)
	RedisURL       string
	EventsQueue    string
	IdempotencyTTL time.Duration

	// AI
	AIModel   string
	AIAPIKey  string
	AIBaseURL string
	AITimeout time.Duration
	AIOAuth   *OAuthConfig

	// Prompt template overrides; empty means the built-in templates.
	PromptBodyPath  string
	PromptNotesPath string

	// Clinic identity substituted into drafts; empty means the defaults.
	NurseName          string
	OfficeName         string
	ContactInformation string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`
	Storage struct {
		Inbox       string `yaml:"inbox"`
		Outbox      string `yaml:"outbox"`
		EmailsPath  string `yaml:"emails_path"`
		SentPath    string `yaml:"sent_path"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"storage"`
	Redis struct {
		URL            string `yaml:"url"`
		EventsQueue    string `yaml:"events_queue"`
		IdempotencyTTL string `yaml:"idempotency_ttl"`
	} `yaml:"redis"`
	AI struct {
		Model   string `yaml:"model"`
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
		OAuth   struct {
			TokenURL     string   `yaml:"token_url"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth"`
	} `yaml:"ai"`
	Prompts struct {
		BodyPath  string `yaml:"body_path"`
		NotesPath string `yaml:"notes_path"`
	} `yaml:"prompts"`
	Clinic struct {
		NurseName          string `yaml:"nurse_name"`
		OfficeName         string `yaml:"office_name"`
		ContactInformation string `yaml:"contact_information"`
	} `yaml:"clinic"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. YAML values win over environment fallbacks.
//
// The file is optional at the default path; an explicit CONFIG_PATH must
// exist.
func Load() (*Config, error) {
	var raw rawConfig

	configPath, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit || configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Environment only.
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Port:     firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8000)),
		LogLevel: parseLevel(firstNonEmpty(raw.Server.LogLevel, envOrDefault("LOG_LEVEL", "info"))),

		InboxBackend:  strings.ToLower(firstNonEmpty(raw.Storage.Inbox, envOrDefault("INBOX_BACKEND", BackendFile))),
		OutboxBackend: strings.ToLower(firstNonEmpty(raw.Storage.Outbox, envOrDefault("OUTBOX_BACKEND", BackendFile))),
		EmailsPath:    firstNonEmpty(raw.Storage.EmailsPath, envOrDefault("EMAILS_PATH", "emails.json")),
		SentPath:      firstNonEmpty(raw.Storage.SentPath, envOrDefault("SENT_PATH", "sent.json")),
		DatabaseURL:   firstNonEmpty(raw.Storage.DatabaseURL, os.Getenv("DATABASE_URL")),

		RedisURL:    firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		EventsQueue: firstNonEmpty(raw.Redis.EventsQueue, envOrDefault("EVENTS_QUEUE", "reply-events")),

		AIModel:   firstNonEmpty(raw.AI.Model, os.Getenv("ANTHROPIC_MODEL")),
		AIAPIKey:  firstNonEmpty(raw.AI.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
		AIBaseURL: firstNonEmpty(raw.AI.BaseURL, os.Getenv("ANTHROPIC_BASE_URL")),

		PromptBodyPath:  raw.Prompts.BodyPath,
		PromptNotesPath: raw.Prompts.NotesPath,

		NurseName:          raw.Clinic.NurseName,
		OfficeName:         raw.Clinic.OfficeName,
		ContactInformation: raw.Clinic.ContactInformation,
	}

	if cfg.IdempotencyTTL, err = durationOrDefault(raw.Redis.IdempotencyTTL, "IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AITimeout, err = durationOrDefault(raw.AI.Timeout, "AI_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	if raw.AI.OAuth.TokenURL != "" {
		cfg.AIOAuth = &OAuthConfig{
			TokenURL:     raw.AI.OAuth.TokenURL,
			ClientID:     raw.AI.OAuth.ClientID,
			ClientSecret: raw.AI.OAuth.ClientSecret,
			Scopes:       raw.AI.OAuth.Scopes,
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.InboxBackend {
	case BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("unsupported inbox backend %q (want file or postgres)", c.InboxBackend)
	}
	switch c.OutboxBackend {
	case BackendFile, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unsupported outbox backend %q (want file, postgres or redis)", c.OutboxBackend)
	}

	if c.UsesPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if c.OutboxBackend == BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis outbox")
	}
	if c.AIOAuth != nil && (c.AIOAuth.ClientID == "" || c.AIOAuth.ClientSecret == "") {
		return fmt.Errorf("ai.oauth requires client_id and client_secret")
	}
	return nil
}

// UsesPostgres reports whether any backend needs a database connection.
func (c *Config) UsesPostgres() bool {
	return c.InboxBackend == BackendPostgres || c.OutboxBackend == BackendPostgres
}

// AIEnabled reports whether drafting can reach a model.
func (c *Config) AIEnabled() bool {
	return c.AIModel != "" && (c.AIAPIKey != "" || c.AIOAuth != nil)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// durationOrDefault parses the YAML value, then the env var, then falls back.
func durationOrDefault(yamlValue, key string, fallback time.Duration) (time.Duration, error) {
	v := firstNonEmpty(yamlValue, os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ReadPrompts returns the contents of the configured template overrides.
// An empty result means the caller should use the built-in template.
func (c *Config) ReadPrompts() (body, notes string, err error) {
	if c.PromptBodyPath != "" {
		data, err := os.ReadFile(c.PromptBodyPath)
		if err != nil {
			return "", "", fmt.Errorf("read prompt body template: %w", err)
		}
		body = string(data)
	}
	if c.PromptNotesPath != "" {
		data, err := os.ReadFile(c.PromptNotesPath)
		if err != nil {
			return "", "", fmt.Errorf("read prompt notes template: %w", err)
		}
		notes = string(data)
	}
	return body, notes, nil
}
