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

// Package ai sends drafting prompts to the Anthropic Messages API.
//
// Requests go out as a single user-role message with a fixed output budget.
// The SDK's automatic retries are disabled: a failed call fails the draft.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/oauth2/clientcredentials"
)

// MaxOutputTokens is the output budget of every draft request.
const MaxOutputTokens = 500

// ErrNoText is returned when the completion carries no text block.
var ErrNoText = errors.New("completion has no text content")

// OAuthConfig enables client-credentials authentication for deployments that
// reach the model through a token-protected gateway.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config holds the client settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	OAuth   *OAuthConfig
}

// Client implements mailbox.Completer on top of the Anthropic SDK.
type Client struct {
	api   anthropic.Client
	model string
}

// NewClient creates a completion client. When cfg.OAuth is set the HTTP
// client attaches bearer tokens from the token endpoint instead of an API key.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ai model is required")
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
	}

	if cfg.OAuth != nil {
		creds := &clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		httpClient = creds.Client(ctx)
		httpClient.Timeout = cfg.Timeout
		slog.Info("ai client using oauth2 client credentials", "token_url", cfg.OAuth.TokenURL)
	} else if cfg.APIKey == "" {
		return nil, fmt.Errorf("ai api key is required without oauth")
	}

	opts = append(opts, option.WithHTTPClient(httpClient))
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:   anthropic.NewClient(opts...),
		model: cfg.Model,
	}, nil
}

// Complete sends prompt as one user message and returns the text of the
// first text block of the answer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: MaxOutputTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	slog.Info("completion received",
		"model", msg.Model,
		"stop_reason", msg.StopReason,
		"output_tokens", msg.Usage.OutputTokens,
		"duration", time.Since(start),
	)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", ErrNoText
}
