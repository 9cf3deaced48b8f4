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

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// messageResponse creates a minimal Messages API response body.
func messageResponse(content ...map[string]any) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-test",
		"content":       content,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
	}
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

type capturedRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

// TestComplete_SendsSingleUserMessage verifies the request shape and text extraction.
func TestComplete_SendsSingleUserMessage(t *testing.T) {
	var got capturedRequest
	var apiKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		apiKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageResponse(textBlock("<response_email>Hi</response_email>")))
	}))
	defer server.Close()

	c, err := NewClient(context.Background(), Config{
		APIKey:  "test-key",
		Model:   "claude-test",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	text, err := c.Complete(context.Background(), "draft this")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if text != "<response_email>Hi</response_email>" {
		t.Errorf("text = %q", text)
	}
	if apiKey != "test-key" {
		t.Errorf("x-api-key = %q, want test-key", apiKey)
	}
	if got.Model != "claude-test" {
		t.Errorf("model = %q, want claude-test", got.Model)
	}
	if got.MaxTokens != MaxOutputTokens {
		t.Errorf("max_tokens = %d, want %d", got.MaxTokens, MaxOutputTokens)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v, want one user message", got.Messages)
	}
	if len(got.Messages[0].Content) != 1 || got.Messages[0].Content[0].Text != "draft this" {
		t.Errorf("content = %+v", got.Messages[0].Content)
	}
}

// TestComplete_NoTextBlock verifies an empty completion is an error.
func TestComplete_NoTextBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageResponse())
	}))
	defer server.Close()

	c, err := NewClient(context.Background(), Config{APIKey: "k", Model: "m", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.Complete(context.Background(), "p"); !errors.Is(err, ErrNoText) {
		t.Errorf("err = %v, want ErrNoText", err)
	}
}

// TestComplete_APIErrorIsNotRetried verifies a single attempt per draft.
func TestComplete_APIErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	c, err := NewClient(context.Background(), Config{APIKey: "k", Model: "m", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error from 503 response")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

// TestComplete_OAuthBearerToken verifies gateway mode fetches and sends a token.
func TestComplete_OAuthBearerToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gateway-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	var auth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageResponse(textBlock("ok")))
	}))
	defer api.Close()

	c, err := NewClient(context.Background(), Config{
		Model:   "m",
		BaseURL: api.URL,
		OAuth: &OAuthConfig{
			TokenURL:     tokenServer.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.Complete(context.Background(), "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "Bearer gateway-token" {
		t.Errorf("Authorization = %q, want Bearer gateway-token", auth)
	}
}

// TestNewClient_Validation verifies required settings.
func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{APIKey: "k"}); err == nil {
		t.Error("expected error without model")
	}
	if _, err := NewClient(context.Background(), Config{Model: "m"}); err == nil {
		t.Error("expected error without api key or oauth")
	}
}
