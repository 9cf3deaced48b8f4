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

// Package store provides the inbound-email and sent-reply backends used by
// the mailbox: flat JSON documents, PostgreSQL and Redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sunrise-clinic/inbox/internal/models"
)

// FileInbox reads inbound emails from a JSON array document. The document is
// opened and parsed on every call.
type FileInbox struct {
	path string
}

// NewFileInbox creates an inbox backed by the JSON document at path.
func NewFileInbox(path string) *FileInbox {
	return &FileInbox{path: path}
}

// ListEmails returns every email in document order.
func (f *FileInbox) ListEmails(_ context.Context) ([]models.Email, error) {
	var emails []models.Email
	if err := readDocument(f.path, &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// FindEmail scans the document for id. Returns nil, nil when absent.
func (f *FileInbox) FindEmail(ctx context.Context, id string) (*models.Email, error) {
	emails, err := f.ListEmails(ctx)
	if err != nil {
		return nil, err
	}
	for i := range emails {
		if emails[i].ID == id {
			return &emails[i], nil
		}
	}
	return nil, nil
}

// FileOutbox keeps sent replies in a JSON array document that is rewritten
// whole on every append. A missing document reads as an empty collection.
//
// Appends within one process are serialised; separate processes sharing the
// file can still lose updates.
type FileOutbox struct {
	path string
	mu   sync.Mutex
}

// NewFileOutbox creates an outbox backed by the JSON document at path.
func NewFileOutbox(path string) *FileOutbox {
	return &FileOutbox{path: path}
}

// ListReplies returns every reply in insertion order.
func (f *FileOutbox) ListReplies(_ context.Context) ([]models.Reply, error) {
	return f.load()
}

// AppendReply assigns id = count+1, appends and rewrites the document.
func (f *FileOutbox) AppendReply(_ context.Context, r models.Reply) (models.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	replies, err := f.load()
	if err != nil {
		return models.Reply{}, err
	}

	r.ID = strconv.Itoa(len(replies) + 1)
	replies = append(replies, r)

	if err := writeDocument(f.path, replies); err != nil {
		return models.Reply{}, err
	}
	return r, nil
}

// FindReply scans the document for id. Returns nil, nil when absent.
func (f *FileOutbox) FindReply(_ context.Context, id string) (*models.Reply, error) {
	replies, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range replies {
		if replies[i].ID == id {
			return &replies[i], nil
		}
	}
	return nil, nil
}

func (f *FileOutbox) load() ([]models.Reply, error) {
	var replies []models.Reply
	err := readDocument(f.path, &replies)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Reply{}, nil
	}
	if err != nil {
		return nil, err
	}
	return replies, nil
}

func readDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeDocument replaces path atomically: readers see the old document or
// the new one, never a partial write.
func writeDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
