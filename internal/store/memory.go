/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"stampd/internal/pipeline"
)

type memBlob struct {
	data        []byte
	contentType string
	expires     time.Time
}

// DefaultMemoryTTL is shorter than the SQLite default because in-process
// blobs die with the process anyway.
const DefaultMemoryTTL = time.Hour

// Memory is an in-process ephemeral blob store with TTL expiry, for
// single-binary runs without a data directory.
type Memory struct {
	TTL time.Duration

	mu    sync.Mutex
	blobs map[string]memBlob
	now   func() time.Time // test hook
}

// NewMemory creates a Memory store. ttl <= 0 uses DefaultMemoryTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	return &Memory{TTL: ttl, blobs: map[string]memBlob{}, now: time.Now}
}

func (m *Memory) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	id := uuid.NewString()
	m.mu.Lock()
	m.blobs[id] = memBlob{data: cp, contentType: contentType, expires: m.now().Add(m.TTL)}
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[id]
	if !ok || m.now().After(b.expires) {
		delete(m.blobs, id)
		return nil, "", pipeline.ErrNotFound
	}
	return b.data, b.contentType, nil
}

// PurgeExpired drops expired blobs and returns the count removed.
func (m *Memory) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, b := range m.blobs {
		if now.After(b.expires) {
			delete(m.blobs, id)
			n++
		}
	}
	return n
}
