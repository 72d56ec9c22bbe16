/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by EphemeralStore.Get for unknown or expired ids.
var ErrNotFound = errors.New("not found")

// Fetcher retrieves arbitrary binary content (base images, overlay assets).
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Generator turns a text prompt into raster bytes for one image.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// EphemeralStore keeps result buffers retrievable by id until they expire.
type EphemeralStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, id string) ([]byte, string, error)
}

// Persisted describes a durable copy of a result.
type Persisted struct {
	Locator   string
	PublicURL string
}

// PermanentStore uploads bytes to durable storage. Best-effort: its errors
// never fail a pipeline run.
type PermanentStore interface {
	Persist(ctx context.Context, data []byte, filename, ownerHint string) (Persisted, error)
}

// Decision is an admission-control verdict.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Admission gates requests per caller before any pipeline work begins.
type Admission interface {
	Check(ctx context.Context, clientKey string) (Decision, error)
}

// AssetLoader resolves an overlay asset locator (file name or URL) to bytes.
// Locator resolution is environment-dependent and lives outside the
// compositor on purpose.
type AssetLoader interface {
	Load(ctx context.Context, locator string) ([]byte, error)
}

// HistoryRecorder receives the derived fields of completed runs. The raw
// ParsedCommand is never persisted.
type HistoryRecorder interface {
	Record(ctx context.Context, rec HistoryEntry) error
}

// HistoryEntry is the durable trace of one run.
type HistoryEntry struct {
	RunID       string
	Status      string
	OverlayMode string
	Action      string
	ResultID    string
	PreviewID   string
	FailKind    string
	CreatedAt   time.Time
}
