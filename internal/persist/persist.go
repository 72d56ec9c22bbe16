/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package persist uploads finished results to Postgres for durable,
// shareable storage. Rows are content-addressed so re-persisting identical
// bytes is a no-op.
package persist

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"stampd/internal/pipeline"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Uploader persists result blobs into the results table.
type Uploader struct {
	db      *sql.DB
	baseURL string
}

// Open connects to Postgres, verifies the connection and ensures the
// results table exists. publicBaseURL prefixes the returned share links.
func Open(ctx context.Context, dsn, publicBaseURL string) (*Uploader, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.ExecContext(pctx, `CREATE TABLE IF NOT EXISTS results (
		hash       TEXT PRIMARY KEY,
		filename   TEXT NOT NULL,
		owner_hint TEXT,
		data       BYTEA NOT NULL,
		size       BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure results table: %w", err)
	}
	return &Uploader{db: db, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Close releases the database handle.
func (u *Uploader) Close() error { return u.db.Close() }

// Persist stores data under its content hash and returns the locator plus
// a public link when a base URL is configured.
func (u *Uploader) Persist(ctx context.Context, data []byte, filename, ownerHint string) (pipeline.Persisted, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	_, err := u.db.ExecContext(ctx, `INSERT INTO results(hash, filename, owner_hint, data, size)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (hash) DO NOTHING`,
		hash, filename, ownerHint, data, len(data))
	if err != nil {
		return pipeline.Persisted{}, fmt.Errorf("persist result: %w", err)
	}
	p := pipeline.Persisted{Locator: hash}
	if u.baseURL != "" {
		p.PublicURL = u.baseURL + "/" + hash
	}
	return p, nil
}

// Fetch returns a persisted blob by its content hash.
func (u *Uploader) Fetch(ctx context.Context, hash string) ([]byte, string, error) {
	var data []byte
	var filename string
	err := u.db.QueryRowContext(ctx, `SELECT data, filename FROM results WHERE hash=$1`, hash).
		Scan(&data, &filename)
	if err == sql.ErrNoRows {
		return nil, "", pipeline.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("fetch result: %w", err)
	}
	return data, filename, nil
}
