/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package store keeps ephemeral result blobs and the run history in an
// embedded SQLite database under the data directory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	applog "stampd/internal/log"
	"stampd/internal/pipeline"
	"stampd/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	DBFileName = "stampd.sqlite"

	// schemaVersion tracks the embedded schema. Bump on breaking changes
	// and add a migration.
	schemaVersion = 1

	// DefaultTTL is how long ephemeral blobs stay retrievable.
	DefaultTTL = 24 * time.Hour
)

// Store is a SQLite-backed ephemeral blob store and history recorder.
type Store struct {
	db  *sql.DB
	TTL time.Duration
}

// Open ensures the database exists under dataDir, enables WAL mode and
// brings the schema up to date.
func Open(dataDir string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("store"), "open").With(
		slog.String("dir", dataDir),
	)
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		l.Error("create data dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, DBFileName)
	uriPath := filepath.ToSlash(path)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", uriPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}

	l.Info("store ready", slog.String("path", path))
	return &Store{db: db, TTL: DefaultTTL}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			updated_at  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS blobs (
			id           TEXT PRIMARY KEY,
			data         BLOB NOT NULL,
			content_type TEXT NOT NULL,
			size         INTEGER NOT NULL,
			created_at   TEXT NOT NULL,
			expires_at   TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_blobs_expires ON blobs(expires_at);`,
		`CREATE TABLE IF NOT EXISTS history (
			id           INTEGER PRIMARY KEY,
			run_id       TEXT NOT NULL,
			status       TEXT NOT NULL,
			overlay_mode TEXT,
			action       TEXT,
			result_id    TEXT,
			preview_id   TEXT,
			fail_kind    TEXT,
			created_at   TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.ExecContext(ctx, `INSERT INTO version(id, schema, app, updated_at) VALUES(1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET schema=excluded.schema, app=excluded.app, updated_at=excluded.updated_at`,
		schemaVersion, version.String(), now); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return nil
}

// Put stores a blob and returns its id. The blob expires after TTL.
func (s *Store) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO blobs(id, data, content_type, size, created_at, expires_at)
		VALUES(?,?,?,?,?,?)`,
		id, data, contentType, len(data), now.Format(time.RFC3339), now.Add(ttl).Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("insert blob: %w", err)
	}
	return id, nil
}

// Get returns a blob and its content type. Expired or unknown ids report
// pipeline.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) ([]byte, string, error) {
	var data []byte
	var ct, expires string
	err := s.db.QueryRowContext(ctx, `SELECT data, content_type, expires_at FROM blobs WHERE id=?`, id).
		Scan(&data, &ct, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", pipeline.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("query blob: %w", err)
	}
	exp, perr := time.Parse(time.RFC3339, expires)
	if perr == nil && time.Now().UTC().After(exp) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id=?`, id)
		return nil, "", pipeline.ErrNotFound
	}
	return data, ct, nil
}

// PurgeExpired deletes blobs past their expiry and returns the count.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("purge blobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Record appends one run to the history table.
func (s *Store) Record(ctx context.Context, rec pipeline.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO history(run_id, status, overlay_mode, action, result_id, preview_id, fail_kind, created_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		rec.RunID, rec.Status, rec.OverlayMode, rec.Action, rec.ResultID, rec.PreviewID, rec.FailKind,
		rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// History returns the most recent runs, newest first. limit <= 0 means all.
func (s *Store) History(ctx context.Context, limit int) ([]pipeline.HistoryEntry, error) {
	q := `SELECT run_id, status, overlay_mode, action, result_id, preview_id, fail_kind, created_at
		FROM history ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []pipeline.HistoryEntry
	for rows.Next() {
		var e pipeline.HistoryEntry
		var created string
		if err := rows.Scan(&e.RunID, &e.Status, &e.OverlayMode, &e.Action, &e.ResultID, &e.PreviewID, &e.FailKind, &created); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
