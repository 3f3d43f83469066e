// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package usage persists a per-request usage log and serves the aggregate
// reads behind the quota and management endpoints.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	// SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const usageSchema = `
CREATE TABLE IF NOT EXISTS usage_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       INTEGER NOT NULL,
	credential_id INTEGER NOT NULL DEFAULT 0,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	class         TEXT NOT NULL,
	status_code   INTEGER NOT NULL,
	latency_ms    INTEGER NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_user_time ON usage_log(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_credential ON usage_log(credential_id);
`

// Entry is one completed (or failed) dispatch.
type Entry struct {
	UserID       int64     `json:"user_id"`
	CredentialID int64     `json:"credential_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Class        string    `json:"class"`
	StatusCode   int       `json:"status_code"`
	LatencyMS    int64     `json:"latency_ms"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary aggregates a user's usage for one model class.
type Summary struct {
	Class        string `json:"class"`
	Requests     int64  `json:"requests"`
	Failures     int64  `json:"failures"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Recorder writes and reads the usage log.
type Recorder struct {
	db *sql.DB
}

// Open opens (or creates) the usage log inside the SQLite database at path.
func Open(ctx context.Context, path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("usage: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	r, err := OpenWithDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// OpenWithDB initializes the usage log on an existing database handle.
func OpenWithDB(ctx context.Context, db *sql.DB) (*Recorder, error) {
	if _, err := db.ExecContext(ctx, usageSchema); err != nil {
		return nil, fmt.Errorf("usage: create schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close closes the underlying database.
func (r *Recorder) Close() error { return r.db.Close() }

// Record appends one entry. Failures are logged, not returned; losing a
// usage row must not fail the request that produced it.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usage_log (user_id, credential_id, provider, model, class, status_code, latency_ms, input_tokens, output_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.CredentialID, e.Provider, e.Model, e.Class, e.StatusCode, e.LatencyMS, e.InputTokens, e.OutputTokens, e.CreatedAt,
	)
	if err != nil {
		log.WithError(err).Warn("usage: record entry failed")
	}
}

// UserSummary aggregates a user's usage per class since the given time.
func (r *Recorder) UserSummary(ctx context.Context, userID int64, since time.Time) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT class,
		        COUNT(*),
		        SUM(CASE WHEN status_code >= 400 OR status_code = 0 THEN 1 ELSE 0 END),
		        COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0)
		 FROM usage_log
		 WHERE user_id = ? AND created_at >= ?
		 GROUP BY class ORDER BY class`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("usage: query summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err = rows.Scan(&s.Class, &s.Requests, &s.Failures, &s.InputTokens, &s.OutputTokens); err != nil {
			return nil, fmt.Errorf("usage: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSince returns the number of requests a user issued for a class at or
// after the given time. Backs quota reconstruction on restart.
func (r *Recorder) CountSince(ctx context.Context, userID int64, class string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_log WHERE user_id = ? AND class = ? AND created_at >= ? AND status_code < 400 AND status_code > 0`,
		userID, class, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("usage: count since: %w", err)
	}
	return n, nil
}

// Recent returns the newest entries, most recent first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, credential_id, provider, model, class, status_code, latency_ms, input_tokens, output_tokens, created_at
		 FROM usage_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("usage: query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err = rows.Scan(&e.UserID, &e.CredentialID, &e.Provider, &e.Model, &e.Class, &e.StatusCode, &e.LatencyMS, &e.InputTokens, &e.OutputTokens, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("usage: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
