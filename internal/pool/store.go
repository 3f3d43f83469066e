// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"
)

const credentialSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL DEFAULT 0,
	provider TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_expiry DATETIME,
	project_id TEXT NOT NULL DEFAULT '',
	tier TEXT NOT NULL DEFAULT '2.5',
	is_active INTEGER NOT NULL DEFAULT 1,
	is_public INTEGER NOT NULL DEFAULT 0,
	last_used_at DATETIME,
	last_error TEXT NOT NULL DEFAULT '',
	total_requests INTEGER NOT NULL DEFAULT 0,
	failed_requests INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_credentials_provider ON credentials(provider);
CREATE INDEX IF NOT EXISTS idx_credentials_user ON credentials(user_id);
`

// Store is the durable credential registry. All credentials are held in
// memory and written through to SQLite; reads never touch the database after
// Open. Every accessor returns clones so callers cannot race the cache.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	creds map[int64]*Credential
}

// Open opens (creating if needed) the credential database at path and loads
// every stored credential into memory.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("pool: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("pool: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("pool: open database: %w", err)
	}
	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, credentialSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("pool: create schema: %w", err)
	}

	s := &Store{db: db, creds: make(map[int64]*Credential)}
	if err := s.loadAll(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("Credential store opened (db: %s, credentials: %d)", path, len(s.creds))
	return s, nil
}

// OpenWithDB wraps an already-open database handle. Used by tests.
func OpenWithDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, credentialSchema); err != nil {
		return nil, fmt.Errorf("pool: create schema: %w", err)
	}
	s := &Store{db: db, creds: make(map[int64]*Credential)}
	if err := s.loadAll(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAll(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, email, access_token, refresh_token,
		       token_expiry, project_id, tier, is_active, is_public,
		       last_used_at, last_error, total_requests, failed_requests, created_at
		FROM credentials`)
	if err != nil {
		return fmt.Errorf("pool: load credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			log.Warnf("Skipping unreadable credential row: %v", err)
			continue
		}
		s.creds[c.ID] = c
	}
	return rows.Err()
}

func scanCredential(rows *sql.Rows) (*Credential, error) {
	var c Credential
	var activeInt, publicInt int
	var expiry, lastUsed, created sql.NullTime

	err := rows.Scan(
		&c.ID, &c.UserID, &c.Provider, &c.Email,
		&c.AccessToken, &c.RefreshToken,
		&expiry, &c.ProjectID, &c.Tier, &activeInt, &publicInt,
		&lastUsed, &c.LastError, &c.TotalRequests, &c.FailedRequests, &created,
	)
	if err != nil {
		return nil, err
	}
	c.Active = activeInt == 1
	c.Public = publicInt == 1
	if expiry.Valid {
		c.TokenExpiry = expiry.Time
	}
	if lastUsed.Valid {
		c.LastUsedAt = lastUsed.Time
	}
	if created.Valid {
		c.CreatedAt = created.Time
	}
	return &c, nil
}

// Close closes the backing database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists a new credential and returns its assigned ID.
func (s *Store) Insert(ctx context.Context, c *Credential) (int64, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (
			user_id, provider, email, access_token, refresh_token,
			token_expiry, project_id, tier, is_active, is_public,
			last_used_at, last_error, total_requests, failed_requests, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Provider, c.Email, c.AccessToken, c.RefreshToken,
		nullTime(c.TokenExpiry), c.ProjectID, c.Tier,
		boolToInt(c.Active), boolToInt(c.Public),
		nullTime(c.LastUsedAt), c.LastError, c.TotalRequests, c.FailedRequests, c.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("pool: insert credential: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("pool: insert credential id: %w", err)
	}
	c.ID = id
	s.creds[id] = c.Clone()
	return id, nil
}

// Get returns a copy of the credential with the given ID.
func (s *Store) Get(id int64) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// List returns copies of all credentials for a provider; an empty provider
// returns everything.
func (s *Store) List(provider string) []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Credential, 0, len(s.creds))
	for _, c := range s.creds {
		if provider != "" && c.Provider != provider {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// ListByUser returns copies of one user's credentials for a provider.
func (s *Store) ListByUser(userID int64, provider string) []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, c := range s.creds {
		if c.UserID != userID {
			continue
		}
		if provider != "" && c.Provider != provider {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// CountPublicActive counts a user's public active credentials for a provider.
// This feeds the contributor bonus in quota and RPM computation.
func (s *Store) CountPublicActive(userID int64, provider string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.creds {
		if c.UserID == userID && c.Provider == provider && c.Public && c.Active {
			n++
		}
	}
	return n
}

// HasActiveTier reports whether a user owns an active credential of the given
// tier for a provider. Used by tier-shared visibility.
func (s *Store) HasActiveTier(userID int64, provider, tier string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.creds {
		if c.UserID == userID && c.Provider == provider && c.Active && c.Tier == tier {
			return true
		}
	}
	return false
}

// Delete removes a credential permanently.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[id]; !ok {
		return ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("pool: delete credential: %w", err)
	}
	delete(s.creds, id)
	return nil
}

// PurgeInactive deletes every inactive credential, scoped to one owner when
// userID is non-zero. It returns how many were removed.
func (s *Store) PurgeInactive(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, c := range s.creds {
		if c.Active {
			continue
		}
		if userID != 0 && c.UserID != userID {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
			return purged, fmt.Errorf("pool: purge credential %d: %w", id, err)
		}
		delete(s.creds, id)
		purged++
	}
	return purged, nil
}

// mutate applies fn to the cached credential under the write lock, validates
// the result, and writes the full row through to SQLite.
func (s *Store) mutate(ctx context.Context, id int64, fn func(*Credential) error) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.creds[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := c.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.validate(); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET
			user_id = ?, provider = ?, email = ?, access_token = ?, refresh_token = ?,
			token_expiry = ?, project_id = ?, tier = ?, is_active = ?, is_public = ?,
			last_used_at = ?, last_error = ?, total_requests = ?, failed_requests = ?
		WHERE id = ?`,
		next.UserID, next.Provider, next.Email, next.AccessToken, next.RefreshToken,
		nullTime(next.TokenExpiry), next.ProjectID, next.Tier,
		boolToInt(next.Active), boolToInt(next.Public),
		nullTime(next.LastUsedAt), next.LastError, next.TotalRequests, next.FailedRequests,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("pool: update credential %d: %w", id, err)
	}
	s.creds[id] = next
	return next.Clone(), nil
}

// UpdateTokens stores freshly refreshed OAuth material.
func (s *Store) UpdateTokens(ctx context.Context, id int64, access, refresh string, expiry time.Time) error {
	_, err := s.mutate(ctx, id, func(c *Credential) error {
		c.AccessToken = access
		if refresh != "" {
			c.RefreshToken = refresh
		}
		c.TokenExpiry = expiry
		c.LastError = ""
		return nil
	})
	return err
}

// SetProjectID records a discovered Google Cloud project for the credential.
func (s *Store) SetProjectID(ctx context.Context, id int64, projectID string) error {
	_, err := s.mutate(ctx, id, func(c *Credential) error {
		c.ProjectID = projectID
		return nil
	})
	return err
}

// SetPublic toggles pool membership. Making an inactive credential public is
// rejected with ErrInactivePublic.
func (s *Store) SetPublic(ctx context.Context, id int64, public bool) (*Credential, error) {
	return s.mutate(ctx, id, func(c *Credential) error {
		if public && !c.Active {
			return ErrInactivePublic
		}
		c.Public = public
		return nil
	})
}

// Activate re-enables a credential and clears its failure state.
func (s *Store) Activate(ctx context.Context, id int64) (*Credential, error) {
	return s.mutate(ctx, id, func(c *Credential) error {
		c.Active = true
		c.LastError = ""
		return nil
	})
}

// Deactivate disables a credential and records the reason. A deactivated
// credential also leaves the shared pool; it cannot stay public.
func (s *Store) Deactivate(ctx context.Context, id int64, reason string) (*Credential, error) {
	cred, err := s.mutate(ctx, id, func(c *Credential) error {
		c.Active = false
		c.Public = false
		c.LastError = reason
		return nil
	})
	if err == nil {
		log.Warnf("Credential %d (%s) deactivated: %s", id, cred.Email, reason)
	}
	return cred, err
}

// MarkUsed records a successful dispatch through the credential.
func (s *Store) MarkUsed(ctx context.Context, id int64, now time.Time) error {
	_, err := s.mutate(ctx, id, func(c *Credential) error {
		c.LastUsedAt = now
		c.TotalRequests++
		return nil
	})
	return err
}

// MarkFailed records a failed dispatch and the upstream error text.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.mutate(ctx, id, func(c *Credential) error {
		c.FailedRequests++
		c.LastError = reason
		return nil
	})
	return err
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
