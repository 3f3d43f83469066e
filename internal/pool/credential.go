// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pool implements the credential pool core: the durable credential
// store, pool visibility rules, the quota ledger, the per-user rate limiter,
// per-credential cooldown tracking, and credential selection.
package pool

import (
	"errors"
	"time"
)

// Provider tags for the supported upstreams.
const (
	ProviderGeminiCLI   = "geminicli"
	ProviderAntigravity = "antigravity"
	ProviderCodex       = "codex"
)

// KnownProvider reports whether the tag names a supported upstream.
func KnownProvider(p string) bool {
	switch p {
	case ProviderGeminiCLI, ProviderAntigravity, ProviderCodex:
		return true
	}
	return false
}

// Capability tiers. TierPreview credentials may serve every model class;
// TierStandard credentials are limited to classes that do not require preview
// access.
const (
	TierStandard = "2.5"
	TierPreview  = "3"
)

// Credential is one stored OAuth record permitting calls to an upstream
// provider on behalf of its owner.
type Credential struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"` // 0 means system-provided
	Provider string `json:"provider"`
	Email    string `json:"email"`

	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`
	ProjectID    string    `json:"project_id"`

	Tier   string `json:"tier"`
	Active bool   `json:"is_active"`
	Public bool   `json:"is_public"`

	LastUsedAt     time.Time `json:"last_used_at"`
	LastError      string    `json:"last_error"`
	TotalRequests  int64     `json:"total_requests"`
	FailedRequests int64     `json:"failed_requests"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone returns a deep copy safe to hand outside the store's lock.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Covers reports whether the credential's tier may serve a model requiring
// the given tier. Preview-tier credentials cover everything.
func (c *Credential) Covers(requiredTier string) bool {
	if requiredTier != TierPreview {
		return true
	}
	return c.Tier == TierPreview
}

// tokenExpiryLead is subtracted from the stored expiry when deciding whether
// an access token still has useful life left.
const tokenExpiryLead = 5 * time.Minute

// TokenExpired reports whether the access token is missing, expired, or
// within the refresh lead of expiring.
func (c *Credential) TokenExpired(now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.TokenExpiry.IsZero() {
		return true
	}
	return !now.Add(tokenExpiryLead).Before(c.TokenExpiry)
}

func (c *Credential) validate() error {
	if !KnownProvider(c.Provider) {
		return errors.New("pool: unknown provider tag")
	}
	if c.Tier == "" {
		c.Tier = TierStandard
	}
	if c.Public && !c.Active {
		return ErrInactivePublic
	}
	return nil
}
