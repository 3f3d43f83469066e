// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package management

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gin-gonic/gin"

	"github.com/aa105132/CatieCli/internal/pool"
	"github.com/aa105132/CatieCli/internal/refresh"
)

// ListCredentials returns stored credentials, optionally filtered by
// provider and owner. Token material never leaves the store's JSON shape.
func (h *Handler) ListCredentials(c *gin.Context) {
	provider := c.Query("provider")
	if user := c.Query("user"); user != "" {
		uid, err := strconv.ParseInt(user, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user filter"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"credentials": h.store.ListByUser(uid, provider)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": h.store.List(provider)})
}

// importRecord is one entry of a bulk credential import.
type importRecord struct {
	UserID       int64     `json:"user_id"`
	Provider     string    `json:"provider"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenExpiry  time.Time `json:"token_expiry"`
	ProjectID    string    `json:"project_id"`
	Tier         string    `json:"tier"`
	Public       bool      `json:"is_public"`
}

type importOutcome struct {
	Index int    `json:"index"`
	ID    int64  `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// ImportCredentials accepts a JSON array of credential records and inserts
// them one by one, reporting a per-record outcome instead of failing the
// whole batch.
func (h *Handler) ImportCredentials(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var records []importRecord
	if err = json.Unmarshal(body, &records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a JSON array of credential records"})
		return
	}

	outcomes := make([]importOutcome, 0, len(records))
	imported := 0
	for i, rec := range records {
		tier := rec.Tier
		if tier == "" {
			tier = pool.TierStandard
		}
		id, ierr := h.store.Insert(c.Request.Context(), &pool.Credential{
			UserID:       rec.UserID,
			Provider:     rec.Provider,
			Email:        rec.Email,
			AccessToken:  rec.AccessToken,
			RefreshToken: rec.RefreshToken,
			TokenExpiry:  rec.TokenExpiry,
			ProjectID:    rec.ProjectID,
			Tier:         tier,
			Active:       true,
			Public:       rec.Public,
		})
		if ierr != nil {
			outcomes = append(outcomes, importOutcome{Index: i, Error: ierr.Error()})
			continue
		}
		outcomes = append(outcomes, importOutcome{Index: i, ID: id})
		imported++
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "results": outcomes})
}

// SetPublic toggles pool sharing for one credential.
func (h *Handler) SetPublic(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body struct {
		Public bool `json:"public"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {\"public\": bool}"})
		return
	}
	cred, err := h.store.SetPublic(c.Request.Context(), id, body.Public)
	switch {
	case errors.Is(err, pool.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
	case errors.Is(err, pool.ErrInactivePublic):
		c.JSON(http.StatusConflict, gin.H{"error": "inactive credential cannot be public"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"credential": cred})
	}
}

// SetActive enables or disables a credential by operator decision.
func (h *Handler) SetActive(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body struct {
		Active bool   `json:"active"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {\"active\": bool}"})
		return
	}

	var cred *pool.Credential
	var err error
	if body.Active {
		cred, err = h.store.Activate(c.Request.Context(), id)
	} else {
		reason := body.Reason
		if reason == "" {
			reason = "disabled by operator"
		}
		cred, err = h.store.Deactivate(c.Request.Context(), id, reason)
	}
	switch {
	case errors.Is(err, pool.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"credential": cred})
	}
}

// DeleteCredential removes a credential permanently.
func (h *Handler) DeleteCredential(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	err := h.store.Delete(c.Request.Context(), id)
	switch {
	case errors.Is(err, pool.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

// PurgeInactive drops every inactive credential, optionally scoped to one
// owner via the user query parameter.
func (h *Handler) PurgeInactive(c *gin.Context) {
	var uid int64
	if user := c.Query("user"); user != "" {
		parsed, err := strconv.ParseInt(user, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user filter"})
			return
		}
		uid = parsed
	}
	purged, err := h.store.PurgeInactive(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "purged": purged})
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": purged})
}

// VerifyCredential probes one credential against its upstream.
func (h *Handler) VerifyCredential(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	res, err := h.verifier.VerifyOne(c.Request.Context(), id)
	switch {
	case errors.Is(err, pool.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// VerifyAll probes every credential, optionally scoped to one provider.
func (h *Handler) VerifyAll(c *gin.Context) {
	results := h.verifier.VerifyAll(c.Request.Context(), c.Query("provider"))
	ok := 0
	for _, r := range results {
		if r.OK {
			ok++
		}
	}
	c.JSON(http.StatusOK, gin.H{"checked": len(results), "ok": ok, "results": results})
}

// RefreshCredential forces the token-freshness check for one credential.
// Concurrent calls collapse onto a single upstream refresh.
func (h *Handler) RefreshCredential(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	cred, err := h.store.Get(id)
	if errors.Is(err, pool.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		return
	}
	fresh, err := h.refresher.EnsureFresh(c.Request.Context(), cred)
	switch {
	case errors.Is(err, refresh.ErrCredentialInvalid):
		c.JSON(http.StatusConflict, gin.H{"error": "refresh token rejected; credential deactivated"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "token endpoint unavailable"})
	default:
		c.JSON(http.StatusOK, gin.H{"id": fresh.ID, "token_expiry": fresh.TokenExpiry})
	}
}
