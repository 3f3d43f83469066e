// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package management

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aa105132/CatieCli/internal/pool"
)

// UserQuota reports used/limit per model class for one user across the
// configured providers.
func (h *Handler) UserQuota(c *gin.Context) {
	uid, ok := idParam(c)
	if !ok {
		return
	}
	cfg := h.cfg()
	now := time.Now()
	ledger := h.dispatcher.Ledger()

	quotas := gin.H{}
	for provider, pcfg := range cfg.Providers {
		contributed := h.store.CountPublicActive(uid, provider)
		snapshots := make([]pool.Snapshot, 0, len(pcfg.Quota))
		for class, policy := range pcfg.Quota {
			snapshots = append(snapshots, ledger.Report(uid, class, policy, contributed, now))
		}
		sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Class < snapshots[j].Class })
		quotas[provider] = gin.H{"contributed": contributed, "classes": snapshots}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "quota": quotas})
}

// UserUsage aggregates the usage log for one user since the last quota
// reset, grouped by model class.
func (h *Handler) UserUsage(c *gin.Context) {
	uid, ok := idParam(c)
	if !ok {
		return
	}
	since := h.dispatcher.Ledger().NextReset(time.Now()).Add(-24 * time.Hour)
	if s := c.Query("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}
	summaries, err := h.usage.UserSummary(c.Request.Context(), uid, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "since": since, "usage": summaries})
}

// RecentUsage returns the latest usage log entries.
func (h *Handler) RecentUsage(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	entries, err := h.usage.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
