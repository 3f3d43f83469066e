// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package management implements the key-guarded operator endpoints:
// credential lifecycle, verification, and usage/quota reads.
package management

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aa105132/CatieCli/internal/config"
	"github.com/aa105132/CatieCli/internal/dispatch"
	"github.com/aa105132/CatieCli/internal/pool"
	"github.com/aa105132/CatieCli/internal/refresh"
	"github.com/aa105132/CatieCli/internal/usage"
	"github.com/aa105132/CatieCli/internal/verify"
)

// Handler carries the shared state behind the management endpoints.
type Handler struct {
	cfg        func() *config.Config
	store      *pool.Store
	verifier   *verify.Service
	refresher  *refresh.Refresher
	dispatcher *dispatch.Dispatcher
	usage      *usage.Recorder
}

// NewHandler wires the management surface.
func NewHandler(cfg func() *config.Config, store *pool.Store, verifier *verify.Service, refresher *refresh.Refresher, dispatcher *dispatch.Dispatcher, recorder *usage.Recorder) *Handler {
	return &Handler{
		cfg:        cfg,
		store:      store,
		verifier:   verifier,
		refresher:  refresher,
		dispatcher: dispatcher,
		usage:      recorder,
	}
}

// idParam parses the :id path segment, replying 400 on garbage.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credential id"})
		return 0, false
	}
	return id, true
}
