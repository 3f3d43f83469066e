// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aa105132/CatieCli/internal/dispatch"
	"github.com/aa105132/CatieCli/internal/runtime/executor"
)

const userIDKey = "catiecli.user"

// userAuth resolves the calling user from the API key carried in
// x-goog-api-key, an Authorization bearer token, or the key query parameter.
func (s *Server) userAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("x-goog-api-key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" {
			key = c.GetHeader("x-api-key")
		}
		if key == "" {
			key = c.Query("key")
		}
		userID, ok := s.cfg().UserForAPIKey(key)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid or missing API key", "type": "authentication_error"},
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// managementAuth guards the management surface with the configured key.
func (s *Server) managementAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("x-management-key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if !s.cfg().CheckManagementKey(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid management key", "type": "authentication_error"},
			})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	v, _ := c.Get(userIDKey)
	id, _ := v.(int64)
	return id
}

// writeDispatchError maps a dispatch failure onto a client response without
// leaking upstream bodies.
func writeDispatchError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var ue *dispatch.UpstreamError
	var se *executor.StatusError
	var sc interface{ StatusCode() int }
	switch {
	case errors.As(err, &ue):
		// Must win over the StatusError case: UpstreamError wraps the last
		// upstream failure, and errors.As would otherwise unwrap through it
		// and report the final attempt's status instead of exhaustion.
		status = ue.StatusCode()
		message = ue.Error()
	case errors.As(err, &se):
		// Raw upstream bodies can echo credential material; keep the
		// status, drop the detail.
		status = se.StatusCode()
		message = http.StatusText(status)
	case errors.As(err, &sc):
		status = sc.StatusCode()
		message = err.Error()
	}

	var hdr interface{ Headers() map[string]string }
	if errors.As(err, &hdr) {
		for k, v := range hdr.Headers() {
			c.Header(k, v)
		}
	}
	c.JSON(status, gin.H{"error": gin.H{"message": message, "type": "gateway_error", "code": status}})
}
