// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the gateway over HTTP: OpenAI, Gemini, and Anthropic
// compatible completion surfaces plus the key-guarded management endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/aa105132/CatieCli/internal/api/handlers/management"
	"github.com/aa105132/CatieCli/internal/config"
	"github.com/aa105132/CatieCli/internal/dispatch"
	"github.com/aa105132/CatieCli/internal/pool"
)

// Server is the HTTP front of the gateway.
type Server struct {
	cfg        func() *config.Config
	store      *pool.Store
	dispatcher *dispatch.Dispatcher
	engine     *gin.Engine
	srv        *http.Server
}

// NewServer builds the router. cfg is consulted per request so reloads apply
// without rebinding.
func NewServer(cfg func() *config.Config, store *pool.Store, dispatcher *dispatch.Dispatcher, mgmt *management.Handler) *Server {
	if !cfg().Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, store: store, dispatcher: dispatcher, engine: engine}

	v1 := engine.Group("/v1", s.userAuth())
	v1.POST("/chat/completions", s.chatCompletions)
	v1.GET("/models", s.listOpenAIModels)
	v1.POST("/messages", s.claudeMessages)

	v1beta := engine.Group("/v1beta", s.userAuth())
	v1beta.GET("/models", s.listGeminiModels)
	v1beta.POST("/models/:action", s.geminiGenerate)

	m := engine.Group("/v0/management", s.managementAuth())
	m.GET("/credentials", mgmt.ListCredentials)
	m.POST("/credentials/import", mgmt.ImportCredentials)
	m.PATCH("/credentials/:id/public", mgmt.SetPublic)
	m.PATCH("/credentials/:id/active", mgmt.SetActive)
	m.DELETE("/credentials/:id", mgmt.DeleteCredential)
	m.POST("/credentials/purge-inactive", mgmt.PurgeInactive)
	m.POST("/credentials/:id/verify", mgmt.VerifyCredential)
	m.POST("/credentials/verify-all", mgmt.VerifyAll)
	m.POST("/credentials/:id/refresh", mgmt.RefreshCredential)
	m.GET("/users/:id/quota", mgmt.UserQuota)
	m.GET("/users/:id/usage", mgmt.UserUsage)
	m.GET("/usage/recent", mgmt.RecentUsage)

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run binds and serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	cfg := s.cfg()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("listening on %s", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond).String(),
		}).Debug("request")
	}
}
