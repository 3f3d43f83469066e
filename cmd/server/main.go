// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command server runs the CatieCli gateway: a shared credential pool with
// quota accounting and protocol translation in front of the Gemini CLI,
// Antigravity, and Codex upstreams.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/aa105132/CatieCli/internal/api"
	"github.com/aa105132/CatieCli/internal/api/handlers/management"
	"github.com/aa105132/CatieCli/internal/buildinfo"
	"github.com/aa105132/CatieCli/internal/config"
	"github.com/aa105132/CatieCli/internal/dispatch"
	"github.com/aa105132/CatieCli/internal/logging"
	"github.com/aa105132/CatieCli/internal/pool"
	"github.com/aa105132/CatieCli/internal/refresh"
	"github.com/aa105132/CatieCli/internal/usage"
	"github.com/aa105132/CatieCli/internal/verify"
	"github.com/aa105132/CatieCli/internal/watcher"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// sweepInterval is how often expired cooldown and quota entries are reaped.
const sweepInterval = time.Minute

func main() {
	fmt.Println(buildinfo.Banner())

	var configPath string
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config file %s: %v", configPath, err)
		return
	}

	if err = logging.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	holder := watcher.NewHolder(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := pool.Open(ctx, cfg.AuthDB)
	if err != nil {
		log.Errorf("failed to open credential store %s: %v", cfg.AuthDB, err)
		return
	}
	defer func() {
		if errClose := store.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close credential store")
		}
	}()

	recorder, err := usage.Open(ctx, cfg.AuthDB)
	if err != nil {
		log.Errorf("failed to open usage log: %v", err)
		return
	}
	defer func() {
		if errClose := recorder.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close usage log")
		}
	}()

	refresher := refresh.NewRefresher(store, nil)
	cooldowns := pool.NewCooldownTracker()
	dispatcher := dispatch.New(holder.Get, store, cooldowns, refresher, recorder)
	if err = dispatcher.RestoreQuota(ctx, time.Now()); err != nil {
		log.WithError(err).Warn("failed to rebuild quota counters from the usage log")
	}
	verifier := verify.New(store, refresher)
	mgmt := management.NewHandler(holder.Get, store, verifier, refresher, dispatcher, recorder)

	srv := api.NewServer(holder.Get, store, dispatcher, mgmt)

	cfgWatcher := watcher.New(configPath, holder)
	if err = cfgWatcher.Start(); err != nil {
		log.WithError(err).Warn("config hot reload disabled")
	} else {
		defer cfgWatcher.Stop()
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				dispatcher.Sweep(now)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err = <-errCh:
		if err != nil {
			log.Errorf("server stopped: %v", err)
		}
		return
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
