// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package watcher hot-reloads the YAML configuration into an atomic holder
// whenever the file changes on disk.
package watcher

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/aa105132/CatieCli/internal/config"
)

// Holder hands out the current configuration snapshot. Readers call Get per
// request; Reload swaps the snapshot atomically.
type Holder struct {
	current atomic.Pointer[config.Config]
}

// NewHolder seeds a Holder with the initial configuration.
func NewHolder(cfg *config.Config) *Holder {
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

// Get returns the active snapshot.
func (h *Holder) Get() *config.Config { return h.current.Load() }

// Set replaces the active snapshot.
func (h *Holder) Set(cfg *config.Config) { h.current.Store(cfg) }

// Watcher reloads a config file into a Holder on filesystem changes.
type Watcher struct {
	path    string
	holder  *Holder
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// New returns a Watcher for the config file at path.
func New(path string, holder *Holder) *Watcher {
	return &Watcher{path: path, holder: holder, stop: make(chan struct{})}
}

// Start begins watching. The parent directory is watched rather than the
// file itself so editors that replace the file (rename over it) still
// trigger a reload.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Editors write in bursts; let the file settle.
				time.Sleep(100 * time.Millisecond)
				w.reload()
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Errorf("config watcher error: %v", err)
			case <-w.stop:
				return
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	cfg, err := config.LoadConfig(w.path)
	if err != nil {
		// Keep serving the previous snapshot; a half-written or invalid
		// file must not take the gateway down.
		log.Errorf("config reload rejected: %v", err)
		return
	}
	w.holder.Set(cfg)
	log.Infof("configuration reloaded from %s", w.path)
}

// Stop ends watching.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		select {
		case <-w.stop:
		default:
			close(w.stop)
		}
		w.watcher.Close()
		w.watcher = nil
	}
}
