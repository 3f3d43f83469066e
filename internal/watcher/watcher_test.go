// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aa105132/CatieCli/internal/config"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "port: 8317\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	holder := NewHolder(cfg)

	w := New(path, holder)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeConfig(t, path, "port: 9000\n")
	waitFor(t, func() bool { return holder.Get().Port == 9000 })
}

func TestWatcherKeepsSnapshotOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "port: 8317\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	holder := NewHolder(cfg)

	w := New(path, holder)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeConfig(t, path, "port: -5\n")
	// The invalid file must be rejected; give the watcher a moment to see it.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 8317, holder.Get().Port)
}
