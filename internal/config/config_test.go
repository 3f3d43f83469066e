// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
host: "127.0.0.1"
port: 9000
auth-db: "test.db"
debug: true
request-retry: 2
auth-retry: 1
quota-reset-hour-utc: 7
max-continuations: 2
management-key: "hunter2"
providers:
  antigravity:
    pool-mode: full-shared
    base-rpm: 5
    contributor-rpm: 12
    quota:
      claude:
        base: 50
        per-credential-bonus: 25
      image:
        base: 10
        per-credential-bonus: 5
    cooldown-seconds:
      claude: 20
      flash: 3
  geminicli:
    pool-mode: tier-shared
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 2, cfg.RequestRetry)
	require.Equal(t, 1, cfg.AuthRetry)

	agy := cfg.Provider("antigravity")
	require.Equal(t, PoolModeFullShared, agy.PoolMode)
	require.Equal(t, 12, agy.ContributorRPM)
	require.Equal(t, 50, agy.Quota["claude"].Base)
	require.Equal(t, 20, agy.CooldownSeconds["claude"])

	gcli := cfg.Provider("geminicli")
	require.Equal(t, PoolModeTierShared, gcli.PoolMode)
	// defaults applied when not configured
	require.Equal(t, 5, gcli.BaseRPM)
	require.Equal(t, 5, gcli.ContributorRPM)
}

func TestLoadConfigHashesManagementKey(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.NotEqual(t, "hunter2", cfg.ManagementKey)
	require.True(t, cfg.CheckManagementKey("hunter2"))
	require.False(t, cfg.CheckManagementKey("wrong"))
}

func TestLoadConfigUnknownPoolMode(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
port: 9000
providers:
  codex:
    pool-mode: communal
`))
	require.Error(t, err)
}

func TestProviderFallback(t *testing.T) {
	cfg := defaultConfig()
	cfg.applyDefaults()
	p := cfg.Provider("unknown")
	require.Equal(t, PoolModePrivate, p.PoolMode)
}
