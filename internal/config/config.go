// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the CatieCli gateway.
// It handles loading and parsing the YAML configuration file and provides
// structured access to server settings, per-provider pool policy, quota and
// rate-limit numbers, cooldown windows, and retry budgets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// PoolMode selects which users may draw from which credentials.
type PoolMode string

const (
	// PoolModePrivate restricts every user to their own credentials.
	PoolModePrivate PoolMode = "private"
	// PoolModeTierShared shares public credentials of a tier among users who
	// contributed that tier themselves.
	PoolModeTierShared PoolMode = "tier-shared"
	// PoolModeFullShared shares all public credentials with every user who has
	// contributed at least one public active credential.
	PoolModeFullShared PoolMode = "full-shared"
)

// Valid reports whether the mode is one of the known pool modes.
func (m PoolMode) Valid() bool {
	switch m {
	case PoolModePrivate, PoolModeTierShared, PoolModeFullShared:
		return true
	}
	return false
}

// QuotaPolicy describes the daily ceiling for one model class.
type QuotaPolicy struct {
	// Base is the daily request allowance every user gets.
	Base int `yaml:"base" json:"base"`
	// PerCredentialBonus is added to Base for each public active credential
	// the user has contributed.
	PerCredentialBonus int `yaml:"per-credential-bonus" json:"per-credential-bonus"`
}

// ProviderConfig carries the pool policy for one upstream provider.
type ProviderConfig struct {
	// PoolMode governs credential visibility for this provider.
	PoolMode PoolMode `yaml:"pool-mode" json:"pool-mode"`

	// BaseRPM is the per-minute request ceiling for users without any public
	// active credential.
	BaseRPM int `yaml:"base-rpm" json:"base-rpm"`
	// ContributorRPM is the per-minute ceiling for contributors.
	ContributorRPM int `yaml:"contributor-rpm" json:"contributor-rpm"`

	// Quota maps a model class name (flash, pro, claude, image, ...) to its
	// daily policy. Classes missing from the map are unmetered.
	Quota map[string]QuotaPolicy `yaml:"quota" json:"quota"`

	// CooldownSeconds maps a model class to the minimum interval between
	// successive uses of one credential for that class.
	CooldownSeconds map[string]int `yaml:"cooldown-seconds" json:"cooldown-seconds"`
}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// AuthDB is the SQLite database path holding credentials and usage logs.
	AuthDB string `yaml:"auth-db" json:"-"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether logs go to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// RequestRetry bounds how many transient upstream failures one request may
	// absorb before it fails with an upstream-unavailable error.
	RequestRetry int `yaml:"request-retry" json:"request-retry"`
	// AuthRetry bounds, separately from RequestRetry, how many invalid
	// credentials (401/403) one request may burn through.
	AuthRetry int `yaml:"auth-retry" json:"auth-retry"`

	// RequestTimeoutSeconds is the per-attempt upstream timeout. Zero disables it.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds" json:"request-timeout-seconds"`

	// QuotaResetHourUTC is the hour (UTC) at which daily quota buckets roll over.
	QuotaResetHourUTC int `yaml:"quota-reset-hour-utc" json:"quota-reset-hour-utc"`

	// MaxContinuations bounds the anti-truncation continuation hops per stream.
	MaxContinuations int `yaml:"max-continuations" json:"max-continuations"`

	// Providers maps a provider tag (geminicli, antigravity, codex) to its
	// pool policy.
	Providers map[string]ProviderConfig `yaml:"providers" json:"providers"`

	// ManagementKey guards management endpoints. Plaintext values are replaced
	// with their bcrypt hash on load.
	ManagementKey string `yaml:"management-key" json:"-"`

	// APIKeys maps a client API key to the user ID it authenticates. User
	// identity is provisioned externally; the gateway only consumes it.
	APIKeys map[string]int64 `yaml:"api-keys" json:"-"`
}

const bcryptPrefix = "$2"

// LoadConfig reads and parses the YAML configuration file at the given path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err = dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Port:                  8317,
		AuthDB:                "catiecli.db",
		RequestRetry:          3,
		AuthRetry:             3,
		RequestTimeoutSeconds: 300,
		QuotaResetHourUTC:     7,
		MaxContinuations:      3,
	}
}

func (c *Config) applyDefaults() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, p := range c.Providers {
		if p.PoolMode == "" {
			p.PoolMode = PoolModePrivate
		}
		if p.BaseRPM <= 0 {
			p.BaseRPM = 5
		}
		if p.ContributorRPM <= 0 {
			p.ContributorRPM = p.BaseRPM
		}
		c.Providers[name] = p
	}
	if strings.TrimSpace(c.ManagementKey) != "" && !strings.HasPrefix(c.ManagementKey, bcryptPrefix) {
		if hashed, err := bcrypt.GenerateFromPassword([]byte(c.ManagementKey), bcrypt.DefaultCost); err == nil {
			c.ManagementKey = string(hashed)
		}
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.QuotaResetHourUTC < 0 || c.QuotaResetHourUTC > 23 {
		return fmt.Errorf("config: quota-reset-hour-utc %d out of range", c.QuotaResetHourUTC)
	}
	if c.RequestRetry < 0 || c.AuthRetry < 0 {
		return errors.New("config: retry budgets must not be negative")
	}
	if c.MaxContinuations < 0 {
		return errors.New("config: max-continuations must not be negative")
	}
	for key, uid := range c.APIKeys {
		if strings.TrimSpace(key) == "" || uid <= 0 {
			return errors.New("config: api-keys entries need a non-empty key and a positive user id")
		}
	}
	for name, p := range c.Providers {
		if !p.PoolMode.Valid() {
			return fmt.Errorf("config: provider %s: unknown pool-mode %q", name, p.PoolMode)
		}
		for class, q := range p.Quota {
			if q.Base < 0 || q.PerCredentialBonus < 0 {
				return fmt.Errorf("config: provider %s: negative quota for class %s", name, class)
			}
		}
		for class, sec := range p.CooldownSeconds {
			if sec < 0 {
				return fmt.Errorf("config: provider %s: negative cooldown for class %s", name, class)
			}
		}
	}
	return nil
}

// Provider returns the policy block for the named provider, falling back to a
// private zero policy when the provider is not configured.
func (c *Config) Provider(name string) ProviderConfig {
	if p, ok := c.Providers[name]; ok {
		return p
	}
	return ProviderConfig{PoolMode: PoolModePrivate, BaseRPM: 5, ContributorRPM: 5}
}

// UserForAPIKey resolves an API key to a user ID. The second return is false
// for unknown keys.
func (c *Config) UserForAPIKey(key string) (int64, bool) {
	if key == "" {
		return 0, false
	}
	id, ok := c.APIKeys[key]
	return id, ok
}

// CheckManagementKey compares a caller-supplied key against the stored hash.
func (c *Config) CheckManagementKey(candidate string) bool {
	if strings.TrimSpace(c.ManagementKey) == "" {
		return false
	}
	if strings.HasPrefix(c.ManagementKey, bcryptPrefix) {
		return bcrypt.CompareHashAndPassword([]byte(c.ManagementKey), []byte(candidate)) == nil
	}
	return c.ManagementKey == candidate
}
