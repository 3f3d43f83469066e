// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"sync"
	"time"
)

type cooldownKey struct {
	CredentialID int64
	Class        string
}

// CooldownTracker records, per credential and model class, the earliest time
// the credential may be selected again. Entries expire implicitly: a key
// whose timestamp has passed behaves exactly like an absent key.
type CooldownTracker struct {
	mu        sync.RWMutex
	notBefore map[cooldownKey]time.Time
}

// NewCooldownTracker returns an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{notBefore: make(map[cooldownKey]time.Time)}
}

// Set starts a cooldown of duration d from now. A non-positive d is a no-op.
func (t *CooldownTracker) Set(credentialID int64, class string, d time.Duration, now time.Time) {
	if d <= 0 {
		return
	}
	t.SetUntil(credentialID, class, now.Add(d))
}

// SetUntil pins the credential's next eligible time. Used for cooldowns
// announced by the upstream (quota reset timestamps, Retry-After). It never
// shortens an already longer cooldown.
func (t *CooldownTracker) SetUntil(credentialID int64, class string, until time.Time) {
	key := cooldownKey{CredentialID: credentialID, Class: class}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.notBefore[key]; ok && cur.After(until) {
		return
	}
	t.notBefore[key] = until
}

// Ready reports whether the credential may serve the class at now.
func (t *CooldownTracker) Ready(credentialID int64, class string, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	until, ok := t.notBefore[cooldownKey{CredentialID: credentialID, Class: class}]
	return !ok || !now.Before(until)
}

// NotBefore returns the credential's next eligible time for the class, or the
// zero time when no cooldown is recorded.
func (t *CooldownTracker) NotBefore(credentialID int64, class string) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.notBefore[cooldownKey{CredentialID: credentialID, Class: class}]
}

// Earliest returns the soonest eligible time among the given credentials for
// a class. It feeds the Retry-After hint when everything is cooling down.
func (t *CooldownTracker) Earliest(credentialIDs []int64, class string) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var earliest time.Time
	for _, id := range credentialIDs {
		until, ok := t.notBefore[cooldownKey{CredentialID: id, Class: class}]
		if !ok {
			continue
		}
		if earliest.IsZero() || until.Before(earliest) {
			earliest = until
		}
	}
	return earliest
}

// Sweep drops expired entries. Called periodically from the janitor.
func (t *CooldownTracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for k, until := range t.notBefore {
		if now.After(until) {
			delete(t.notBefore, k)
			removed++
		}
	}
	return removed
}
