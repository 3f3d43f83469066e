// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"sort"
	"time"
)

// Selector picks the next credential to dispatch through. Ordering favors the
// credential whose cooldown expired longest ago (a credential with no
// recorded cooldown sorts first), breaking ties by lowest total request
// count, so traffic spreads across the pool instead of hammering one entry.
type Selector struct {
	cooldowns *CooldownTracker
}

// NewSelector returns a Selector using the given cooldown tracker.
func NewSelector(cooldowns *CooldownTracker) *Selector {
	return &Selector{cooldowns: cooldowns}
}

// Pick chooses from candidates (already visibility-filtered) a credential
// able to serve the class and tier at now. IDs in exclude have already failed
// during this request and are skipped.
//
// Errors: *NoCredentialError when nothing in candidates could ever serve the
// request, *CooldownError when eligible credentials exist but all are cooling
// down.
func (s *Selector) Pick(candidates []*Credential, provider, class, requiredTier string, exclude map[int64]bool, now time.Time) (*Credential, error) {
	var eligible []*Credential
	var cooling []int64

	for _, c := range candidates {
		if !c.Active || exclude[c.ID] || !c.Covers(requiredTier) {
			continue
		}
		if !s.cooldowns.Ready(c.ID, class, now) {
			cooling = append(cooling, c.ID)
			continue
		}
		eligible = append(eligible, c)
	}

	if len(eligible) == 0 {
		if len(cooling) > 0 {
			resetIn := time.Second
			if earliest := s.cooldowns.Earliest(cooling, class); !earliest.IsZero() {
				resetIn = earliest.Sub(now)
			}
			return nil, &CooldownError{Class: class, ResetIn: resetIn}
		}
		return nil, &NoCredentialError{Provider: provider, Class: class}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a := s.cooldowns.NotBefore(eligible[i].ID, class)
		b := s.cooldowns.NotBefore(eligible[j].ID, class)
		if !a.Equal(b) {
			return a.Before(b)
		}
		return eligible[i].TotalRequests < eligible[j].TotalRequests
	})
	return eligible[0], nil
}
