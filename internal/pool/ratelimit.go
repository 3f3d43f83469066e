// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-user requests-per-minute ceiling over a fixed
// one-minute window. Contributors (users with public active credentials) may
// be granted a different limit by the caller; the limiter itself only counts.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[int64]*rpmWindow
}

type rpmWindow struct {
	start time.Time
	count int
}

// NewRateLimiter returns an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[int64]*rpmWindow)}
}

// Allow consumes one request slot for the user against limit. A non-positive
// limit disables the check.
func (r *RateLimiter) Allow(userID int64, limit int, now time.Time) error {
	if limit <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[userID]
	if !ok || now.Sub(w.start) >= time.Minute {
		r.windows[userID] = &rpmWindow{start: now, count: 1}
		return nil
	}
	if w.count >= limit {
		return &RateLimitError{Limit: limit}
	}
	w.count++
	return nil
}

// InWindow reports the request count inside the user's current window.
func (r *RateLimiter) InWindow(userID int64, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[userID]
	if !ok || now.Sub(w.start) >= time.Minute {
		return 0
	}
	return w.count
}
