// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"sync"
	"time"

	"github.com/aa105132/CatieCli/internal/config"
)

// quotaKey addresses one daily counter. The bucket string carries the reset
// boundary, so rollover needs no background sweep: a new day simply produces
// a new key and the old counter goes cold.
type quotaKey struct {
	UserID int64
	Class  string
	Bucket string
}

// Ledger enforces per-user, per-class daily quotas. The computed limit for a
// user is base + perCredentialBonus × (their public active credential count
// at consume time), so losing a contributed credential lowers the ceiling
// immediately without touching already-consumed counts.
type Ledger struct {
	resetHourUTC int

	mu   sync.Mutex
	used map[quotaKey]int
}

// NewLedger returns a Ledger whose day buckets roll over at resetHourUTC.
func NewLedger(resetHourUTC int) *Ledger {
	return &Ledger{
		resetHourUTC: resetHourUTC,
		used:         make(map[quotaKey]int),
	}
}

// DayBucket returns the bucket key for now: the UTC date of the most recent
// reset boundary at or before now.
func (l *Ledger) DayBucket(now time.Time) string {
	now = now.UTC()
	day := now
	if now.Hour() < l.resetHourUTC {
		day = now.AddDate(0, 0, -1)
	}
	return day.Format("2006-01-02")
}

// NextReset returns the first reset boundary after now.
func (l *Ledger) NextReset(now time.Time) time.Time {
	now = now.UTC()
	reset := time.Date(now.Year(), now.Month(), now.Day(), l.resetHourUTC, 0, 0, 0, time.UTC)
	if !reset.After(now) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset
}

// Limit computes the current daily ceiling for a user and class. A policy
// with Base 0 and no bonus means the class is not quota-limited.
func Limit(policy config.QuotaPolicy, publicCredentials int) int {
	return policy.Base + policy.PerCredentialBonus*publicCredentials
}

// Consume reserves one request against the user's daily bucket. It fails
// with *QuotaError when used would exceed limit; a request at used == limit-1
// succeeds and fills the bucket. A non-positive limit disables enforcement
// for the class.
func (l *Ledger) Consume(userID int64, class string, limit int, now time.Time) error {
	if limit <= 0 {
		return nil
	}
	key := quotaKey{UserID: userID, Class: class, Bucket: l.DayBucket(now)}

	l.mu.Lock()
	defer l.mu.Unlock()
	used := l.used[key]
	if used >= limit {
		return &QuotaError{Class: class, Used: used, Limit: limit}
	}
	l.used[key] = used + 1
	return nil
}

// Refund releases a previously consumed unit, used when a request is rejected
// before it ever reaches an upstream. It never drives a counter negative.
func (l *Ledger) Refund(userID int64, class string, now time.Time) {
	key := quotaKey{UserID: userID, Class: class, Bucket: l.DayBucket(now)}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used[key] > 0 {
		l.used[key]--
	}
}

// Seed primes the current bucket with a count recovered from the persisted
// usage log, so a restart does not re-grant quota already spent today. It
// never lowers a counter that live traffic has already advanced past.
func (l *Ledger) Seed(userID int64, class string, used int, now time.Time) {
	if used <= 0 {
		return
	}
	key := quotaKey{UserID: userID, Class: class, Bucket: l.DayBucket(now)}
	l.mu.Lock()
	defer l.mu.Unlock()
	if used > l.used[key] {
		l.used[key] = used
	}
}

// Used reports the consumed count for the current bucket.
func (l *Ledger) Used(userID int64, class string, now time.Time) int {
	key := quotaKey{UserID: userID, Class: class, Bucket: l.DayBucket(now)}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[key]
}

// Sweep drops counters from buckets other than the current one. call it
// periodically to keep the map from accumulating dead days.
func (l *Ledger) Sweep(now time.Time) int {
	current := l.DayBucket(now)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k := range l.used {
		if k.Bucket != current {
			delete(l.used, k)
			removed++
		}
	}
	return removed
}

// Snapshot summarizes a user's quota standing for one class.
type Snapshot struct {
	Class     string    `json:"class"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	ResetsAt  time.Time `json:"resets_at"`
	Unlimited bool      `json:"unlimited"`
}

// Report builds a Snapshot for a user and class under the given policy.
func (l *Ledger) Report(userID int64, class string, policy config.QuotaPolicy, publicCredentials int, now time.Time) Snapshot {
	limit := Limit(policy, publicCredentials)
	return Snapshot{
		Class:     class,
		Used:      l.Used(userID, class, now),
		Limit:     limit,
		ResetsAt:  l.NextReset(now),
		Unlimited: limit <= 0,
	}
}
