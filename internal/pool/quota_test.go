// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aa105132/CatieCli/internal/config"
)

func TestLedgerBoundary(t *testing.T) {
	l := NewLedger(7)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// used == limit-1 must still succeed; the next attempt must not.
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Consume(1, ClassClaude, 3, now))
	}
	err := l.Consume(1, ClassClaude, 3, now)
	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 3, qe.Used)
	assert.Equal(t, 3, qe.Limit)
	assert.Equal(t, 3, l.Used(1, ClassClaude, now))
}

func TestLedgerLazyReset(t *testing.T) {
	l := NewLedger(7)
	before := time.Date(2026, 3, 1, 6, 59, 0, 0, time.UTC)
	after := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

	require.NoError(t, l.Consume(1, ClassGemini, 1, before))
	require.Error(t, l.Consume(1, ClassGemini, 1, before))

	// Crossing the reset hour lands in a new bucket with no sweeping.
	assert.Equal(t, 0, l.Used(1, ClassGemini, after))
	require.NoError(t, l.Consume(1, ClassGemini, 1, after))
}

func TestLedgerDayBucket(t *testing.T) {
	l := NewLedger(7)
	assert.Equal(t, "2026-02-28",
		l.DayBucket(time.Date(2026, 3, 1, 6, 59, 59, 0, time.UTC)))
	assert.Equal(t, "2026-03-01",
		l.DayBucket(time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)))
}

func TestLedgerZeroLimitUnenforced(t *testing.T) {
	l := NewLedger(7)
	now := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Consume(1, ClassFlash, 0, now))
	}
	assert.Equal(t, 0, l.Used(1, ClassFlash, now))
}

func TestLedgerRefund(t *testing.T) {
	l := NewLedger(7)
	now := time.Now()
	require.NoError(t, l.Consume(1, ClassBanana, 2, now))
	l.Refund(1, ClassBanana, now)
	l.Refund(1, ClassBanana, now) // must not go negative
	assert.Equal(t, 0, l.Used(1, ClassBanana, now))
}

func TestLimitComputation(t *testing.T) {
	policy := config.QuotaPolicy{Base: 100, PerCredentialBonus: 40}
	assert.Equal(t, 100, Limit(policy, 0))
	assert.Equal(t, 180, Limit(policy, 2))
}

func TestLedgerSweep(t *testing.T) {
	l := NewLedger(7)
	old := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, l.Consume(1, ClassClaude, 10, old))
	require.NoError(t, l.Consume(1, ClassClaude, 10, now))

	assert.Equal(t, 1, l.Sweep(now))
	assert.Equal(t, 1, l.Used(1, ClassClaude, now))
}

// Under any interleaving of consume attempts the used count never exceeds
// the limit.
func TestLedgerNeverExceedsLimitProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200

	properties := gopter.NewProperties(params)
	properties.Property("used <= limit", prop.ForAll(
		func(limit int, attempts int) bool {
			l := NewLedger(7)
			now := time.Now()
			granted := 0
			for i := 0; i < attempts; i++ {
				if l.Consume(42, ClassGemini, limit, now) == nil {
					granted++
				}
			}
			used := l.Used(42, ClassGemini, now)
			return used <= limit && used == granted
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 200),
	))
	properties.TestingRun(t)
}
