// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(context.Background(), filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecorderRoundTrip(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r.Record(ctx, Entry{UserID: 1, CredentialID: 10, Provider: "geminicli", Model: "gemini-2.5-pro", Class: "pro", StatusCode: 200, LatencyMS: 420, InputTokens: 100, OutputTokens: 50, CreatedAt: now})
	r.Record(ctx, Entry{UserID: 1, Provider: "geminicli", Model: "gemini-2.5-flash", Class: "flash", StatusCode: 503, LatencyMS: 80, CreatedAt: now})
	r.Record(ctx, Entry{UserID: 2, Provider: "codex", Model: "gpt-5-codex", Class: "codex", StatusCode: 200, LatencyMS: 900, CreatedAt: now})

	summaries, err := r.UserSummary(ctx, 1, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "flash", summaries[0].Class)
	assert.EqualValues(t, 1, summaries[0].Failures)
	assert.Equal(t, "pro", summaries[1].Class)
	assert.EqualValues(t, 100, summaries[1].InputTokens)

	recent, err := r.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "gpt-5-codex", recent[0].Model)
}

func TestRecorderCountSince(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r.Record(ctx, Entry{UserID: 1, Class: "pro", Provider: "geminicli", Model: "m", StatusCode: 200, CreatedAt: now})
	r.Record(ctx, Entry{UserID: 1, Class: "pro", Provider: "geminicli", Model: "m", StatusCode: 200, CreatedAt: now.Add(-2 * time.Hour)})
	// Failures never count against quota.
	r.Record(ctx, Entry{UserID: 1, Class: "pro", Provider: "geminicli", Model: "m", StatusCode: 429, CreatedAt: now})

	n, err := r.CountSince(ctx, 1, "pro", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEstimateTokensText(t *testing.T) {
	payload := []byte(`{"messages":[{"role":"user","content":"The quick brown fox jumps over the lazy dog."}]}`)
	n := EstimateTokens("gpt-5-codex", payload)
	assert.Greater(t, n, int64(4))
	assert.Less(t, n, int64(30))
}

func TestEstimateTokensImages(t *testing.T) {
	payload := []byte(`{"contents":[{"role":"user","parts":[{"inlineData":{"mimeType":"image/png","data":"QUJD"}}]}]}`)
	n := EstimateTokens("gemini-2.5-flash", payload)
	assert.GreaterOrEqual(t, n, int64(imageTokenCost))
}

func TestEstimateTokensNeverZero(t *testing.T) {
	assert.EqualValues(t, 1, EstimateTokens("gemini-2.5-flash", []byte(`{}`)))
}
