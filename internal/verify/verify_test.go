// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package verify

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aa105132/CatieCli/internal/constant"
	"github.com/aa105132/CatieCli/internal/pool"
	"github.com/aa105132/CatieCli/internal/refresh"
	"github.com/aa105132/CatieCli/internal/runtime/executor"
)

// probeFake answers Execute with a fixed outcome per access token.
type probeFake struct {
	failWith map[string]error
}

func (f *probeFake) Identifier() string { return constant.GeminiCLI }

func (f *probeFake) Execute(_ context.Context, req executor.Request) (executor.Response, error) {
	if err, ok := f.failWith[req.AccessToken]; ok {
		return executor.Response{}, err
	}
	return executor.Response{Payload: []byte(`{"response":{"candidates":[]}}`)}, nil
}

func (f *probeFake) ExecuteStream(_ context.Context, _ executor.Request) (<-chan executor.StreamChunk, error) {
	ch := make(chan executor.StreamChunk)
	close(ch)
	return ch, nil
}

func newTestService(t *testing.T) (*Service, *pool.Store, *probeFake) {
	t.Helper()
	store, err := pool.Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store, refresh.NewRefresher(store, nil))
	fake := &probeFake{failWith: map[string]error{}}
	svc.executors[constant.GeminiCLI] = fake
	return svc, store, fake
}

func insertCred(t *testing.T, store *pool.Store, token string, active bool) int64 {
	t.Helper()
	id, err := store.Insert(context.Background(), &pool.Credential{
		UserID:       1,
		Provider:     pool.ProviderGeminiCLI,
		Email:        token + "@example.com",
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		TokenExpiry:  time.Now().Add(time.Hour),
		ProjectID:    "proj-" + token,
		Tier:         pool.TierStandard,
		Active:       active,
	})
	require.NoError(t, err)
	return id
}

func TestVerifyOneReactivates(t *testing.T) {
	svc, store, _ := newTestService(t)
	id := insertCred(t, store, "tok-a", false)

	res, err := svc.VerifyOne(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	cred, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, cred.Active)
	assert.Empty(t, cred.LastError)
}

func TestVerifyOneDeactivatesOnAuthFailure(t *testing.T) {
	svc, store, fake := newTestService(t)
	id := insertCred(t, store, "tok-a", true)
	fake.failWith["tok-a"] = executor.NewStatusError(http.StatusForbidden, []byte("revoked"), nil)

	res, err := svc.VerifyOne(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	cred, err := store.Get(id)
	require.NoError(t, err)
	assert.False(t, cred.Active)
	assert.Contains(t, cred.LastError, "revoked")
}

func TestVerifyOneTransientKeepsActive(t *testing.T) {
	svc, store, fake := newTestService(t)
	id := insertCred(t, store, "tok-a", true)
	fake.failWith["tok-a"] = executor.NewStatusError(http.StatusServiceUnavailable, []byte("overloaded"), nil)

	res, err := svc.VerifyOne(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	cred, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, cred.Active)
	assert.Contains(t, cred.LastError, "overloaded")
}

func TestVerifyOneUnknownCredential(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.VerifyOne(context.Background(), 9999)
	require.ErrorIs(t, err, pool.ErrNotFound)
}

func TestVerifyAll(t *testing.T) {
	svc, store, fake := newTestService(t)
	idA := insertCred(t, store, "tok-a", true)
	idB := insertCred(t, store, "tok-b", true)
	idC := insertCred(t, store, "tok-c", false)
	fake.failWith["tok-b"] = executor.NewStatusError(http.StatusForbidden, []byte("revoked"), nil)

	results := svc.VerifyAll(context.Background(), pool.ProviderGeminiCLI)
	require.Len(t, results, 3)

	byID := map[int64]*Result{}
	for _, r := range results {
		byID[r.CredentialID] = r
	}
	assert.True(t, byID[idA].OK)
	assert.False(t, byID[idB].OK)
	assert.True(t, byID[idC].OK)

	b, _ := store.Get(idB)
	assert.False(t, b.Active)
	c, _ := store.Get(idC)
	assert.True(t, c.Active)
}
