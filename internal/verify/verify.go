// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package verify probes stored credentials against their upstream with the
// cheapest possible request and reconciles the Active flag with the outcome.
package verify

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/aa105132/CatieCli/internal/constant"
	"github.com/aa105132/CatieCli/internal/pool"
	"github.com/aa105132/CatieCli/internal/refresh"
	"github.com/aa105132/CatieCli/internal/runtime/executor"
)

// defaultWorkers bounds concurrent probes during VerifyAll.
const defaultWorkers = 4

// probeModels are the cheapest model per provider for a liveness check.
var probeModels = map[string]string{
	constant.GeminiCLI:   "gemini-2.5-flash",
	constant.Antigravity: "gemini-3-flash",
	constant.Codex:       "gpt-5.1",
}

const geminiProbeBody = `{"contents":[{"role":"user","parts":[{"text":"ping"}]}],"generationConfig":{"maxOutputTokens":1}}`

const codexProbeBody = `{"model":"gpt-5.1","instructions":"Reply with pong.","input":[{"type":"message","role":"user","content":[{"type":"input_text","text":"ping"}]}],"tools":[],"stream":true,"store":false,"parallel_tool_calls":false}`

// Result is the outcome of probing one credential.
type Result struct {
	CredentialID int64  `json:"credential_id"`
	Provider     string `json:"provider"`
	Email        string `json:"email"`
	OK           bool   `json:"ok"`
	StatusCode   int    `json:"status_code,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// Service runs credential probes.
type Service struct {
	store     *pool.Store
	refresher *refresh.Refresher
	executors map[string]executor.Executor
}

// New returns a Service probing through fresh upstream clients.
func New(store *pool.Store, refresher *refresh.Refresher) *Service {
	return &Service{
		store:     store,
		refresher: refresher,
		executors: map[string]executor.Executor{
			constant.GeminiCLI:   executor.NewCloudCode(constant.GeminiCLI, nil),
			constant.Antigravity: executor.NewCloudCode(constant.Antigravity, nil),
			constant.Codex:       executor.NewCodex(nil),
		},
	}
}

// VerifyOne probes a single credential. A successful probe reactivates a
// deactivated credential; a 401/403 deactivates it. Transient failures leave
// the Active flag alone and only record the error. The returned error covers
// lookup problems, not probe outcomes.
func (s *Service) VerifyOne(ctx context.Context, id int64) (*Result, error) {
	cred, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	res := &Result{CredentialID: cred.ID, Provider: cred.Provider, Email: cred.Email}

	fresh, err := s.refresher.EnsureFresh(ctx, cred)
	if err != nil {
		res.Detail = err.Error()
		if errors.Is(err, refresh.ErrCredentialInvalid) {
			// Refresher already deactivated it.
			res.StatusCode = http.StatusUnauthorized
			return res, nil
		}
		s.markFailed(ctx, cred.ID, err.Error())
		return res, nil
	}

	if fresh.Provider != pool.ProviderCodex && fresh.ProjectID == "" {
		projectID, derr := s.refresher.DiscoverProjectID(ctx,
			executor.BaseEndpoint(fresh.Provider), fresh.AccessToken, executor.ProviderUserAgent(fresh.Provider))
		if derr != nil {
			res.Detail = derr.Error()
			s.markFailed(ctx, fresh.ID, derr.Error())
			return res, nil
		}
		if serr := s.store.SetProjectID(ctx, fresh.ID, projectID); serr != nil {
			log.Warnf("persisting discovered project for credential %d: %v", fresh.ID, serr)
		}
		fresh.ProjectID = projectID
	}

	_, perr := s.executors[fresh.Provider].Execute(ctx, s.probeRequest(fresh))
	if perr == nil {
		res.OK = true
		res.StatusCode = http.StatusOK
		if !fresh.Active {
			if _, aerr := s.store.Activate(ctx, fresh.ID); aerr != nil {
				log.Warnf("reactivating credential %d: %v", fresh.ID, aerr)
			}
		}
		return res, nil
	}

	res.Detail = perr.Error()
	var se *executor.StatusError
	if errors.As(perr, &se) {
		res.StatusCode = se.StatusCode()
		if se.StatusCode() == http.StatusUnauthorized || se.StatusCode() == http.StatusForbidden {
			if _, derr := s.store.Deactivate(ctx, fresh.ID, se.Error()); derr != nil {
				log.Warnf("deactivating credential %d: %v", fresh.ID, derr)
			}
			return res, nil
		}
	}
	s.markFailed(ctx, fresh.ID, perr.Error())
	return res, nil
}

// VerifyAll probes every credential for a provider (all providers when the
// tag is empty) through a bounded worker pool. One credential's failure
// never aborts the pass; every credential gets a Result.
func (s *Service) VerifyAll(ctx context.Context, provider string) []*Result {
	creds := s.store.List(provider)
	results := make([]*Result, len(creds))

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := defaultWorkers
	if len(creds) < workers {
		workers = len(creds)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := s.VerifyOne(ctx, creds[i].ID)
				if err != nil {
					res = &Result{CredentialID: creds[i].ID, Provider: creds[i].Provider, Email: creds[i].Email, Detail: err.Error()}
				}
				results[i] = res
			}
		}()
	}
	for i := range creds {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].CredentialID < results[j].CredentialID })
	return results
}

func (s *Service) probeRequest(c *pool.Credential) executor.Request {
	if c.Provider == pool.ProviderCodex {
		return executor.Request{
			Model:       probeModels[c.Provider],
			AccessToken: c.AccessToken,
			AccountID:   c.ProjectID,
			Payload:     []byte(codexProbeBody),
		}
	}
	return executor.Request{
		Model:       probeModels[c.Provider],
		AccessToken: c.AccessToken,
		ProjectID:   c.ProjectID,
		Payload:     []byte(geminiProbeBody),
	}
}

func (s *Service) markFailed(ctx context.Context, id int64, reason string) {
	if err := s.store.MarkFailed(ctx, id, reason); err != nil {
		log.Warnf("marking credential %d failed: %v", id, err)
	}
}
