// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch routes client requests through the credential pool: it
// applies per-user rate and quota checks, picks a credential, keeps its
// token fresh, executes against the upstream, and retries across the pool
// on transient failures.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/aa105132/CatieCli/internal/antitrunc"
	"github.com/aa105132/CatieCli/internal/config"
	"github.com/aa105132/CatieCli/internal/constant"
	"github.com/aa105132/CatieCli/internal/pool"
	"github.com/aa105132/CatieCli/internal/refresh"
	"github.com/aa105132/CatieCli/internal/runtime/executor"
	"github.com/aa105132/CatieCli/internal/translator"
	"github.com/aa105132/CatieCli/internal/usage"
)

// streamBuffer sizes the channels between the upstream reader, the splicer,
// and the client writer.
const streamBuffer = 16

// Request is one client call after protocol decoding. Model carries the
// client-facing name with the anti-truncation prefix already stripped;
// Payload is the body in the Source wire format.
type Request struct {
	UserID         int64
	Source         string
	Model          string
	Payload        []byte
	AntiTruncation bool
}

// Result is a completed non-streaming dispatch.
type Result struct {
	Body     string
	Provider string
	Model    string
}

// Event is one client-bound SSE payload, or a terminal error. Heartbeat
// events carry no payload and keep the connection alive while a slow
// non-streaming upstream call is in flight.
type Event struct {
	Data      string
	Heartbeat bool
	Err       error
}

// Dispatcher owns the full request path between the API layer and the
// upstream executors.
type Dispatcher struct {
	cfg       func() *config.Config
	store     *pool.Store
	resolver  *pool.Resolver
	selector  *pool.Selector
	cooldowns *pool.CooldownTracker
	limiter   *pool.RateLimiter
	ledger    *pool.Ledger
	refresher *refresh.Refresher
	usage     *usage.Recorder
	executors map[string]executor.Executor
}

// New wires a Dispatcher over the shared pool state. cfg is called per
// request so config reloads take effect without a restart.
func New(cfg func() *config.Config, store *pool.Store, cooldowns *pool.CooldownTracker, refresher *refresh.Refresher, recorder *usage.Recorder) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		store:     store,
		resolver:  pool.NewResolver(store),
		selector:  pool.NewSelector(cooldowns),
		cooldowns: cooldowns,
		limiter:   pool.NewRateLimiter(),
		ledger:    pool.NewLedger(cfg().QuotaResetHourUTC),
		refresher: refresher,
		usage:     recorder,
		executors: map[string]executor.Executor{
			constant.GeminiCLI:   executor.NewCloudCode(constant.GeminiCLI, nil),
			constant.Antigravity: executor.NewCloudCode(constant.Antigravity, nil),
			constant.Codex:       executor.NewCodex(nil),
		},
	}
}

// SetExecutor replaces the upstream client for a provider. Tests use it to
// point the dispatcher at fakes.
func (d *Dispatcher) SetExecutor(provider string, ex executor.Executor) {
	d.executors[provider] = ex
}

// Ledger exposes the quota ledger for the read-side API.
func (d *Dispatcher) Ledger() *pool.Ledger { return d.ledger }

// Limiter exposes the per-user rate limiter for the read-side API.
func (d *Dispatcher) Limiter() *pool.RateLimiter { return d.limiter }

// RestoreQuota replays today's persisted usage log into the quota ledger.
// The ledger is memory-only, so without this a restart would re-grant the
// full daily quota to every user.
func (d *Dispatcher) RestoreQuota(ctx context.Context, now time.Time) error {
	if d.usage == nil {
		return nil
	}
	since := d.ledger.NextReset(now).AddDate(0, 0, -1)
	seen := make(map[int64]bool)
	for _, uid := range d.cfg().APIKeys {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		for _, class := range pool.Classes() {
			n, err := d.usage.CountSince(ctx, uid, class, since)
			if err != nil {
				return err
			}
			d.ledger.Seed(uid, class, n, now)
		}
	}
	return nil
}

// Sweep drops expired rate, quota, and cooldown state.
func (d *Dispatcher) Sweep(now time.Time) {
	d.ledger.Sweep(now)
	d.cooldowns.Sweep(now)
}

// plan is the per-request routing state computed before credential
// selection.
type plan struct {
	provider      string
	hub           string
	class         string
	requiredTier  string
	upstreamModel string
	payload       []byte
	response      translator.TranslateResponse
	cooldown      time.Duration

	// reached flips once any attempt made it to the upstream; quota is
	// only refunded when it never did.
	reached bool
}

func (d *Dispatcher) prepare(req *Request, stream bool) (*plan, error) {
	cfg := d.cfg()
	now := time.Now()

	provider, model := Route(req.Model)
	pcfg := cfg.Provider(provider)

	contributed := d.store.CountPublicActive(req.UserID, provider)
	rpm := pcfg.BaseRPM
	if contributed > 0 {
		rpm = pcfg.ContributorRPM
	}
	if err := d.limiter.Allow(req.UserID, rpm, now); err != nil {
		return nil, err
	}

	class := pool.ClassFor(provider, model)
	limit := pool.Limit(pcfg.Quota[class], contributed)
	if err := d.ledger.Consume(req.UserID, class, limit, now); err != nil {
		return nil, err
	}

	hub := constant.Gemini
	if provider == constant.Codex {
		hub = constant.Codex
	}
	toUpstream, err := translator.LookupRequest(req.Source, hub)
	if err != nil {
		d.ledger.Refund(req.UserID, class, now)
		return nil, &RouteError{Source: req.Source, Provider: provider}
	}
	response, err := translator.LookupResponse(req.Source, hub)
	if err != nil {
		d.ledger.Refund(req.UserID, class, now)
		return nil, &RouteError{Source: req.Source, Provider: provider}
	}

	payload := toUpstream(model, req.Payload, stream)
	upstreamModel := model
	if hub == constant.Gemini {
		upstreamModel, payload = translator.NormalizeGeminiRequest(provider, model, payload)
	} else {
		upstreamModel, _ = translator.ParseCodexModel(model)
	}

	return &plan{
		provider:      provider,
		hub:           hub,
		class:         class,
		requiredTier:  pool.RequiredTier(model),
		upstreamModel: upstreamModel,
		payload:       payload,
		response:      response,
		cooldown:      time.Duration(pcfg.CooldownSeconds[class]) * time.Second,
	}, nil
}

func (d *Dispatcher) executorRequest(p *plan, c *pool.Credential) executor.Request {
	r := executor.Request{
		Model:       p.upstreamModel,
		AccessToken: c.AccessToken,
		Payload:     p.payload,
	}
	if p.provider == constant.Codex {
		// ChatGPT account identifiers are stored in the project column.
		r.AccountID = c.ProjectID
	} else {
		r.ProjectID = c.ProjectID
	}
	return r
}

// withCredential runs attempt against credentials from the pool until one
// succeeds or the budgets are spent. Transient upstream failures (429, 5xx,
// network) cool the credential down and consume the request budget; 401/403
// deactivates the credential and consumes the separate auth budget. The
// returned credential is the one that served the request, or the last one
// tried when err is non-nil.
func (d *Dispatcher) withCredential(ctx context.Context, req *Request, p *plan, attempt func(c *pool.Credential, ex executor.Executor) error) (*pool.Credential, error) {
	cfg := d.cfg()
	ex, ok := d.executors[p.provider]
	if !ok {
		return nil, &RouteError{Source: req.Source, Provider: p.provider}
	}

	budget := cfg.RequestRetry
	authBudget := cfg.AuthRetry
	tried := make(map[int64]bool)
	attempts := 0
	var last *pool.Credential
	var lastErr error

	fail := func() (*pool.Credential, error) {
		log.WithFields(log.Fields{
			"provider": p.provider,
			"class":    p.class,
			"attempts": attempts,
		}).Warnf("dispatch gave up: %v", lastErr)
		return last, &UpstreamError{Provider: p.provider, Attempts: attempts, Last: lastErr}
	}

	for {
		now := time.Now()
		mode := d.cfg().Provider(p.provider).PoolMode
		visible := d.resolver.Visible(req.UserID, p.provider, mode, p.requiredTier)
		cred, err := d.selector.Pick(visible, p.provider, p.class, p.requiredTier, tried, now)
		if err != nil {
			if attempts == 0 && lastErr == nil {
				return nil, err
			}
			return fail()
		}
		tried[cred.ID] = true
		last = cred

		fresh, err := d.refresher.EnsureFresh(ctx, cred)
		if err != nil {
			lastErr = err
			if errors.Is(err, refresh.ErrCredentialInvalid) {
				authBudget--
				if authBudget <= 0 {
					return fail()
				}
			} else {
				budget--
				if budget <= 0 {
					return fail()
				}
			}
			continue
		}
		last = fresh

		if p.provider != constant.Codex && fresh.ProjectID == "" {
			projectID, derr := d.refresher.DiscoverProjectID(ctx,
				executor.BaseEndpoint(p.provider), fresh.AccessToken, executor.ProviderUserAgent(p.provider))
			if derr != nil {
				lastErr = derr
				budget--
				if budget <= 0 {
					return fail()
				}
				continue
			}
			if serr := d.store.SetProjectID(ctx, fresh.ID, projectID); serr != nil {
				log.Warnf("persisting discovered project for credential %d: %v", fresh.ID, serr)
			}
			fresh.ProjectID = projectID
		}

		attempts++
		err = attempt(fresh, ex)
		p.reached = true
		if err == nil {
			d.cooldowns.Set(fresh.ID, p.class, p.cooldown, time.Now())
			if merr := d.store.MarkUsed(ctx, fresh.ID, time.Now()); merr != nil {
				log.Warnf("marking credential %d used: %v", fresh.ID, merr)
			}
			return fresh, nil
		}
		lastErr = err

		var se *executor.StatusError
		if errors.As(err, &se) {
			switch {
			case se.StatusCode() == http.StatusUnauthorized || se.StatusCode() == http.StatusForbidden:
				if _, derr := d.store.Deactivate(ctx, fresh.ID, se.Error()); derr != nil {
					log.Warnf("deactivating credential %d: %v", fresh.ID, derr)
				}
				authBudget--
				if authBudget <= 0 {
					return fail()
				}
				continue
			case se.StatusCode() == http.StatusTooManyRequests:
				cd := p.cooldown
				if ra := se.RetryAfter(); ra != nil {
					cd = *ra
				}
				d.cooldowns.Set(fresh.ID, p.class, cd, time.Now())
				d.markFailed(ctx, fresh.ID, se.Error())
				budget--
				if budget <= 0 {
					return fail()
				}
				continue
			case se.StatusCode() >= http.StatusInternalServerError:
				d.cooldowns.Set(fresh.ID, p.class, p.cooldown, time.Now())
				d.markFailed(ctx, fresh.ID, se.Error())
				budget--
				if budget <= 0 {
					return fail()
				}
				continue
			default:
				// The upstream rejected the request itself; another
				// credential would be rejected the same way.
				d.markFailed(ctx, fresh.ID, se.Error())
				return fresh, err
			}
		}
		if ctx.Err() != nil {
			return fresh, ctx.Err()
		}

		// Network-level failure.
		d.cooldowns.Set(fresh.ID, p.class, p.cooldown, time.Now())
		d.markFailed(ctx, fresh.ID, err.Error())
		budget--
		if budget <= 0 {
			return fail()
		}
	}
}

func (d *Dispatcher) markFailed(ctx context.Context, id int64, reason string) {
	if err := d.store.MarkFailed(ctx, id, reason); err != nil {
		log.Warnf("marking credential %d failed: %v", id, err)
	}
}

// Dispatch runs a non-streaming request end to end and returns the response
// translated back into the caller's wire format.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	started := time.Now()
	p, err := d.prepare(req, false)
	if err != nil {
		return nil, err
	}

	cfg := d.cfg()
	var raw []byte
	cred, err := d.withCredential(ctx, req, p, func(c *pool.Credential, ex executor.Executor) error {
		attemptCtx := ctx
		if cfg.RequestTimeoutSeconds > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)
			defer cancel()
		}
		resp, aerr := ex.Execute(attemptCtx, d.executorRequest(p, c))
		if aerr != nil {
			return aerr
		}
		raw = resp.Payload
		return nil
	})
	if err != nil {
		if !p.reached {
			d.ledger.Refund(req.UserID, p.class, time.Now())
		} else {
			d.recordUsage(ctx, req, p, cred, statusOf(err), started, 0, 0, nil)
		}
		return nil, err
	}

	inTok, outTok := usageFromBody(p.hub, raw)
	body := p.response.NonStream(ctx, req.Model, p.payload, raw)
	d.recordUsage(ctx, req, p, cred, http.StatusOK, started, inTok, outTok, raw)
	return &Result{Body: body, Provider: p.provider, Model: p.upstreamModel}, nil
}

// DispatchStream opens a streaming request. The returned channel delivers
// ready-to-write SSE payloads in the caller's wire format and closes when the
// response is complete; a chunk with Err set terminates the stream. Errors
// returned directly mean nothing was sent upstream-to-client yet and can
// still map to a plain HTTP status.
func (d *Dispatcher) DispatchStream(ctx context.Context, req *Request) (<-chan Event, error) {
	started := time.Now()
	p, err := d.prepare(req, true)
	if err != nil {
		return nil, err
	}

	// Image models only have a non-streaming upstream endpoint; present the
	// single response as SSE with keepalive heartbeats while it renders.
	if pool.IsImageModel(req.Model) {
		return d.fakeStream(ctx, req, p, started), nil
	}

	var upstream <-chan executor.StreamChunk
	var servedEx executor.Executor
	served, err := d.withCredential(ctx, req, p, func(c *pool.Credential, ex executor.Executor) error {
		ch, aerr := ex.ExecuteStream(ctx, d.executorRequest(p, c))
		if aerr != nil {
			return aerr
		}
		upstream = ch
		servedEx = ex
		return nil
	})
	if err != nil {
		if !p.reached {
			d.ledger.Refund(req.UserID, p.class, time.Now())
		} else {
			d.recordUsage(ctx, req, p, served, statusOf(err), started, 0, 0, nil)
		}
		return nil, err
	}

	stream := adaptChunks(ctx, upstream)
	cfg := d.cfg()
	if req.AntiTruncation && p.hub == constant.Gemini && cfg.MaxContinuations > 0 {
		splicer := antitrunc.NewSplicer(cfg.MaxContinuations, func(cctx context.Context, partial string) (<-chan antitrunc.Chunk, error) {
			next := antitrunc.BuildContinuationRequest(p.payload, partial)
			ch, cerr := servedEx.ExecuteStream(cctx, executor.Request{
				Model:       p.upstreamModel,
				AccessToken: served.AccessToken,
				ProjectID:   served.ProjectID,
				Payload:     next,
			})
			if cerr != nil {
				return nil, cerr
			}
			return adaptChunks(cctx, ch), nil
		})
		spliced := make(chan antitrunc.Chunk, streamBuffer)
		go splicer.Run(ctx, stream, spliced)
		stream = spliced
	}

	events := make(chan Event, streamBuffer)
	go func() {
		defer close(events)

		var param any
		var inTok, outTok int64
		status := http.StatusOK
		defer func() {
			d.recordUsage(context.Background(), req, p, served, status, started, inTok, outTok, nil)
		}()

		for chunk := range stream {
			if chunk.Err != nil {
				status = statusOf(chunk.Err)
				select {
				case events <- Event{Err: chunk.Err}:
				case <-ctx.Done():
				}
				return
			}
			if in, out := usageFromBody(p.hub, chunk.Data); in > 0 || out > 0 {
				inTok, outTok = in, out
			}
			for _, data := range p.response.Stream(ctx, req.Model, p.payload, chunk.Data, &param) {
				select {
				case events <- Event{Data: data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

// heartbeatInterval paces keepalive events while a blocking image
// generation call runs upstream.
const heartbeatInterval = 2 * time.Second

func (d *Dispatcher) fakeStream(ctx context.Context, req *Request, p *plan, started time.Time) <-chan Event {
	type outcome struct {
		raw  []byte
		cred *pool.Credential
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		cfg := d.cfg()
		var raw []byte
		cred, err := d.withCredential(ctx, req, p, func(c *pool.Credential, ex executor.Executor) error {
			attemptCtx := ctx
			if cfg.RequestTimeoutSeconds > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)
				defer cancel()
			}
			resp, aerr := ex.Execute(attemptCtx, d.executorRequest(p, c))
			if aerr != nil {
				return aerr
			}
			raw = resp.Payload
			return nil
		})
		done <- outcome{raw: raw, cred: cred, err: err}
	}()

	events := make(chan Event, streamBuffer)
	go func() {
		defer close(events)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case events <- Event{Heartbeat: true}:
				case <-ctx.Done():
					return
				}
			case out := <-done:
				if out.err != nil {
					if !p.reached {
						d.ledger.Refund(req.UserID, p.class, time.Now())
					} else {
						d.recordUsage(context.Background(), req, p, out.cred, statusOf(out.err), started, 0, 0, nil)
					}
					select {
					case events <- Event{Err: out.err}:
					case <-ctx.Done():
					}
					return
				}
				inTok, outTok := usageFromBody(p.hub, out.raw)
				d.recordUsage(context.Background(), req, p, out.cred, http.StatusOK, started, inTok, outTok, out.raw)
				var param any
				for _, data := range p.response.Stream(ctx, req.Model, p.payload, out.raw, &param) {
					select {
					case events <- Event{Data: data}:
					case <-ctx.Done():
						return
					}
				}
				return
			}
		}
	}()
	return events
}

// adaptChunks bridges executor chunks onto the splicer's chunk type. When
// the request context ends before the consumer drains out, it stops sending
// and empties in so the executor goroutine can finish and release its
// upstream connection.
func adaptChunks(ctx context.Context, in <-chan executor.StreamChunk) <-chan antitrunc.Chunk {
	out := make(chan antitrunc.Chunk, streamBuffer)
	go func() {
		defer close(out)
		for c := range in {
			select {
			case out <- antitrunc.Chunk{Data: c.Payload, Err: c.Err}:
			case <-ctx.Done():
				for range in {
				}
				return
			}
		}
	}()
	return out
}

func (d *Dispatcher) recordUsage(ctx context.Context, req *Request, p *plan, cred *pool.Credential, status int, started time.Time, inTok, outTok int64, respPayload []byte) {
	if d.usage == nil {
		return
	}
	if inTok == 0 {
		inTok = usage.EstimateTokens(p.upstreamModel, p.payload)
	}
	if outTok == 0 && status < http.StatusBadRequest && len(respPayload) > 0 {
		outTok = usage.EstimateTokens(p.upstreamModel, respPayload)
	}
	var credID int64
	if cred != nil {
		credID = cred.ID
	}
	d.usage.Record(ctx, usage.Entry{
		UserID:       req.UserID,
		CredentialID: credID,
		Provider:     p.provider,
		Model:        req.Model,
		Class:        p.class,
		StatusCode:   status,
		LatencyMS:    time.Since(started).Milliseconds(),
		InputTokens:  inTok,
		OutputTokens: outTok,
	})
}

// usageFromBody pulls token counts out of an upstream body or chunk.
// Codex counts ride the response.completed event; Gemini counts live in
// usageMetadata, optionally under the Cloud Code response envelope.
func usageFromBody(hub string, raw []byte) (in, out int64) {
	if hub == constant.Codex {
		for _, line := range bytes.Split(raw, []byte("\n")) {
			root := gjson.ParseBytes(line)
			if root.Get("type").String() != "response.completed" {
				continue
			}
			u := root.Get("response.usage")
			return u.Get("input_tokens").Int(), u.Get("output_tokens").Int()
		}
		return 0, 0
	}
	u := gjson.GetBytes(raw, "response.usageMetadata")
	if !u.Exists() {
		u = gjson.GetBytes(raw, "usageMetadata")
	}
	return u.Get("promptTokenCount").Int(), u.Get("candidatesTokenCount").Int() + u.Get("thoughtsTokenCount").Int()
}

func statusOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}
