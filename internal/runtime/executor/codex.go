// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/aa105132/CatieCli/internal/constant"
)

const (
	codexEndpoint  = "https://chatgpt.com/backend-api/codex"
	codexUserAgent = "codex_cli_rs/0.50.0 (Mac OS 26.0.1; arm64) Apple_Terminal/464"
)

// CodexExecutor talks to the ChatGPT Codex Responses endpoint. The upstream
// is stream-only: Execute drains the stream and returns the raw event
// transcript for the non-stream translator to fold.
type CodexExecutor struct {
	baseURL    string
	httpClient *http.Client
}

// NewCodex returns a Codex executor. A nil client gets a default without
// timeout.
func NewCodex(client *http.Client) *CodexExecutor {
	if client == nil {
		client = defaultHTTPClient(0)
	}
	return &CodexExecutor{baseURL: codexEndpoint, httpClient: client}
}

// Identifier returns the provider tag this executor serves.
func (e *CodexExecutor) Identifier() string { return constant.Codex }

func (e *CodexExecutor) setHeaders(r *http.Request, req Request) {
	r.Header.Set("Authorization", "Bearer "+req.AccessToken)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "text/event-stream")
	r.Header.Set("Version", "0.21.0")
	r.Header.Set("Openai-Beta", "responses=experimental")
	r.Header.Set("Session_id", uuid.NewString())
	r.Header.Set("User-Agent", codexUserAgent)
	r.Header.Set("Originator", "codex_cli_rs")
	if req.AccountID != "" {
		r.Header.Set("Chatgpt-Account-Id", req.AccountID)
	}
}

func (e *CodexExecutor) open(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/responses", bytes.NewReader(req.Payload))
	if err != nil {
		return nil, err
	}
	e.setHeaders(httpReq, req)

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		data, errRead := io.ReadAll(httpResp.Body)
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("codex executor: close response body error: %v", errClose)
		}
		if errRead != nil {
			return nil, errRead
		}
		log.Debugf("codex executor: request error, status: %d, body: %s", httpResp.StatusCode, truncateForLog(data))
		return nil, NewStatusError(httpResp.StatusCode, data, httpResp.Header)
	}
	return httpResp, nil
}

// ExecuteStream performs a streaming Responses call and forwards each SSE
// event payload.
func (e *CodexExecutor) ExecuteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	httpResp, err := e.open(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer func() {
			if errClose := httpResp.Body.Close(); errClose != nil {
				log.Errorf("codex executor: close response body error: %v", errClose)
			}
		}()
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(nil, constant.MaxStreamingScannerBuffer)
		for scanner.Scan() {
			line := scanner.Bytes()
			if !bytes.HasPrefix(line, dataTag) {
				continue
			}
			data := bytes.TrimSpace(line[len(dataTag):])
			if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- StreamChunk{Payload: bytes.Clone(data)}:
			}
		}
		if errScan := scanner.Err(); errScan != nil {
			select {
			case <-ctx.Done():
			case out <- StreamChunk{Err: errScan}:
			}
		}
	}()
	return out, nil
}

// Execute drains the upstream stream into a newline-separated transcript of
// event payloads.
func (e *CodexExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	stream, err := e.ExecuteStream(ctx, req)
	if err != nil {
		return Response{}, err
	}
	var buf bytes.Buffer
	for chunk := range stream {
		if chunk.Err != nil {
			return Response{}, chunk.Err
		}
		buf.Write(chunk.Payload)
		buf.WriteByte('\n')
	}
	return Response{Payload: buf.Bytes()}, nil
}
