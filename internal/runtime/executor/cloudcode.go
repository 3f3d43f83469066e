// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/aa105132/CatieCli/internal/constant"
	"github.com/aa105132/CatieCli/internal/pool"
)

const (
	geminiCLIEndpoint   = "https://cloudcode-pa.googleapis.com"
	antigravityEndpoint = "https://antigravity.googleapis.com"

	geminiCLIUserAgent   = "grpc-java-okhttp/1.68.1"
	antigravityUserAgent = "antigravity/1.11.3 windows/amd64"
)

var dataTag = []byte("data:")

// BaseEndpoint returns the upstream endpoint serving the given Cloud Code
// provider. Callers outside the executor (project discovery) need the same
// host the dispatch path talks to.
func BaseEndpoint(provider string) string {
	if provider == constant.Antigravity {
		return antigravityEndpoint
	}
	return geminiCLIEndpoint
}

// ProviderUserAgent returns the client identification string expected by the
// given provider's endpoint.
func ProviderUserAgent(provider string) string {
	if provider == constant.Antigravity {
		return antigravityUserAgent
	}
	return geminiCLIUserAgent
}

// CloudCodeExecutor talks to a Cloud Code Assist v1internal endpoint. It
// serves both the geminicli and antigravity providers, which share the wire
// shape but differ in endpoint and identification headers.
type CloudCodeExecutor struct {
	provider   string
	baseURL    string
	httpClient *http.Client
}

// NewCloudCode returns an executor for the given provider, one of
// constant.GeminiCLI or constant.Antigravity. A nil client gets a default
// without timeout; streaming responses can stay open for minutes.
func NewCloudCode(provider string, client *http.Client) *CloudCodeExecutor {
	if client == nil {
		client = defaultHTTPClient(0)
	}
	return &CloudCodeExecutor{provider: provider, baseURL: BaseEndpoint(provider), httpClient: client}
}

// Identifier returns the provider tag this executor serves.
func (e *CloudCodeExecutor) Identifier() string { return e.provider }

// envelope wraps the normalized Gemini request into the v1internal payload.
func (e *CloudCodeExecutor) envelope(req Request) ([]byte, error) {
	out := []byte(`{}`)
	out, err := sjson.SetBytes(out, "model", req.Model)
	if err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "project", req.ProjectID); err != nil {
		return nil, err
	}
	if out, err = sjson.SetRawBytes(out, "request", req.Payload); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *CloudCodeExecutor) setHeaders(r *http.Request, req Request, streaming bool) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+req.AccessToken)
	if streaming {
		r.Header.Set("Accept", "text/event-stream")
	} else {
		r.Header.Set("Accept", "application/json")
	}
	if e.provider == constant.Antigravity {
		r.Header.Set("User-Agent", antigravityUserAgent)
		r.Header.Set("requestId", "req-"+uuid.NewString())
		if pool.IsImageModel(req.Model) {
			r.Header.Set("requestType", "image_gen")
		} else {
			r.Header.Set("requestType", "agent")
		}
	} else {
		r.Header.Set("User-Agent", geminiCLIUserAgent)
	}
}

// Execute performs a non-streaming generateContent call.
func (e *CloudCodeExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	payload, err := e.envelope(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s executor: build payload: %w", e.provider, err)
	}

	url := e.baseURL + "/v1internal:generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	e.setHeaders(httpReq, req, false)

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("%s executor: close response body error: %v", e.provider, errClose)
		}
	}()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		log.Debugf("%s executor: request error, status: %d, body: %s", e.provider, httpResp.StatusCode, truncateForLog(data))
		return Response{}, NewStatusError(httpResp.StatusCode, data, httpResp.Header)
	}
	return Response{Payload: data}, nil
}

// ExecuteStream performs a streaming call and forwards each SSE payload.
// Image models have no streaming endpoint upstream; for those the full
// response is fetched non-streaming and delivered as a single chunk.
func (e *CloudCodeExecutor) ExecuteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	if pool.IsImageModel(req.Model) {
		resp, err := e.Execute(ctx, req)
		if err != nil {
			return nil, err
		}
		out := make(chan StreamChunk, 1)
		out <- StreamChunk{Payload: resp.Payload}
		close(out)
		return out, nil
	}

	payload, err := e.envelope(req)
	if err != nil {
		return nil, fmt.Errorf("%s executor: build payload: %w", e.provider, err)
	}

	url := e.baseURL + "/v1internal:streamGenerateContent?alt=sse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	e.setHeaders(httpReq, req, true)

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		data, errRead := io.ReadAll(httpResp.Body)
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("%s executor: close response body error: %v", e.provider, errClose)
		}
		if errRead != nil {
			return nil, errRead
		}
		log.Debugf("%s executor: stream error, status: %d, body: %s", e.provider, httpResp.StatusCode, truncateForLog(data))
		return nil, NewStatusError(httpResp.StatusCode, data, httpResp.Header)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer func() {
			if errClose := httpResp.Body.Close(); errClose != nil {
				log.Errorf("%s executor: close response body error: %v", e.provider, errClose)
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

func truncateForLog(data []byte) string {
	const max = 500
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
