// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/aa105132/CatieCli/internal/constant"
)

func TestParseRetryDelay(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header http.Header
		want   time.Duration
		none   bool
	}{
		{
			name: "retry info",
			body: `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"42s"}]}}`,
			want: 42 * time.Second,
		},
		{
			name: "quota reset delay",
			body: `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","reason":"QUOTA_EXHAUSTED","metadata":{"quotaResetDelay":"13h19m1.2s"}}]}}`,
			want: 13*time.Hour + 19*time.Minute + 1200*time.Millisecond,
		},
		{
			name:   "retry-after header",
			body:   `{}`,
			header: http.Header{"Retry-After": []string{"30"}},
			want:   30 * time.Second,
		},
		{
			name: "message phrase",
			body: `{"error":{"message":"Your quota will reset after 55s."}}`,
			want: 55 * time.Second,
		},
		{
			name: "nothing",
			body: `{"error":{"message":"internal"}}`,
			none: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRetryDelay([]byte(tt.body), tt.header)
			if tt.none {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseRetryDelayQuotaResetTimestamp(t *testing.T) {
	ts := time.Now().UTC().Add(90 * time.Second).Format(time.RFC3339)
	body := `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","metadata":{"quotaResetTimeStamp":"` + ts + `"}}]}}`
	got := ParseRetryDelay([]byte(body), nil)
	require.NotNil(t, got)
	assert.Greater(t, *got, 80*time.Second)
	assert.LessOrEqual(t, *got, 90*time.Second)
}

func TestCloudCodeExecute(t *testing.T) {
	var gotPath, gotAuth, gotUA string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"response":{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}}`))
	}))
	defer srv.Close()

	e := NewCloudCode(constant.GeminiCLI, srv.Client())
	e.baseURL = srv.URL

	resp, err := e.Execute(context.Background(), Request{
		Model:       "gemini-2.5-flash",
		AccessToken: "tok-1",
		ProjectID:   "proj-1",
		Payload:     []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1internal:generateContent", gotPath)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, geminiCLIUserAgent, gotUA)

	envelope := gjson.ParseBytes(gotBody)
	assert.Equal(t, "gemini-2.5-flash", envelope.Get("model").String())
	assert.Equal(t, "proj-1", envelope.Get("project").String())
	assert.Equal(t, "hi", envelope.Get("request.contents.0.parts.0.text").String())

	assert.Equal(t, "ok", gjson.GetBytes(resp.Payload, "response.candidates.0.content.parts.0.text").String())
}

func TestCloudCodeExecuteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"7s"}]}}`))
	}))
	defer srv.Close()

	e := NewCloudCode(constant.GeminiCLI, srv.Client())
	e.baseURL = srv.URL

	_, err := e.Execute(context.Background(), Request{Model: "gemini-2.5-pro", Payload: []byte(`{}`)})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode())
	require.NotNil(t, statusErr.RetryAfter())
	assert.Equal(t, 7*time.Second, *statusErr.RetryAfter())
}

func TestCloudCodeExecuteStream(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}]}\n\n"))
		_, _ = w.Write([]byte(": keepalive\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"b\"}]},\"finishReason\":\"STOP\"}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	e := NewCloudCode(constant.Antigravity, srv.Client())
	e.baseURL = srv.URL

	stream, err := e.ExecuteStream(context.Background(), Request{
		Model:   "claude-sonnet-4-5-thinking",
		Payload: []byte(`{}`),
	})
	require.NoError(t, err)

	var chunks [][]byte
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		chunks = append(chunks, chunk.Payload)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", gjson.GetBytes(chunks[0], "candidates.0.content.parts.0.text").String())
	assert.Equal(t, "STOP", gjson.GetBytes(chunks[1], "candidates.0.finishReason").String())
	assert.Equal(t, "/v1internal:streamGenerateContent?alt=sse", gotPath)
}

func TestCloudCodeImageModelFakesStreaming(t *testing.T) {
	var gotPath, gotRequestType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRequestType = r.Header.Get("requestType")
		_, _ = w.Write([]byte(`{"response":{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"aWc="}}]},"finishReason":"STOP"}]}}`))
	}))
	defer srv.Close()

	e := NewCloudCode(constant.Antigravity, srv.Client())
	e.baseURL = srv.URL

	stream, err := e.ExecuteStream(context.Background(), Request{
		Model:   "gemini-3-pro-image",
		Payload: []byte(`{}`),
	})
	require.NoError(t, err)

	var chunks [][]byte
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		chunks = append(chunks, chunk.Payload)
	}
	// Image models hit the non-streaming endpoint and yield one chunk.
	require.Len(t, chunks, 1)
	assert.Equal(t, "/v1internal:generateContent", gotPath)
	assert.Equal(t, "image_gen", gotRequestType)
}

func TestCodexExecuteStream(t *testing.T) {
	var gotBeta, gotAccount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBeta = r.Header.Get("Openai-Beta")
		gotAccount = r.Header.Get("Chatgpt-Account-Id")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"hi\"}\n\n"))
		_, _ = w.Write([]byte("data: {\"type\":\"response.completed\",\"response\":{\"usage\":{\"total_tokens\":3}}}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	e := NewCodex(srv.Client())
	e.baseURL = srv.URL

	stream, err := e.ExecuteStream(context.Background(), Request{
		AccessToken: "tok",
		AccountID:   "acct-1",
		Payload:     []byte(`{"model":"gpt-5-codex"}`),
	})
	require.NoError(t, err)

	var chunks [][]byte
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		chunks = append(chunks, chunk.Payload)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "responses=experimental", gotBeta)
	assert.Equal(t, "acct-1", gotAccount)
	assert.Equal(t, "response.output_text.delta", gjson.GetBytes(chunks[0], "type").String())
}

func TestCodexExecuteFoldsTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"a\"}\n\n"))
		_, _ = w.Write([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"b\"}\n\n"))
	}))
	defer srv.Close()

	e := NewCodex(srv.Client())
	e.baseURL = srv.URL

	resp, err := e.Execute(context.Background(), Request{Payload: []byte(`{}`)})
	require.NoError(t, err)

	lines := 0
	for _, line := range splitLines(resp.Payload) {
		if len(line) > 0 {
			lines++
		}
	}
	assert.Equal(t, 2, lines)
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			out = append(out, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, data[start:])
	}
	return out
}
