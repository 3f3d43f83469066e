// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package executor implements the upstream clients for the supported
// providers. Executors receive already-normalized provider payloads and a
// resolved access token; credential selection, refresh, and protocol
// translation happen in the layers above.
package executor

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Request carries one upstream attempt.
type Request struct {
	// Model is the upstream model name, already normalized.
	Model string
	// AccessToken is the bearer token of the selected credential.
	AccessToken string
	// ProjectID is the Cloud Code project, empty for Codex.
	ProjectID string
	// AccountID is the ChatGPT account ID, Codex only.
	AccountID string
	// Payload is the provider-shaped request body.
	Payload []byte
}

// Response is a complete upstream response body.
type Response struct {
	Payload []byte
}

// StreamChunk is one upstream SSE payload or a terminal stream error.
type StreamChunk struct {
	Payload []byte
	Err     error
}

// Executor is implemented by each upstream client.
type Executor interface {
	Identifier() string
	Execute(ctx context.Context, req Request) (Response, error)
	ExecuteStream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

var retryAfterMessagePattern = regexp.MustCompile(`after\s+(\d+)\s*s`)

// StatusError is a non-2xx upstream response. RetryAfter carries the
// upstream-advertised reset delay when one could be parsed from a 429.
type StatusError struct {
	code       int
	msg        string
	retryAfter *time.Duration
}

// NewStatusError builds a StatusError from an upstream response.
func NewStatusError(statusCode int, body []byte, header http.Header) *StatusError {
	err := &StatusError{code: statusCode, msg: string(body)}
	if statusCode == http.StatusTooManyRequests {
		if d := ParseRetryDelay(body, header); d != nil {
			err.retryAfter = d
		}
	}
	return err
}

func (e *StatusError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("status %d: %s", e.code, e.msg)
	}
	return fmt.Sprintf("status %d", e.code)
}

// StatusCode returns the upstream HTTP status.
func (e *StatusError) StatusCode() int { return e.code }

// RetryAfter returns the parsed reset delay, nil when none was advertised.
func (e *StatusError) RetryAfter() *time.Duration { return e.retryAfter }

// ParseRetryDelay extracts the reset delay from a Google-style 429 response.
// Sources, in priority order: RetryInfo.retryDelay, ErrorInfo's
// quotaResetTimeStamp and quotaResetDelay metadata, the Retry-After header,
// and finally a "retry after Ns" phrase in the error message.
func ParseRetryDelay(body []byte, header http.Header) *time.Duration {
	details := gjson.GetBytes(body, "error.details")
	for _, detail := range details.Array() {
		if detail.Get("@type").String() != "type.googleapis.com/google.rpc.RetryInfo" {
			continue
		}
		if d, err := time.ParseDuration(detail.Get("retryDelay").String()); err == nil {
			return &d
		}
	}
	for _, detail := range details.Array() {
		if detail.Get("@type").String() != "type.googleapis.com/google.rpc.ErrorInfo" {
			continue
		}
		if ts := detail.Get("metadata.quotaResetTimeStamp").String(); ts != "" {
			if reset, err := time.Parse(time.RFC3339, ts); err == nil {
				if d := time.Until(reset); d > 0 {
					return &d
				}
			}
		}
		if d, err := time.ParseDuration(detail.Get("metadata.quotaResetDelay").String()); err == nil {
			return &d
		}
	}
	if header != nil {
		if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil && secs > 0 {
			d := time.Duration(secs) * time.Second
			return &d
		}
	}
	if m := retryAfterMessagePattern.FindStringSubmatch(gjson.GetBytes(body, "error.message").String()); len(m) > 1 {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			d := time.Duration(secs) * time.Second
			return &d
		}
	}
	return nil
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
