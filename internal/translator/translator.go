// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package translator converts between client-facing wire formats (OpenAI
// chat completions, Gemini native, Anthropic Messages) and the upstream
// provider formats. Gemini is the hub shape: client requests are lowered to
// Gemini, per-provider executors wrap the Gemini payload, and responses are
// raised back to the client shape, streaming or not.
package translator

import (
	"context"
	"fmt"
	"sync"
)

// RequestTransform converts a client request body into the target format.
type RequestTransform func(modelName string, rawJSON []byte, stream bool) []byte

// StreamTransform converts one upstream chunk into zero or more client SSE
// payloads. param threads translator-private state across chunks of one
// response; it starts nil and is initialized on first use.
type StreamTransform func(ctx context.Context, modelName string, requestRawJSON, rawJSON []byte, param *any) []string

// NonStreamTransform converts a complete upstream response body.
type NonStreamTransform func(ctx context.Context, modelName string, requestRawJSON, rawJSON []byte) string

// TranslateResponse bundles the response-direction transforms for one pair.
type TranslateResponse struct {
	Stream    StreamTransform
	NonStream NonStreamTransform
}

type pairKey struct{ from, to string }

var (
	regMu     sync.RWMutex
	requests  = make(map[pairKey]RequestTransform)
	responses = make(map[pairKey]TranslateResponse)
)

// Register installs the transforms for converting from-format requests into
// to-format requests and to-format responses back into from-format.
func Register(from, to string, request RequestTransform, response TranslateResponse) {
	regMu.Lock()
	defer regMu.Unlock()
	key := pairKey{from: from, to: to}
	requests[key] = request
	responses[key] = response
}

// LookupRequest returns the request transform for a format pair.
func LookupRequest(from, to string) (RequestTransform, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	fn, ok := requests[pairKey{from: from, to: to}]
	if !ok {
		return nil, fmt.Errorf("translator: no request transform %s -> %s", from, to)
	}
	return fn, nil
}

// LookupResponse returns the response transforms for a format pair.
func LookupResponse(from, to string) (TranslateResponse, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	tr, ok := responses[pairKey{from: from, to: to}]
	if !ok || (tr.Stream == nil && tr.NonStream == nil) {
		return TranslateResponse{}, fmt.Errorf("translator: no response transform %s -> %s", to, from)
	}
	return tr, nil
}
