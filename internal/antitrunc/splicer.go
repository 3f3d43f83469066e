// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package antitrunc detects upstream responses cut off at the output-token
// ceiling and transparently continues them, splicing the continuation
// chunks into the client-visible stream as one uninterrupted response.
package antitrunc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// truncationReason is the finish reason emitted when the model hit its
// output-token ceiling before a natural stop.
const truncationReason = "MAX_TOKENS"

// continueInstruction asks the model to resume exactly where the previous
// fragment ended.
const continueInstruction = "Continue exactly from where you stopped. Do not repeat any text you already produced, do not add an introduction."

// Chunk is one upstream stream element: a raw Gemini-shaped JSON payload or
// a terminal error.
type Chunk struct {
	Data []byte
	Err  error
}

// ContinueFunc issues a continuation request carrying the text produced so
// far and returns the continuation's chunk stream. Implementations reuse the
// credential and model of the original request.
type ContinueFunc func(ctx context.Context, partialText string) (<-chan Chunk, error)

// Splicer rewrites a chunk stream so that token-ceiling truncations become
// invisible to the client: the truncated finish is swallowed, a continuation
// is fetched, and its chunks continue the same stream. Bounded by a maximum
// number of continuation hops.
type Splicer struct {
	maxHops    int
	continueFn ContinueFunc
}

// NewSplicer returns a Splicer allowing at most maxHops continuations. A
// non-positive maxHops disables splicing entirely.
func NewSplicer(maxHops int, fn ContinueFunc) *Splicer {
	return &Splicer{maxHops: maxHops, continueFn: fn}
}

// IsTruncated reports whether a chunk carries the token-ceiling finish.
func IsTruncated(data []byte) bool {
	return candidate(data).Get("finishReason").String() == truncationReason
}

// candidate returns the first candidate of a chunk, looking under the Cloud
// Code {"response": ...} envelope as well as at the top level.
func candidate(data []byte) gjson.Result {
	if c := gjson.GetBytes(data, "candidates.0"); c.Exists() {
		return c
	}
	return gjson.GetBytes(data, "response.candidates.0")
}

// chunkText extracts the non-thought text of a chunk.
func chunkText(data []byte) string {
	var b strings.Builder
	candidate(data).Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if part.Get("thought").Bool() {
			return true
		}
		if text := part.Get("text"); text.Exists() {
			b.WriteString(text.String())
		}
		return true
	})
	return b.String()
}

// stripFinish removes the finish reason and usage from a truncated chunk so
// the client does not observe an intermediate stop.
func stripFinish(data []byte) []byte {
	out := data
	for _, path := range []string{
		"candidates.0.finishReason",
		"response.candidates.0.finishReason",
		"usageMetadata",
		"response.usageMetadata",
	} {
		if next, err := sjson.DeleteBytes(out, path); err == nil {
			out = next
		}
	}
	return out
}

// Run consumes upstream and forwards client-ready chunks to out, continuing
// across truncations. It closes out when the spliced response is complete,
// the context is cancelled, or an error is forwarded.
func (s *Splicer) Run(ctx context.Context, upstream <-chan Chunk, out chan<- Chunk) {
	defer close(out)

	var partial strings.Builder
	hops := 0
	current := upstream

	for {
		chunk, ok := s.recv(ctx, current, out)
		if !ok {
			return
		}
		if chunk.Err != nil {
			s.send(ctx, out, chunk)
			return
		}

		partial.WriteString(chunkText(chunk.Data))

		if !IsTruncated(chunk.Data) || s.continueFn == nil || hops >= s.maxHops {
			if !s.send(ctx, out, chunk) {
				return
			}
			if candidate(chunk.Data).Get("finishReason").Exists() {
				return
			}
			continue
		}

		// Truncated with hops left: hide the stop and fetch the rest.
		hops++
		if !s.send(ctx, out, Chunk{Data: stripFinish(chunk.Data)}) {
			return
		}
		log.Debugf("response truncated at token ceiling, continuing (hop %d/%d)", hops, s.maxHops)

		next, err := s.continueFn(ctx, partial.String())
		if err != nil {
			s.send(ctx, out, Chunk{Err: err})
			return
		}
		current = next
	}
}

// recv reads the next chunk, honoring cancellation. The second return is
// false when the stream ended or the context is done.
func (s *Splicer) recv(ctx context.Context, in <-chan Chunk, out chan<- Chunk) (Chunk, bool) {
	select {
	case <-ctx.Done():
		s.send(ctx, out, Chunk{Err: ctx.Err()})
		return Chunk{}, false
	case chunk, ok := <-in:
		return chunk, ok
	}
}

func (s *Splicer) send(ctx context.Context, out chan<- Chunk, chunk Chunk) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- chunk:
		return true
	}
}

// BuildContinuationRequest extends the original Gemini request with the
// partial model output and a continue instruction, producing the body for
// the next hop.
func BuildContinuationRequest(original []byte, partialText string) []byte {
	out, err := sjson.SetBytes(original, "contents.-1", map[string]any{
		"role":  "model",
		"parts": []map[string]any{{"text": partialText}},
	})
	if err != nil {
		return original
	}
	out, err = sjson.SetBytes(out, "contents.-1", map[string]any{
		"role":  "user",
		"parts": []map[string]any{{"text": continueInstruction}},
	})
	if err != nil {
		return original
	}
	return out
}
