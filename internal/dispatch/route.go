// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aa105132/CatieCli/internal/constant"
	"github.com/aa105132/CatieCli/internal/pool"
)

// AntiTruncationPrefix opts a streaming request into continuation splicing
// when prepended to the model name.
const AntiTruncationPrefix = "anti-truncation/"

// antigravityModelPrefix forces a model onto the antigravity provider even
// when the bare name would route elsewhere.
const antigravityModelPrefix = "agy-"

// ParseModel strips the anti-truncation prefix from a client-facing model
// name and reports whether it was present.
func ParseModel(model string) (clean string, antiTrunc bool) {
	if strings.HasPrefix(model, AntiTruncationPrefix) {
		return model[len(AntiTruncationPrefix):], true
	}
	return model, false
}

// Route resolves the upstream provider for a model name and returns the name
// with any provider-forcing prefix removed. GPT and codex models go to the
// Codex backend, claude and image models to antigravity, everything else to
// the Gemini CLI endpoint.
func Route(model string) (provider, clean string) {
	if strings.HasPrefix(model, antigravityModelPrefix) {
		return constant.Antigravity, model[len(antigravityModelPrefix):]
	}
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-") || strings.Contains(m, "codex"):
		return constant.Codex, model
	case strings.Contains(m, "claude"):
		return constant.Antigravity, model
	case pool.IsImageModel(model):
		return constant.Antigravity, model
	}
	return constant.GeminiCLI, model
}

// RouteError reports a source format / provider pairing with no registered
// translation, which no retry can fix.
type RouteError struct {
	Source   string
	Provider string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("no translation from %s requests to the %s backend", e.Source, e.Provider)
}

func (e *RouteError) StatusCode() int { return http.StatusBadRequest }

// UpstreamError terminates the retry loop after the attempt budgets are
// spent. It deliberately carries no per-credential detail; Last keeps the
// final upstream error for the logs.
type UpstreamError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream unavailable after %d attempts", e.Provider, e.Attempts)
}

func (e *UpstreamError) StatusCode() int { return http.StatusServiceUnavailable }

func (e *UpstreamError) Unwrap() error { return e.Last }
