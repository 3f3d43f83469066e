// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	. "github.com/aa105132/CatieCli/internal/constant"
)

func init() {
	Register(
		OpenAI,
		Gemini,
		ConvertOpenAIRequestToGemini,
		TranslateResponse{
			Stream:    ConvertGeminiResponseToOpenAI,
			NonStream: ConvertGeminiResponseToOpenAINonStream,
		},
	)
	Register(
		Claude,
		Gemini,
		ConvertClaudeRequestToGemini,
		TranslateResponse{
			Stream:    ConvertGeminiResponseToClaude,
			NonStream: ConvertGeminiResponseToClaudeNonStream,
		},
	)
	Register(
		Gemini,
		Gemini,
		ConvertGeminiRequestToGemini,
		TranslateResponse{
			Stream:    ConvertGeminiResponseToGemini,
			NonStream: ConvertGeminiResponseToGeminiNonStream,
		},
	)
	Register(
		OpenAI,
		Codex,
		ConvertOpenAIRequestToCodex,
		TranslateResponse{
			Stream:    ConvertCodexResponseToOpenAI,
			NonStream: ConvertCodexResponseToOpenAINonStream,
		},
	)
}
