// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package constant defines the protocol and provider identifiers used
// throughout the gateway, ensuring consistent naming across the application.
package constant

const (
	// Gemini represents the Gemini native wire format.
	Gemini = "gemini"

	// GeminiCLI represents the Google Gemini CLI (Cloud Code) upstream.
	GeminiCLI = "geminicli"

	// Antigravity represents the Antigravity upstream.
	Antigravity = "antigravity"

	// Codex represents the OpenAI Codex (ChatGPT Responses) upstream.
	Codex = "codex"

	// Claude represents the Anthropic Messages wire format.
	Claude = "claude"

	// OpenAI represents the OpenAI chat-completions wire format.
	OpenAI = "openai"

	// MaxStreamingScannerBuffer is the maximum buffer size for the streaming
	// scanner. Image-class responses inline base64 payloads into a single
	// SSE line, so this has to be generous.
	MaxStreamingScannerBuffer = 16 * 1024 * 1024
)
