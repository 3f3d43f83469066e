// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package secret

import "os"

// GetEnv returns the value of the environment variable named by the key,
// or fallback if the variable is not present.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Gemini CLI Client Credentials
func GeminiClientID() string {
	return GetEnv("GEMINI_CLIENT_ID", "")
}

func GeminiClientSecret() string {
	return GetEnv("GEMINI_CLIENT_SECRET", "")
}

// Antigravity Client Credentials
func AntigravityClientID() string {
	return GetEnv("ANTIGRAVITY_CLIENT_ID", "")
}

func AntigravityClientSecret() string {
	return GetEnv("ANTIGRAVITY_CLIENT_SECRET", "")
}

// Codex Client Credentials. The default is the public ChatGPT OAuth app ID
// used by the Codex CLI; it is not a secret.
func CodexClientID() string {
	return GetEnv("CODEX_CLIENT_ID", "app_EMoamEEZ73f0CkXaXp7hrann")
}
