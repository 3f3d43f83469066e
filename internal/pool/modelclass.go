// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import "strings"

// Model classes. A class is the unit for both daily quotas and per-credential
// cooldowns. Gemini-CLI groups by model family, Antigravity by quota pool
// (all claude variants share one pool regardless of -thinking suffixes),
// Codex has a single class.
const (
	ClassFlash  = "flash"
	ClassPro    = "pro"
	ClassG3     = "30"
	ClassClaude = "claude"
	ClassGemini = "gemini"
	ClassBanana = "banana"
	ClassCodex  = "codex"
)

// Classes lists every quota class across the providers.
func Classes() []string {
	return []string{ClassFlash, ClassPro, ClassG3, ClassClaude, ClassGemini, ClassBanana, ClassCodex}
}

// RequiredTier returns the credential tier a model needs. Gemini 3 preview
// models need preview-tier credentials; everything else runs on standard.
func RequiredTier(model string) string {
	if strings.Contains(strings.ToLower(model), "gemini-3-") {
		return TierPreview
	}
	return TierStandard
}

// ClassFor maps a model to its quota/cooldown class for a provider.
func ClassFor(provider, model string) string {
	lower := strings.ToLower(model)
	switch provider {
	case ProviderAntigravity:
		switch {
		case strings.Contains(lower, "claude"):
			return ClassClaude
		case strings.Contains(lower, "image"):
			return ClassBanana
		default:
			return ClassGemini
		}
	case ProviderCodex:
		return ClassCodex
	default:
		switch {
		case strings.Contains(lower, "gemini-3-"):
			return ClassG3
		case strings.Contains(lower, "pro"):
			return ClassPro
		default:
			return ClassFlash
		}
	}
}

// IsImageModel reports whether the model belongs to the image class. Image
// models do not stream upstream; the gateway fakes streaming for them.
func IsImageModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "image")
}
