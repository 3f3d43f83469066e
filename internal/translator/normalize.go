// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/aa105132/CatieCli/internal/constant"
)

// defaultSafetySettings disable every harm filter; the upstream accounts are
// operated by consenting pool members and filtering happens client-side.
var defaultSafetySettings = []map[string]string{
	{"category": "HARM_CATEGORY_HARASSMENT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_HATE_SPEECH", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_SEXUALLY_EXPLICIT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_DANGEROUS_CONTENT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_CIVIC_INTEGRITY", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_IMAGE_HATE", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_IMAGE_DANGEROUS_CONTENT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_IMAGE_HARASSMENT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_IMAGE_SEXUALLY_EXPLICIT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_JAILBREAK", "threshold": "BLOCK_NONE"},
}

// skipThoughtSignature satisfies the upstream validator on claude-thinking
// turns replayed without their original thought block.
const skipThoughtSignature = "skip_thought_signature_validator"

// modelSuffixes are stripped to obtain the base model name. Ordered longest
// first so "-maxthinking" is not eaten as "-max" + "thinking".
var modelSuffixes = []string{
	"-maxthinking", "-nothinking",
	"-minimal", "-medium", "-search", "-think",
	"-high", "-max", "-low",
}

// BaseModelName strips every recognized variant suffix from a model name.
func BaseModelName(model string) string {
	for changed := true; changed; {
		changed = false
		for _, suffix := range modelSuffixes {
			if strings.HasSuffix(model, suffix) {
				model = strings.TrimSuffix(model, suffix)
				changed = true
			}
		}
	}
	return model
}

// IsSearchModel reports whether the variant requests Google Search grounding.
func IsSearchModel(model string) bool {
	return strings.Contains(model, "-search")
}

func isThinkingModel(model string) bool {
	return strings.Contains(model, "think") || strings.Contains(strings.ToLower(model), "pro")
}

// thinkingSettings maps a model variant to its thinking configuration.
// Gemini 2.5 models take a token budget, Gemini 3 preview models take a
// level. Exactly one of the returns is meaningful; (-1, "") means leave the
// request's own thinkingConfig alone.
func thinkingSettings(model string) (budget int, level string) {
	base := BaseModelName(model)
	flash := strings.Contains(base, "flash")

	switch {
	case strings.Contains(model, "-nothinking"):
		if flash {
			return 0, ""
		}
		return 128, ""
	case strings.Contains(model, "-maxthinking"):
		if flash {
			return 24576, ""
		}
		return 32768, ""
	}

	if strings.Contains(base, "gemini-3") {
		switch {
		case strings.Contains(model, "-high"):
			return -1, "high"
		case strings.Contains(model, "-medium") && flash:
			return -1, "medium"
		case strings.Contains(model, "-low"):
			return -1, "low"
		}
		return -1, ""
	}

	if strings.Contains(base, "gemini-2.5") {
		switch {
		case strings.Contains(model, "-max"):
			if flash {
				return 24576, ""
			}
			return 32768, ""
		case strings.Contains(model, "-high"):
			return 16000, ""
		case strings.Contains(model, "-medium"):
			return 8192, ""
		case strings.Contains(model, "-low"):
			return 1024, ""
		case strings.Contains(model, "-minimal"):
			if flash {
				return 0, ""
			}
			return 128, ""
		}
	}
	return -1, ""
}

// MapAntigravityModel resolves claude keyword aliases to the concrete
// Antigravity model names. Haiku has no Antigravity equivalent and falls
// back to flash.
func MapAntigravityModel(model string) string {
	model = strings.TrimSuffix(model, "-thinking")
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "opus"):
		return "claude-opus-4-5-thinking"
	case strings.Contains(lower, "sonnet"):
		return "claude-sonnet-4-5-thinking"
	case strings.Contains(lower, "haiku"):
		return "gemini-2.5-flash"
	case strings.Contains(lower, "claude"):
		return "claude-sonnet-4-5-thinking"
	}
	return model
}

// NormalizeGeminiRequest rewrites a Gemini-shaped request body for an
// upstream provider: model alias resolution, thinking configuration, safety
// setting overrides, parameter caps, and part cleanup. It returns the
// upstream model name and the rewritten body.
func NormalizeGeminiRequest(provider, model string, rawJSON []byte) (string, []byte) {
	out := rawJSON

	switch provider {
	case constant.Antigravity:
		mapped := MapAntigravityModel(model)
		if strings.Contains(mapped, "claude") && strings.Contains(mapped, "thinking") {
			out = ensureLeadingThoughtBlock(out)
		}
		model = mapped
		out, _ = sjson.DeleteBytes(out, "generationConfig.presencePenalty")
		out, _ = sjson.DeleteBytes(out, "generationConfig.frequencyPenalty")
		out, _ = sjson.DeleteBytes(out, "generationConfig.stopSequences")

	case constant.GeminiCLI:
		budget, level := thinkingSettings(model)
		explicit := budget >= 0 || level != ""
		if isThinkingModel(model) || explicit {
			switch {
			case budget >= 0:
				out, _ = sjson.SetBytes(out, "generationConfig.thinkingConfig.thinkingBudget", budget)
				out, _ = sjson.DeleteBytes(out, "generationConfig.thinkingConfig.thinkingLevel")
			case level != "":
				out, _ = sjson.SetBytes(out, "generationConfig.thinkingConfig.thinkingLevel", level)
				out, _ = sjson.DeleteBytes(out, "generationConfig.thinkingConfig.thinkingBudget")
			}
			if strings.Contains(BaseModelName(model), "pro") || budget > 0 || level != "" {
				out, _ = sjson.SetBytes(out, "generationConfig.thinkingConfig.includeThoughts", true)
			}
		}
		if IsSearchModel(model) {
			if !gjson.GetBytes(out, `tools.#(googleSearch)`).Exists() {
				out, _ = sjson.SetBytes(out, "tools.-1", map[string]any{"googleSearch": map[string]any{}})
			}
		}
		model = BaseModelName(model)
	}

	out, _ = sjson.SetBytes(out, "safetySettings", defaultSafetySettings)
	if gjson.GetBytes(out, "generationConfig").Exists() {
		out, _ = sjson.SetBytes(out, "generationConfig.maxOutputTokens", 64000)
		out, _ = sjson.SetBytes(out, "generationConfig.topK", 64)
	}
	out = cleanContents(out)
	return model, out
}

// ensureLeadingThoughtBlock prepends a synthetic thought part to the last
// model turn when it replays tool calls without one. Claude thinking models
// validate that a turn containing functionCall parts starts with a thought.
func ensureLeadingThoughtBlock(rawJSON []byte) []byte {
	contents := gjson.GetBytes(rawJSON, "contents")
	if !contents.IsArray() {
		return rawJSON
	}
	arr := contents.Array()
	for i := len(arr) - 1; i >= 0; i-- {
		content := arr[i]
		if content.Get("role").String() != "model" {
			continue
		}
		hasCall := false
		content.Get("parts").ForEach(func(_, part gjson.Result) bool {
			if part.Get("functionCall").Exists() {
				hasCall = true
				return false
			}
			return true
		})
		if !hasCall {
			return rawJSON
		}
		first := content.Get("parts.0")
		if first.Get("thought").Exists() || first.Get("thoughtSignature").Exists() {
			return rawJSON
		}
		var parts []any
		_ = json.Unmarshal([]byte(content.Get("parts").Raw), &parts)
		parts = append([]any{map[string]any{
			"text":             "Continuing with the tool results.",
			"thought":          true,
			"thoughtSignature": skipThoughtSignature,
		}}, parts...)
		raw, err := json.Marshal(parts)
		if err != nil {
			return rawJSON
		}
		out, err := sjson.SetRawBytes(rawJSON, "contents."+strconv.Itoa(i)+".parts", raw)
		if err != nil {
			return rawJSON
		}
		return out
	}
	return rawJSON
}

// cleanContents drops parts carrying no payload and trims trailing
// whitespace from text parts; upstream rejects empty parts.
func cleanContents(rawJSON []byte) []byte {
	contents := gjson.GetBytes(rawJSON, "contents")
	if !contents.IsArray() {
		return rawJSON
	}
	var decoded []map[string]any
	if err := json.Unmarshal([]byte(contents.Raw), &decoded); err != nil {
		return rawJSON
	}

	cleaned := make([]map[string]any, 0, len(decoded))
	for _, content := range decoded {
		rawParts, ok := content["parts"].([]any)
		if !ok {
			cleaned = append(cleaned, content)
			continue
		}
		parts := make([]any, 0, len(rawParts))
		for _, p := range rawParts {
			part, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok {
				part["text"] = strings.TrimRight(text, " \t\n\r")
			}
			if partHasPayload(part) {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			content["parts"] = parts
			cleaned = append(cleaned, content)
		}
	}

	raw, err := json.Marshal(cleaned)
	if err != nil {
		return rawJSON
	}
	out, err := sjson.SetRawBytes(rawJSON, "contents", raw)
	if err != nil {
		return rawJSON
	}
	return out
}

func partHasPayload(part map[string]any) bool {
	for key, value := range part {
		if key == "thought" {
			continue
		}
		switch v := value.(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return true
			}
		case map[string]any:
			if len(v) > 0 {
				return true
			}
		case []any:
			if len(v) > 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}
