// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package usage

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"
)

// imageTokenCost is the flat per-image charge used when estimating.
const imageTokenCost = 300

func codecFor(model string) (tokenizer.Codec, error) {
	sanitized := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(sanitized, "gpt-5"):
		return tokenizer.ForModel(tokenizer.GPT5)
	case strings.HasPrefix(sanitized, "gpt-4o"):
		return tokenizer.ForModel(tokenizer.GPT4o)
	case strings.HasPrefix(sanitized, "gpt-4"):
		return tokenizer.ForModel(tokenizer.GPT4)
	default:
		return tokenizer.Get(tokenizer.Cl100kBase)
	}
}

// EstimateTokens estimates the token count of a JSON payload in any of the
// supported request/response shapes. Text is tokenized with tiktoken when
// possible and falls back to a chars/4 approximation; every image part adds
// a flat charge. Estimates back usage accounting only, never billing.
func EstimateTokens(model string, payload []byte) int64 {
	var texts []string
	images := 0
	walkPayload(gjson.ParseBytes(payload), &texts, &images)

	var total int64
	joined := strings.Join(texts, "\n")
	if joined != "" {
		if enc, err := codecFor(model); err == nil {
			if count, errCount := enc.Count(joined); errCount == nil {
				total = int64(count)
			}
		}
	}
	if total == 0 && len(joined) > 0 {
		total = int64(len(joined) / 4)
	}
	total += int64(images * imageTokenCost)
	if total < 1 {
		total = 1
	}
	return total
}

// walkPayload collects text fragments and counts image parts across the
// OpenAI, Anthropic, and Gemini shapes.
func walkPayload(node gjson.Result, texts *[]string, images *int) {
	switch {
	case node.IsObject():
		if node.Get("inlineData").Exists() || node.Get("inline_data").Exists() {
			*images++
			return
		}
		switch node.Get("type").String() {
		case "image", "image_url", "input_image":
			*images++
			return
		}
		node.ForEach(func(key, value gjson.Result) bool {
			switch key.String() {
			case "text", "content", "thinking", "instructions", "output", "arguments":
				if value.Type == gjson.String {
					*texts = append(*texts, value.String())
					return true
				}
			}
			walkPayload(value, texts, images)
			return true
		})
	case node.IsArray():
		node.ForEach(func(_, value gjson.Result) bool {
			walkPayload(value, texts, images)
			return true
		})
	}
}
