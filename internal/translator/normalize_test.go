// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/aa105132/CatieCli/internal/constant"
)

func TestBaseModelName(t *testing.T) {
	cases := map[string]string{
		"gemini-2.5-flash":             "gemini-2.5-flash",
		"gemini-2.5-flash-nothinking":  "gemini-2.5-flash",
		"gemini-2.5-pro-maxthinking":   "gemini-2.5-pro",
		"gemini-2.5-pro-search":        "gemini-2.5-pro",
		"gemini-3-pro-preview-high":    "gemini-3-pro-preview",
		"gemini-2.5-flash-search-high": "gemini-2.5-flash",
	}
	for in, want := range cases {
		assert.Equal(t, want, BaseModelName(in), in)
	}
}

func TestThinkingSettings(t *testing.T) {
	cases := []struct {
		model  string
		budget int
		level  string
	}{
		{"gemini-2.5-flash-nothinking", 0, ""},
		{"gemini-2.5-pro-nothinking", 128, ""},
		{"gemini-2.5-flash-maxthinking", 24576, ""},
		{"gemini-2.5-pro-maxthinking", 32768, ""},
		{"gemini-2.5-pro-max", 32768, ""},
		{"gemini-2.5-flash-max", 24576, ""},
		{"gemini-2.5-pro-high", 16000, ""},
		{"gemini-2.5-pro-medium", 8192, ""},
		{"gemini-2.5-pro-low", 1024, ""},
		{"gemini-2.5-flash-minimal", 0, ""},
		{"gemini-2.5-pro-minimal", 128, ""},
		{"gemini-3-pro-preview-high", -1, "high"},
		{"gemini-3-flash-preview-medium", -1, "medium"},
		{"gemini-3-pro-preview-medium", -1, ""},
		{"gemini-3-pro-preview-low", -1, "low"},
		{"gemini-2.5-pro", -1, ""},
	}
	for _, c := range cases {
		budget, level := thinkingSettings(c.model)
		assert.Equal(t, c.budget, budget, c.model)
		assert.Equal(t, c.level, level, c.model)
	}
}

func TestMapAntigravityModel(t *testing.T) {
	assert.Equal(t, "claude-opus-4-5-thinking", MapAntigravityModel("claude-opus-4-5"))
	assert.Equal(t, "claude-sonnet-4-5-thinking", MapAntigravityModel("claude-sonnet-4-5-thinking"))
	assert.Equal(t, "gemini-2.5-flash", MapAntigravityModel("claude-haiku-4-5"))
	assert.Equal(t, "gemini-3-pro-preview", MapAntigravityModel("gemini-3-pro-preview"))
}

func TestNormalizeGeminiRequestGeminiCLI(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}],
		"generationConfig":{"temperature":0.5}}`)

	model, out := NormalizeGeminiRequest(constant.GeminiCLI, "gemini-2.5-pro-maxthinking", body)
	assert.Equal(t, "gemini-2.5-pro", model)

	root := gjson.ParseBytes(out)
	assert.EqualValues(t, 32768, root.Get("generationConfig.thinkingConfig.thinkingBudget").Int())
	assert.True(t, root.Get("generationConfig.thinkingConfig.includeThoughts").Bool())
	assert.EqualValues(t, 64000, root.Get("generationConfig.maxOutputTokens").Int())
	assert.EqualValues(t, 64, root.Get("generationConfig.topK").Int())
	assert.Len(t, root.Get("safetySettings").Array(), 10)
	for _, s := range root.Get("safetySettings").Array() {
		assert.Equal(t, "BLOCK_NONE", s.Get("threshold").String())
	}
}

func TestNormalizeGeminiRequestThinkingLevel(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	model, out := NormalizeGeminiRequest(constant.GeminiCLI, "gemini-3-pro-preview-low", body)
	assert.Equal(t, "gemini-3-pro-preview", model)

	root := gjson.ParseBytes(out)
	assert.Equal(t, "low", root.Get("generationConfig.thinkingConfig.thinkingLevel").String())
	assert.False(t, root.Get("generationConfig.thinkingConfig.thinkingBudget").Exists())
	assert.EqualValues(t, 64000, root.Get("generationConfig.maxOutputTokens").Int())
}

func TestNormalizeGeminiRequestSearch(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	model, out := NormalizeGeminiRequest(constant.GeminiCLI, "gemini-2.5-flash-search", body)
	assert.Equal(t, "gemini-2.5-flash", model)
	assert.True(t, gjson.GetBytes(out, `tools.#(googleSearch)`).Exists())
}

func TestNormalizeGeminiRequestAntigravity(t *testing.T) {
	body := []byte(`{"contents":[
		{"role":"user","parts":[{"text":"do it"}]},
		{"role":"model","parts":[{"functionCall":{"name":"run","args":{}}}]},
		{"role":"user","parts":[{"functionResponse":{"name":"run","response":{"result":"ok"}}}]}
	],
	"generationConfig":{"presencePenalty":0.1,"frequencyPenalty":0.2,"stopSequences":["x"],"temperature":1}}`)

	model, out := NormalizeGeminiRequest(constant.Antigravity, "claude-sonnet-4-5", body)
	assert.Equal(t, "claude-sonnet-4-5-thinking", model)

	root := gjson.ParseBytes(out)
	assert.False(t, root.Get("generationConfig.presencePenalty").Exists())
	assert.False(t, root.Get("generationConfig.frequencyPenalty").Exists())
	assert.False(t, root.Get("generationConfig.stopSequences").Exists())

	// The replayed model turn grows a leading thought part so the upstream
	// signature validator accepts it.
	first := root.Get("contents.1.parts.0")
	assert.True(t, first.Get("thought").Bool())
	assert.Equal(t, skipThoughtSignature, first.Get("thoughtSignature").String())
	assert.Equal(t, "run", root.Get("contents.1.parts.1.functionCall.name").String())
}

func TestNormalizeGeminiRequestCleansEmptyParts(t *testing.T) {
	body := []byte(`{"contents":[
		{"role":"user","parts":[{"text":"keep me  \n"},{"text":""}]},
		{"role":"model","parts":[{"text":"   "}]}
	]}`)
	_, out := NormalizeGeminiRequest(constant.GeminiCLI, "gemini-2.5-flash", body)

	contents := gjson.GetBytes(out, "contents").Array()
	assert.Len(t, contents, 1)
	parts := contents[0].Get("parts").Array()
	assert.Len(t, parts, 1)
	assert.Equal(t, "keep me", parts[0].Get("text").String())
}
