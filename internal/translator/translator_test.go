// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestToolCallIDSignatureRoundTrip(t *testing.T) {
	sig := "CsYHAXLI2ny/binary\x00signature=="
	encoded := EncodeToolCallID("call_42", sig)
	assert.Contains(t, encoded, "::sig:")

	id, decoded := DecodeToolCallID(encoded)
	assert.Equal(t, "call_42", id)
	assert.Equal(t, sig, decoded)
}

func TestDecodeToolCallIDPlain(t *testing.T) {
	id, sig := DecodeToolCallID("call_plain")
	assert.Equal(t, "call_plain", id)
	assert.Empty(t, sig)

	// Garbage after the separator must not destroy the ID.
	id, sig = DecodeToolCallID("call_x::sig:%%%not-base64%%%")
	assert.Equal(t, "call_x::sig:%%%not-base64%%%", id)
	assert.Empty(t, sig)
}

func TestConvertOpenAIRequestToGemini(t *testing.T) {
	body := []byte(`{
		"model": "gemini-2.5-pro",
		"messages": [
			{"role": "system", "content": "Be terse."},
			{"role": "user", "content": "What is the weather in Berlin?"},
			{"role": "assistant", "content": "", "tool_calls": [
				{"id": "call_1::sig:c2lnLTE=", "type": "function",
				 "function": {"name": "get_weather", "arguments": "{\"city\":\"Berlin\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1::sig:c2lnLTE=", "content": "18C, clear"}
		],
		"temperature": 0.2,
		"max_tokens": 1000,
		"tools": [{"type": "function", "function": {
			"name": "get_weather", "description": "Weather lookup",
			"parameters": {"type": "object", "properties": {"city": {"type": "string"}}}
		}}]
	}`)

	out := ConvertOpenAIRequestToGemini("gemini-2.5-pro", body, false)
	root := gjson.ParseBytes(out)

	assert.Equal(t, "Be terse.", root.Get("systemInstruction.parts.0.text").String())
	assert.Equal(t, "user", root.Get("contents.0.role").String())

	call := root.Get("contents.1.parts.0")
	assert.Equal(t, "get_weather", call.Get("functionCall.name").String())
	assert.Equal(t, "Berlin", call.Get("functionCall.args.city").String())
	// The signature embedded in the tool-call ID resurfaces verbatim.
	assert.Equal(t, "sig-1", call.Get("thoughtSignature").String())

	resp := root.Get("contents.2.parts.0.functionResponse")
	assert.Equal(t, "get_weather", resp.Get("name").String())
	assert.Equal(t, "18C, clear", resp.Get("response.result").String())

	assert.Equal(t, "get_weather", root.Get("tools.0.functionDeclarations.0.name").String())
	assert.InDelta(t, 0.2, root.Get("generationConfig.temperature").Float(), 1e-9)
	assert.EqualValues(t, 1000, root.Get("generationConfig.maxOutputTokens").Int())
}

func TestConvertOpenAIRequestToGeminiImages(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":[
		{"type":"text","text":"Describe this"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,aWInZw=="}}
	]}]}`)
	out := ConvertOpenAIRequestToGemini("gemini-2.5-flash", body, false)
	root := gjson.ParseBytes(out)

	assert.Equal(t, "Describe this", root.Get("contents.0.parts.0.text").String())
	inline := root.Get("contents.0.parts.1.inlineData")
	assert.Equal(t, "image/png", inline.Get("mimeType").String())
	assert.Equal(t, "aWInZw==", inline.Get("data").String())
}

func TestConvertGeminiResponseToOpenAINonStream(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[
		{"text":"thinking about it","thought":true},
		{"text":"It is sunny."},
		{"functionCall":{"name":"get_weather","args":{"city":"Berlin"}},"thoughtSignature":"sig-xyz"}
	]},"finishReason":"STOP"}],
	"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`)

	out := ConvertGeminiResponseToOpenAINonStream(context.Background(), "gemini-2.5-pro", nil, raw)
	root := gjson.Parse(out)

	msg := root.Get("choices.0.message")
	assert.Equal(t, "It is sunny.", msg.Get("content").String())
	assert.Equal(t, "thinking about it", msg.Get("reasoning_content").String())
	assert.Equal(t, "tool_calls", root.Get("choices.0.finish_reason").String())
	assert.EqualValues(t, 15, root.Get("usage.total_tokens").Int())

	// Signature survives the encode/decode round trip byte-identically.
	_, sig := DecodeToolCallID(msg.Get("tool_calls.0.id").String())
	assert.Equal(t, "sig-xyz", sig)
	assert.Equal(t, "get_weather", msg.Get("tool_calls.0.function.name").String())
}

func TestConvertGeminiResponseToOpenAIStreaming(t *testing.T) {
	ctx := context.Background()
	var param any

	first := ConvertGeminiResponseToOpenAI(ctx, "m", nil,
		[]byte(`{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`), &param)
	require.Len(t, first, 1)
	chunk := gjson.Parse(strings.TrimPrefix(first[0], "data: "))
	assert.Equal(t, "assistant", chunk.Get("choices.0.delta.role").String())
	assert.Equal(t, "Hel", chunk.Get("choices.0.delta.content").String())

	second := ConvertGeminiResponseToOpenAI(ctx, "m", nil,
		[]byte(`{"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],
		"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2,"totalTokenCount":3}}`), &param)
	require.Len(t, second, 2)
	// Role is sent exactly once.
	assert.False(t, gjson.Parse(strings.TrimPrefix(second[0], "data: ")).Get("choices.0.delta.role").Exists())
	final := gjson.Parse(strings.TrimPrefix(second[1], "data: "))
	assert.Equal(t, "stop", final.Get("choices.0.finish_reason").String())
	assert.EqualValues(t, 3, final.Get("usage.total_tokens").Int())

	// IDs are stable across chunks of one response.
	assert.Equal(t,
		gjson.Parse(strings.TrimPrefix(first[0], "data: ")).Get("id").String(),
		final.Get("id").String())
}

func TestConvertGeminiResponseToOpenAIStreamUnwrapsEnvelope(t *testing.T) {
	var param any
	out := ConvertGeminiResponseToOpenAI(context.Background(), "m", nil,
		[]byte(`data: {"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}}`), &param)
	require.Len(t, out, 1)
	assert.Equal(t, "hi", gjson.Parse(strings.TrimPrefix(out[0], "data: ")).Get("choices.0.delta.content").String())
}

func TestConvertClaudeRequestToGemini(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet-4-5",
		"system": "You are helpful.",
		"max_tokens": 2048,
		"thinking": {"type": "enabled", "budget_tokens": 4096},
		"messages": [
			{"role": "user", "content": "Check the weather"},
			{"role": "assistant", "content": [
				{"type": "thinking", "thinking": "I should call the tool", "signature": "th-sig"},
				{"type": "tool_use", "id": "toolu_1::sig:Z2VtLXNpZw==", "name": "get_weather", "input": {"city": "Oslo"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1::sig:Z2VtLXNpZw==", "content": "3C, snow"}
			]}
		],
		"tools": [{"name": "get_weather", "description": "d", "input_schema": {"type": "object"}}]
	}`)

	out := ConvertClaudeRequestToGemini("claude-sonnet-4-5", body, false)
	root := gjson.ParseBytes(out)

	assert.Equal(t, "You are helpful.", root.Get("systemInstruction.parts.0.text").String())

	thinking := root.Get("contents.1.parts.0")
	assert.True(t, thinking.Get("thought").Bool())
	assert.Equal(t, "th-sig", thinking.Get("thoughtSignature").String())

	call := root.Get("contents.1.parts.1")
	assert.Equal(t, "get_weather", call.Get("functionCall.name").String())
	assert.Equal(t, "Oslo", call.Get("functionCall.args.city").String())
	assert.Equal(t, "gem-sig", call.Get("thoughtSignature").String())

	result := root.Get("contents.2.parts.0.functionResponse")
	assert.Equal(t, "get_weather", result.Get("name").String())
	assert.Equal(t, "3C, snow", result.Get("response.result").String())

	assert.EqualValues(t, 4096, root.Get("generationConfig.thinkingConfig.thinkingBudget").Int())
	assert.EqualValues(t, 2048, root.Get("generationConfig.maxOutputTokens").Int())
}

func TestConvertGeminiResponseToClaudeNonStream(t *testing.T) {
	raw := []byte(`{"response":{"candidates":[{"content":{"parts":[
		{"text":"pondering","thought":true,"thoughtSignature":"tsig"},
		{"text":"Done."},
		{"functionCall":{"name":"lookup","args":{"q":"x"}},"thoughtSignature":"fsig"}
	]},"finishReason":"STOP"}],
	"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3}}}`)

	out := ConvertGeminiResponseToClaudeNonStream(context.Background(), "claude-sonnet-4-5", nil, raw)
	root := gjson.Parse(out)

	assert.Equal(t, "thinking", root.Get("content.0.type").String())
	assert.Equal(t, "tsig", root.Get("content.0.signature").String())
	assert.Equal(t, "text", root.Get("content.1.type").String())
	assert.Equal(t, "tool_use", root.Get("content.2.type").String())
	_, sig := DecodeToolCallID(root.Get("content.2.id").String())
	assert.Equal(t, "fsig", sig)
	assert.Equal(t, "tool_use", root.Get("stop_reason").String())
	assert.EqualValues(t, 7, root.Get("usage.input_tokens").Int())
}

func TestConvertGeminiResponseToClaudeStreaming(t *testing.T) {
	ctx := context.Background()
	var param any

	first := ConvertGeminiResponseToClaude(ctx, "m", nil,
		[]byte(`{"candidates":[{"content":{"parts":[{"text":"Hi"}]}}]}`), &param)
	require.NotEmpty(t, first)
	assert.Contains(t, first[0], "message_start")
	assert.Contains(t, first[1], "content_block_start")
	assert.Contains(t, first[2], "text_delta")

	second := ConvertGeminiResponseToClaude(ctx, "m", nil,
		[]byte(`{"candidates":[{"content":{"parts":[{"text":"!"}]},"finishReason":"STOP"}]}`), &param)
	joined := strings.Join(second, "\n")
	// The open text block continues without a second message_start.
	assert.NotContains(t, joined, "message_start")
	assert.Contains(t, joined, "content_block_stop")
	assert.Contains(t, joined, `"stop_reason":"end_turn"`)
	assert.Contains(t, second[len(second)-1], "message_stop")
}

func TestLookupUnknownPair(t *testing.T) {
	_, err := LookupRequest("openai", "unknown-upstream")
	assert.Error(t, err)
	_, err = LookupResponse("openai", "gemini")
	assert.NoError(t, err)
}
