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

func TestParseCodexModel(t *testing.T) {
	cases := []struct{ in, base, effort string }{
		{"gpt-5-codex", "gpt-5-codex", "medium"},
		{"gpt-5-codex-maxthinking", "gpt-5-codex", "xhigh"},
		{"gpt-5-codex-nothinking", "gpt-5-codex", "minimal"},
		{"gpt-5-codex-low", "gpt-5-codex", "low"},
	}
	for _, c := range cases {
		base, effort := ParseCodexModel(c.in)
		assert.Equal(t, c.base, base, c.in)
		assert.Equal(t, c.effort, effort, c.in)
	}
}

func TestConvertOpenAIRequestToCodex(t *testing.T) {
	body := []byte(`{
		"model": "gpt-5-codex-low",
		"messages": [
			{"role": "system", "content": "You write Go."},
			{"role": "user", "content": "List files"},
			{"role": "assistant", "tool_calls": [
				{"id": "call_ls", "type": "function",
				 "function": {"name": "shell", "arguments": "{\"cmd\":\"ls\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_ls", "content": "main.go"}
		],
		"tools": [{"type": "function", "function": {
			"name": "shell", "description": "Run a command",
			"parameters": {"type": "object", "properties": {"cmd": {"type": "string"}}}
		}}]
	}`)

	out := ConvertOpenAIRequestToCodex("gpt-5-codex-low", body, true)
	root := gjson.ParseBytes(out)

	assert.Equal(t, "gpt-5-codex", root.Get("model").String())
	assert.Equal(t, "You write Go.", root.Get("instructions").String())
	assert.Equal(t, "low", root.Get("reasoning.effort").String())
	assert.True(t, root.Get("stream").Bool())
	assert.False(t, root.Get("store").Bool())
	assert.Equal(t, "reasoning.encrypted_content", root.Get("include.0").String())

	input := root.Get("input").Array()
	require.Len(t, input, 3)
	assert.Equal(t, "message", input[0].Get("type").String())
	assert.Equal(t, "input_text", input[0].Get("content.0.type").String())
	assert.Equal(t, "function_call", input[1].Get("type").String())
	assert.Equal(t, "call_ls", input[1].Get("call_id").String())
	assert.Equal(t, "shell", input[1].Get("name").String())
	assert.Equal(t, "function_call_output", input[2].Get("type").String())
	assert.Equal(t, "main.go", input[2].Get("output").String())

	// Responses tools are flat, not nested under "function".
	assert.Equal(t, "shell", root.Get("tools.0.name").String())
	assert.Equal(t, "function", root.Get("tools.0.type").String())
	assert.False(t, root.Get("tools.0.function").Exists())
}

func TestConvertCodexResponseToOpenAIStreaming(t *testing.T) {
	ctx := context.Background()
	var param any

	events := []string{
		`{"type":"response.reasoning_summary_text.delta","delta":"Plan: ls"}`,
		`{"type":"response.reasoning_summary_text.done"}`,
		`{"type":"response.output_text.delta","delta":"Running"}`,
		`{"type":"response.function_call_arguments.delta","call_id":"call_1","delta":"{\"cmd\":"}`,
		`{"type":"response.function_call_arguments.delta","call_id":"call_1","delta":"\"ls\"}"}`,
		`{"type":"response.function_call_arguments.done","call_id":"call_1","name":"shell"}`,
		`{"type":"response.completed","response":{"usage":{"input_tokens":4,"output_tokens":6,"total_tokens":10}}}`,
	}

	var chunks []string
	for _, ev := range events {
		chunks = append(chunks, ConvertCodexResponseToOpenAI(ctx, "gpt-5-codex", nil, []byte(ev), &param)...)
	}
	require.Len(t, chunks, 7)

	first := gjson.Parse(strings.TrimPrefix(chunks[0], "data: "))
	assert.Equal(t, "assistant", first.Get("choices.0.delta.role").String())
	assert.Equal(t, "Plan: ls", first.Get("choices.0.delta.reasoning_content").String())

	argDelta := gjson.Parse(strings.TrimPrefix(chunks[3], "data: "))
	assert.Equal(t, "call_1", argDelta.Get("choices.0.delta.tool_calls.0.id").String())
	assert.EqualValues(t, 0, argDelta.Get("choices.0.delta.tool_calls.0.index").Int())

	named := gjson.Parse(strings.TrimPrefix(chunks[5], "data: "))
	assert.Equal(t, "shell", named.Get("choices.0.delta.tool_calls.0.function.name").String())

	final := gjson.Parse(strings.TrimPrefix(chunks[6], "data: "))
	assert.Equal(t, "tool_calls", final.Get("choices.0.finish_reason").String())
	assert.EqualValues(t, 10, final.Get("usage.total_tokens").Int())
}

func TestConvertCodexResponseToOpenAINonStream(t *testing.T) {
	transcript := strings.Join([]string{
		`data: {"type":"response.reasoning_summary_text.delta","delta":"think"}`,
		`data: {"type":"response.output_text.delta","delta":"Hello "}`,
		`data: {"type":"response.output_text.delta","delta":"world"}`,
		`data: {"type":"response.function_call_arguments.delta","call_id":"c1","delta":"{}"}`,
		`data: {"type":"response.function_call_arguments.done","call_id":"c1","name":"noop"}`,
		`data: {"type":"response.completed","response":{"usage":{"input_tokens":2,"output_tokens":3,"total_tokens":5}}}`,
	}, "\n")

	out := ConvertCodexResponseToOpenAINonStream(context.Background(), "gpt-5-codex", nil, []byte(transcript))
	root := gjson.Parse(out)

	msg := root.Get("choices.0.message")
	assert.Equal(t, "Hello world", msg.Get("content").String())
	assert.Equal(t, "think", msg.Get("reasoning_content").String())
	assert.Equal(t, "noop", msg.Get("tool_calls.0.function.name").String())
	assert.Equal(t, "{}", msg.Get("tool_calls.0.function.arguments").String())
	assert.Equal(t, "tool_calls", root.Get("choices.0.finish_reason").String())
	assert.EqualValues(t, 5, root.Get("usage.total_tokens").Int())
}
