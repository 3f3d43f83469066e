// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"bytes"
	"context"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// codexEffortSuffixes map model-name suffixes to Responses reasoning effort.
var codexEffortSuffixes = []struct{ suffix, effort string }{
	{"-maxthinking", "xhigh"},
	{"-nothinking", "minimal"},
	{"-low", "low"},
}

// ParseCodexModel splits a Codex model variant into the base model and its
// reasoning effort. Unsuffixed models default to medium.
func ParseCodexModel(model string) (base, effort string) {
	lower := strings.ToLower(model)
	for _, s := range codexEffortSuffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return model[:len(model)-len(s.suffix)], s.effort
		}
	}
	return model, "medium"
}

// ConvertOpenAIRequestToCodex lowers an OpenAI chat-completions request onto
// the ChatGPT Responses wire shape: system messages become instructions,
// assistant tool calls and tool results become top-level function_call /
// function_call_output items.
func ConvertOpenAIRequestToCodex(modelName string, rawJSON []byte, _ bool) []byte {
	root := gjson.ParseBytes(rawJSON)
	base, effort := ParseCodexModel(modelName)

	var instructions strings.Builder
	var input []map[string]any

	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		content := msg.Get("content")

		switch role {
		case "system":
			for _, text := range textFragments(content) {
				instructions.WriteString(text)
			}
			return true
		case "tool":
			input = append(input, map[string]any{
				"type":    "function_call_output",
				"call_id": msg.Get("tool_call_id").String(),
				"output":  contentAsText(content),
			})
			return true
		}

		textType := "input_text"
		if role == "assistant" {
			textType = "output_text"
		}
		var contentParts []map[string]any
		if content.Type == gjson.String {
			if content.String() != "" {
				contentParts = append(contentParts, map[string]any{"type": textType, "text": content.String()})
			}
		} else {
			content.ForEach(func(_, item gjson.Result) bool {
				switch {
				case item.Type == gjson.String:
					contentParts = append(contentParts, map[string]any{"type": textType, "text": item.String()})
				case item.Get("type").String() == "text":
					contentParts = append(contentParts, map[string]any{"type": textType, "text": item.Get("text").String()})
				case item.Get("type").String() == "image_url":
					contentParts = append(contentParts, map[string]any{
						"type":      "input_image",
						"image_url": item.Get("image_url.url").String(),
					})
				}
				return true
			})
		}
		if len(contentParts) > 0 {
			input = append(input, map[string]any{"type": "message", "role": role, "content": contentParts})
		}

		msg.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
			callID := call.Get("id").String()
			if callID == "" {
				callID = "call_" + uuid.NewString()[:8]
			}
			input = append(input, map[string]any{
				"type":      "function_call",
				"call_id":   callID,
				"name":      call.Get("function.name").String(),
				"arguments": call.Get("function.arguments").String(),
			})
			return true
		})
		return true
	})

	body := map[string]any{
		"model":               base,
		"input":               input,
		"stream":              true,
		"instructions":        instructions.String(),
		"store":               false,
		"parallel_tool_calls": true,
		"reasoning":           map[string]any{"effort": effort, "summary": "auto"},
		"include":             []string{"reasoning.encrypted_content"},
	}
	if tools := codexTools(root.Get("tools")); tools != nil {
		body["tools"] = tools
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return rawJSON
	}
	return raw
}

// codexTools flattens OpenAI nested function tools to the Responses shape.
func codexTools(tools gjson.Result) []map[string]any {
	if !tools.IsArray() {
		return nil
	}
	var out []map[string]any
	tools.ForEach(func(_, tool gjson.Result) bool {
		fn := tool.Get("function")
		if !fn.Exists() {
			return true
		}
		decl := map[string]any{
			"type": "function",
			"name": fn.Get("name").String(),
		}
		if d := fn.Get("description").String(); d != "" {
			decl["description"] = d
		}
		if params := fn.Get("parameters"); params.Exists() {
			var p map[string]any
			_ = json.Unmarshal([]byte(params.Raw), &p)
			decl["parameters"] = p
		}
		out = append(out, decl)
		return true
	})
	return out
}

type codexToOpenAIState struct {
	ID        string
	Created   int64
	RoleSent  bool
	CallIndex map[string]int
	ToolsSeen bool

	// non-stream assembly
	Text      strings.Builder
	Reasoning strings.Builder
	Calls     []map[string]any
	ArgsBuf   map[string]*strings.Builder
	Usage     map[string]any

	EventBuf *bytes.Buffer
	EventEnc *json.Encoder
}

func newCodexState() *codexToOpenAIState {
	return &codexToOpenAIState{
		ID:        "chatcmpl-codex-" + uuid.NewString()[:12],
		Created:   time.Now().Unix(),
		CallIndex: map[string]int{},
		ArgsBuf:   map[string]*strings.Builder{},
	}
}

func (st *codexToOpenAIState) emit(v any) string {
	if st.EventBuf == nil {
		st.EventBuf = new(bytes.Buffer)
		st.EventEnc = json.NewEncoder(st.EventBuf)
	}
	st.EventBuf.Reset()
	st.EventBuf.WriteString("data: ")
	_ = st.EventEnc.Encode(v)
	return strings.TrimRight(st.EventBuf.String(), "\n")
}

func (st *codexToOpenAIState) chunk(modelName string, delta map[string]any, finish any, usage map[string]any) map[string]any {
	if !st.RoleSent {
		delta["role"] = "assistant"
		st.RoleSent = true
	}
	out := map[string]any{
		"id":      st.ID,
		"object":  "chat.completion.chunk",
		"created": st.Created,
		"model":   modelName,
		"choices": []map[string]any{{"index": 0, "delta": delta, "finish_reason": finish}},
	}
	if usage != nil {
		out["usage"] = usage
	}
	return out
}

func (st *codexToOpenAIState) callIndexFor(id string) int {
	if idx, ok := st.CallIndex[id]; ok {
		return idx
	}
	idx := len(st.CallIndex)
	st.CallIndex[id] = idx
	return idx
}

// ConvertCodexResponseToOpenAI converts one Responses SSE event into OpenAI
// chat-completion SSE lines.
func ConvertCodexResponseToOpenAI(_ context.Context, modelName string, _ []byte, rawJSON []byte, param *any) []string {
	if *param == nil {
		*param = newCodexState()
	}
	st := (*param).(*codexToOpenAIState)

	if bytes.HasPrefix(rawJSON, []byte("data:")) {
		rawJSON = bytes.TrimSpace(rawJSON[5:])
	}
	event := gjson.ParseBytes(rawJSON)
	switch event.Get("type").String() {
	case "response.output_text.delta":
		if delta := event.Get("delta").String(); delta != "" {
			return []string{st.emit(st.chunk(modelName, map[string]any{"content": delta}, nil, nil))}
		}
	case "response.reasoning_summary_text.delta":
		if delta := event.Get("delta").String(); delta != "" {
			return []string{st.emit(st.chunk(modelName, map[string]any{"reasoning_content": delta}, nil, nil))}
		}
	case "response.reasoning_summary_text.done":
		return []string{st.emit(st.chunk(modelName, map[string]any{"reasoning_content": "\n\n"}, nil, nil))}
	case "response.function_call_arguments.delta":
		callID := event.Get("call_id").String()
		if callID == "" {
			callID = event.Get("item_id").String()
		}
		st.ToolsSeen = true
		return []string{st.emit(st.chunk(modelName, map[string]any{
			"tool_calls": []map[string]any{{
				"index":    st.callIndexFor(callID),
				"id":       callID,
				"type":     "function",
				"function": map[string]any{"arguments": event.Get("delta").String()},
			}},
		}, nil, nil))}
	case "response.function_call_arguments.done":
		if name := event.Get("name").String(); name != "" {
			callID := event.Get("call_id").String()
			st.ToolsSeen = true
			return []string{st.emit(st.chunk(modelName, map[string]any{
				"tool_calls": []map[string]any{{
					"index":    st.callIndexFor(callID),
					"id":       callID,
					"type":     "function",
					"function": map[string]any{"name": name},
				}},
			}, nil, nil))}
		}
	case "response.completed":
		finish := "stop"
		if st.ToolsSeen {
			finish = "tool_calls"
		}
		usage := map[string]any{
			"prompt_tokens":     event.Get("response.usage.input_tokens").Int(),
			"completion_tokens": event.Get("response.usage.output_tokens").Int(),
			"total_tokens":      event.Get("response.usage.total_tokens").Int(),
		}
		return []string{st.emit(st.chunk(modelName, map[string]any{}, finish, usage))}
	}
	return nil
}

// ConvertCodexResponseToOpenAINonStream folds a full Responses SSE transcript
// (the upstream is stream-only) into a single chat completion. rawJSON holds
// the concatenated event payloads separated by newlines.
func ConvertCodexResponseToOpenAINonStream(_ context.Context, modelName string, _ []byte, rawJSON []byte) string {
	st := newCodexState()
	finish := "stop"

	for _, line := range bytes.Split(rawJSON, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if bytes.HasPrefix(line, []byte("data:")) {
			line = bytes.TrimSpace(line[5:])
		}
		if len(line) == 0 {
			continue
		}
		event := gjson.ParseBytes(line)
		switch event.Get("type").String() {
		case "response.output_text.delta":
			st.Text.WriteString(event.Get("delta").String())
		case "response.reasoning_summary_text.delta":
			st.Reasoning.WriteString(event.Get("delta").String())
		case "response.function_call_arguments.delta":
			id := event.Get("call_id").String()
			if id == "" {
				id = event.Get("item_id").String()
			}
			buf, ok := st.ArgsBuf[id]
			if !ok {
				buf = &strings.Builder{}
				st.ArgsBuf[id] = buf
			}
			buf.WriteString(event.Get("delta").String())
		case "response.function_call_arguments.done":
			id := event.Get("call_id").String()
			args := event.Get("arguments").String()
			if args == "" {
				if buf, ok := st.ArgsBuf[id]; ok {
					args = buf.String()
				}
			}
			st.Calls = append(st.Calls, map[string]any{
				"id":   id,
				"type": "function",
				"function": map[string]any{
					"name":      event.Get("name").String(),
					"arguments": args,
				},
			})
		case "response.completed":
			st.Usage = map[string]any{
				"prompt_tokens":     event.Get("response.usage.input_tokens").Int(),
				"completion_tokens": event.Get("response.usage.output_tokens").Int(),
				"total_tokens":      event.Get("response.usage.total_tokens").Int(),
			}
		}
	}

	message := map[string]any{"role": "assistant", "content": st.Text.String()}
	if st.Reasoning.Len() > 0 {
		message["reasoning_content"] = st.Reasoning.String()
	}
	if len(st.Calls) > 0 {
		message["tool_calls"] = st.Calls
		finish = "tool_calls"
	}

	resp := map[string]any{
		"id":      st.ID,
		"object":  "chat.completion",
		"created": st.Created,
		"model":   modelName,
		"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": finish}},
	}
	if st.Usage != nil {
		resp["usage"] = st.Usage
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	return string(raw)
}
