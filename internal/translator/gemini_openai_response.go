// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// toolCallIDCounter provides process-wide unique synthetic tool-call IDs.
var toolCallIDCounter uint64

func newToolCallID() string {
	return fmt.Sprintf("call_%d_%s", atomic.AddUint64(&toolCallIDCounter, 1), uuid.NewString()[:8])
}

func mapGeminiFinishToOpenAI(reason string, hasToolCalls bool) string {
	switch reason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	case "STOP", "":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	default:
		return "stop"
	}
}

func openAIUsage(meta gjson.Result) map[string]any {
	if !meta.Exists() {
		return nil
	}
	return map[string]any{
		"prompt_tokens":     meta.Get("promptTokenCount").Int(),
		"completion_tokens": meta.Get("candidatesTokenCount").Int(),
		"total_tokens":      meta.Get("totalTokenCount").Int(),
	}
}

// geminiParts aggregates a candidate's parts into the OpenAI-facing pieces.
type geminiParts struct {
	Text      string
	Reasoning string
	ToolCalls []map[string]any
	Images    []map[string]any
}

func collectGeminiParts(candidate gjson.Result) geminiParts {
	var out geminiParts
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		switch {
		case part.Get("functionCall").Exists():
			call := part.Get("functionCall")
			args := call.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, map[string]any{
				"id":   EncodeToolCallID(newToolCallID(), part.Get("thoughtSignature").String()),
				"type": "function",
				"function": map[string]any{
					"name":      call.Get("name").String(),
					"arguments": args,
				},
			})
		case part.Get("inlineData").Exists():
			inline := part.Get("inlineData")
			mime := inline.Get("mimeType").String()
			if mime == "" {
				mime = "image/png"
			}
			out.Images = append(out.Images, map[string]any{
				"type": "image_url",
				"image_url": map[string]any{
					"url": "data:" + mime + ";base64," + inline.Get("data").String(),
				},
			})
		case part.Get("text").Exists():
			if part.Get("thought").Bool() {
				out.Reasoning += part.Get("text").String()
			} else {
				out.Text += part.Get("text").String()
			}
		}
		return true
	})
	return out
}

// ConvertGeminiResponseToOpenAINonStream converts a complete Gemini
// generateContent response into an OpenAI chat completion.
func ConvertGeminiResponseToOpenAINonStream(_ context.Context, modelName string, _ []byte, rawJSON []byte) string {
	root := unwrapCloudCode(gjson.ParseBytes(rawJSON))
	candidate := root.Get("candidates.0")
	parts := collectGeminiParts(candidate)

	message := map[string]any{"role": "assistant"}
	if len(parts.Images) > 0 {
		blocks := []map[string]any{}
		if parts.Text != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": parts.Text})
		}
		blocks = append(blocks, parts.Images...)
		message["content"] = blocks
	} else {
		message["content"] = parts.Text
	}
	if parts.Reasoning != "" {
		message["reasoning_content"] = parts.Reasoning
	}
	if len(parts.ToolCalls) > 0 {
		message["tool_calls"] = parts.ToolCalls
	}

	resp := map[string]any{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   modelName,
		"choices": []map[string]any{{
			"index":         0,
			"message":       message,
			"finish_reason": mapGeminiFinishToOpenAI(candidate.Get("finishReason").String(), len(parts.ToolCalls) > 0),
		}},
	}
	if usage := openAIUsage(root.Get("usageMetadata")); usage != nil {
		resp["usage"] = usage
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	return string(raw)
}

type geminiToOpenAIState struct {
	ID            string
	Created       int64
	RoleSent      bool
	ToolCallsSeen bool
	NextCallIndex int

	EventBuf *bytes.Buffer
	EventEnc *json.Encoder
}

func (st *geminiToOpenAIState) emit(v any) string {
	if st.EventBuf == nil {
		st.EventBuf = new(bytes.Buffer)
		st.EventEnc = json.NewEncoder(st.EventBuf)
	}
	st.EventBuf.Reset()
	st.EventBuf.WriteString("data: ")
	_ = st.EventEnc.Encode(v)
	return strings.TrimRight(st.EventBuf.String(), "\n")
}

func (st *geminiToOpenAIState) chunk(modelName string, delta map[string]any, finish any, usage map[string]any) map[string]any {
	choice := map[string]any{"index": 0, "delta": delta, "finish_reason": finish}
	out := map[string]any{
		"id":      st.ID,
		"object":  "chat.completion.chunk",
		"created": st.Created,
		"model":   modelName,
		"choices": []map[string]any{choice},
	}
	if usage != nil {
		out["usage"] = usage
	}
	return out
}

// ConvertGeminiResponseToOpenAI converts one Gemini streaming chunk into
// OpenAI chat-completion SSE lines. Tool calls arrive whole in a single
// Gemini chunk and are forwarded as complete entries at increasing indices,
// never split across fragments.
func ConvertGeminiResponseToOpenAI(_ context.Context, modelName string, _ []byte, rawJSON []byte, param *any) []string {
	if *param == nil {
		*param = &geminiToOpenAIState{
			ID:      "chatcmpl-" + uuid.NewString(),
			Created: time.Now().Unix(),
		}
	}
	st := (*param).(*geminiToOpenAIState)

	if bytes.HasPrefix(rawJSON, []byte("data:")) {
		rawJSON = bytes.TrimSpace(rawJSON[5:])
	}
	root := unwrapCloudCode(gjson.ParseBytes(rawJSON))
	if !root.Exists() {
		return nil
	}
	candidate := root.Get("candidates.0")
	parts := collectGeminiParts(candidate)

	out := make([]string, 0, 2)
	delta := map[string]any{}
	if !st.RoleSent {
		delta["role"] = "assistant"
		st.RoleSent = true
	}
	if parts.Reasoning != "" {
		delta["reasoning_content"] = parts.Reasoning
	}
	if parts.Text != "" {
		delta["content"] = parts.Text
	}
	if len(parts.Images) > 0 {
		delta["images"] = parts.Images
	}
	if len(parts.ToolCalls) > 0 {
		st.ToolCallsSeen = true
		indexed := make([]map[string]any, 0, len(parts.ToolCalls))
		for _, call := range parts.ToolCalls {
			call["index"] = st.NextCallIndex
			st.NextCallIndex++
			indexed = append(indexed, call)
		}
		delta["tool_calls"] = indexed
	}
	if len(delta) > 0 {
		out = append(out, st.emit(st.chunk(modelName, delta, nil, nil)))
	}

	if reason := candidate.Get("finishReason").String(); reason != "" {
		finish := mapGeminiFinishToOpenAI(reason, st.ToolCallsSeen)
		usage := openAIUsage(root.Get("usageMetadata"))
		out = append(out, st.emit(st.chunk(modelName, map[string]any{}, finish, usage)))
	}
	return out
}

// unwrapCloudCode peels the {"response": ...} envelope the Cloud Code and
// Antigravity endpoints wrap around Gemini payloads.
func unwrapCloudCode(root gjson.Result) gjson.Result {
	if inner := root.Get("response"); inner.Exists() && inner.Get("candidates").Exists() {
		return inner
	}
	return root
}
