// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"bytes"
	"context"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

func mapGeminiFinishToClaude(reason string, hasToolUse bool) string {
	switch {
	case hasToolUse && (reason == "STOP" || reason == ""):
		return "tool_use"
	case reason == "MAX_TOKENS":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

func claudeUsage(meta gjson.Result) map[string]any {
	return map[string]any{
		"input_tokens":  meta.Get("promptTokenCount").Int(),
		"output_tokens": meta.Get("candidatesTokenCount").Int(),
	}
}

// ConvertGeminiResponseToClaudeNonStream converts a complete Gemini response
// into an Anthropic Messages response. Thought parts become thinking blocks
// carrying their signature; functionCall parts become tool_use blocks whose
// IDs embed the thought signature for the next turn.
func ConvertGeminiResponseToClaudeNonStream(_ context.Context, modelName string, _ []byte, rawJSON []byte) string {
	root := unwrapCloudCode(gjson.ParseBytes(rawJSON))
	candidate := root.Get("candidates.0")

	var blocks []map[string]any
	hasToolUse := false
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		switch {
		case part.Get("functionCall").Exists():
			hasToolUse = true
			call := part.Get("functionCall")
			var input any
			if args := call.Get("args"); args.Exists() {
				_ = json.Unmarshal([]byte(args.Raw), &input)
			}
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    EncodeToolCallID("toolu_"+uuid.NewString()[:12], part.Get("thoughtSignature").String()),
				"name":  call.Get("name").String(),
				"input": input,
			})
		case part.Get("text").Exists() && part.Get("thought").Bool():
			block := map[string]any{"type": "thinking", "thinking": part.Get("text").String()}
			if sig := part.Get("thoughtSignature").String(); sig != "" {
				block["signature"] = sig
			}
			blocks = append(blocks, block)
		case part.Get("text").Exists():
			blocks = append(blocks, map[string]any{"type": "text", "text": part.Get("text").String()})
		}
		return true
	})

	resp := map[string]any{
		"id":          "msg_" + uuid.NewString(),
		"type":        "message",
		"role":        "assistant",
		"model":       modelName,
		"content":     blocks,
		"stop_reason": mapGeminiFinishToClaude(candidate.Get("finishReason").String(), hasToolUse),
		"usage":       claudeUsage(root.Get("usageMetadata")),
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	return string(raw)
}

type geminiToClaudeState struct {
	MessageID string
	Started   bool

	BlockIndex int
	BlockOpen  bool
	BlockType  string // "text" or "thinking"
	ToolSeen   bool

	EventBuf *bytes.Buffer
	EventEnc *json.Encoder
}

func (st *geminiToClaudeState) emit(event string, v any) string {
	if st.EventBuf == nil {
		st.EventBuf = new(bytes.Buffer)
		st.EventEnc = json.NewEncoder(st.EventBuf)
	}
	st.EventBuf.Reset()
	st.EventBuf.WriteString("event: ")
	st.EventBuf.WriteString(event)
	st.EventBuf.WriteString("\ndata: ")
	_ = st.EventEnc.Encode(v)
	return strings.TrimRight(st.EventBuf.String(), "\n")
}

func (st *geminiToClaudeState) closeBlock(out []string) []string {
	if !st.BlockOpen {
		return out
	}
	out = append(out, st.emit("content_block_stop", map[string]any{
		"type": "content_block_stop", "index": st.BlockIndex,
	}))
	st.BlockOpen = false
	st.BlockIndex++
	return out
}

func (st *geminiToClaudeState) openBlock(out []string, blockType string, block map[string]any) []string {
	out = st.closeBlock(out)
	out = append(out, st.emit("content_block_start", map[string]any{
		"type": "content_block_start", "index": st.BlockIndex, "content_block": block,
	}))
	st.BlockOpen = true
	st.BlockType = blockType
	return out
}

// ConvertGeminiResponseToClaude converts one Gemini streaming chunk into
// Anthropic Messages SSE events, maintaining content-block framing across
// chunks.
func ConvertGeminiResponseToClaude(_ context.Context, modelName string, _ []byte, rawJSON []byte, param *any) []string {
	if *param == nil {
		*param = &geminiToClaudeState{MessageID: "msg_" + uuid.NewString()}
	}
	st := (*param).(*geminiToClaudeState)

	if bytes.HasPrefix(rawJSON, []byte("data:")) {
		rawJSON = bytes.TrimSpace(rawJSON[5:])
	}
	root := unwrapCloudCode(gjson.ParseBytes(rawJSON))
	if !root.Exists() {
		return nil
	}

	out := make([]string, 0, 4)
	if !st.Started {
		st.Started = true
		out = append(out, st.emit("message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id":      st.MessageID,
				"type":    "message",
				"role":    "assistant",
				"model":   modelName,
				"content": []any{},
				"usage":   map[string]any{"input_tokens": 0, "output_tokens": 0},
			},
		}))
	}

	candidate := root.Get("candidates.0")
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		switch {
		case part.Get("functionCall").Exists():
			st.ToolSeen = true
			call := part.Get("functionCall")
			args := call.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			out = st.openBlock(out, "tool_use", map[string]any{
				"type":  "tool_use",
				"id":    EncodeToolCallID("toolu_"+uuid.NewString()[:12], part.Get("thoughtSignature").String()),
				"name":  call.Get("name").String(),
				"input": map[string]any{},
			})
			out = append(out, st.emit("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": st.BlockIndex,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": args},
			}))
			out = st.closeBlock(out)
		case part.Get("text").Exists() && part.Get("thought").Bool():
			if !st.BlockOpen || st.BlockType != "thinking" {
				out = st.openBlock(out, "thinking", map[string]any{"type": "thinking", "thinking": ""})
			}
			delta := map[string]any{"type": "thinking_delta", "thinking": part.Get("text").String()}
			out = append(out, st.emit("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": st.BlockIndex, "delta": delta,
			}))
			if sig := part.Get("thoughtSignature").String(); sig != "" {
				out = append(out, st.emit("content_block_delta", map[string]any{
					"type":  "content_block_delta",
					"index": st.BlockIndex,
					"delta": map[string]any{"type": "signature_delta", "signature": sig},
				}))
			}
		case part.Get("text").Exists():
			if !st.BlockOpen || st.BlockType != "text" {
				out = st.openBlock(out, "text", map[string]any{"type": "text", "text": ""})
			}
			out = append(out, st.emit("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": st.BlockIndex,
				"delta": map[string]any{"type": "text_delta", "text": part.Get("text").String()},
			}))
		}
		return true
	})

	if reason := candidate.Get("finishReason").String(); reason != "" {
		out = st.closeBlock(out)
		out = append(out, st.emit("message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": mapGeminiFinishToClaude(reason, st.ToolSeen)},
			"usage": claudeUsage(root.Get("usageMetadata")),
		}))
		out = append(out, st.emit("message_stop", map[string]any{"type": "message_stop"}))
	}
	return out
}
