// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ConvertClaudeRequestToGemini lowers an Anthropic Messages request to the
// Gemini generateContent shape. Thinking blocks keep their signatures as
// thoughtSignature parts, and tool_use IDs are decoded back into the
// signatures embedded by the response direction.
func ConvertClaudeRequestToGemini(modelName string, rawJSON []byte, _ bool) []byte {
	root := gjson.ParseBytes(rawJSON)

	var systemParts []map[string]any
	for _, text := range textFragments(root.Get("system")) {
		systemParts = append(systemParts, map[string]any{"text": text})
	}

	callNames := map[string]string{}
	var contents []map[string]any

	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		role := "user"
		if msg.Get("role").String() == "assistant" {
			role = "model"
		}

		var parts []map[string]any
		content := msg.Get("content")
		if content.Type == gjson.String {
			if content.String() != "" {
				parts = append(parts, map[string]any{"text": content.String()})
			}
		} else {
			content.ForEach(func(_, block gjson.Result) bool {
				if part := claudeBlockToPart(block, callNames); part != nil {
					parts = append(parts, part)
				}
				return true
			})
		}
		contents = appendTurn(contents, role, parts)
		return true
	})

	if len(contents) == 0 {
		contents = append(contents, map[string]any{
			"role": "user", "parts": []map[string]any{{"text": ""}},
		})
	}

	out := map[string]any{"contents": contents}
	if len(systemParts) > 0 {
		out["systemInstruction"] = map[string]any{"parts": systemParts}
	}
	if tools := claudeTools(root.Get("tools")); tools != nil {
		out["tools"] = tools
	}
	if tc := claudeToolChoice(root.Get("tool_choice")); tc != nil {
		out["toolConfig"] = tc
	}

	gc := map[string]any{}
	if v := root.Get("max_tokens"); v.Exists() {
		gc["maxOutputTokens"] = v.Int()
	}
	if v := root.Get("temperature"); v.Exists() {
		gc["temperature"] = v.Float()
	}
	if v := root.Get("top_p"); v.Exists() {
		gc["topP"] = v.Float()
	}
	if v := root.Get("top_k"); v.Exists() {
		gc["topK"] = v.Int()
	}
	if v := root.Get("stop_sequences"); v.IsArray() {
		var stops []string
		v.ForEach(func(_, s gjson.Result) bool {
			stops = append(stops, s.String())
			return true
		})
		gc["stopSequences"] = stops
	}
	if thinking := root.Get("thinking"); thinking.Get("type").String() == "enabled" {
		tc := map[string]any{"includeThoughts": true}
		if b := thinking.Get("budget_tokens"); b.Exists() {
			tc["thinkingBudget"] = b.Int()
		}
		gc["thinkingConfig"] = tc
	}
	if len(gc) > 0 {
		out["generationConfig"] = gc
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return rawJSON
	}
	return raw
}

func claudeBlockToPart(block gjson.Result, callNames map[string]string) map[string]any {
	switch block.Get("type").String() {
	case "text":
		if block.Get("text").String() == "" {
			return nil
		}
		return map[string]any{"text": block.Get("text").String()}
	case "thinking":
		part := map[string]any{"text": block.Get("thinking").String(), "thought": true}
		if sig := block.Get("signature").String(); sig != "" {
			part["thoughtSignature"] = sig
		}
		return part
	case "image":
		source := block.Get("source")
		if source.Get("type").String() != "base64" {
			return nil
		}
		return map[string]any{"inlineData": map[string]any{
			"mimeType": source.Get("media_type").String(),
			"data":     source.Get("data").String(),
		}}
	case "tool_use":
		encodedID := block.Get("id").String()
		id, signature := DecodeToolCallID(encodedID)
		name := block.Get("name").String()
		callNames[encodedID] = name
		callNames[id] = name

		var args any
		if input := block.Get("input"); input.Exists() {
			_ = json.Unmarshal([]byte(input.Raw), &args)
		}
		if args == nil {
			args = map[string]any{}
		}
		part := map[string]any{"functionCall": map[string]any{"name": name, "args": args}}
		if signature != "" {
			part["thoughtSignature"] = signature
		}
		return part
	case "tool_result":
		id := block.Get("tool_use_id").String()
		name := callNames[id]
		if name == "" {
			name, _ = DecodeToolCallID(id)
		}
		return map[string]any{"functionResponse": map[string]any{
			"name":     name,
			"response": map[string]any{"result": contentAsText(block.Get("content"))},
		}}
	}
	return nil
}

func claudeTools(tools gjson.Result) []map[string]any {
	if !tools.IsArray() {
		return nil
	}
	var decls []map[string]any
	tools.ForEach(func(_, tool gjson.Result) bool {
		decl := map[string]any{"name": tool.Get("name").String()}
		if d := tool.Get("description").String(); d != "" {
			decl["description"] = d
		}
		if schema := tool.Get("input_schema"); schema.Exists() {
			var p map[string]any
			_ = json.Unmarshal([]byte(schema.Raw), &p)
			delete(p, "$schema")
			decl["parameters"] = p
		}
		decls = append(decls, decl)
		return true
	})
	if len(decls) == 0 {
		return nil
	}
	return []map[string]any{{"functionDeclarations": decls}}
}

func claudeToolChoice(choice gjson.Result) map[string]any {
	switch choice.Get("type").String() {
	case "auto":
		return map[string]any{"functionCallingConfig": map[string]any{"mode": "AUTO"}}
	case "any":
		return map[string]any{"functionCallingConfig": map[string]any{"mode": "ANY"}}
	case "tool":
		return map[string]any{"functionCallingConfig": map[string]any{
			"mode":                 "ANY",
			"allowedFunctionNames": []string{choice.Get("name").String()},
		}}
	case "none":
		return map[string]any{"functionCallingConfig": map[string]any{"mode": "NONE"}}
	}
	return nil
}
