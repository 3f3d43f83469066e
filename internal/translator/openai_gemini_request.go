// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ConvertOpenAIRequestToGemini lowers an OpenAI chat-completions request to
// the Gemini generateContent shape. Leading system messages fold into
// systemInstruction, assistant tool calls become functionCall parts with
// their thought signatures restored from the tool-call IDs, and tool-result
// messages become functionResponse parts.
func ConvertOpenAIRequestToGemini(modelName string, rawJSON []byte, _ bool) []byte {
	root := gjson.ParseBytes(rawJSON)

	var systemParts []map[string]any
	var contents []map[string]any
	// tool_call_id -> function name, needed because Gemini functionResponse
	// parts are keyed by name while OpenAI tool messages carry only the ID.
	callNames := map[string]string{}

	collectingSystem := true
	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		switch {
		case role == "system" && collectingSystem:
			for _, text := range textFragments(msg.Get("content")) {
				systemParts = append(systemParts, map[string]any{"text": text})
			}
			return true
		case role == "system":
			// System messages after the first non-system turn demote to user.
			role = "user"
		}
		collectingSystem = false

		var parts []map[string]any
		switch role {
		case "tool":
			id := msg.Get("tool_call_id").String()
			name := callNames[id]
			if name == "" {
				name, _ = DecodeToolCallID(id)
			}
			parts = append(parts, map[string]any{
				"functionResponse": map[string]any{
					"name":     name,
					"response": map[string]any{"result": contentAsText(msg.Get("content"))},
				},
			})
			contents = appendTurn(contents, "user", parts)
			return true
		case "assistant":
			parts = openAIContentToParts(msg.Get("content"))
			msg.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
				id, signature := DecodeToolCallID(call.Get("id").String())
				name := call.Get("function.name").String()
				callNames[call.Get("id").String()] = name
				callNames[id] = name

				var args any
				if raw := call.Get("function.arguments").String(); raw != "" {
					_ = json.Unmarshal([]byte(raw), &args)
				}
				if args == nil {
					args = map[string]any{}
				}
				part := map[string]any{
					"functionCall": map[string]any{"name": name, "args": args},
				}
				if signature != "" {
					part["thoughtSignature"] = signature
				}
				parts = append(parts, part)
				return true
			})
			contents = appendTurn(contents, "model", parts)
			return true
		default:
			parts = openAIContentToParts(msg.Get("content"))
			contents = appendTurn(contents, "user", parts)
			return true
		}
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
	if tools := openAITools(root.Get("tools")); tools != nil {
		out["tools"] = tools
	}
	if tc := openAIToolChoice(root.Get("tool_choice")); tc != nil {
		out["toolConfig"] = tc
	}
	if gc := openAIGenerationConfig(root); len(gc) > 0 {
		out["generationConfig"] = gc
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return rawJSON
	}
	return raw
}

func appendTurn(contents []map[string]any, role string, parts []map[string]any) []map[string]any {
	if len(parts) == 0 {
		parts = []map[string]any{{"text": ""}}
	}
	// Merge consecutive same-role turns; Gemini requires alternation.
	if n := len(contents); n > 0 && contents[n-1]["role"] == role {
		prev := contents[n-1]["parts"].([]map[string]any)
		contents[n-1]["parts"] = append(prev, parts...)
		return contents
	}
	return append(contents, map[string]any{"role": role, "parts": parts})
}

// textFragments flattens a string-or-blocks content field into text pieces.
func textFragments(content gjson.Result) []string {
	var out []string
	if content.Type == gjson.String {
		if s := content.String(); strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
		return out
	}
	content.ForEach(func(_, item gjson.Result) bool {
		if item.Type == gjson.String {
			if s := item.String(); strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		} else if item.Get("type").String() == "text" {
			if s := item.Get("text").String(); strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return true
	})
	return out
}

func contentAsText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	return strings.Join(textFragments(content), "\n")
}

// openAIContentToParts converts a message content field (string or
// multimodal block list) into Gemini parts.
func openAIContentToParts(content gjson.Result) []map[string]any {
	var parts []map[string]any
	if content.Type == gjson.String {
		if content.String() != "" {
			parts = append(parts, map[string]any{"text": content.String()})
		}
		return parts
	}
	content.ForEach(func(_, item gjson.Result) bool {
		switch {
		case item.Type == gjson.String:
			parts = append(parts, map[string]any{"text": item.String()})
		case item.Get("type").String() == "text":
			parts = append(parts, map[string]any{"text": item.Get("text").String()})
		case item.Get("type").String() == "image_url":
			url := item.Get("image_url.url").String()
			if url == "" {
				url = item.Get("image_url").String()
			}
			if part := imageURLToPart(url); part != nil {
				parts = append(parts, part)
			}
		case item.Get("inlineData").Exists():
			var inline map[string]any
			_ = json.Unmarshal([]byte(item.Get("inlineData").Raw), &inline)
			parts = append(parts, map[string]any{"inlineData": inline})
		}
		return true
	})
	return parts
}

// imageURLToPart turns a data: URI into inlineData and anything else into a
// fileData reference.
func imageURLToPart(url string) map[string]any {
	if url == "" {
		return nil
	}
	if strings.HasPrefix(url, "data:") {
		header, data, ok := strings.Cut(url, ",")
		if !ok {
			return nil
		}
		mime := strings.TrimPrefix(header, "data:")
		mime, _, _ = strings.Cut(mime, ";")
		return map[string]any{
			"inlineData": map[string]any{"mimeType": mime, "data": data},
		}
	}
	return map[string]any{
		"fileData": map[string]any{"mimeType": "image/jpeg", "fileUri": url},
	}
}

func openAITools(tools gjson.Result) []map[string]any {
	if !tools.IsArray() {
		return nil
	}
	var decls []map[string]any
	tools.ForEach(func(_, tool gjson.Result) bool {
		fn := tool.Get("function")
		if !fn.Exists() {
			return true
		}
		decl := map[string]any{"name": fn.Get("name").String()}
		if d := fn.Get("description").String(); d != "" {
			decl["description"] = d
		}
		if params := fn.Get("parameters"); params.Exists() {
			var p map[string]any
			_ = json.Unmarshal([]byte(params.Raw), &p)
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

func openAIToolChoice(choice gjson.Result) map[string]any {
	switch {
	case !choice.Exists():
		return nil
	case choice.Type == gjson.String:
		mode := map[string]string{"auto": "AUTO", "required": "ANY", "none": "NONE"}[choice.String()]
		if mode == "" {
			return nil
		}
		return map[string]any{"functionCallingConfig": map[string]any{"mode": mode}}
	case choice.Get("function.name").Exists():
		return map[string]any{"functionCallingConfig": map[string]any{
			"mode":                 "ANY",
			"allowedFunctionNames": []string{choice.Get("function.name").String()},
		}}
	}
	return nil
}

func openAIGenerationConfig(root gjson.Result) map[string]any {
	gc := map[string]any{}
	if v := root.Get("temperature"); v.Exists() {
		gc["temperature"] = v.Float()
	}
	if v := root.Get("top_p"); v.Exists() {
		gc["topP"] = v.Float()
	}
	if v := root.Get("max_completion_tokens"); v.Exists() {
		gc["maxOutputTokens"] = v.Int()
	} else if v := root.Get("max_tokens"); v.Exists() {
		gc["maxOutputTokens"] = v.Int()
	}
	if v := root.Get("stop"); v.Exists() {
		if v.Type == gjson.String {
			gc["stopSequences"] = []string{v.String()}
		} else if v.IsArray() {
			var stops []string
			v.ForEach(func(_, s gjson.Result) bool {
				stops = append(stops, s.String())
				return true
			})
			gc["stopSequences"] = stops
		}
	}
	return gc
}
