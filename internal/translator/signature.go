// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"encoding/base64"
	"strings"
)

// thoughtSignatureSeparator splits a tool-call identifier from its embedded
// thought signature. Upstream requires the signature echoed back verbatim on
// the next turn of a tool conversation; since OpenAI and Anthropic clients
// only round-trip the tool-call ID, the signature rides inside it.
const thoughtSignatureSeparator = "::sig:"

// EncodeToolCallID embeds a thought signature into a tool-call identifier.
// An empty signature returns the identifier unchanged.
func EncodeToolCallID(toolID, signature string) string {
	if signature == "" {
		return toolID
	}
	return toolID + thoughtSignatureSeparator + base64.StdEncoding.EncodeToString([]byte(signature))
}

// DecodeToolCallID splits an identifier produced by EncodeToolCallID back
// into the bare ID and the original signature. Identifiers without an
// embedded signature, or with one that fails to decode, come back verbatim
// with an empty signature.
func DecodeToolCallID(encoded string) (toolID, signature string) {
	idx := strings.LastIndex(encoded, thoughtSignatureSeparator)
	if idx < 0 {
		return encoded, ""
	}
	raw, err := base64.StdEncoding.DecodeString(encoded[idx+len(thoughtSignatureSeparator):])
	if err != nil {
		return encoded, ""
	}
	return encoded[:idx], string(raw)
}
