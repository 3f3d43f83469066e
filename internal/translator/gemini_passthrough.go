// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translator

import (
	"bytes"
	"context"

	"github.com/tidwall/gjson"
)

// ConvertGeminiRequestToGemini is the identity transform for Gemini-native
// clients; the per-provider executor adds its own envelope.
func ConvertGeminiRequestToGemini(_ string, rawJSON []byte, _ bool) []byte {
	return rawJSON
}

// ConvertGeminiResponseToGemini re-emits upstream chunks for Gemini-native
// clients, stripping the Cloud Code envelope.
func ConvertGeminiResponseToGemini(_ context.Context, _ string, _ []byte, rawJSON []byte, _ *any) []string {
	if bytes.HasPrefix(rawJSON, []byte("data:")) {
		rawJSON = bytes.TrimSpace(rawJSON[5:])
	}
	root := unwrapCloudCode(gjson.ParseBytes(rawJSON))
	if !root.Exists() {
		return nil
	}
	return []string{root.Raw}
}

// ConvertGeminiResponseToGeminiNonStream unwraps a complete response for
// Gemini-native clients.
func ConvertGeminiResponseToGeminiNonStream(_ context.Context, _ string, _ []byte, rawJSON []byte) string {
	return unwrapCloudCode(gjson.ParseBytes(rawJSON)).Raw
}
