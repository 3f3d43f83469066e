// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aa105132/CatieCli/internal/dispatch"
)

// catalogEntry is one servable base model plus the name variants the
// normalizer understands for it.
type catalogEntry struct {
	id        string
	suffixes  []string
	antiTrunc bool
}

var (
	geminiThinkingSuffixes  = []string{"-nothinking", "-maxthinking"}
	geminiLevelSuffixes     = []string{"-low", "-medium", "-high"}
	codexEffortSuffixesList = []string{"-low", "-nothinking", "-maxthinking"}
)

var catalog = []catalogEntry{
	{id: "gemini-2.5-flash", suffixes: geminiThinkingSuffixes, antiTrunc: true},
	{id: "gemini-2.5-pro", suffixes: geminiThinkingSuffixes, antiTrunc: true},
	{id: "gemini-3-pro-preview", suffixes: geminiLevelSuffixes, antiTrunc: true},
	{id: "agy-gemini-3-pro-preview", suffixes: geminiLevelSuffixes, antiTrunc: true},
	{id: "gemini-3-pro-image"},
	{id: "claude-sonnet-4-5", suffixes: []string{"-thinking"}, antiTrunc: true},
	{id: "claude-opus-4-5", suffixes: []string{"-thinking"}, antiTrunc: true},
	{id: "gpt-5.1", suffixes: codexEffortSuffixesList},
	{id: "gpt-5.1-codex", suffixes: codexEffortSuffixesList},
	{id: "gpt-5.1-codex-max", suffixes: codexEffortSuffixesList},
	{id: "gpt-5.1-codex-mini"},
}

func modelIDs() []string {
	var out []string
	for _, e := range catalog {
		ids := []string{e.id}
		for _, suffix := range e.suffixes {
			ids = append(ids, e.id+suffix)
		}
		out = append(out, ids...)
		if e.antiTrunc {
			for _, id := range ids {
				out = append(out, dispatch.AntiTruncationPrefix+id)
			}
		}
	}
	return out
}

func (s *Server) listOpenAIModels(c *gin.Context) {
	created := time.Now().Unix()
	data := make([]gin.H, 0, len(catalog))
	for _, id := range modelIDs() {
		data = append(data, gin.H{
			"id":       id,
			"object":   "model",
			"created":  created,
			"owned_by": "catiecli",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func (s *Server) listGeminiModels(c *gin.Context) {
	models := make([]gin.H, 0, len(catalog))
	for _, id := range modelIDs() {
		models = append(models, gin.H{
			"name":                       "models/" + id,
			"displayName":                id,
			"supportedGenerationMethods": []string{"generateContent", "streamGenerateContent"},
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}
