// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/aa105132/CatieCli/internal/constant"
	"github.com/aa105132/CatieCli/internal/dispatch"
)

// servedByHeader tells the client which provider/model actually answered.
const servedByHeader = "X-Served-By"

func (s *Server) chatCompletions(c *gin.Context) {
	body, model, ok := s.readBody(c)
	if !ok {
		return
	}
	s.dispatch(c, &dispatchSpec{
		source:  constant.OpenAI,
		model:   model,
		body:    body,
		stream:  gjson.GetBytes(body, "stream").Bool(),
		framing: framingOpenAI,
	})
}

func (s *Server) claudeMessages(c *gin.Context) {
	body, model, ok := s.readBody(c)
	if !ok {
		return
	}
	s.dispatch(c, &dispatchSpec{
		source:  constant.Claude,
		model:   model,
		body:    body,
		stream:  gjson.GetBytes(body, "stream").Bool(),
		framing: framingClaude,
	})
}

func (s *Server) geminiGenerate(c *gin.Context) {
	model, verb, found := strings.Cut(c.Param("action"), ":")
	if !found || model == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "expected models/{model}:{generateContent|streamGenerateContent}"}})
		return
	}
	var stream bool
	switch verb {
	case "generateContent":
	case "streamGenerateContent":
		stream = true
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "unknown action " + verb}})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "empty request body"}})
		return
	}
	s.dispatch(c, &dispatchSpec{
		source:  constant.Gemini,
		model:   model,
		body:    body,
		stream:  stream,
		framing: framingGemini,
	})
}

type streamFraming int

const (
	// framingOpenAI prefixes chunks with "data: " and terminates the
	// stream with [DONE].
	framingOpenAI streamFraming = iota
	// framingGemini prefixes chunks with "data: " without a terminator.
	framingGemini
	// framingClaude passes through chunks that already carry their
	// event:/data: lines.
	framingClaude
)

type dispatchSpec struct {
	source  string
	model   string
	body    []byte
	stream  bool
	framing streamFraming
}

func (s *Server) readBody(c *gin.Context) ([]byte, string, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "empty request body"}})
		return nil, "", false
	}
	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "missing model"}})
		return nil, "", false
	}
	return body, model, true
}

func (s *Server) dispatch(c *gin.Context, spec *dispatchSpec) {
	clean, antiTrunc := dispatch.ParseModel(spec.model)
	req := &dispatch.Request{
		UserID:         userID(c),
		Source:         spec.source,
		Model:          clean,
		Payload:        spec.body,
		AntiTruncation: antiTrunc,
	}

	if !spec.stream {
		res, err := s.dispatcher.Dispatch(c.Request.Context(), req)
		if err != nil {
			writeDispatchError(c, err)
			return
		}
		c.Header(servedByHeader, res.Provider+"/"+res.Model)
		c.Data(http.StatusOK, "application/json", []byte(res.Body))
		return
	}

	events, err := s.dispatcher.DispatchStream(c.Request.Context(), req)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	s.writeStream(c, events, spec.framing)
}

func (s *Server) writeStream(c *gin.Context, events <-chan dispatch.Event, framing streamFraming) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	for ev := range events {
		if ev.Err != nil {
			writeStreamError(c, ev.Err, framing)
			flush()
			return
		}
		if ev.Heartbeat {
			// SSE comment line, ignored by clients of every protocol.
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			flush()
			continue
		}
		if framing == framingClaude {
			fmt.Fprintf(c.Writer, "%s\n\n", ev.Data)
		} else {
			fmt.Fprintf(c.Writer, "data: %s\n\n", ev.Data)
		}
		flush()
	}

	if framing == framingOpenAI {
		fmt.Fprint(c.Writer, "data: [DONE]\n\n")
		flush()
	}
}

// writeStreamError surfaces a mid-stream failure as a final SSE event. The
// detail stays provider-neutral, matching writeDispatchError.
func writeStreamError(c *gin.Context, err error, framing streamFraming) {
	status := statusOfStreamErr(err)
	msg := http.StatusText(status)
	if framing == framingClaude {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"api_error\",\"message\":%q}}\n\n", msg)
		return
	}
	fmt.Fprintf(c.Writer, "data: {\"error\":{\"message\":%q,\"code\":%d}}\n\n", msg, status)
}

func statusOfStreamErr(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusBadGateway
}
