package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/wayfarer-labs/wayfarer/internal/api"
	"github.com/wayfarer-labs/wayfarer/internal/api/middleware"
	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

type AskService interface {
	Ask(ctx context.Context, rawQuery string) (domain.AnswerStream, error)
}

type ChatHandler struct {
	svc AskService
}

func NewChatHandler(svc AskService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Query string `json:"query"`
}

// Ask streams the answer back as chunked plain text. Each fragment is
// written and flushed as it arrives, so clients render tokens live.
// Pipeline failures arrive as stream content; the HTTP status is
// already committed by then, so the response stays 200 with the
// apology text as its tail.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stream, err := h.svc.Ask(r.Context(), req.Query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	for token := range stream {
		if token.Err != nil {
			log.Printf("chat: stream ended with error (request_id=%s): %v",
				middleware.GetRequestID(r.Context()), token.Err)
		}
		if token.Content != "" {
			if _, err := w.Write([]byte(token.Content)); err != nil {
				// Client went away; the pipeline unwinds via r.Context().
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if token.Done {
			return
		}
	}
}
