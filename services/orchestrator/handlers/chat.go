// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gin handlers for the chat API: single
// response turns, streamed turns over SSE, conversation history, and
// conversation lifecycle.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shrutib31/soul-buddy/services/events"
	"github.com/shrutib31/soul-buddy/services/graph"
	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
)

// TurnRunner processes one chat turn. Satisfied by nodes.Pipeline.
type TurnRunner interface {
	Run(ctx context.Context, state *graph.ConversationState, emitter *events.Emitter) *datatypes.APIResponse
}

// HandleChat returns the non-streaming chat handler for the given mode.
// The pipeline always renders a response; HTTP errors are reserved for
// requests that never reach it.
func HandleChat(runner TurnRunner, mode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindChatRequest(c)
		if !ok {
			return
		}

		state := newTurnState(req, mode)
		resp := runner.Run(c.Request.Context(), state, events.NewEmitter())
		c.JSON(http.StatusOK, resp)
	}
}

func bindChatRequest(c *gin.Context) (*datatypes.ChatRequest, bool) {
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return nil, false
	}
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		slog.Debug("chat request failed validation", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

func newTurnState(req *datatypes.ChatRequest, mode string) *graph.ConversationState {
	return &graph.ConversationState{
		ConversationID: req.ConversationID,
		Mode:           mode,
		UserID:         req.UserID,
		Domain:         req.Domain,
		UserMessage:    req.Message,
	}
}
