// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
	"github.com/shrutib31/soul-buddy/services/store"
)

// TurnReader loads the decrypted transcript of a conversation.
// Satisfied by store.Store.
type TurnReader interface {
	LoadTurns(ctx context.Context, conversationID string) ([]datatypes.TurnRecord, error)
}

// ConversationLifecycle exposes the conversation operations the API
// surface needs beyond turn processing. Satisfied by identity.Resolver.
type ConversationLifecycle interface {
	End(ctx context.Context, conversationID string) error
	Exists(ctx context.Context, conversationID string) (bool, error)
}

// GetConversationHistory returns the handler for the transcript endpoint.
// Rows that fail decryption come back with a placeholder message and an
// error flag rather than failing the whole transcript.
func GetConversationHistory(turns TurnReader, lifecycle ConversationLifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("id")

		exists, err := lifecycle.Exists(c.Request.Context(), conversationID)
		if err != nil {
			slog.Error("history lookup failed", "conversation_id", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}

		records, err := turns.LoadTurns(c.Request.Context(), conversationID)
		if err != nil {
			slog.Error("loading turns failed", "conversation_id", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}

		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			ConversationID: conversationID,
			Turns:          records,
		})
	}
}

// EndConversation returns the handler that closes a conversation. Ending
// an already-ended conversation is a no-op success.
func EndConversation(lifecycle ConversationLifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("id")

		if err := lifecycle.End(c.Request.Context(), conversationID); err != nil {
			if errors.Is(err, store.ErrConversationNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			slog.Error("ending conversation failed", "conversation_id", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end conversation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "conversation_id": conversationID})
	}
}

// HealthCheck reports process liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
