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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shrutib31/soul-buddy/services/events"
	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
	"github.com/shrutib31/soul-buddy/services/orchestrator/observability"
)

const keepAliveInterval = 15 * time.Second

// HandleChatStream returns the SSE chat handler for the given mode. Turn
// events are flushed to the client as each pipeline step completes.
//
// A client disconnect stops event delivery but does not cancel in-flight
// model calls: the turn finishes and persists normally, the user just
// stops watching.
func HandleChatStream(runner TurnRunner, mode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindChatRequest(c)
		if !ok {
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		observability.Metrics.ActiveStreams.Inc()
		defer observability.Metrics.ActiveStreams.Dec()

		clientCtx := c.Request.Context()
		emitter := events.NewEmitter()
		emitter.Subscribe(func(event datatypes.StreamEvent) {
			if clientCtx.Err() != nil {
				return
			}
			if err := writer.WriteEvent(event); err != nil {
				slog.Debug("dropping stream event, client write failed", "error", err)
			}
		})

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(keepAliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if clientCtx.Err() != nil {
						return
					}
					_ = writer.WriteKeepAlive()
				case <-done:
					return
				}
			}
		}()

		// Detach from the client context so a mid-turn disconnect cannot
		// abandon a half-stored turn.
		turnCtx := context.WithoutCancel(clientCtx)
		state := newTurnState(req, mode)
		runner.Run(turnCtx, state, emitter)
		close(done)
	}
}
