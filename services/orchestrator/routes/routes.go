// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrutib31/soul-buddy/services/graph"
	"github.com/shrutib31/soul-buddy/services/orchestrator/handlers"
	"github.com/shrutib31/soul-buddy/services/orchestrator/middleware"
	"github.com/shrutib31/soul-buddy/services/orchestrator/observability"
)

// Deps carries the wired services the routes hand to their handlers.
type Deps struct {
	Runner    handlers.TurnRunner
	Turns     handlers.TurnReader
	Lifecycle handlers.ConversationLifecycle
	Limiter   *middleware.RateLimiter
}

// SetupRoutes registers the chat API on router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(observability.Middleware())

	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if deps.Limiter != nil {
		v1.Use(deps.Limiter.Handler())
	}
	{
		chat := v1.Group("/chat")
		{
			chat.POST("/anonymous", handlers.HandleChat(deps.Runner, graph.ModeAnonymous))
			chat.POST("/anonymous/stream", handlers.HandleChatStream(deps.Runner, graph.ModeAnonymous))
			chat.POST("/identified", handlers.HandleChat(deps.Runner, graph.ModeIdentified))
			chat.POST("/identified/stream", handlers.HandleChatStream(deps.Runner, graph.ModeIdentified))
		}

		conversations := v1.Group("/conversations")
		{
			conversations.GET("/:id/history", handlers.GetConversationHistory(deps.Turns, deps.Lifecycle))
			conversations.POST("/:id/end", handlers.EndConversation(deps.Lifecycle))
		}
	}
}
