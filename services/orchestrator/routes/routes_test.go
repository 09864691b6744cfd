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
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrutib31/soul-buddy/services/events"
	"github.com/shrutib31/soul-buddy/services/graph"
	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, state *graph.ConversationState, _ *events.Emitter) *datatypes.APIResponse {
	return &datatypes.APIResponse{Success: true, ConversationID: "conv-1", Mode: state.Mode}
}

type stubTurns struct{}

func (stubTurns) LoadTurns(context.Context, string) ([]datatypes.TurnRecord, error) {
	return nil, nil
}

type stubLifecycle struct{}

func (stubLifecycle) End(context.Context, string) error          { return nil }
func (stubLifecycle) Exists(context.Context, string) (bool, error) { return true, nil }

func TestSetupRoutesRegistersAPISurface(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{
		Runner:    stubRunner{},
		Turns:     stubTurns{},
		Lifecycle: stubLifecycle{},
	})

	expected := []string{
		"POST /v1/chat/anonymous",
		"POST /v1/chat/anonymous/stream",
		"POST /v1/chat/identified",
		"POST /v1/chat/identified/stream",
		"GET /v1/conversations/:id/history",
		"POST /v1/conversations/:id/end",
		"GET /healthz",
		"GET /metrics",
	}
	registered := make(map[string]bool)
	for _, route := range router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, key := range expected {
		assert.True(t, registered[key], "missing route %s", key)
	}
}

func TestHealthRouteResponds(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{
		Runner:    stubRunner{},
		Turns:     stubTurns{},
		Lifecycle: stubLifecycle{},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
