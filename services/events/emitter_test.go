// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
)

func TestEmitter_EventOrderAndStamping(t *testing.T) {
	e := NewEmitter()
	rec := NewRecorder(e)

	e.NodeComplete("classify")
	e.Analysis(&datatypes.AnalysisPayload{Intent: "venting", RiskLevel: "low"})
	e.ResponseUpdate("partial text")
	e.Complete(&datatypes.APIResponse{Success: true})

	got := rec.Events()
	require.Len(t, got, 4)
	assert.Equal(t, datatypes.EventNodeComplete, got[0].Type)
	assert.Equal(t, "classify", got[0].Node)
	assert.Equal(t, datatypes.EventAnalysis, got[1].Type)
	assert.Equal(t, "venting", got[1].Analysis.Intent)
	assert.Equal(t, datatypes.EventResponseUpdate, got[2].Type)
	assert.Equal(t, "partial text", got[2].Content)
	assert.Equal(t, datatypes.EventComplete, got[3].Type)
	assert.True(t, got[3].Data.Success)

	for _, event := range got {
		assert.NotEmpty(t, event.ID)
		assert.NotZero(t, event.CreatedAt)
	}
}

func TestEmitter_StampsMillisecondTimestamps(t *testing.T) {
	e := NewEmitter()
	rec := NewRecorder(e)

	before := time.Now().UnixMilli()
	e.NodeComplete("classify")
	after := time.Now().UnixMilli()

	got := rec.Events()
	require.Len(t, got, 1)
	// A seconds-resolution stamp would fall three orders of magnitude
	// below this window.
	assert.GreaterOrEqual(t, got[0].CreatedAt, before)
	assert.LessOrEqual(t, got[0].CreatedAt, after)
}

func TestEmitter_NilEmitterDropsEvents(t *testing.T) {
	var e *Emitter

	// Must not panic.
	e.NodeComplete("classify")
	e.Error("boom")
	e.Subscribe(func(datatypes.StreamEvent) {})
}

func TestEmitter_PanickingHandlerIsIsolated(t *testing.T) {
	e := NewEmitter()
	e.Subscribe(func(datatypes.StreamEvent) { panic("bad handler") })
	rec := NewRecorder(e)

	e.Error("turn failed")

	got := rec.ByType(datatypes.EventError)
	require.Len(t, got, 1)
	assert.Equal(t, "turn failed", got[0].Error)
}
