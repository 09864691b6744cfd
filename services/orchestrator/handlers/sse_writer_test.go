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
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
)

func decodeSSEEvent(t *testing.T, body string) datatypes.StreamEvent {
	t.Helper()
	line := strings.TrimPrefix(strings.TrimSpace(body), "data: ")
	var event datatypes.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(line), &event))
	return event
}

func TestSSEWriterPreservesEmitterStamp(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	// Events stamped upstream keep their identity and timestamp; the
	// wire must not re-stamp what the emitter already assigned.
	require.NoError(t, w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.EventNodeComplete,
		Node:      "classify",
		ID:        "evt-1",
		CreatedAt: 1724800000123,
	}))

	got := decodeSSEEvent(t, rec.Body.String())
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, int64(1724800000123), got.CreatedAt)
}

func TestSSEWriterStampsBareEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteEvent(datatypes.StreamEvent{Type: datatypes.EventError, Error: "boom"}))

	got := decodeSSEEvent(t, rec.Body.String())
	assert.NotEmpty(t, got.ID)
	assert.NotZero(t, got.CreatedAt)
}

func TestSSEWriterKeepAliveIsComment(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteKeepAlive())
	assert.Equal(t, ": ping\n\n", rec.Body.String())
}
