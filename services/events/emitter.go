// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events fans turn-progress events out to subscribers, feeding
// the streaming chat endpoints.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
)

// Handler is a function that processes stream events.
type Handler func(event datatypes.StreamEvent)

// Emitter broadcasts the events of one turn to its subscribers.
//
// A nil *Emitter is valid and drops every event, so non-streaming turns
// run the same pipeline code without event plumbing.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a handler for all events of this turn.
func (e *Emitter) Subscribe(handler Handler) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// NodeComplete reports that one pipeline step finished.
func (e *Emitter) NodeComplete(node string) {
	e.emit(datatypes.StreamEvent{Type: datatypes.EventNodeComplete, Node: node})
}

// ResponseUpdate carries the cumulative draft text so far.
func (e *Emitter) ResponseUpdate(content string) {
	e.emit(datatypes.StreamEvent{Type: datatypes.EventResponseUpdate, Content: content})
}

// Analysis carries the classifier output.
func (e *Emitter) Analysis(analysis *datatypes.AnalysisPayload) {
	e.emit(datatypes.StreamEvent{Type: datatypes.EventAnalysis, Analysis: analysis})
}

// Complete carries the final rendered response and ends the stream.
func (e *Emitter) Complete(resp *datatypes.APIResponse) {
	e.emit(datatypes.StreamEvent{Type: datatypes.EventComplete, Data: resp})
}

// Error reports a failed turn and ends the stream.
func (e *Emitter) Error(message string) {
	e.emit(datatypes.StreamEvent{Type: datatypes.EventError, Error: message})
}

// emit stamps and broadcasts one event. Handler panics are recovered so
// one misbehaving subscriber cannot take down the turn.
func (e *Emitter) emit(event datatypes.StreamEvent) {
	if e == nil {
		return
	}

	// The emitter is the single stamping point; downstream writers carry
	// the ID and timestamp through unchanged.
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now().UnixMilli()

	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	for _, handler := range handlers {
		e.safeInvoke(handler, event)
	}
}

func (e *Emitter) safeInvoke(handler Handler, event datatypes.StreamEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"event_type", event.Type,
				"event_id", event.ID,
				"panic", r,
			)
		}
	}()
	handler(event)
}

// Recorder captures events for tests and inspection.
type Recorder struct {
	mu     sync.RWMutex
	events []datatypes.StreamEvent
}

// NewRecorder creates a recorder already subscribed to the emitter.
func NewRecorder(e *Emitter) *Recorder {
	r := &Recorder{}
	e.Subscribe(r.record)
	return r
}

func (r *Recorder) record(event datatypes.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []datatypes.StreamEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]datatypes.StreamEvent, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns recorded events of one type.
func (r *Recorder) ByType(eventType string) []datatypes.StreamEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []datatypes.StreamEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
