// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request, response, and stream event structures
// for the turn-processing endpoints.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxMessageContentBytes is the maximum size of one inbound user message.
// Byte length, not rune count, so the bound holds regardless of encoding.
const MaxMessageContentBytes = 32 * 1024 // 32KB

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks that a string field does not exceed
// MaxMessageContentBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Request Types
// =============================================================================

// ChatRequest is the body shared by the anonymous and identified chat
// endpoints. ConversationID is optional: empty means start a new
// conversation. UserID requiredness depends on the mode the route implies,
// so it is enforced by the identity resolver rather than a validate tag.
type ChatRequest struct {
	Message        string `json:"message" validate:"required,maxbytes"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Domain         string `json:"domain"`
}

// Validate checks the request fields after JSON binding.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults fills optional fields the client omitted.
func (r *ChatRequest) EnsureDefaults() {
	if r.Domain == "" {
		r.Domain = "student"
	}
}

// =============================================================================
// API Response Types
// =============================================================================

// ResponseMetadata carries classifier output and per-source generation
// candidates alongside the rendered reply.
type ResponseMetadata struct {
	Intent         string `json:"intent"`
	Situation      string `json:"situation"`
	Severity       string `json:"severity"`
	RiskLevel      string `json:"risk_level"`
	Timestamp      string `json:"timestamp"`
	OllamaResponse string `json:"ollama_response,omitempty"`
	GPTResponse    string `json:"gpt_response,omitempty"`
	Error          string `json:"error,omitempty"`
}

// APIResponse is the client-facing payload for one completed turn.
//
// Success reflects absence of a turn-level error, not perfection of the
// pipeline: a turn that produced a usable reply despite a degraded source
// still reports success.
type APIResponse struct {
	Success        bool             `json:"success"`
	ConversationID string           `json:"conversation_id"`
	Mode           string           `json:"mode,omitempty"`
	Domain         string           `json:"domain,omitempty"`
	Response       string           `json:"response"`
	Metadata       ResponseMetadata `json:"metadata"`
	Error          string           `json:"error,omitempty"`
}

// =============================================================================
// Stream Event Types
// =============================================================================

// Stream event type values emitted during a streamed turn.
const (
	EventNodeComplete   = "node_complete"
	EventResponseUpdate = "response_update"
	EventAnalysis       = "analysis"
	EventComplete       = "complete"
	EventError          = "error"
)

// StreamEvent is one event in the server-push stream for a turn.
//
// Exactly one payload field is populated, keyed by Type: Node for
// node_complete, Content for response_update (cumulative partial text),
// Analysis for analysis, Data for complete, Error for error. The stream
// ends after the complete or error event.
type StreamEvent struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	CreatedAt int64            `json:"created_at"`
	Node      string           `json:"node,omitempty"`
	Content   string           `json:"content,omitempty"`
	Analysis  *AnalysisPayload `json:"analysis,omitempty"`
	Data      *APIResponse     `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// AnalysisPayload is the classifier output emitted mid-stream, ahead of
// the final response.
type AnalysisPayload struct {
	Intent    string `json:"intent"`
	Situation string `json:"situation"`
	Severity  string `json:"severity"`
	RiskLevel string `json:"risk_level"`
}

// =============================================================================
// History Types
// =============================================================================

// TurnRecord is one stored exchange returned by the history endpoint.
// Error is set when the row failed to decrypt; Message then holds a
// placeholder instead of the original text.
type TurnRecord struct {
	ID        string    `json:"id"`
	TurnIndex int       `json:"turn_index"`
	Speaker   string    `json:"speaker"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Error     string    `json:"error,omitempty"`
}

// HistoryResponse is the ordered turn list for one conversation.
type HistoryResponse struct {
	ConversationID string       `json:"conversation_id"`
	Turns          []TurnRecord `json:"turns"`
}
