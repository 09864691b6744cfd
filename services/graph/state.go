// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph implements the turn-processing engine: a fixed topology of
// named steps over a single ConversationState, with conditional routing at
// the guardrail branch and a bounded generate→verify→regenerate cycle.
package graph

import "github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"

// Mode values accepted by the identity resolver.
const (
	ModeAnonymous  = "anonymous"
	ModeIdentified = "identified"
)

// Guardrail status values. StatusUnset means the verifier has not run yet.
const (
	StatusUnset  = ""
	StatusOK     = "OK"
	StatusRefine = "REFINE"
	StatusError  = "ERROR"
)

// ConversationState is the mutable record threaded through one turn.
//
// A ConversationState is constructed once per inbound message and discarded
// after rendering; durable state lives only in the store, keyed by
// ConversationID and turn index. The record is owned exclusively by the task
// running the turn — steps receive it read-only and return an Update, which
// the executor merges. No step holds a reference across steps.
type ConversationState struct {
	// ConversationID is empty at creation time and assigned by the identity
	// step; once assigned it is immutable for the remainder of the turn.
	ConversationID string `json:"conversation_id"`

	// Mode is ModeAnonymous or ModeIdentified.
	Mode string `json:"mode"`

	// UserID is required in identified mode, ignored otherwise.
	UserID string `json:"user_id,omitempty"`

	// Domain is an opaque audience tag (e.g. "student"), passed through.
	Domain string `json:"domain"`

	// UserMessage is overwritten in place by the privacy step before any
	// step that logs or forwards it.
	UserMessage string `json:"user_message"`

	// Classifier outputs. Severity and RiskLevel default to "low" when unset.
	Intent    string  `json:"intent,omitempty"`
	Situation string  `json:"situation,omitempty"`
	Severity  string  `json:"severity,omitempty"`
	RiskLevel string  `json:"risk_level,omitempty"`
	RiskScore float64 `json:"risk_score,omitempty"`

	// ResponseDraft is the candidate reply, overwritten on each generation
	// and each guardrail revision cycle.
	ResponseDraft string `json:"response_draft"`

	// Per-source candidates, kept for observability metadata.
	OllamaResponse string `json:"ollama_response,omitempty"`
	GPTResponse    string `json:"gpt_response,omitempty"`

	// Guardrail state machine outputs.
	GuardrailStatus   string `json:"guardrail_status,omitempty"`
	GuardrailFeedback string `json:"guardrail_feedback,omitempty"`

	// Attempt counts full cycles through the verify loop, starting at 0.
	Attempt int `json:"attempt"`

	// StepIndex counts executed graph steps. Diagnostics only — never used
	// for control decisions.
	StepIndex int `json:"step_index"`

	// Error is the terminal error description. Once set, routing bypasses
	// remaining generation and verification steps.
	Error string `json:"error,omitempty"`

	// APIResponse is written exactly once, by the render step.
	APIResponse *datatypes.APIResponse `json:"api_response,omitempty"`
}

// EffectiveSeverity returns the severity, defaulting to "low" when unset.
func (s *ConversationState) EffectiveSeverity() string {
	if s.Severity == "" {
		return "low"
	}
	return s.Severity
}

// EffectiveRiskLevel returns the risk level, defaulting to "low" when unset.
func (s *ConversationState) EffectiveRiskLevel() string {
	if s.RiskLevel == "" {
		return "low"
	}
	return s.RiskLevel
}

// Update is the partial state delta a step returns. Nil pointers mean "field
// untouched"; the executor performs a shallow merge by field. Counters are
// deltas, not absolute values, so a step never needs to read-modify-write.
type Update struct {
	ConversationID *string
	UserMessage    *string

	Intent    *string
	Situation *string
	Severity  *string
	RiskLevel *string
	RiskScore *float64

	ResponseDraft  *string
	OllamaResponse *string
	GPTResponse    *string

	GuardrailStatus   *string
	GuardrailFeedback *string

	AttemptDelta   int
	StepIndexDelta int

	Error *string

	APIResponse *datatypes.APIResponse
}

// String returns a pointer to s, for building Updates.
func String(s string) *string { return &s }

// Float64 returns a pointer to f, for building Updates.
func Float64(f float64) *float64 { return &f }

// ErrorUpdate builds an Update carrying only a terminal error description.
func ErrorUpdate(msg string) Update {
	return Update{Error: String(msg)}
}

// apply merges an Update into the state. ConversationID is write-once: a
// step cannot overwrite an already-assigned id.
func (s *ConversationState) apply(u Update) {
	if u.ConversationID != nil && s.ConversationID == "" {
		s.ConversationID = *u.ConversationID
	}
	if u.UserMessage != nil {
		s.UserMessage = *u.UserMessage
	}
	if u.Intent != nil {
		s.Intent = *u.Intent
	}
	if u.Situation != nil {
		s.Situation = *u.Situation
	}
	if u.Severity != nil {
		s.Severity = *u.Severity
	}
	if u.RiskLevel != nil {
		s.RiskLevel = *u.RiskLevel
	}
	if u.RiskScore != nil {
		s.RiskScore = *u.RiskScore
	}
	if u.ResponseDraft != nil {
		s.ResponseDraft = *u.ResponseDraft
	}
	if u.OllamaResponse != nil {
		s.OllamaResponse = *u.OllamaResponse
	}
	if u.GPTResponse != nil {
		s.GPTResponse = *u.GPTResponse
	}
	if u.GuardrailStatus != nil {
		s.GuardrailStatus = *u.GuardrailStatus
	}
	if u.GuardrailFeedback != nil {
		s.GuardrailFeedback = *u.GuardrailFeedback
	}
	s.Attempt += u.AttemptDelta
	s.StepIndex += u.StepIndexDelta
	if u.Error != nil {
		s.Error = *u.Error
	}
	if u.APIResponse != nil {
		s.APIResponse = u.APIResponse
	}
}
