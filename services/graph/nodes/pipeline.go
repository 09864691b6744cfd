// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nodes assembles the turn-processing steps into the executable
// pipeline.
//
// Topology:
//
//	resolve_identity → redact → classify → store_user_turn → generate →
//	verify → (OK or attempt ceiling) store_bot_turn → render
//	          (REFINE) back to resolve_identity
//	          (ERROR, or any step error) render
//
// Every step failure lands in render, which always produces a response.
package nodes

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shrutib31/soul-buddy/services/classifier"
	"github.com/shrutib31/soul-buddy/services/events"
	"github.com/shrutib31/soul-buddy/services/generator"
	"github.com/shrutib31/soul-buddy/services/graph"
	"github.com/shrutib31/soul-buddy/services/guardrail"
	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
	"github.com/shrutib31/soul-buddy/services/store"
)

// Step names in the turn pipeline.
const (
	StepResolveIdentity = "resolve_identity"
	StepRedact          = "redact"
	StepClassify        = "classify"
	StepStoreUserTurn   = "store_user_turn"
	StepGenerate        = "generate"
	StepVerify          = "verify"
	StepStoreBotTurn    = "store_bot_turn"
	StepRender          = "render"
)

// DefaultMaxAttempts caps verify cycles per turn: the initial draft plus
// two revision passes.
const DefaultMaxAttempts = 3

// IdentityResolver maps the inbound ids onto a conversation record.
type IdentityResolver interface {
	Resolve(ctx context.Context, conversationID, mode, userID, domain string) (string, error)
}

// Redactor strips personal identifiers from user text.
type Redactor interface {
	Redact(text string) (string, int)
}

// MessageClassifier classifies one user message.
type MessageClassifier interface {
	Classify(ctx context.Context, message string) (*classifier.Result, error)
}

// TurnWriter appends one turn to durable storage.
type TurnWriter interface {
	AppendTurn(ctx context.Context, conversationID, speaker, message string) (int, error)
}

// Drafter produces the candidate reply.
type Drafter interface {
	Generate(ctx context.Context, in generator.Input) (*generator.Output, error)
}

// Reviewer judges a drafted reply.
type Reviewer interface {
	Review(ctx context.Context, userMessage, draft string) guardrail.Verdict
}

// Dependencies wires the pipeline's collaborators.
type Dependencies struct {
	Resolver   IdentityResolver
	Redactor   Redactor
	Classifier MessageClassifier
	Turns      TurnWriter
	Drafter    Drafter
	Reviewer   Reviewer

	// MaxAttempts caps verify cycles; defaults to DefaultMaxAttempts.
	MaxAttempts int
	Logger      *slog.Logger
}

// Pipeline is the assembled turn processor. One pipeline serves all
// turns concurrently; per-turn data lives in the ConversationState.
type Pipeline struct {
	executor    *graph.Executor
	maxAttempts int
	logger      *slog.Logger
}

// NewPipeline assembles the fixed topology around deps.
func NewPipeline(deps Dependencies) (*Pipeline, error) {
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = DefaultMaxAttempts
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	p := &Pipeline{
		maxAttempts: deps.MaxAttempts,
		logger:      deps.Logger,
	}

	e := graph.NewExecutor(graph.WithLogger(deps.Logger))
	steps := []struct {
		name string
		step graph.Step
	}{
		{StepResolveIdentity, p.resolveIdentityStep(deps.Resolver)},
		{StepRedact, p.redactStep(deps.Redactor)},
		{StepClassify, p.classifyStep(deps.Classifier)},
		{StepStoreUserTurn, p.storeUserTurnStep(deps.Turns)},
		{StepGenerate, p.generateStep(deps.Drafter)},
		{StepVerify, p.verifyStep(deps.Reviewer)},
		{StepStoreBotTurn, p.storeBotTurnStep(deps.Turns)},
		{StepRender, p.renderStep()},
	}
	for _, s := range steps {
		if err := e.AddStep(s.name, s.step); err != nil {
			return nil, err
		}
	}

	edges := [][2]string{
		{StepResolveIdentity, StepRedact},
		{StepRedact, StepClassify},
		{StepClassify, StepStoreUserTurn},
		{StepStoreUserTurn, StepGenerate},
		{StepGenerate, StepVerify},
		{StepStoreBotTurn, StepRender},
		{StepRender, graph.End},
	}
	for _, edge := range edges {
		if err := e.SetEdge(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}
	if err := e.SetRouter(StepVerify, p.verifyRouter); err != nil {
		return nil, err
	}
	if err := e.SetStart(StepResolveIdentity); err != nil {
		return nil, err
	}
	if err := e.SetErrorSink(StepRender); err != nil {
		return nil, err
	}

	p.executor = e
	return p, nil
}

// Run processes one turn. The returned response is never nil.
func (p *Pipeline) Run(ctx context.Context, state *graph.ConversationState, emitter *events.Emitter) *datatypes.APIResponse {
	ctx = events.NewContext(ctx, emitter)

	if err := p.executor.Run(ctx, state, emitter); err != nil {
		p.logger.Error("pipeline execution fault",
			"conversation_id", state.ConversationID,
			"error", err)
		state.APIResponse = &datatypes.APIResponse{
			Success:        false,
			ConversationID: state.ConversationID,
			Error:          "internal error",
		}
	}

	resp := state.APIResponse
	if resp == nil {
		resp = &datatypes.APIResponse{
			Success:        false,
			ConversationID: state.ConversationID,
			Error:          "turn produced no response",
		}
	}

	recordTurn(state.Mode, resp.Success)
	if resp.Success {
		emitter.Complete(resp)
	} else {
		emitter.Error(resp.Error)
	}
	return resp
}

// =============================================================================
// Steps
// =============================================================================

func (p *Pipeline) resolveIdentityStep(resolver IdentityResolver) graph.Step {
	return func(ctx context.Context, s *graph.ConversationState) graph.Update {
		// Re-entered on each revision cycle; once the id is assigned
		// this is a no-op because ConversationID is write-once.
		if s.ConversationID != "" && s.Attempt > 0 {
			return graph.Update{}
		}
		id, err := resolver.Resolve(ctx, s.ConversationID, s.Mode, s.UserID, s.Domain)
		if err != nil {
			return graph.ErrorUpdate("resolving conversation: " + err.Error())
		}
		return graph.Update{ConversationID: graph.String(id)}
	}
}

func (p *Pipeline) redactStep(redactor Redactor) graph.Step {
	return func(_ context.Context, s *graph.ConversationState) graph.Update {
		if s.Attempt > 0 {
			return graph.Update{}
		}
		redacted, n := redactor.Redact(s.UserMessage)
		if n > 0 {
			p.logger.Info("redacted personal data from message",
				"conversation_id", s.ConversationID,
				"substitutions", n)
		}
		return graph.Update{UserMessage: graph.String(redacted)}
	}
}

func (p *Pipeline) classifyStep(mc MessageClassifier) graph.Step {
	return func(ctx context.Context, s *graph.ConversationState) graph.Update {
		result, err := mc.Classify(ctx, s.UserMessage)
		if err != nil {
			return graph.ErrorUpdate("classifying message: " + err.Error())
		}

		if result.IsHighCrisis() {
			p.logger.Warn("high crisis turn detected",
				"conversation_id", s.ConversationID,
				"situation", result.Situation)
		}

		events.FromContext(ctx).Analysis(&datatypes.AnalysisPayload{
			Intent:    result.Intent,
			Situation: result.Situation,
			Severity:  result.Severity,
			RiskLevel: result.RiskLevel,
		})

		return graph.Update{
			Intent:    graph.String(result.Intent),
			Situation: graph.String(result.Situation),
			Severity:  graph.String(result.Severity),
			RiskLevel: graph.String(result.RiskLevel),
			RiskScore: graph.Float64(result.RiskScore),
		}
	}
}

func (p *Pipeline) storeUserTurnStep(turns TurnWriter) graph.Step {
	return func(ctx context.Context, s *graph.ConversationState) graph.Update {
		// Only the first pass writes; revision cycles re-enter this step
		// but the user said nothing new.
		if s.Attempt > 0 {
			return graph.Update{}
		}
		if _, err := turns.AppendTurn(ctx, s.ConversationID, store.SpeakerUser, s.UserMessage); err != nil {
			return graph.ErrorUpdate("storing user turn: " + err.Error())
		}
		return graph.Update{}
	}
}

func (p *Pipeline) generateStep(drafter Drafter) graph.Step {
	return func(ctx context.Context, s *graph.ConversationState) graph.Update {
		in := generator.Input{
			Message:   s.UserMessage,
			Intent:    s.Intent,
			Situation: s.Situation,
			Severity:  s.EffectiveSeverity(),
		}
		if s.Attempt > 0 {
			in.Feedback = s.GuardrailFeedback
			in.PreviousDraft = s.ResponseDraft
		}

		out, err := drafter.Generate(ctx, in)
		if err != nil {
			return graph.ErrorUpdate("generating response: " + err.Error())
		}

		events.FromContext(ctx).ResponseUpdate(out.Response)

		return graph.Update{
			ResponseDraft:  graph.String(out.Response),
			OllamaResponse: graph.String(out.OllamaResponse),
			GPTResponse:    graph.String(out.GPTResponse),
		}
	}
}

func (p *Pipeline) verifyStep(reviewer Reviewer) graph.Step {
	return func(ctx context.Context, s *graph.ConversationState) graph.Update {
		verdict := reviewer.Review(ctx, s.UserMessage, s.ResponseDraft)
		recordVerdict(verdict.Status)

		update := graph.Update{
			GuardrailStatus:   graph.String(verdict.Status),
			GuardrailFeedback: graph.String(verdict.Feedback),
			AttemptDelta:      1,
		}
		if verdict.Status == guardrail.StatusError {
			update.Error = graph.String("response review failed: " + verdict.Feedback)
		}
		return update
	}
}

// verifyRouter routes after verification. The attempt counter has
// already been advanced for the cycle that just finished.
func (p *Pipeline) verifyRouter(s *graph.ConversationState) string {
	switch {
	case s.GuardrailStatus == graph.StatusOK:
		return StepStoreBotTurn
	case s.Attempt >= p.maxAttempts:
		// Revision budget exhausted: send the best draft we have rather
		// than leaving the user without a reply.
		p.logger.Warn("revision ceiling reached, sending last draft",
			"conversation_id", s.ConversationID,
			"attempts", s.Attempt)
		return StepStoreBotTurn
	default:
		return StepResolveIdentity
	}
}

func (p *Pipeline) storeBotTurnStep(turns TurnWriter) graph.Step {
	return func(ctx context.Context, s *graph.ConversationState) graph.Update {
		if _, err := turns.AppendTurn(ctx, s.ConversationID, store.SpeakerBot, s.ResponseDraft); err != nil {
			return graph.ErrorUpdate("storing bot turn: " + err.Error())
		}
		return graph.Update{}
	}
}

func (p *Pipeline) renderStep() graph.Step {
	return func(_ context.Context, s *graph.ConversationState) graph.Update {
		resp := &datatypes.APIResponse{
			Success:        s.Error == "" && strings.TrimSpace(s.ResponseDraft) != "",
			ConversationID: s.ConversationID,
			Mode:           s.Mode,
			Domain:         s.Domain,
			Metadata: datatypes.ResponseMetadata{
				Intent:    s.Intent,
				Situation: s.Situation,
				Severity:  s.EffectiveSeverity(),
				RiskLevel: s.EffectiveRiskLevel(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		}
		if s.Error != "" {
			resp.Error = s.Error
			resp.Metadata.Error = s.Error
		}

		// A draft that finished review ships even when a later step
		// failed; the error text rides alongside it. A draft the
		// reviewer rejected or could not judge never leaves the
		// process.
		reviewed := s.GuardrailStatus == graph.StatusOK ||
			(s.GuardrailStatus == graph.StatusRefine && s.Attempt >= p.maxAttempts)
		if s.Error == "" || reviewed {
			resp.Response = s.ResponseDraft
			resp.Metadata.OllamaResponse = s.OllamaResponse
			resp.Metadata.GPTResponse = s.GPTResponse
		}
		return graph.Update{APIResponse: resp}
	}
}
