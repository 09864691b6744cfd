// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator produces the draft reply for one turn.
//
// Both configured backends are invoked concurrently with independent
// timeouts; a failed backend yields an empty candidate rather than a
// failed turn. The turn only fails when every backend comes back empty.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shrutib31/soul-buddy/services/llm"
)

var tracer = otel.Tracer("github.com/shrutib31/soul-buddy/services/generator")

// Strategy selects the final reply among backend candidates.
type Strategy string

const (
	// StrategyDefault prefers the remote candidate, falling back to local.
	StrategyDefault Strategy = ""
	// StrategyLocal always uses the local (Ollama) candidate.
	StrategyLocal Strategy = "ollama"
	// StrategyRemote always uses the remote (OpenAI) candidate.
	StrategyRemote Strategy = "gpt"
	// StrategyLonger uses whichever candidate has more text.
	StrategyLonger Strategy = "longer"
)

// Default per-backend deadlines and reply budget.
const (
	DefaultLocalTimeout  = 120 * time.Second
	DefaultRemoteTimeout = 30 * time.Second
	DefaultMaxTokens     = 200
)

// ErrAllSourcesFailed is returned when no backend produced any text.
var ErrAllSourcesFailed = errors.New("generator: all generation sources failed")

// systemPrompt frames every draft. The reply register matters more than
// the content: short, warm, no diagnosis, no platitudes.
const systemPrompt = `You are a compassionate companion supporting students through emotional difficulty.
Listen first. Validate what the person is feeling before anything else.
Keep replies short and conversational. Never diagnose, never lecture,
never minimize. If the person is in danger, gently encourage them to
reach out to a crisis line or someone they trust.`

// Config tunes timeouts and selection.
type Config struct {
	LocalTimeout  time.Duration
	RemoteTimeout time.Duration
	Strategy      Strategy
	MaxTokens     int
}

// Input carries everything the prompt needs for one draft.
type Input struct {
	Message   string
	Intent    string
	Situation string
	Severity  string

	// Feedback and PreviousDraft are set on regeneration after a failed
	// safety review; both feed the prompt so the next draft can improve.
	Feedback      string
	PreviousDraft string
}

// Output holds the selected reply plus per-backend candidates.
type Output struct {
	Response       string
	OllamaResponse string
	GPTResponse    string
}

// Generator fans one prompt out to the configured backends.
// Either backend may be nil. Safe for concurrent use.
type Generator struct {
	local  llm.LLMClient
	remote llm.LLMClient
	config Config
	logger *slog.Logger
}

// New creates a generator. Zero config fields take package defaults.
func New(local, remote llm.LLMClient, config Config, logger *slog.Logger) *Generator {
	if config.LocalTimeout <= 0 {
		config.LocalTimeout = DefaultLocalTimeout
	}
	if config.RemoteTimeout <= 0 {
		config.RemoteTimeout = DefaultRemoteTimeout
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{local: local, remote: remote, config: config, logger: logger}
}

// Generate drafts a reply. Backend failures degrade to empty candidates;
// ErrAllSourcesFailed is returned only when nothing produced text.
func (g *Generator) Generate(ctx context.Context, in Input) (*Output, error) {
	ctx, span := tracer.Start(ctx, "generator.Generate")
	defer span.End()

	if g.local == nil && g.remote == nil {
		return nil, errors.New("generator: no backends configured")
	}

	prompt := buildPrompt(in)
	temp := float32(0.7)
	maxTokens := g.config.MaxTokens
	params := llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		System:      systemPrompt,
	}

	var wg sync.WaitGroup
	out := &Output{}

	generate := func(client llm.LLMClient, timeout time.Duration, name string, dst *string) {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		text, err := client.Generate(callCtx, prompt, params)
		if err != nil {
			g.logger.Warn("generation source failed", "source", name, "error", err)
			recordSourceFailure(name)
			return
		}
		*dst = strings.TrimSpace(text)
	}

	if g.local != nil {
		wg.Add(1)
		go generate(g.local, g.config.LocalTimeout, "ollama", &out.OllamaResponse)
	}
	if g.remote != nil {
		wg.Add(1)
		go generate(g.remote, g.config.RemoteTimeout, "gpt", &out.GPTResponse)
	}
	wg.Wait()

	if out.OllamaResponse == "" && out.GPTResponse == "" {
		return nil, ErrAllSourcesFailed
	}

	out.Response = selectBest(g.config.Strategy, out.OllamaResponse, out.GPTResponse)
	span.SetAttributes(
		attribute.Bool("generator.local_ok", out.OllamaResponse != ""),
		attribute.Bool("generator.remote_ok", out.GPTResponse != ""),
		attribute.Int("generator.response_len", len(out.Response)),
	)
	return out, nil
}

// selectBest applies the strategy, falling back to whichever candidate
// exists when the preferred one is empty.
func selectBest(strategy Strategy, ollama, gpt string) string {
	switch strategy {
	case StrategyLocal:
		if ollama != "" {
			return ollama
		}
		return gpt
	case StrategyLonger:
		if len(ollama) > len(gpt) {
			return ollama
		}
		return gpt
	default:
		// StrategyRemote and StrategyDefault both prefer the remote model.
		if gpt != "" {
			return gpt
		}
		return ollama
	}
}

// buildPrompt assembles the user prompt with classification context and,
// on regeneration, the reviewer feedback.
func buildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Context about the person you are replying to:\n")
	fmt.Fprintf(&b, "- situation: %s\n", valueOr(in.Situation, "unknown"))
	fmt.Fprintf(&b, "- severity: %s\n", valueOr(in.Severity, "unknown"))
	fmt.Fprintf(&b, "- intent: %s\n", valueOr(in.Intent, "unknown"))

	if in.Feedback != "" {
		b.WriteString("\nYour previous draft was rejected by a safety review.\n")
		if in.PreviousDraft != "" {
			fmt.Fprintf(&b, "Previous draft: %s\n", in.PreviousDraft)
		}
		fmt.Fprintf(&b, "Reviewer feedback: %s\n", in.Feedback)
		b.WriteString("Write a new reply that addresses the feedback.\n")
	}

	fmt.Fprintf(&b, "\nTheir message: %s\n\nYour reply:", in.Message)
	return b.String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
