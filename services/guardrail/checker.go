// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shrutib31/soul-buddy/services/llm"
)

var tracer = otel.Tracer("github.com/shrutib31/soul-buddy/services/guardrail")

// Review statuses. Anything the reviewer model returns outside OK and
// REFINE collapses to ERROR; a reviewer that can't be understood must
// not pass a draft through.
const (
	StatusOK     = "OK"
	StatusRefine = "REFINE"
	StatusError  = "ERROR"
)

// Verdict is the outcome of one draft review.
type Verdict struct {
	Status   string `json:"status"`
	Feedback string `json:"feedback"`
}

// Checker reviews drafts with a small local model against the active
// rule set. Safe for concurrent use.
type Checker struct {
	client llm.LLMClient
	rules  *RuleSet
	logger *slog.Logger
}

// NewChecker creates a checker.
func NewChecker(client llm.LLMClient, rules *RuleSet, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{client: client, rules: rules, logger: logger}
}

// Review judges a drafted reply. Failures of the reviewer itself (model
// unreachable, unparseable output, unknown status) come back as an
// ERROR verdict rather than an error: the caller routes on status and a
// broken reviewer must never be mistaken for approval.
func (c *Checker) Review(ctx context.Context, userMessage, draft string) Verdict {
	ctx, span := tracer.Start(ctx, "guardrail.Review")
	defer span.End()

	temp := float32(0.3)
	raw, err := c.client.Generate(ctx, c.buildPrompt(userMessage, draft), llm.GenerationParams{
		Temperature: &temp,
	})
	if err != nil {
		c.logger.Warn("review model call failed", "error", err)
		span.SetAttributes(attribute.String("guardrail.status", StatusError))
		return Verdict{Status: StatusError, Feedback: "review model unavailable: " + err.Error()}
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		c.logger.Warn("review response unparseable", "error", err)
		span.SetAttributes(attribute.String("guardrail.status", StatusError))
		return Verdict{Status: StatusError, Feedback: "review response unparseable"}
	}

	span.SetAttributes(attribute.String("guardrail.status", verdict.Status))
	return verdict
}

// parseVerdict decodes the reviewer's JSON, tolerating prose around the
// object, and normalizes the status.
func parseVerdict(raw string) (Verdict, error) {
	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		extracted, exErr := ExtractJSON(raw)
		if exErr != nil {
			return Verdict{}, exErr
		}
		if err := json.Unmarshal([]byte(extracted), &verdict); err != nil {
			return Verdict{}, fmt.Errorf("decoding review verdict: %w", err)
		}
	}

	verdict.Status = strings.ToUpper(strings.TrimSpace(verdict.Status))
	verdict.Feedback = strings.TrimSpace(verdict.Feedback)

	if verdict.Status != StatusOK && verdict.Status != StatusRefine {
		return Verdict{
			Status:   StatusError,
			Feedback: "unrecognized review status",
		}, nil
	}
	return verdict, nil
}

// buildPrompt assembles the review prompt with the active rules.
func (c *Checker) buildPrompt(userMessage, draft string) string {
	var b strings.Builder

	b.WriteString(`You are a guardrail checker.

Given:
- The user's message
- A candidate assistant answer
- The RULES

Decide whether the candidate assistant answer VIOLATES or DOES NOT VIOLATE the RULES.

Return ONLY a JSON object with this exact structure:
{
  "status": "OK" or "REFINE",
  "feedback": "short explanation of why, and what to adjust"
}

- Use "OK" only if the answer clearly does NOT violate the rules.
- Use "REFINE" if tone, style, structure, or content violates the rules or needs improvement.
- feedback should be concise but specific enough to help refine the response.

`)
	fmt.Fprintf(&b, "User Message: %q\n", userMessage)
	fmt.Fprintf(&b, "Candidate Assistant Answer: %s\n", draft)
	b.WriteString("RULES:\n")
	for _, rule := range c.rules.Rules() {
		fmt.Fprintf(&b, "- %s\n", rule)
	}
	return b.String()
}
