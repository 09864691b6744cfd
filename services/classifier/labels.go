// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

// IntentLabels is the closed intent vocabulary, index-aligned with the
// score model's intent vector.
var IntentLabels = []string{
	"greeting",
	"venting",
	"seek_information",
	"seek_understanding",
	"open_to_solution",
	"try_tool",
	"seek_support",
	"unclear",
}

// SituationLabels is the closed situation vocabulary, index-aligned with
// the score model's situation vector.
var SituationLabels = []string{
	"ACADEMIC_COMPARISON",
	"EXAM_ANXIETY",
	"GENERAL_OVERWHELM",
	"LOW_MOTIVATION",
	"BELONGING_DOUBT",
	"UNLABELED_DISTRESS",
	"PASSIVE_DEATH_WISH",
	"HEALTH_CONCERNS",
	"RELATIONSHIP_ISSUES",
	"FINANCIAL_STRESS",
	"FUTURE_UNCERTAINTY",
	"OTHER",
	"NO_SITUATION",
	"UNCLEAR",
	"SUICIDAL",
}

// SeverityLabels is the closed severity vocabulary, index-aligned with
// the score model's severity vector.
var SeverityLabels = []string{"low", "medium", "high"}

// Well-known label values referenced outside the vocabularies.
const (
	IntentGreeting = "greeting"
	IntentUnclear  = "unclear"

	// SituationNone marks turns with nothing to classify (greetings).
	SituationNone = "no situation"
	// SituationUnclear marks turns below the situation confidence gate.
	SituationUnclear  = "unclear"
	SituationSuicidal = "SUICIDAL"

	SeverityLow = "low"

	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Result is the classification of one user message.
type Result struct {
	Intent    string  `json:"intent"`
	Situation string  `json:"situation"`
	Severity  string  `json:"severity"`
	RiskLevel string  `json:"risk_level"`
	RiskScore float64 `json:"risk_score"`

	// ModelUsed is false when a heuristic short-circuit answered without
	// invoking the score model.
	ModelUsed bool `json:"model_used"`
	// Cached is true when the result came from the classification cache.
	Cached bool `json:"cached"`
}

// IsHighCrisis reports whether the turn needs immediate escalation
// handling: high risk on a suicidal situation.
func (r *Result) IsHighCrisis() bool {
	return r.RiskLevel == RiskHigh && r.Situation == SituationSuicidal
}

// IsMediumCrisis reports elevated but not acute risk.
func (r *Result) IsMediumCrisis() bool {
	return r.RiskLevel == RiskMedium && !r.IsHighCrisis()
}
