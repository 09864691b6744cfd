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

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultScoreTimeout = 15 * time.Second

// HTTPScoreModel calls the scoring sidecar over HTTP. The sidecar hosts
// the actual model; this client only moves vectors.
type HTTPScoreModel struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPScoreModel creates a client for the scoring service at baseURL,
// e.g. "http://soulbuddy-scorer:9090".
func NewHTTPScoreModel(baseURL string) *HTTPScoreModel {
	return &HTTPScoreModel{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultScoreTimeout},
	}
}

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	IntentScores    []float64 `json:"intent_scores"`
	SituationScores []float64 `json:"situation_scores"`
	SeverityScores  []float64 `json:"severity_scores"`
	RiskLogit       float64   `json:"risk_logit"`
}

// Score sends the message to the sidecar and returns its raw vectors.
func (m *HTTPScoreModel) Score(ctx context.Context, message string) (*Scores, error) {
	ctx, span := tracer.Start(ctx, "classifier.HTTPScoreModel.Score")
	defer span.End()

	payload, err := json.Marshal(scoreRequest{Text: message})
	if err != nil {
		return nil, fmt.Errorf("marshaling score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/v1/score", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score request failed")
		return nil, fmt.Errorf("calling score service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("score service returned %d: %s", resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, "score service error")
		return nil, err
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding score response: %w", err)
	}

	span.SetAttributes(attribute.Float64("score.risk_logit", decoded.RiskLogit))
	return &Scores{
		Intent:    decoded.IntentScores,
		Situation: decoded.SituationScores,
		Severity:  decoded.SeverityScores,
		Risk:      decoded.RiskLogit,
	}, nil
}
