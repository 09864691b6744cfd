// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifier maps one user message onto intent, situation,
// severity, and risk level.
//
// Cheap heuristics answer first: empty input and plain greetings never
// reach the score model. Everything else goes through a TTL cache and
// singleflight coalescing before the model is invoked.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/shrutib31/soul-buddy/services/classifier")

// Confidence gates and risk thresholds applied to raw model scores.
const (
	intentConfidenceGate    = 0.5
	situationConfidenceGate = 0.5
	riskMediumThreshold     = 0.3
	riskHighThreshold       = 0.7
)

// Greeting forms matched by the pre-model heuristic.
var (
	simpleGreetings = []string{"hi", "hello", "hey", "greetings", "howdy"}
	timeGreetings   = []string{"good morning", "good afternoon", "good evening"}
	phraseGreetings = []string{"nice to meet you", "hello there", "hi there"}
)

// Scores is the raw model output. The intent, situation, and severity
// vectors are index-aligned with the label slices in this package; Risk
// is an unbounded logit squashed by the classifier.
type Scores struct {
	Intent    []float64
	Situation []float64
	Severity  []float64
	Risk      float64
}

// ScoreModel scores one message against the closed vocabularies.
type ScoreModel interface {
	Score(ctx context.Context, message string) (*Scores, error)
}

// Config controls classifier caching.
type Config struct {
	// CacheTTL enables the result cache when > 0.
	CacheTTL time.Duration
	// CacheMaxSize caps cache entries. Defaults to 1024 when unset.
	CacheMaxSize int
}

// Classifier classifies user messages. Safe for concurrent use.
type Classifier struct {
	model    ScoreModel
	cache    *resultCache
	inflight singleflight.Group
}

// New creates a classifier around the given score model.
func New(model ScoreModel, config Config) *Classifier {
	var cache *resultCache
	if config.CacheTTL > 0 {
		maxSize := config.CacheMaxSize
		if maxSize <= 0 {
			maxSize = 1024
		}
		cache = newResultCache(config.CacheTTL, maxSize)
	}
	return &Classifier{model: model, cache: cache}
}

// Classify returns the classification for one message.
//
// Empty input and greetings short-circuit without the model. Model
// failures propagate as errors; there is no silent fallback, the caller
// decides what a failed classification means for the turn.
func (c *Classifier) Classify(ctx context.Context, message string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "classifier.Classify")
	defer span.End()

	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		span.SetAttributes(attribute.String("reason", "empty_message"))
		result := &Result{
			Intent:    IntentUnclear,
			Situation: SituationUnclear,
			Severity:  SeverityLow,
			RiskLevel: RiskLow,
		}
		recordClassification(result)
		return result, nil
	}

	if isGreeting(trimmed) {
		span.SetAttributes(attribute.String("reason", "greeting"))
		result := &Result{
			Intent:    IntentGreeting,
			Situation: SituationNone,
			Severity:  SeverityLow,
			RiskLevel: RiskLow,
		}
		recordClassification(result)
		return result, nil
	}

	if c.cache != nil {
		if cached, ok := c.cache.get(trimmed); ok {
			span.SetAttributes(attribute.Bool("cached", true))
			recordCacheHit()
			recordClassification(&cached)
			return &cached, nil
		}
		recordCacheMiss()
	}

	// Coalesce concurrent identical messages onto one model call.
	value, err, _ := c.inflight.Do(cacheKey(trimmed), func() (interface{}, error) {
		return c.score(ctx, trimmed)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return nil, err
	}

	result := value.(*Result)
	if c.cache != nil {
		c.cache.set(trimmed, *result)
	}

	span.SetAttributes(
		attribute.String("intent", result.Intent),
		attribute.String("situation", result.Situation),
		attribute.String("risk_level", result.RiskLevel),
	)
	recordClassification(result)
	return result, nil
}

// CacheStats returns the cache hit rate and entry count, zeros when the
// cache is disabled.
func (c *Classifier) CacheStats() (hitRate float64, size int) {
	if c.cache == nil {
		return 0, 0
	}
	return c.cache.stats()
}

// score invokes the model and applies gates and thresholds.
func (c *Classifier) score(ctx context.Context, message string) (*Result, error) {
	scores, err := c.model.Score(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("scoring message: %w", err)
	}
	if scores == nil {
		return nil, errors.New("classifier: model returned nil scores")
	}
	if len(scores.Intent) != len(IntentLabels) ||
		len(scores.Situation) != len(SituationLabels) ||
		len(scores.Severity) != len(SeverityLabels) {
		return nil, errors.New("classifier: score vectors misaligned with label sets")
	}

	result := &Result{ModelUsed: true}

	intentIdx, intentScore := argmax(scores.Intent)
	if intentScore < intentConfidenceGate {
		result.Intent = IntentUnclear
	} else {
		result.Intent = IntentLabels[intentIdx]
	}

	situationIdx, situationScore := argmax(scores.Situation)
	if situationScore < situationConfidenceGate {
		// Low situation confidence also caps severity: without a known
		// situation there is nothing to grade.
		result.Situation = SituationUnclear
		result.Severity = SeverityLow
	} else {
		result.Situation = SituationLabels[situationIdx]
		severityIdx, _ := argmax(scores.Severity)
		result.Severity = SeverityLabels[severityIdx]
	}

	result.RiskScore = sigmoid(scores.Risk)
	switch {
	case result.RiskScore < riskMediumThreshold:
		result.RiskLevel = RiskLow
	case result.RiskScore < riskHighThreshold:
		result.RiskLevel = RiskMedium
	default:
		result.RiskLevel = RiskHigh
	}

	return result, nil
}

// isGreeting reports whether a message is a plain social opener.
func isGreeting(message string) bool {
	normalized := normalizeGreeting(message)
	if normalized == "" {
		return false
	}

	if slices.Contains(simpleGreetings, normalized) ||
		slices.Contains(timeGreetings, normalized) ||
		slices.Contains(phraseGreetings, normalized) {
		return true
	}

	// Short messages count as greetings when they open with one: a
	// simple greeting as the first word, or a time/phrase greeting as
	// the first two words.
	words := strings.Fields(normalized)
	if len(words) > 3 {
		return false
	}
	if slices.Contains(simpleGreetings, words[0]) {
		return true
	}
	if len(words) >= 2 {
		lead := words[0] + " " + words[1]
		if slices.Contains(timeGreetings, lead) || slices.Contains(phraseGreetings, lead) {
			return true
		}
	}
	return false
}

// normalizeGreeting lowercases and strips punctuation so "Hello!!" and
// "hello" compare equal.
func normalizeGreeting(message string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(message)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func argmax(scores []float64) (int, float64) {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best, scores[best]
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
