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
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel returns fixed scores and counts invocations.
type fakeModel struct {
	scores *Scores
	err    error
	calls  atomic.Int64
}

func (f *fakeModel) Score(_ context.Context, _ string) (*Scores, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

// scoresFor builds aligned vectors with one hot label per vocabulary.
func scoresFor(t *testing.T, intent string, intentScore float64, situation string, situationScore float64, severity string, riskLogit float64) *Scores {
	t.Helper()

	s := &Scores{
		Intent:    make([]float64, len(IntentLabels)),
		Situation: make([]float64, len(SituationLabels)),
		Severity:  make([]float64, len(SeverityLabels)),
		Risk:      riskLogit,
	}
	setLabel := func(labels []string, vec []float64, label string, score float64) {
		for i, l := range labels {
			if l == label {
				vec[i] = score
				return
			}
		}
		t.Fatalf("unknown label %q", label)
	}
	setLabel(IntentLabels, s.Intent, intent, intentScore)
	setLabel(SituationLabels, s.Situation, situation, situationScore)
	setLabel(SeverityLabels, s.Severity, severity, 0.9)
	return s
}

func TestClassify_EmptyMessageShortCircuits(t *testing.T) {
	model := &fakeModel{}
	c := New(model, Config{})

	result, err := c.Classify(context.Background(), "   \n\t ")
	require.NoError(t, err)

	assert.Equal(t, IntentUnclear, result.Intent)
	assert.Equal(t, SituationUnclear, result.Situation)
	assert.Equal(t, SeverityLow, result.Severity)
	assert.Equal(t, RiskLow, result.RiskLevel)
	assert.False(t, result.ModelUsed)
	assert.Zero(t, model.calls.Load())
}

func TestClassify_GreetingShortCircuits(t *testing.T) {
	tests := []struct {
		message  string
		greeting bool
	}{
		{"hi", true},
		{"Hello!!", true},
		{"HEY", true},
		{"good morning", true},
		{"Good Morning!", true},
		{"good morning sunshine", true},
		{"hello there", true},
		{"nice to meet you", true},
		{"hey there", true},
		{"howdy partner", true},
		{"hey whats up", true},
		{"hi there friend", true},
		{"hello everyone here", true},
		{"hello there stranger", true},
		{"nice to see", false},
		{"hi, I failed my exam today", false},
		{"goodness me", false},
		{"morning run was hard", false},
		{"I want to say hello to my anxiety", false},
	}

	for _, tc := range tests {
		t.Run(tc.message, func(t *testing.T) {
			model := &fakeModel{scores: scoresFor(t, "venting", 0.9, "EXAM_ANXIETY", 0.9, "medium", -3)}
			c := New(model, Config{})

			result, err := c.Classify(context.Background(), tc.message)
			require.NoError(t, err)

			if tc.greeting {
				assert.Equal(t, IntentGreeting, result.Intent)
				assert.Equal(t, SituationNone, result.Situation)
				assert.Equal(t, RiskLow, result.RiskLevel)
				assert.False(t, result.ModelUsed)
				assert.Zero(t, model.calls.Load())
			} else {
				assert.NotEqual(t, IntentGreeting, result.Intent)
				assert.True(t, result.ModelUsed)
			}
		})
	}
}

func TestClassify_ModelScores(t *testing.T) {
	model := &fakeModel{scores: scoresFor(t, "venting", 0.8, "EXAM_ANXIETY", 0.7, "medium", -3)}
	c := New(model, Config{})

	result, err := c.Classify(context.Background(), "my exams are crushing me")
	require.NoError(t, err)

	assert.Equal(t, "venting", result.Intent)
	assert.Equal(t, "EXAM_ANXIETY", result.Situation)
	assert.Equal(t, "medium", result.Severity)
	assert.Equal(t, RiskLow, result.RiskLevel)
	assert.InDelta(t, 0.047, result.RiskScore, 0.01)
	assert.True(t, result.ModelUsed)
}

func TestClassify_RiskThresholds(t *testing.T) {
	tests := []struct {
		name  string
		logit float64
		level string
	}{
		{"far negative is low", -3, RiskLow},
		{"zero logit is medium", 0, RiskMedium},
		{"far positive is high", 3, RiskHigh},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			model := &fakeModel{scores: scoresFor(t, "venting", 0.8, "EXAM_ANXIETY", 0.7, "low", tc.logit)}
			c := New(model, Config{})

			result, err := c.Classify(context.Background(), "some distressing message")
			require.NoError(t, err)
			assert.Equal(t, tc.level, result.RiskLevel)
		})
	}
}

func TestClassify_ConfidenceGates(t *testing.T) {
	t.Run("low intent confidence becomes unclear", func(t *testing.T) {
		model := &fakeModel{scores: scoresFor(t, "venting", 0.3, "EXAM_ANXIETY", 0.8, "high", 0)}
		c := New(model, Config{})

		result, err := c.Classify(context.Background(), "hmm")
		require.NoError(t, err)
		assert.Equal(t, IntentUnclear, result.Intent)
		assert.Equal(t, "EXAM_ANXIETY", result.Situation)
	})

	t.Run("low situation confidence caps severity", func(t *testing.T) {
		model := &fakeModel{scores: scoresFor(t, "venting", 0.8, "EXAM_ANXIETY", 0.2, "high", 0)}
		c := New(model, Config{})

		result, err := c.Classify(context.Background(), "something vague happened")
		require.NoError(t, err)
		assert.Equal(t, SituationUnclear, result.Situation)
		assert.Equal(t, SeverityLow, result.Severity)
	})
}

func TestClassify_ModelErrorPropagates(t *testing.T) {
	model := &fakeModel{err: errors.New("model offline")}
	c := New(model, Config{})

	_, err := c.Classify(context.Background(), "how do I cope with exams")
	assert.ErrorContains(t, err, "model offline")
}

func TestClassify_MisalignedVectors(t *testing.T) {
	model := &fakeModel{scores: &Scores{Intent: []float64{0.9}}}
	c := New(model, Config{})

	_, err := c.Classify(context.Background(), "anything")
	assert.ErrorContains(t, err, "misaligned")
}

func TestClassify_CacheReusesResults(t *testing.T) {
	model := &fakeModel{scores: scoresFor(t, "venting", 0.8, "EXAM_ANXIETY", 0.7, "medium", 0)}
	c := New(model, Config{CacheTTL: time.Minute})

	first, err := c.Classify(context.Background(), "my exams are crushing me")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.Classify(context.Background(), "my exams are crushing me")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Intent, second.Intent)

	assert.Equal(t, int64(1), model.calls.Load())

	hitRate, size := c.CacheStats()
	assert.Greater(t, hitRate, 0.0)
	assert.Equal(t, 1, size)
}

func TestResult_CrisisFlags(t *testing.T) {
	high := &Result{RiskLevel: RiskHigh, Situation: SituationSuicidal}
	assert.True(t, high.IsHighCrisis())
	assert.False(t, high.IsMediumCrisis())

	medium := &Result{RiskLevel: RiskMedium, Situation: "EXAM_ANXIETY"}
	assert.False(t, medium.IsHighCrisis())
	assert.True(t, medium.IsMediumCrisis())

	highNotSuicidal := &Result{RiskLevel: RiskHigh, Situation: "EXAM_ANXIETY"}
	assert.False(t, highNotSuicidal.IsHighCrisis())
}
