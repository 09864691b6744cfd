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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soulbuddy_classifications_total",
		Help: "Classified messages by intent and risk level.",
	}, []string{"intent", "risk_level"})

	classifierCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soulbuddy_classifier_cache_hits_total",
		Help: "Classification cache hits.",
	})

	classifierCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soulbuddy_classifier_cache_misses_total",
		Help: "Classification cache misses.",
	})
)

func recordClassification(r *Result) {
	classificationsTotal.WithLabelValues(r.Intent, r.RiskLevel).Inc()
}

func recordCacheHit()  { classifierCacheHits.Inc() }
func recordCacheMiss() { classifierCacheMisses.Inc() }
