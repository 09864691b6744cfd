// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soulbuddy_turns_total",
		Help: "Completed turns by conversation mode and outcome.",
	}, []string{"mode", "outcome"})

	verdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soulbuddy_guardrail_verdicts_total",
		Help: "Guardrail review verdicts by status.",
	}, []string{"status"})
)

func recordTurn(mode string, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	turnsTotal.WithLabelValues(mode, outcome).Inc()
}

func recordVerdict(status string) {
	verdictsTotal.WithLabelValues(status).Inc()
}
