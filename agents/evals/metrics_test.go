/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"chainguard.dev/repopilot/agents/agenttrace"
)

func TestMetricsObserver(t *testing.T) {
	obs := NewMetricsObserver("metrics-test")
	Inject(obs, ExactToolCalls(1))(&agenttrace.Trace{})
	Inject(obs, NoToolCalls())(&agenttrace.Trace{})

	if obs.Total() != 0 {
		t.Errorf("Total() = %d, wanted 0", obs.Total())
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() = %v", err)
	}
	got := map[string]float64{}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "check" && l.GetValue() == "metrics-test" {
					got[family.GetName()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	if got["repopilot_turn_checks_total"] != 2 {
		t.Errorf("checks: got = %v, wanted 2", got["repopilot_turn_checks_total"])
	}
	if got["repopilot_turn_check_failures_total"] != 1 {
		t.Errorf("failures: got = %v, wanted 1", got["repopilot_turn_check_failures_total"])
	}
}
