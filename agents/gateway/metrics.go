/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repopilot_gateway_actions_total",
			Help: "Gateway actions by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	pendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repopilot_gateway_pending",
			Help: "Actions awaiting approval",
		},
	)
)

func countAction(t ActionType, outcome string) {
	actionsCounter.With(prometheus.Labels{"type": string(t), "outcome": outcome}).Inc()
}
