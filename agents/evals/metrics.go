/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repopilot_turn_checks_total",
			Help: "Number of turns a check was run against.",
		},
		[]string{"check"},
	)

	checkFailureCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repopilot_turn_check_failures_total",
			Help: "Number of failures reported by a check.",
		},
		[]string{"check"},
	)
)

// MetricsObserver counts checks and their failures in Prometheus.
type MetricsObserver struct {
	check    prometheus.Counter
	failures prometheus.Counter
}

var _ Observer = (*MetricsObserver)(nil)

// NewMetricsObserver returns an observer labelled with the check name.
func NewMetricsObserver(name string) *MetricsObserver {
	labels := prometheus.Labels{"check": name}
	return &MetricsObserver{
		check:    checkCounter.With(labels),
		failures: checkFailureCounter.With(labels),
	}
}

func (m *MetricsObserver) Increment()   { m.check.Inc() }
func (m *MetricsObserver) Fail(string)  { m.failures.Inc() }
func (m *MetricsObserver) Log(string)   {}
func (m *MetricsObserver) Total() int64 { return 0 }
