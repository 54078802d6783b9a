// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnoracle

import (
	"time"

	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the oracle checked and found.
type Metrics struct {
	Schedules        prometheus.Counter
	Mismatches       prometheus.Counter
	Blocked          prometheus.Counter
	Deadlocks        prometheus.Counter
	UnexpectedErrors prometheus.Counter
	ScheduleLatency  prometheus.Histogram
}

// NewMetrics creates the oracle metrics and registers them with reg when it
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Schedules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnoracle",
			Name:      "schedules_total",
			Help:      "Number of schedules executed and checked.",
		}),
		Mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnoracle",
			Name:      "mismatches_total",
			Help:      "Number of schedules whose observed result differed from the inferred one.",
		}),
		Blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnoracle",
			Name:      "blocked_statements_total",
			Help:      "Number of statements that did not complete within the wait threshold.",
		}),
		Deadlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnoracle",
			Name:      "deadlocks_total",
			Help:      "Number of statements whose transaction was a deadlock victim.",
		}),
		UnexpectedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txnoracle",
			Name:      "unexpected_errors_total",
			Help:      "Number of statement errors outside the expected set.",
		}),
		ScheduleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txnoracle",
			Name:      "schedule_duration_seconds",
			Help:      "Time to execute, infer and compare one schedule.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Schedules, m.Mismatches, m.Blocked, m.Deadlocks,
			m.UnexpectedErrors, m.ScheduleLatency)
	}
	return m
}

func (m *Metrics) recordExecution(res *txn.TestResult) {
	for _, s := range res.Statements {
		if s.Blocked {
			m.Blocked.Inc()
		}
		if s.Deadlock {
			m.Deadlocks.Inc()
		}
	}
}

func (m *Metrics) observeSchedule(d time.Duration) {
	m.Schedules.Inc()
	m.ScheduleLatency.Observe(d.Seconds())
}
