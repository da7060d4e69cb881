/*
Copyright 2025 The Edgeplane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics defines the Prometheus instrumentation shared by the
// reconciler and the drift scanner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Result labels for reconcile attempts.
const (
	ResultSuccess = "success"
	ResultRetry   = "retry"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics instruments the controller runtime.
type Metrics struct {
	registry *prometheus.Registry

	Reconciles        *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
	DriftTicks        *prometheus.CounterVec
	OrphansDeleted    *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
}

// New returns metrics on a dedicated registry, with the standard Go and
// process collectors alongside edgeplane's own.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeplane_reconciles_total",
			Help: "Reconcile attempts by kind, action and result.",
		}, []string{"kind", "action", "result"}),

		ReconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgeplane_reconcile_duration_seconds",
			Help:    "Duration of reconcile attempts by kind and action.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "action"}),

		DriftTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeplane_drift_ticks_total",
			Help: "Drift scan ticks by kind and result.",
		}, []string{"kind", "result"}),

		OrphansDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeplane_orphans_deleted_total",
			Help: "External objects deleted by the orphan sweep, by kind.",
		}, []string{"kind"}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgeplane_queue_depth",
			Help: "Messages waiting in the work queue, where measurable.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Reconciles,
		m.ReconcileDuration,
		m.DriftTicks,
		m.OrphansDeleted,
		m.QueueDepth,
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
