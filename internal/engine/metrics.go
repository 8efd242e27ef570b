// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the five named instruments spec.md §4.13 requires.
// It owns a private registry rather than registering against
// prometheus.DefaultRegisterer, so multiple engine contexts (as in tests
// that build several in the same process) never collide on a global.
type Metrics struct {
	Registry *prometheus.Registry

	FindingsTotal      *prometheus.CounterVec
	PlansAppliedTotal  *prometheus.CounterVec
	GuardFailuresTotal *prometheus.CounterVec
	CacheHitRatio      prometheus.Gauge
	ApplyDuration      prometheus.Histogram
}

// NewMetrics constructs a Metrics value with a fresh registry and
// registers all five instruments against it. The CLI may optionally
// expose Registry via promhttp.Handler(); the engine itself never opens a
// socket.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ace_findings_total",
			Help: "Findings emitted, labeled by rule id.",
		}, []string{"rule_id"}),
		PlansAppliedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ace_plans_applied_total",
			Help: "Plans resolved by decision outcome.",
		}, []string{"decision"}),
		GuardFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ace_guard_failures_total",
			Help: "Guard check failures, labeled by the layer that failed.",
		}, []string{"layer"}),
		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ace_cache_hit_ratio",
			Help: "Fraction of detector lookups served from cache on the most recent run.",
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ace_apply_duration_seconds",
			Help:    "Wall time spent applying one plan's edits, Guard included.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.FindingsTotal, m.PlansAppliedTotal, m.GuardFailuresTotal, m.CacheHitRatio, m.ApplyDuration)
	return m
}
