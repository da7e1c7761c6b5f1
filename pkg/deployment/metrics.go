// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package deployment

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks status-cache and subprocess-invocation counters for the
// deployment client (spec §6 "Metrics").
type Metrics struct {
	cacheAttempts  prometheus.Counter
	cacheMisses    prometheus.Counter
	statusAttempts prometheus.Counter
	statusFailures prometheus.Counter
}

// NewMetrics builds and registers the deployment client's counters under
// registry. A nil registry is permitted; the returned Metrics then discards
// all recordings.
func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		cacheAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deployment",
			Name:      "status_cache_requests_total",
			Help:      "Total number of attempts to query the deployment client's cached status.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deployment",
			Name:      "status_cache_misses_total",
			Help:      "Total number of times the cached status was stale during a query.",
		}),
		statusAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deployment",
			Name:      "status_attempts_total",
			Help:      "Total number of status subprocess invocation attempts.",
		}),
		statusFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deployment",
			Name:      "status_failures_total",
			Help:      "Total number of status subprocess invocation failures.",
		}),
	}
	if registry != nil {
		registry.MustRegister(m.cacheAttempts, m.cacheMisses, m.statusAttempts, m.statusFailures)
	}
	return m
}

func (m *Metrics) incCacheAttempts() {
	if m == nil {
		return
	}
	m.cacheAttempts.Inc()
}

func (m *Metrics) incCacheMisses() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) incStatusAttempts() {
	if m == nil {
		return
	}
	m.statusAttempts.Inc()
}

func (m *Metrics) incStatusFailures() {
	if m == nil {
		return
	}
	m.statusFailures.Inc()
}
