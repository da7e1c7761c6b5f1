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

package agent

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ActiveUserSessionsLabel labels finalization attempts blocked due to
// active interactive user sessions (spec §6 "Metrics").
const ActiveUserSessionsLabel = "active_usersessions"

// StrategyBlockedLabel labels finalization attempts blocked by strategy
// policy rather than user activity.
const StrategyBlockedLabel = "strategy_policy"

// Metrics holds the update agent's process-global Prometheus metrics,
// built the way the inherited observability package builds its metric
// groups: one Vec per concern, registered eagerly, nil-receiver-safe
// Record methods so a disabled Metrics can be passed around as a no-op.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry

	lastRefreshUnix int64 // atomic

	lastRefresh *prometheus.GaugeVec

	finalizationAttempts *prometheus.CounterVec
	finalizationBlocked  *prometheus.CounterVec
	finalizationSuccess  *prometheus.CounterVec
}

// NewMetrics builds a Metrics under a fresh registry. namespace prefixes
// every metric name (e.g. "agentd").
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	m.lastRefresh = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: "updateagent",
			Name:      "last_refresh_timestamp",
			Help:      "UTC timestamp of the update agent's last refresh tick.",
		},
		[]string{},
	)

	m.finalizationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "updateagent",
			Name:      "finalization_attempts_total",
			Help:      "Total number of attempts to finalize a staged deployment.",
		},
		[]string{},
	)

	m.finalizationBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "updateagent",
			Name:      "finalization_blocked_total",
			Help:      "Total number of finalization attempts blocked, labeled by reason.",
		},
		[]string{"reason"},
	)

	m.finalizationSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "updateagent",
			Name:      "finalization_successes_total",
			Help:      "Total number of successful update finalizations.",
		},
		[]string{},
	)

	m.registry.MustRegister(m.lastRefresh, m.finalizationAttempts, m.finalizationBlocked, m.finalizationSuccess)
}

// SetLastRefresh records the UTC timestamp of the current tick.
func (m *Metrics) SetLastRefresh(t time.Time) {
	if m == nil {
		return
	}
	unix := t.Unix()
	atomic.StoreInt64(&m.lastRefreshUnix, unix)
	m.lastRefresh.WithLabelValues().Set(float64(unix))
}

// LastRefresh returns the last recorded refresh timestamp, or 0 if none.
func (m *Metrics) LastRefresh() int64 {
	if m == nil {
		return 0
	}
	return atomic.LoadInt64(&m.lastRefreshUnix)
}

// IncFinalizationAttempts increments the finalization-attempts counter.
func (m *Metrics) IncFinalizationAttempts() {
	if m == nil {
		return
	}
	m.finalizationAttempts.WithLabelValues().Inc()
}

// IncFinalizationBlocked increments the finalization-blocked counter for
// the given reason label.
func (m *Metrics) IncFinalizationBlocked(reason string) {
	if m == nil {
		return
	}
	m.finalizationBlocked.WithLabelValues(reason).Inc()
}

// IncFinalizationSuccess increments the finalization-success counter.
func (m *Metrics) IncFinalizationSuccess() {
	if m == nil {
		return
	}
	m.finalizationSuccess.WithLabelValues().Inc()
}

// Handler exposes the registry over HTTP via promhttp, the same transport
// wiring as the inherited observability package.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
