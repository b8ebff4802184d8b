// Package metrics exposes Prometheus instrumentation for the capture
// session and profile store.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KasunDA/fc-admin/internal/session"
)

const maxLabelLen = 64

// sanitizeLabel keeps namespace labels bounded; an empty value becomes
// "unknown".
func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

type Metrics struct {
	registry *prometheus.Registry

	sessionActive  prometheus.Gauge
	sessions       *prometheus.CounterVec
	changes        *prometheus.CounterVec
	deploys        *prometheus.CounterVec
	pendingDeploys prometheus.Gauge
	bridgeFailures prometheus.Counter
	storageErrors  *prometheus.CounterVec
	wsClients      prometheus.Gauge
}

// New registers the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fc_admin",
			Subsystem: "session",
			Name:      "active",
			Help:      "1 while a capture session is active",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fc_admin",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Capture session starts and stops",
		}, []string{"transition"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fc_admin",
			Subsystem: "session",
			Name:      "changes_total",
			Help:      "Changes recorded by namespace",
		}, []string{"namespace"}),
		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fc_admin",
			Subsystem: "deploy",
			Name:      "outcomes_total",
			Help:      "Deploys committed, saved as profiles, or discarded",
		}, []string{"outcome"}),
		pendingDeploys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fc_admin",
			Subsystem: "deploy",
			Name:      "pending",
			Help:      "Committed deploys not yet saved or discarded",
		}),
		bridgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fc_admin",
			Subsystem: "bridge",
			Name:      "failures_total",
			Help:      "Session starts that failed to reach the session agent",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fc_admin",
			Subsystem: "profiles",
			Name:      "storage_errors_total",
			Help:      "Profile storage failures by operation",
		}, []string{"op"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fc_admin",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),
	}
	m.registry.MustRegister(
		m.sessionActive, m.sessions, m.changes, m.deploys, m.pendingDeploys,
		m.bridgeFailures, m.storageErrors, m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe updates counters from a lifecycle event.
func (m *Metrics) Observe(ev session.Event) {
	switch ev.Type {
	case session.EventSessionStarted:
		m.sessionActive.Set(1)
		m.sessions.WithLabelValues("start").Inc()
	case session.EventSessionStopped:
		m.sessionActive.Set(0)
		m.sessions.WithLabelValues("stop").Inc()
	case session.EventChangeRecorded:
		m.changes.WithLabelValues(sanitizeLabel(ev.Namespace)).Inc()
	case session.EventDeployCommitted:
		m.deploys.WithLabelValues("committed").Inc()
	case session.EventDeploySaved:
		m.deploys.WithLabelValues("saved").Inc()
	case session.EventDeployDiscarded:
		m.deploys.WithLabelValues("discarded").Inc()
	}
}

func (m *Metrics) SetPendingDeploys(n int) { m.pendingDeploys.Set(float64(n)) }

func (m *Metrics) BridgeFailure() { m.bridgeFailures.Inc() }

func (m *Metrics) StorageError(op string) { m.storageErrors.WithLabelValues(sanitizeLabel(op)).Inc() }

func (m *Metrics) SetClients(n int) { m.wsClients.Set(float64(n)) }

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
