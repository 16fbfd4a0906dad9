package workeragent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are additive observability for the worker-agent HTTP server;
// spec.md does not require them, but SPEC_FULL.md's ambient stack carries
// structured metrics the way the pack's own services do. A private
// registry (rather than the global default) keeps repeated Server
// construction in tests from panicking on duplicate registration.
type metrics struct {
	registry       *prometheus.Registry
	activeSessions prometheus.Gauge
	commandsRun    *prometheus.CounterVec
	killsIssued    *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_worker_active_sessions",
			Help: "Number of sessions currently tracked by this worker agent.",
		}),
		commandsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_worker_commands_total",
			Help: "Commands dispatched to a session, labeled by outcome.",
		}, []string{"outcome"}),
		killsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_worker_kills_total",
			Help: "kill_processes invocations, labeled by whether force was requested.",
		}, []string{"force"}),
	}
	m.registry.MustRegister(m.activeSessions, m.commandsRun, m.killsIssued)
	return m
}
