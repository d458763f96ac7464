package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the supplemented observability surface: every component in
// this package that does something worth counting
// accepts a *Metrics so an operator can wire /metrics without touching
// core logic. NewMetrics registers nothing on the default registry by
// itself — callers choose a registry, same as promhttp.Handler expects.
type Metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsActive    prometheus.Gauge
	upgrades             *prometheus.CounterVec
	upgradeLostBytes     prometheus.Counter
	responses            *prometheus.CounterVec
	tlsHandshakeFailures prometheus.Counter
}

// NewMetrics constructs and registers the relay's metrics on reg. Passing
// prometheus.NewRegistry() keeps tests hermetic; production code typically
// passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "connections_accepted_total",
			Help:      "Total TCP connections accepted by the relay frontend.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connections_active",
			Help:      "Connections currently being served (includes in-flight relay sessions).",
		}),
		upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "upgrades_total",
			Help:      "Successful protocol upgrades, by protocol.",
		}, []string{"protocol"}),
		upgradeLostBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "upgrade_lost_bytes_total",
			Help:      "Upgrade handoffs aborted because the client pipelined bytes behind the request.",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "http_responses_total",
			Help:      "Non-upgrade HTTP responses served, by status class.",
		}, []string{"class"}),
		tlsHandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "tls_handshake_failures_total",
			Help:      "TLS handshakes that failed before an HTTP request was read.",
		}),
	}
	reg.MustRegister(
		m.connectionsAccepted,
		m.connectionsActive,
		m.upgrades,
		m.upgradeLostBytes,
		m.responses,
		m.tlsHandshakeFailures,
	)
	return m
}

func responseClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "1xx"
	}
}
