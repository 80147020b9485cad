// Package metrics collects Prometheus counters for device sessions, command
// execution and configuration applies.
//
// junotron is a short-lived CLI, so nothing is served over HTTP. The registry
// is written in text exposition format on exit when --metrics-textfile is set,
// for pickup by the node_exporter textfile collector.
//
// Every recorder method is safe on a nil *Metrics, so packages can take an
// optional collector without guarding each call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	Registry *prometheus.Registry

	// SessionsOpened counts session open attempts.
	// Labels: transport (ssh|telnet), result (ok|connect_error|auth_error)
	SessionsOpened *prometheus.CounterVec

	// ActiveSessions is 1 while a session is live, 0 otherwise.
	ActiveSessions prometheus.Gauge

	// Commands counts executed commands.
	// Labels: result (ok|timeout|device_error|io_error)
	Commands *prometheus.CounterVec

	// CommandDuration measures send-to-completion time in seconds.
	// Buckets: 0.1s, 0.25s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	CommandDuration prometheus.Histogram

	// BytesRead counts raw bytes received from devices.
	BytesRead prometheus.Counter

	// Applies counts transactional applies.
	// Labels: domain, result (verified|unverified|failed)
	Applies *prometheus.CounterVec

	// Refreshes counts post-apply and explicit refreshes.
	// Labels: result (ok|failed)
	Refreshes *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		SessionsOpened: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junotron_sessions_opened_total",
				Help: "Session open attempts by transport and result",
			},
			[]string{"transport", "result"},
		),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "junotron_active_sessions",
			Help: "Number of live device sessions",
		}),
		Commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junotron_commands_total",
				Help: "Commands executed by result",
			},
			[]string{"result"},
		),
		CommandDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "junotron_command_duration_seconds",
			Help:    "Time from send to command completion",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		BytesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "junotron_bytes_read_total",
			Help: "Raw bytes received from device sessions",
		}),
		Applies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junotron_applies_total",
				Help: "Configuration applies by domain and result",
			},
			[]string{"domain", "result"},
		),
		Refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junotron_refreshes_total",
				Help: "State refreshes by result",
			},
			[]string{"result"},
		),
	}
}

// SessionOpened records an open attempt.
func (m *Metrics) SessionOpened(transport, result string) {
	if m == nil {
		return
	}
	m.SessionsOpened.WithLabelValues(transport, result).Inc()
	if result == "ok" {
		m.ActiveSessions.Set(1)
	}
}

// SessionClosed records a session teardown.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(0)
}

// CommandDone records one command outcome and its latency.
func (m *Metrics) CommandDone(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(result).Inc()
	m.CommandDuration.Observe(d.Seconds())
}

// Read records bytes received.
func (m *Metrics) Read(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesRead.Add(float64(n))
}

// ApplyDone records an apply outcome.
func (m *Metrics) ApplyDone(domain, result string) {
	if m == nil {
		return
	}
	m.Applies.WithLabelValues(domain, result).Inc()
}

// RefreshDone records a refresh outcome.
func (m *Metrics) RefreshDone(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

// WriteTextfile writes the registry in text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
