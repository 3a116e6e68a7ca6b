package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	commandLatency   *prometheus.HistogramVec
	commandsAccepted *prometheus.CounterVec
	commandTimeouts  *prometheus.CounterVec
	transportSuccess prometheus.Counter
	transportFailure prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_confirmation_latency_seconds",
			Help:    "Latency from command dispatch to telemetry confirmation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	acc := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_accepted_total",
			Help: "Number of hardware commands accepted for dispatch",
		},
		[]string{"command"},
	)
	tmo := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_timeouts_total",
			Help: "Number of commands that expired without telemetry confirmation",
		},
		[]string{"command"},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transport_publish_success_total",
			Help: "Number of successful hardware publish operations",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transport_publish_failure_total",
			Help: "Number of failed hardware publish operations",
		},
	)
	return lat, acc, tmo, suc, fail
}

func init() {
	commandLatency, commandsAccepted, commandTimeouts, transportSuccess, transportFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(commandLatency, commandsAccepted, commandTimeouts, transportSuccess, transportFailure)
}

// ResetMetrics reinitializes metric collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	commandLatency, commandsAccepted, commandTimeouts, transportSuccess, transportFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
