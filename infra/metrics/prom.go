package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/battswap/boothd/core/metrics"
)

// PromSink records slot command and state events in Prometheus metrics.
type PromSink struct {
	events    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	slotState *prometheus.GaugeVec
	soc       *prometheus.GaugeVec
}

// NewPromSink registers booth metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusAddr.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boothd_command_events_total",
		Help: "Total number of slot command outcomes",
	}, []string{"booth_id", "slot_id", "command", "accepted"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boothd_command_confirmation_seconds",
		Help:    "Time between command send and telemetry confirmation",
		Buckets: prometheus.DefBuckets,
	}, []string{"booth_id", "slot_id", "command"})
	slotState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "boothd_slot_state",
		Help: "Current slot state as an enum value",
	}, []string{"booth_id", "slot_id"})
	soc := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "boothd_slot_soc_percent",
		Help: "Last reported battery state of charge per slot",
	}, []string{"booth_id", "slot_id"})

	if err := reg.Register(events); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			events = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(slotState); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			slotState = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(soc); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			soc = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{events: events, latency: latency, slotState: slotState, soc: soc}, nil
}

// RecordCommandResult increments the counter for each command outcome.
func (s *PromSink) RecordCommandResult(res []coremetrics.CommandResult) error {
	for _, r := range res {
		s.events.WithLabelValues(r.Slot.BoothID, r.Slot.SlotID, string(r.Command), strconv.FormatBool(r.Accepted)).Inc()
		if r.Confirmed {
			s.latency.WithLabelValues(r.Slot.BoothID, r.Slot.SlotID, string(r.Command)).Observe(r.Latency.Seconds())
		}
	}
	return nil
}

// RecordSlotState sets the state gauge for the slot.
func (s *PromSink) RecordSlotState(ev coremetrics.SlotStateEvent) error {
	s.slotState.WithLabelValues(ev.Slot.BoothID, ev.Slot.SlotID).Set(float64(ev.State))
	return nil
}

// RecordHeartbeat sets the state of charge gauge for the slot.
func (s *PromSink) RecordHeartbeat(ev coremetrics.HeartbeatEvent) error {
	s.soc.WithLabelValues(ev.Slot.BoothID, ev.Slot.SlotID).Set(ev.SoC)
	return nil
}
