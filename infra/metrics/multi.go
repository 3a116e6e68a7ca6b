package metrics

import coremetrics "github.com/battswap/boothd/core/metrics"

// MultiSink fanouts records to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCommandResult forwards the record to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordCommandResult(res []coremetrics.CommandResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordCommandResult(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordSlotState forwards state transitions when supported by the sink.
func (m *MultiSink) RecordSlotState(ev coremetrics.SlotStateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.SlotStateRecorder); ok {
			if err := rec.RecordSlotState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordHeartbeat forwards heartbeats when supported by the sink.
func (m *MultiSink) RecordHeartbeat(ev coremetrics.HeartbeatEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.HeartbeatRecorder); ok {
			if err := rec.RecordHeartbeat(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
