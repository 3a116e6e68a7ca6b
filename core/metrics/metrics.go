package metrics

import (
	"time"

	"github.com/battswap/boothd/core/model"
)

// CommandResult represents a per-slot command outcome to be recorded.
type CommandResult struct {
	Slot      model.SlotRef
	Command   model.CommandName
	CommandID string
	Accepted  bool
	Confirmed bool
	TimedOut  bool
	Latency   time.Duration
	Time      time.Time
}

// MetricsSink records command outcomes for observability purposes.
type MetricsSink interface {
	RecordCommandResult(results []CommandResult) error
}

// SlotStateEvent is a snapshot of a slot state transition.
type SlotStateEvent struct {
	Slot  model.SlotRef
	State model.SlotState
	Time  time.Time
}

// SlotStateRecorder records slot state transitions.
type SlotStateRecorder interface {
	RecordSlotState(ev SlotStateEvent) error
}

// HeartbeatEvent captures one telemetry ingestion for a slot.
type HeartbeatEvent struct {
	Slot model.SlotRef
	SoC  float64
	Time time.Time
}

// HeartbeatRecorder records telemetry heartbeats.
type HeartbeatRecorder interface {
	RecordHeartbeat(ev HeartbeatEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordCommandResult([]CommandResult) error { return nil }
func (NopSink) RecordSlotState(SlotStateEvent) error      { return nil }
func (NopSink) RecordHeartbeat(HeartbeatEvent) error      { return nil }
