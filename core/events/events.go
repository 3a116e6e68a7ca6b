package events

import (
	"time"

	"github.com/battswap/boothd/core/model"
)

// SlotStateEvent is published whenever the state machine moves a slot.
type SlotStateEvent struct {
	Slot model.SlotRef
	From model.SlotState
	To   model.SlotState
	Time time.Time
}

// CommandEvent is published when a command is accepted or its hardware call
// fails.
type CommandEvent struct {
	Slot      model.SlotRef
	Command   model.CommandName
	CommandID string
	Accepted  bool
	Err       error
	Time      time.Time
}

// CommandConfirmedEvent is published when telemetry evidence confirms a
// pending command.
type CommandConfirmedEvent struct {
	Slot    model.SlotRef
	Command model.CommandName
	Latency time.Duration
}

// CommandTimeoutEvent is published when a pending command expires without
// confirming telemetry. The slot's logical state is left untouched.
type CommandTimeoutEvent struct {
	Slot     model.SlotRef
	Command  model.CommandName
	IssuedAt time.Time
}

// SessionEvent is published on session lifecycle changes.
type SessionEvent struct {
	Session model.Session
}
