package model

import "time"

// CommandName identifies a hardware instruction understood by booth firmware.
type CommandName string

const (
	CommandForceLock     CommandName = "forceLock"
	CommandForceUnlock   CommandName = "forceUnlock"
	CommandStartCharging CommandName = "startCharging"
	CommandStopCharging  CommandName = "stopCharging"
	CommandEnableSlot    CommandName = "enableSlot"
	CommandReset         CommandName = "reset"
)

// ParseCommandName maps the wire representation to a CommandName.
func ParseCommandName(s string) (CommandName, bool) {
	switch CommandName(s) {
	case CommandForceLock, CommandForceUnlock, CommandStartCharging,
		CommandStopCharging, CommandEnableSlot, CommandReset:
		return CommandName(s), true
	default:
		return "", false
	}
}

// Command is one hardware instruction addressed to a slot.
type Command struct {
	ID     string         `json:"command_id"`
	Name   CommandName    `json:"command"`
	Params map[string]any `json:"params,omitempty"`
}

// PendingCommand tracks a dispatched instruction awaiting physical
// confirmation. At most one exists per slot.
type PendingCommand struct {
	Slot     SlotRef     `json:"slot"`
	Name     CommandName `json:"command"`
	ID       string      `json:"command_id"`
	IssuedAt time.Time   `json:"issued_at"`
}

// Confirms reports whether the snapshot carries physical evidence that the
// command completed. receivedAt is the server-side arrival time of the
// snapshot; it is compared against IssuedAt instead of the device timestamp,
// so a booth clock running behind cannot make every snapshot look pre-issue.
func (c PendingCommand) Confirms(snap TelemetrySnapshot, receivedAt time.Time) bool {
	if receivedAt.Before(c.IssuedAt) {
		return false
	}
	switch c.Name {
	case CommandForceLock:
		return snap.DoorLocked
	case CommandForceUnlock:
		return !snap.DoorLocked
	case CommandStartCharging:
		return snap.RelayOn
	case CommandStopCharging:
		return !snap.RelayOn
	case CommandEnableSlot:
		// Any heartbeat after the command proves the slot is reachable.
		return true
	case CommandReset:
		return !snap.BatteryInserted
	default:
		return false
	}
}
