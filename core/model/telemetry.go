package model

import "time"

// TelemetrySnapshot is the raw, untrusted hardware report for one slot.
// Timestamp is the producer clock and is used for staleness checks and for
// matching snapshots against pending commands.
type TelemetrySnapshot struct {
	Slot            SlotRef   `json:"slot"`
	BatteryInserted bool      `json:"battery_inserted"`
	BatteryUID      string    `json:"battery_uid,omitempty"`
	DoorClosed      bool      `json:"door_closed"`
	DoorLocked      bool      `json:"door_locked"`
	PlugConnected   bool      `json:"plug_connected"`
	RelayOn         bool      `json:"relay_on"`
	SoC             float64   `json:"soc"` // percent, 0-100
	TemperatureC    float64   `json:"temperature_c"`
	Voltage         float64   `json:"voltage"`
	Cycles          int       `json:"cycles,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
