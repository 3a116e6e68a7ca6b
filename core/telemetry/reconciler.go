package telemetry

import (
	"time"

	"github.com/battswap/boothd/core/model"
)

// BatterySummary is the battery view exposed to dashboards.
type BatterySummary struct {
	UID          string  `json:"uid"`
	ChargeLevel  float64 `json:"charge_level"`
	Health       float64 `json:"health"`
	TemperatureC float64 `json:"temperature_c"`
	Cycles       int     `json:"cycles"`
}

// SlotView is the externally-visible status of one slot. It is a pure
// function of the telemetry snapshot, the admin override and the pending
// command; it is never persisted, to avoid drift.
type SlotView struct {
	BoothID        string          `json:"booth_id"`
	SlotID         string          `json:"slot_id"`
	Status         string          `json:"status"`
	State          string          `json:"state"`
	DoorClosed     bool            `json:"door_closed"`
	DoorLocked     bool            `json:"door_locked"`
	RelayOn        bool            `json:"relay_on"`
	Battery        *BatterySummary `json:"battery,omitempty"`
	PendingCommand string          `json:"pending_command,omitempty"`
	FaultReason    string          `json:"fault_reason,omitempty"`
	Stale          bool            `json:"stale"`
	LastHeartbeat  time.Time       `json:"last_heartbeat"`
}

// Reconciler merges the slot machine state with live telemetry and the
// administrator override into one authoritative view. The admin override
// always wins over live telemetry for the disabled/enabled axis. The
// reconciler never mutates the state machine: telemetry changes reach the
// machine as events, which alone decides transitions.
type Reconciler struct {
	staleAfter time.Duration
	now        func() time.Time
}

// NewReconciler creates a Reconciler with the given staleness threshold.
func NewReconciler(staleAfter time.Duration) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &Reconciler{staleAfter: staleAfter, now: time.Now}
}

// Merge computes the displayed status for one slot. snap and pending may be
// nil when no telemetry was ever received or no command is in flight.
func (r *Reconciler) Merge(slot model.Slot, snap *model.TelemetrySnapshot, pending *model.PendingCommand) SlotView {
	view := SlotView{
		BoothID:     slot.Ref.BoothID,
		SlotID:      slot.Ref.SlotID,
		State:       slot.State.String(),
		DoorClosed:  slot.DoorClosed,
		DoorLocked:  slot.DoorLocked,
		RelayOn:     slot.RelayOn,
		FaultReason: slot.FaultReason,
	}
	switch {
	case slot.DisabledByAdmin:
		view.Status = "disabled"
	case slot.State == model.StateFaulty:
		view.Status = "faulty"
	default:
		view.Status = slot.State.String()
	}
	// a battery reference is only meaningful in occupied states
	if slot.Battery != nil && slot.State.AllowsBattery() {
		view.Battery = &BatterySummary{
			UID:          slot.Battery.UID,
			ChargeLevel:  slot.Battery.ChargeLevel,
			Health:       slot.Battery.Health,
			TemperatureC: slot.Battery.TemperatureC,
			Cycles:       slot.Battery.Cycles,
		}
	}
	if pending != nil {
		view.PendingCommand = string(pending.Name)
	}
	if snap == nil {
		view.Stale = true
		return view
	}
	view.LastHeartbeat = snap.Timestamp
	view.Stale = r.now().Sub(snap.Timestamp) > r.staleAfter
	return view
}
