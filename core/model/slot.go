package model

import "time"

// SlotRef identifies one physical battery bay within a booth.
type SlotRef struct {
	BoothID string `json:"booth_id"`
	SlotID  string `json:"slot_id"`
}

func (r SlotRef) String() string { return r.BoothID + "/" + r.SlotID }

// SlotState is the authoritative lifecycle state of a slot.
type SlotState int

const (
	StateEmpty SlotState = iota
	StateAllocated
	StateAwaitingInsert
	StateDoorClosing
	StateLockVerifying
	StateCharging
	StateFull
	StateAwaitingPayment
	StateUnlockingForCollection
	StateAwaitingCollection
	StateDisabled
	StateFaulty
	StateResetting
)

// String returns a human-readable representation of the state.
func (s SlotState) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateAllocated:
		return "ALLOCATED"
	case StateAwaitingInsert:
		return "AWAITING_INSERT"
	case StateDoorClosing:
		return "DOOR_CLOSING"
	case StateLockVerifying:
		return "LOCK_VERIFYING"
	case StateCharging:
		return "CHARGING"
	case StateFull:
		return "FULL"
	case StateAwaitingPayment:
		return "AWAITING_PAYMENT"
	case StateUnlockingForCollection:
		return "UNLOCKING_FOR_COLLECTION"
	case StateAwaitingCollection:
		return "AWAITING_COLLECTION"
	case StateDisabled:
		return "DISABLED"
	case StateFaulty:
		return "FAULTY"
	case StateResetting:
		return "RESETTING"
	default:
		return "unknown"
	}
}

// AllowsBattery reports whether a battery reference may be attached
// while the slot is in this state.
func (s SlotState) AllowsBattery() bool {
	switch s {
	case StateCharging, StateFull, StateAwaitingPayment,
		StateUnlockingForCollection, StateAwaitingCollection,
		StateDisabled, StateFaulty:
		return true
	default:
		return false
	}
}

// Deletable reports whether the slot may be removed from inventory.
func (s SlotState) Deletable() bool {
	return s == StateEmpty || s == StateDisabled
}

// Slot is the control-plane record for one battery bay. The door, lock and
// relay fields mirror the last applied telemetry; State is owned by the state
// machine and is never derived from telemetry directly.
type Slot struct {
	Ref             SlotRef
	State           SlotState
	PriorState      SlotState // operational state restored when a DISABLED slot is re-enabled
	DoorClosed      bool
	DoorLocked      bool
	RelayOn         bool
	Battery         *Battery
	LastHeartbeat   time.Time
	DisabledByAdmin bool
	FaultReason     string
}
