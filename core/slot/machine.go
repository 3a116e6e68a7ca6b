package slot

import (
	"github.com/cockroachdb/errors"

	"github.com/battswap/boothd/core/model"
)

// Machine evaluates transition rules for a single slot. It is pure: callers
// own the slot record and must serialize calls per slot. Methods return the
// hardware commands that must be dispatched as a consequence of the
// transition; the machine never performs I/O itself.
type Machine struct {
	// ChargeCutoff is the SoC percentage at which charging completes.
	// Zero means charge to 100.
	ChargeCutoff float64
}

func (m Machine) cutoff() float64 {
	if m.ChargeCutoff <= 0 || m.ChargeCutoff > 100 {
		return 100
	}
	return m.ChargeCutoff
}

// Allocate reserves an empty slot for a deposit session.
func (m Machine) Allocate(s *model.Slot) error {
	if s.State != model.StateEmpty {
		return errors.Wrapf(model.ErrInvalidTransition, "allocate from %s", s.State)
	}
	s.State = model.StateAllocated
	return nil
}

// ConfirmCommand advances the state on command acknowledgment derived from
// telemetry. Unlock confirmations move the deposit and collection sequences;
// a confirmed enableSlot returns the slot to service. Charge relay changes
// are handled by ApplyTelemetry.
func (m Machine) ConfirmCommand(s *model.Slot, name model.CommandName) []model.CommandName {
	switch name {
	case model.CommandForceUnlock:
		switch s.State {
		case model.StateAllocated:
			s.State = model.StateAwaitingInsert
		case model.StateUnlockingForCollection:
			s.State = model.StateAwaitingCollection
		}
	case model.CommandEnableSlot:
		m.Enable(s)
	}
	return nil
}

// ApplyTelemetry feeds one hardware snapshot into the machine. The previous
// door and lock mirrors on the slot provide the edge detection the insert
// sequence requires. Snapshots never move a slot out of EMPTY: without an
// allocation and an unlock, reported door activity is ignored.
func (m Machine) ApplyTelemetry(s *model.Slot, snap model.TelemetrySnapshot) []model.CommandName {
	wasClosed, wasLocked := s.DoorClosed, s.DoorLocked

	s.DoorClosed = snap.DoorClosed
	s.DoorLocked = snap.DoorLocked
	s.RelayOn = snap.RelayOn
	s.LastHeartbeat = snap.Timestamp
	if s.Battery != nil {
		s.Battery.ChargeLevel = snap.SoC
		s.Battery.TemperatureC = snap.TemperatureC
		s.Battery.Voltage = snap.Voltage
		if snap.Cycles > 0 {
			s.Battery.Cycles = snap.Cycles
		}
	}

	var effects []model.CommandName
	switch s.State {
	case model.StateAwaitingInsert:
		if snap.DoorClosed && !wasClosed {
			s.State = model.StateDoorClosing
		}
		if s.State != model.StateDoorClosing {
			break
		}
		fallthrough
	case model.StateDoorClosing:
		if snap.DoorLocked && !wasLocked {
			s.State = model.StateLockVerifying
		}
		if s.State != model.StateLockVerifying {
			break
		}
		fallthrough
	case model.StateLockVerifying:
		if snap.DoorClosed && snap.DoorLocked && snap.BatteryInserted {
			s.State = model.StateCharging
			s.Battery = &model.Battery{
				UID:          snap.BatteryUID,
				ChargeLevel:  snap.SoC,
				TemperatureC: snap.TemperatureC,
				Voltage:      snap.Voltage,
				Cycles:       snap.Cycles,
			}
			effects = append(effects, model.CommandStartCharging)
		}
	case model.StateCharging:
		if snap.SoC >= m.cutoff() {
			s.State = model.StateFull
			effects = append(effects, model.CommandStopCharging)
		}
	case model.StateAwaitingCollection:
		if !snap.BatteryInserted && snap.DoorClosed {
			s.State = model.StateEmpty
			s.Battery = nil
			effects = append(effects, model.CommandForceLock)
		}
	case model.StateResetting:
		if !snap.BatteryInserted {
			s.State = model.StateEmpty
		}
	}
	return effects
}

// RequestWithdrawal moves an occupied slot toward collection. Charging is
// stopped by command before the door may be unlocked.
func (m Machine) RequestWithdrawal(s *model.Slot) ([]model.CommandName, error) {
	switch s.State {
	case model.StateCharging:
		s.State = model.StateAwaitingPayment
		return []model.CommandName{model.CommandStopCharging}, nil
	case model.StateFull:
		s.State = model.StateAwaitingPayment
		return nil, nil
	default:
		return nil, errors.Wrapf(model.ErrInvalidTransition, "withdraw from %s", s.State)
	}
}

// ConfirmPayment is the sole trigger for unlocking a paid slot.
func (m Machine) ConfirmPayment(s *model.Slot) ([]model.CommandName, error) {
	if s.State != model.StateAwaitingPayment {
		return nil, errors.Wrapf(model.ErrInvalidTransition, "pay from %s", s.State)
	}
	s.State = model.StateUnlockingForCollection
	return []model.CommandName{model.CommandForceUnlock}, nil
}

// Cancel aborts a deposit before a battery is physically committed.
func (m Machine) Cancel(s *model.Slot) ([]model.CommandName, error) {
	switch s.State {
	case model.StateAllocated, model.StateAwaitingInsert:
		s.State = model.StateEmpty
		return []model.CommandName{model.CommandForceLock}, nil
	default:
		return nil, errors.Wrapf(model.ErrInvalidTransition, "cancel from %s", s.State)
	}
}

// Disable takes the slot out of service, remembering the operational state it
// was in so Enable can restore it.
func (m Machine) Disable(s *model.Slot) {
	if s.State == model.StateDisabled {
		return
	}
	s.PriorState = s.State
	s.State = model.StateDisabled
	s.DisabledByAdmin = true
}

// Enable restores the state the slot held when it was disabled. Enabling an
// already-enabled slot is a no-op.
func (m Machine) Enable(s *model.Slot) {
	if s.State != model.StateDisabled {
		s.DisabledByAdmin = false
		return
	}
	s.State = s.PriorState
	s.DisabledByAdmin = false
}

// Fault marks the slot faulty. There is no automatic exit; only a reset
// clears the condition.
func (m Machine) Fault(s *model.Slot, reason string) {
	s.State = model.StateFaulty
	s.FaultReason = reason
}

// Reset forces the slot into RESETTING and drops its battery reference. The
// slot returns to EMPTY once telemetry confirms no battery is present.
func (m Machine) Reset(s *model.Slot) {
	s.State = model.StateResetting
	s.Battery = nil
	s.DisabledByAdmin = false
	s.FaultReason = ""
}
