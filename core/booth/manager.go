package booth

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/battswap/boothd/core/audit"
	"github.com/battswap/boothd/core/dispatch"
	"github.com/battswap/boothd/core/events"
	"github.com/battswap/boothd/core/health"
	"github.com/battswap/boothd/core/inventory"
	"github.com/battswap/boothd/core/logger"
	coremetrics "github.com/battswap/boothd/core/metrics"
	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/core/slot"
	"github.com/battswap/boothd/core/telemetry"
	"github.com/battswap/boothd/internal/eventbus"
)

// SessionHook receives slot lifecycle notifications relevant to sessions.
// Hooks are invoked outside the slot lock, in the telemetry goroutine.
type SessionHook interface {
	// SlotActivated fires when a deposited battery started charging. It
	// returns the owning user so the battery can be stamped.
	SlotActivated(ref model.SlotRef) (ownerUserID string, ok bool)
	// SlotReleased fires when a collected slot returned to EMPTY.
	SlotReleased(ref model.SlotRef)
	// SlotInterrupted fires when a fault or reset hit a slot mid-session.
	SlotInterrupted(ref model.SlotRef, cause error)
}

// Manager drives the slot state machines. All slot mutations flow through
// the per-slot controllers, so no two events for the same slot are ever
// applied concurrently while distinct slots proceed in parallel.
type Manager struct {
	inv   *inventory.Inventory
	store telemetry.Store
	rec   *telemetry.Reconciler
	disp  *dispatch.Dispatcher
	bus   eventbus.EventBus
	log   logger.Logger

	mu       sync.Mutex
	hook     SessionHook
	auditlog audit.Store
	sink     coremetrics.MetricsSink
	detector *health.Detector
}

// New creates a Manager.
func New(inv *inventory.Inventory, store telemetry.Store, rec *telemetry.Reconciler, disp *dispatch.Dispatcher, bus eventbus.EventBus, log logger.Logger) (*Manager, error) {
	if inv == nil || store == nil || rec == nil || disp == nil {
		return nil, errors.New("booth: nil parameter provided to New")
	}
	return &Manager{inv: inv, store: store, rec: rec, disp: disp, bus: bus, log: log}, nil
}

// SetSessionHook configures the session notification receiver.
func (m *Manager) SetSessionHook(h SessionHook) {
	m.mu.Lock()
	m.hook = h
	m.mu.Unlock()
}

// SetAuditStore configures the store used to persist the audit trail.
func (m *Manager) SetAuditStore(store audit.Store) {
	m.mu.Lock()
	m.auditlog = store
	m.mu.Unlock()
}

// SetMetricsSink configures the sink used to persist slot state transitions.
func (m *Manager) SetMetricsSink(sink coremetrics.MetricsSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// SetAnomalyDetector enables temperature anomaly detection. Anomalous slots
// are faulted and require an operator reset.
func (m *Manager) SetAnomalyDetector(d *health.Detector) {
	m.mu.Lock()
	m.detector = d
	m.mu.Unlock()
}

const (
	noteActivated = iota
	noteReleased
	noteInterrupted
)

type hookNote struct {
	kind  int
	ref   model.SlotRef
	cause error
}

// ApplyTelemetry ingests one hardware snapshot. It records the snapshot,
// resolves any pending command, feeds the state machine and dispatches the
// resulting automatic commands. Telemetry for unknown slots is dropped.
func (m *Manager) ApplyTelemetry(snap model.TelemetrySnapshot) {
	ctrl, err := m.inv.Slot(snap.Slot)
	if err != nil {
		if m.log != nil {
			m.log.Debugf("telemetry for unknown slot %s dropped", snap.Slot)
		}
		return
	}
	m.mu.Lock()
	detector, sink := m.detector, m.sink
	m.mu.Unlock()
	if rec, ok := sink.(coremetrics.HeartbeatRecorder); ok {
		ev := coremetrics.HeartbeatEvent{Slot: snap.Slot, SoC: snap.SoC, Time: snap.Timestamp}
		if err := rec.RecordHeartbeat(ev); err != nil && m.log != nil {
			m.log.Errorf("heartbeat metrics error: %v", err)
		}
	}

	var notes []hookNote
	_ = ctrl.Do(func(s *model.Slot, mach slot.Machine) error {
		m.store.Set(snap)
		before := s.State

		var effects []model.CommandName
		if name, ok := m.disp.Observe(snap); ok {
			effects = append(effects, mach.ConfirmCommand(s, name)...)
		}
		effects = append(effects, mach.ApplyTelemetry(s, snap)...)

		if s.Battery != nil {
			s.Battery.Health = health.Score(s.Battery.Cycles,
				[]float64{snap.TemperatureC}, []float64{snap.Voltage})
		}
		if detector != nil && snap.BatteryInserted && detector.Observe(s.Ref, snap.TemperatureC) {
			mach.Fault(s, "temperature anomaly")
			notes = append(notes, hookNote{kind: noteInterrupted, ref: s.Ref, cause: model.ErrSlotFaulty})
		}

		for _, eff := range effects {
			if err := m.disp.Send(context.Background(), *s, eff, nil); err != nil && m.log != nil {
				m.log.Errorf("auto command %s for %s failed: %v", eff, s.Ref, err)
			}
		}

		if after := s.State; after != before {
			m.stateChanged(s.Ref, before, after)
			if after == model.StateCharging && before != model.StateCharging {
				notes = append(notes, hookNote{kind: noteActivated, ref: s.Ref})
			}
			if before == model.StateAwaitingCollection && after == model.StateEmpty {
				notes = append(notes, hookNote{kind: noteReleased, ref: s.Ref})
			}
		}
		return nil
	})
	m.fireHooks(ctrl, notes)
}

func (m *Manager) fireHooks(ctrl *slot.Controller, notes []hookNote) {
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook == nil {
		return
	}
	for _, n := range notes {
		switch n.kind {
		case noteActivated:
			if owner, ok := hook.SlotActivated(n.ref); ok {
				_ = ctrl.Do(func(s *model.Slot, _ slot.Machine) error {
					if s.Battery != nil {
						s.Battery.OwnerUserID = owner
					}
					return nil
				})
			}
		case noteReleased:
			hook.SlotReleased(n.ref)
		case noteInterrupted:
			hook.SlotInterrupted(n.ref, n.cause)
		}
	}
}

// SendCommand dispatches an operator command to a slot.
func (m *Manager) SendCommand(ctx context.Context, ref model.SlotRef, name model.CommandName, params map[string]any) error {
	ctrl, err := m.inv.Slot(ref)
	if err != nil {
		return err
	}
	err = ctrl.Do(func(s *model.Slot, _ slot.Machine) error {
		return m.disp.Send(ctx, *s, name, params)
	})
	m.appendAudit(audit.Record{
		Kind: audit.KindCommand, BoothID: ref.BoothID, SlotID: ref.SlotID,
		Command: string(name), Outcome: outcome(err), Detail: detail(err),
	})
	return err
}

// SetAdminStatus applies the administrator override. Disabling wins over any
// live telemetry; re-enabling restores the state the slot was in, without any
// change to the underlying hardware.
func (m *Manager) SetAdminStatus(ref model.SlotRef, disabled bool) error {
	ctrl, err := m.inv.Slot(ref)
	if err != nil {
		return err
	}
	_ = ctrl.Do(func(s *model.Slot, mach slot.Machine) error {
		before := s.State
		if disabled {
			mach.Disable(s)
		} else {
			mach.Enable(s)
		}
		if s.State != before {
			m.stateChanged(ref, before, s.State)
		}
		return nil
	})
	st := "available"
	if disabled {
		st = "disabled"
	}
	m.appendAudit(audit.Record{
		Kind: audit.KindAdmin, BoothID: ref.BoothID, SlotID: ref.SlotID,
		Command: "setStatus:" + st, Outcome: audit.OutcomeAccepted,
	})
	return nil
}

// AllocateSlot reserves the first EMPTY slot of the booth and unlocks its
// door. A transport failure reverts the allocation and surfaces the error to
// the caller, who decides whether to retry.
func (m *Manager) AllocateSlot(ctx context.Context, boothID string) (model.SlotRef, error) {
	ctrls, err := m.inv.Slots(boothID)
	if err != nil {
		return model.SlotRef{}, err
	}
	for _, ctrl := range ctrls {
		var allocated model.SlotRef
		err := ctrl.Do(func(s *model.Slot, mach slot.Machine) error {
			if s.DisabledByAdmin {
				return nil
			}
			if _, busy := m.disp.Pending(s.Ref); busy {
				return nil
			}
			if err := mach.Allocate(s); err != nil {
				return nil // not empty, try the next slot
			}
			if err := m.disp.Send(ctx, *s, model.CommandForceUnlock, nil); err != nil {
				s.State = model.StateEmpty
				return err
			}
			m.stateChanged(s.Ref, model.StateEmpty, model.StateAllocated)
			allocated = s.Ref
			return nil
		})
		if err != nil {
			return model.SlotRef{}, err
		}
		if allocated != (model.SlotRef{}) {
			return allocated, nil
		}
	}
	return model.SlotRef{}, errors.Wrapf(model.ErrNoAvailableSlot, "booth %s", boothID)
}

// RequestWithdrawal moves the slot toward collection, stopping the charge
// first. A transport failure reverts the transition and surfaces the error:
// the door must never unlock while the relay may still be on.
func (m *Manager) RequestWithdrawal(ctx context.Context, ref model.SlotRef) error {
	ctrl, err := m.inv.Slot(ref)
	if err != nil {
		return err
	}
	return ctrl.Do(func(s *model.Slot, mach slot.Machine) error {
		before := s.State
		effects, err := mach.RequestWithdrawal(s)
		if err != nil {
			return err
		}
		for _, eff := range effects {
			if err := m.disp.Send(ctx, *s, eff, nil); err != nil {
				s.State = before
				return err
			}
		}
		m.stateChanged(ref, before, s.State)
		return nil
	})
}

// ConfirmPayment unlocks a paid slot. A transport failure reverts the
// transition so the payment confirmation can be replayed.
func (m *Manager) ConfirmPayment(ctx context.Context, ref model.SlotRef) error {
	ctrl, err := m.inv.Slot(ref)
	if err != nil {
		return err
	}
	return ctrl.Do(func(s *model.Slot, mach slot.Machine) error {
		before := s.State
		effects, err := mach.ConfirmPayment(s)
		if err != nil {
			return err
		}
		for _, eff := range effects {
			if err := m.disp.Send(ctx, *s, eff, nil); err != nil {
				s.State = before
				return err
			}
		}
		m.stateChanged(ref, before, s.State)
		return nil
	})
}

// ReissueUnlock re-sends the collection unlock after a confirmation timeout.
func (m *Manager) ReissueUnlock(ctx context.Context, ref model.SlotRef) error {
	ctrl, err := m.inv.Slot(ref)
	if err != nil {
		return err
	}
	return ctrl.Do(func(s *model.Slot, _ slot.Machine) error {
		if s.State != model.StateUnlockingForCollection {
			return errors.Wrapf(model.ErrInvalidTransition, "reissue unlock from %s", s.State)
		}
		return m.disp.Send(ctx, *s, model.CommandForceUnlock, nil)
	})
}

// CancelSlot aborts a deposit before a battery was committed and relocks the
// door. A lock transport failure is logged; the cancellation stands.
func (m *Manager) CancelSlot(ctx context.Context, ref model.SlotRef) error {
	return m.applyWithEffects(ctx, ref, func(s *model.Slot, mach slot.Machine) ([]model.CommandName, error) {
		return mach.Cancel(s)
	}, nil)
}

func (m *Manager) applyWithEffects(ctx context.Context, ref model.SlotRef, fn func(*model.Slot, slot.Machine) ([]model.CommandName, error), params map[string]any) error {
	ctrl, err := m.inv.Slot(ref)
	if err != nil {
		return err
	}
	return ctrl.Do(func(s *model.Slot, mach slot.Machine) error {
		before := s.State
		effects, err := fn(s, mach)
		if err != nil {
			return err
		}
		for _, eff := range effects {
			if err := m.disp.Send(ctx, *s, eff, params); err != nil && m.log != nil {
				m.log.Errorf("command %s for %s failed: %v", eff, ref, err)
			}
		}
		if s.State != before {
			m.stateChanged(ref, before, s.State)
		}
		return nil
	})
}

// SlotState returns the current machine state of a slot.
func (m *Manager) SlotState(ref model.SlotRef) (model.SlotState, error) {
	ctrl, err := m.inv.Slot(ref)
	if err != nil {
		return 0, err
	}
	return ctrl.State(), nil
}

// ResetSlot forces the slot into RESETTING, clears its battery reference and
// dispatches the hardware reset. Requires operator confirmation upstream.
func (m *Manager) ResetSlot(ctx context.Context, ref model.SlotRef) error {
	ctrl, err := m.inv.Slot(ref)
	if err != nil {
		return err
	}
	var hadSession bool
	err = ctrl.Do(func(s *model.Slot, mach slot.Machine) error {
		if err := m.disp.Send(ctx, *s, model.CommandReset, nil); err != nil {
			return err
		}
		before := s.State
		hadSession = before != model.StateEmpty && before != model.StateDisabled && before != model.StateFaulty
		mach.Reset(s)
		m.stateChanged(ref, before, s.State)
		return nil
	})
	m.appendAudit(audit.Record{
		Kind: audit.KindAdmin, BoothID: ref.BoothID, SlotID: ref.SlotID,
		Command: string(model.CommandReset), Outcome: outcome(err), Detail: detail(err),
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	detector, hook := m.detector, m.hook
	m.mu.Unlock()
	if detector != nil {
		detector.Forget(ref)
	}
	if hadSession && hook != nil {
		hook.SlotInterrupted(ref, errors.New("slot reset by operator"))
	}
	return nil
}

// ResetAllSlots resets every slot of a booth, all-or-none. The booth is
// validated first: if any slot has a command in flight, no slot is touched.
// When a reset dispatch fails partway through, every slot already staged is
// rolled back to its previous record and its pending reset is cancelled, so
// an error never leaves a partially-reset booth.
func (m *Manager) ResetAllSlots(ctx context.Context, boothID string) error {
	ctrls, err := m.inv.Slots(boothID)
	if err != nil {
		return err
	}
	for _, ctrl := range ctrls {
		if p, busy := m.disp.Pending(ctrl.Snapshot().Ref); busy {
			return errors.Wrapf(model.ErrSlotBusy, "%s pending for %s", p.Name, p.Slot)
		}
	}

	type staged struct {
		ctrl       *slot.Controller
		before     model.Slot
		hadSession bool
	}
	var done []staged
	rollback := func() {
		for _, d := range done {
			saved := d.before
			_ = d.ctrl.Do(func(s *model.Slot, _ slot.Machine) error {
				*s = saved
				return nil
			})
			m.disp.Cancel(saved.Ref)
		}
	}
	for _, ctrl := range ctrls {
		st := staged{ctrl: ctrl}
		err := ctrl.Do(func(s *model.Slot, mach slot.Machine) error {
			st.before = *s
			if s.Battery != nil {
				b := *s.Battery
				st.before.Battery = &b
			}
			if err := m.disp.Send(ctx, *s, model.CommandReset, nil); err != nil {
				return err
			}
			st.hadSession = s.State != model.StateEmpty && s.State != model.StateDisabled && s.State != model.StateFaulty
			mach.Reset(s)
			return nil
		})
		if err != nil {
			rollback()
			m.appendAudit(audit.Record{
				Kind: audit.KindAdmin, BoothID: boothID, SlotID: st.ctrl.Snapshot().Ref.SlotID,
				Command: "resetAllSlots", Outcome: audit.OutcomeRejected, Detail: err.Error(),
			})
			return err
		}
		done = append(done, st)
	}

	m.mu.Lock()
	detector, hook := m.detector, m.hook
	m.mu.Unlock()
	for _, d := range done {
		ref := d.before.Ref
		m.stateChanged(ref, d.before.State, model.StateResetting)
		m.appendAudit(audit.Record{
			Kind: audit.KindAdmin, BoothID: ref.BoothID, SlotID: ref.SlotID,
			Command: string(model.CommandReset), Outcome: audit.OutcomeAccepted,
		})
		if detector != nil {
			detector.Forget(ref)
		}
		if d.hadSession && hook != nil {
			hook.SlotInterrupted(ref, errors.New("slot reset by operator"))
		}
	}
	return nil
}

// AddBooth registers a booth.
func (m *Manager) AddBooth(b inventory.Booth) error { return m.inv.AddBooth(b) }

// AddSlot provisions a slot.
func (m *Manager) AddSlot(ref model.SlotRef) error {
	_, err := m.inv.AddSlot(ref)
	m.appendAudit(audit.Record{
		Kind: audit.KindAdmin, BoothID: ref.BoothID, SlotID: ref.SlotID,
		Command: "addSlot", Outcome: outcome(err), Detail: detail(err),
	})
	return err
}

// DeleteSlot removes a slot. It rejects slots with a command in flight as
// well as slots outside EMPTY and DISABLED.
func (m *Manager) DeleteSlot(ref model.SlotRef) error {
	if p, busy := m.disp.Pending(ref); busy {
		return errors.Wrapf(model.ErrSlotBusy, "%s pending for %s", p.Name, ref)
	}
	err := m.inv.DeleteSlot(ref)
	m.appendAudit(audit.Record{
		Kind: audit.KindAdmin, BoothID: ref.BoothID, SlotID: ref.SlotID,
		Command: "deleteSlot", Outcome: outcome(err), Detail: detail(err),
	})
	return err
}

// Booths returns all booths with slot counts.
func (m *Manager) Booths() []inventory.BoothSummary { return m.inv.Booths() }

// BoothStatus returns the merged slot views for one booth. This is the
// single source of truth consumed by dashboards.
func (m *Manager) BoothStatus(boothID string) ([]telemetry.SlotView, error) {
	ctrls, err := m.inv.Slots(boothID)
	if err != nil {
		return nil, err
	}
	views := make([]telemetry.SlotView, 0, len(ctrls))
	for _, ctrl := range ctrls {
		sl := ctrl.Snapshot()
		var snapPtr *model.TelemetrySnapshot
		if snap, ok := m.store.Get(sl.Ref); ok {
			snapPtr = &snap
		}
		var pendPtr *model.PendingCommand
		if p, ok := m.disp.Pending(sl.Ref); ok {
			pendPtr = &p
		}
		views = append(views, m.rec.Merge(sl, snapPtr, pendPtr))
	}
	return views, nil
}

func (m *Manager) stateChanged(ref model.SlotRef, from, to model.SlotState) {
	if m.bus != nil {
		m.bus.Publish(events.SlotStateEvent{Slot: ref, From: from, To: to, Time: time.Now()})
	}
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if rec, ok := sink.(coremetrics.SlotStateRecorder); ok {
		if err := rec.RecordSlotState(coremetrics.SlotStateEvent{Slot: ref, State: to, Time: time.Now()}); err != nil && m.log != nil {
			m.log.Errorf("state metrics error: %v", err)
		}
	}
	if m.log != nil {
		m.log.Infof("slot %s: %s -> %s", ref, from, to)
	}
}

func (m *Manager) appendAudit(rec audit.Record) {
	m.mu.Lock()
	store := m.auditlog
	m.mu.Unlock()
	if store == nil {
		return
	}
	rec.Timestamp = time.Now()
	if err := store.Append(context.Background(), rec); err != nil && m.log != nil {
		m.log.Errorf("audit append: %v", err)
	}
}

func outcome(err error) string {
	if err != nil {
		return audit.OutcomeRejected
	}
	return audit.OutcomeAccepted
}

func detail(err error) string {
	if err != nil {
		return err.Error()
	}
	return ""
}
