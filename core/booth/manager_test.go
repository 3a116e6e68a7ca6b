package booth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/battswap/boothd/core/dispatch"
	"github.com/battswap/boothd/core/inventory"
	coremetrics "github.com/battswap/boothd/core/metrics"
	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/core/telemetry"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent map[model.SlotRef][]model.Command
	fail map[model.SlotRef]error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{
		sent: make(map[model.SlotRef][]model.Command),
		fail: make(map[model.SlotRef]error),
	}
}

func (r *recordingTransport) SendCommand(_ context.Context, ref model.SlotRef, cmd model.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[ref]; err != nil {
		return err
	}
	r.sent[ref] = append(r.sent[ref], cmd)
	return nil
}

func (r *recordingTransport) names(ref model.SlotRef) []model.CommandName {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CommandName
	for _, c := range r.sent[ref] {
		out = append(out, c.Name)
	}
	return out
}

type recordingHook struct {
	mu          sync.Mutex
	owner       string
	activated   []model.SlotRef
	released    []model.SlotRef
	interrupted []model.SlotRef
}

func (h *recordingHook) SlotActivated(ref model.SlotRef) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activated = append(h.activated, ref)
	return h.owner, h.owner != ""
}

func (h *recordingHook) SlotReleased(ref model.SlotRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = append(h.released, ref)
}

func (h *recordingHook) SlotInterrupted(ref model.SlotRef, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interrupted = append(h.interrupted, ref)
}

type fixture struct {
	mgr   *Manager
	tr    *recordingTransport
	ref   model.SlotRef
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr := newRecordingTransport()
	disp, err := dispatch.New(tr, time.Minute, nil, nil)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	inv := inventory.New()
	if err := inv.AddBooth(inventory.Booth{ID: "b1", ChargeCutoff: 95}); err != nil {
		t.Fatalf("booth: %v", err)
	}
	ref := model.SlotRef{BoothID: "b1", SlotID: "s1"}
	if _, err := inv.AddSlot(ref); err != nil {
		t.Fatalf("slot: %v", err)
	}
	mgr, err := New(inv, telemetry.NewMemoryStore(), telemetry.NewReconciler(30*time.Second), disp, nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return &fixture{mgr: mgr, tr: tr, ref: ref, clock: time.Now()}
}

func (f *fixture) tick(mut func(*model.TelemetrySnapshot)) {
	f.clock = f.clock.Add(time.Second)
	snap := model.TelemetrySnapshot{Slot: f.ref, Timestamp: f.clock}
	mut(&snap)
	f.mgr.ApplyTelemetry(snap)
}

func (f *fixture) mustState(t *testing.T, want model.SlotState) {
	t.Helper()
	st, err := f.mgr.SlotState(f.ref)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st != want {
		t.Fatalf("state %s, want %s", st, want)
	}
}

func TestDepositFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	hook := &recordingHook{owner: "u1"}
	f.mgr.SetSessionHook(hook)

	ref, err := f.mgr.AllocateSlot(context.Background(), "b1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if ref != f.ref {
		t.Fatalf("allocated %s", ref)
	}
	f.mustState(t, model.StateAllocated)

	// unlock confirmed, door open
	f.tick(func(s *model.TelemetrySnapshot) {})
	f.mustState(t, model.StateAwaitingInsert)

	// battery in, door closed and locked
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-1"
		s.SoC = 25
		s.DoorClosed = true
	})
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-1"
		s.SoC = 25
		s.DoorClosed = true
		s.DoorLocked = true
	})
	f.mustState(t, model.StateCharging)

	names := f.tr.names(f.ref)
	if len(names) != 2 || names[0] != model.CommandForceUnlock || names[1] != model.CommandStartCharging {
		t.Fatalf("commands %v", names)
	}
	if len(hook.activated) != 1 {
		t.Fatalf("activation hooks %v", hook.activated)
	}

	// owner stamped on the battery
	views, err := f.mgr.BoothStatus("b1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if views[0].Battery == nil || views[0].Battery.UID != "batt-1" {
		t.Fatalf("battery view %#v", views[0].Battery)
	}

	// charge completes at the cutoff
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-1"
		s.SoC = 96
		s.DoorClosed = true
		s.DoorLocked = true
		s.RelayOn = true
	})
	f.mustState(t, model.StateFull)
}

func TestAllocateRevertsOnTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.tr.fail[f.ref] = errors.New("broker down")

	_, err := f.mgr.AllocateSlot(context.Background(), "b1")
	if !errors.Is(err, model.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	f.mustState(t, model.StateEmpty)

	// slot is usable once the broker is back
	f.tr.mu.Lock()
	delete(f.tr.fail, f.ref)
	f.tr.mu.Unlock()
	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestWithdrawalRevertsOnTransportFailure(t *testing.T) {
	f := newFixture(t)

	// drive to CHARGING and confirm the start command so nothing is pending
	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	f.tick(func(s *model.TelemetrySnapshot) {})
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-1"
		s.SoC = 40
		s.DoorClosed = true
	})
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-1"
		s.SoC = 40
		s.DoorClosed = true
		s.DoorLocked = true
	})
	f.mustState(t, model.StateCharging)
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.SoC = 40
		s.DoorClosed = true
		s.DoorLocked = true
		s.RelayOn = true
	})
	f.mustState(t, model.StateCharging)

	// the stopCharging dispatch fails; the door must not move toward
	// collection while the relay may still be on
	f.tr.mu.Lock()
	f.tr.fail[f.ref] = errors.New("broker down")
	f.tr.mu.Unlock()
	if err := f.mgr.RequestWithdrawal(context.Background(), f.ref); !errors.Is(err, model.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	f.mustState(t, model.StateCharging)

	// the same request succeeds once the broker is back
	f.tr.mu.Lock()
	delete(f.tr.fail, f.ref)
	f.tr.mu.Unlock()
	if err := f.mgr.RequestWithdrawal(context.Background(), f.ref); err != nil {
		t.Fatalf("retry: %v", err)
	}
	f.mustState(t, model.StateAwaitingPayment)
}

func TestResetAllRollsBackOnTransportFailure(t *testing.T) {
	f := newFixture(t)
	hook := &recordingHook{owner: "u1"}
	f.mgr.SetSessionHook(hook)
	ref2 := model.SlotRef{BoothID: "b1", SlotID: "s2"}
	if err := f.mgr.AddSlot(ref2); err != nil {
		t.Fatalf("add slot: %v", err)
	}

	// s1 mid-session, nothing pending
	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	f.tick(func(s *model.TelemetrySnapshot) {})
	f.mustState(t, model.StateAwaitingInsert)

	// the reset for s2 cannot be delivered; s1 must come back untouched
	f.tr.mu.Lock()
	f.tr.fail[ref2] = errors.New("broker down")
	f.tr.mu.Unlock()
	if err := f.mgr.ResetAllSlots(context.Background(), "b1"); !errors.Is(err, model.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	f.mustState(t, model.StateAwaitingInsert)
	if st, _ := f.mgr.SlotState(ref2); st != model.StateEmpty {
		t.Fatalf("s2 state %s", st)
	}
	if len(hook.interrupted) != 0 {
		t.Fatalf("interrupt hooks fired on rolled-back reset: %v", hook.interrupted)
	}

	// no pending command survives the rollback, so a retry goes through
	f.tr.mu.Lock()
	delete(f.tr.fail, ref2)
	f.tr.mu.Unlock()
	if err := f.mgr.ResetAllSlots(context.Background(), "b1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	f.mustState(t, model.StateResetting)
	if st, _ := f.mgr.SlotState(ref2); st != model.StateResetting {
		t.Fatalf("s2 state %s", st)
	}
	if len(hook.interrupted) != 1 {
		t.Fatalf("interrupt hooks %v", hook.interrupted)
	}
}

type heartbeatSink struct {
	coremetrics.NopSink
	mu     sync.Mutex
	events []coremetrics.HeartbeatEvent
}

func (h *heartbeatSink) RecordHeartbeat(ev coremetrics.HeartbeatEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func TestTelemetryFeedsHeartbeatSink(t *testing.T) {
	f := newFixture(t)
	sink := &heartbeatSink{}
	f.mgr.SetMetricsSink(sink)

	f.tick(func(s *model.TelemetrySnapshot) { s.SoC = 12 })
	f.tick(func(s *model.TelemetrySnapshot) { s.SoC = 34 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 2 {
		t.Fatalf("heartbeats %d", len(sink.events))
	}
	if sink.events[0].Slot != f.ref || sink.events[0].SoC != 12 || sink.events[1].SoC != 34 {
		t.Fatalf("heartbeats %+v", sink.events)
	}
}

func TestEnableCommandRestoresDisabledSlot(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.SetAdminStatus(f.ref, true); err != nil {
		t.Fatalf("disable: %v", err)
	}
	f.mustState(t, model.StateDisabled)

	// enableSlot is the one operator command a disabled slot accepts
	if err := f.mgr.SendCommand(context.Background(), f.ref, model.CommandEnableSlot, nil); err != nil {
		t.Fatalf("enable command: %v", err)
	}
	f.mustState(t, model.StateDisabled)

	// the booth's acknowledgement confirms the command and lifts the override
	f.tick(func(s *model.TelemetrySnapshot) {})
	f.mustState(t, model.StateEmpty)
	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); err != nil {
		t.Fatalf("allocate after enable: %v", err)
	}
}

func TestAllocateSkipsDisabledSlots(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.SetAdminStatus(f.ref, true); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); !errors.Is(err, model.ErrNoAvailableSlot) {
		t.Fatalf("expected no slot, got %v", err)
	}
}

func TestAdminOverrideInStatus(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.SetAdminStatus(f.ref, true); err != nil {
		t.Fatalf("disable: %v", err)
	}
	views, err := f.mgr.BoothStatus("b1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if views[0].Status != "disabled" {
		t.Fatalf("status %s", views[0].Status)
	}
	// telemetry keeps flowing but cannot re-enable the slot
	f.tick(func(s *model.TelemetrySnapshot) { s.DoorClosed = true })
	f.mustState(t, model.StateDisabled)

	if err := f.mgr.SetAdminStatus(f.ref, false); err != nil {
		t.Fatalf("enable: %v", err)
	}
	f.mustState(t, model.StateEmpty)
}

func TestSendCommandGatedWhileDisabled(t *testing.T) {
	f := newFixture(t)
	_ = f.mgr.SetAdminStatus(f.ref, true)
	err := f.mgr.SendCommand(context.Background(), f.ref, model.CommandForceUnlock, nil)
	if !errors.Is(err, model.ErrSlotDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
}

func TestDeleteSlotRejectsPending(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	// forceUnlock still pending
	if err := f.mgr.DeleteSlot(f.ref); !errors.Is(err, model.ErrSlotBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
}

func TestResetAllValidatesFirst(t *testing.T) {
	f := newFixture(t)
	ref2 := model.SlotRef{BoothID: "b1", SlotID: "s2"}
	if err := f.mgr.AddSlot(ref2); err != nil {
		t.Fatalf("add slot: %v", err)
	}
	// put a command in flight on s1
	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if err := f.mgr.ResetAllSlots(context.Background(), "b1"); !errors.Is(err, model.ErrSlotBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	// nothing was reset
	f.mustState(t, model.StateAllocated)
	st, _ := f.mgr.SlotState(ref2)
	if st != model.StateEmpty {
		t.Fatalf("s2 state %s", st)
	}
}

func TestResetInterruptsSession(t *testing.T) {
	f := newFixture(t)
	hook := &recordingHook{owner: "u1"}
	f.mgr.SetSessionHook(hook)

	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	// confirm the unlock so the reset command is not rejected as busy
	f.tick(func(s *model.TelemetrySnapshot) {})

	if err := f.mgr.ResetSlot(context.Background(), f.ref); err != nil {
		t.Fatalf("reset: %v", err)
	}
	f.mustState(t, model.StateResetting)
	if len(hook.interrupted) != 1 {
		t.Fatalf("interrupt hooks %v", hook.interrupted)
	}

	// the reset confirmation returns the slot to EMPTY
	f.tick(func(s *model.TelemetrySnapshot) {})
	f.mustState(t, model.StateEmpty)
}

func TestWithdrawalAndCollection(t *testing.T) {
	f := newFixture(t)
	hook := &recordingHook{owner: "u1"}
	f.mgr.SetSessionHook(hook)

	// drive to FULL
	if _, err := f.mgr.AllocateSlot(context.Background(), "b1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	f.tick(func(s *model.TelemetrySnapshot) {})
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-1"
		s.SoC = 50
		s.DoorClosed = true
	})
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-1"
		s.SoC = 96
		s.DoorClosed = true
		s.DoorLocked = true
	})
	f.mustState(t, model.StateCharging)
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.SoC = 96
		s.DoorClosed = true
		s.DoorLocked = true
		s.RelayOn = true
	})
	f.mustState(t, model.StateFull)

	// relay reported off confirms the stopCharging issued at cutoff
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.SoC = 96
		s.DoorClosed = true
		s.DoorLocked = true
	})

	if err := f.mgr.RequestWithdrawal(context.Background(), f.ref); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.mustState(t, model.StateAwaitingPayment)

	if err := f.mgr.ConfirmPayment(context.Background(), f.ref); err != nil {
		t.Fatalf("pay: %v", err)
	}
	f.mustState(t, model.StateUnlockingForCollection)

	// idempotence belongs to the orchestrator; a raw replay on the slot is a
	// transition error
	if err := f.mgr.ConfirmPayment(context.Background(), f.ref); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("replay on slot: %v", err)
	}

	// unlock confirmed, battery taken, door shut
	f.tick(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.SoC = 96
		s.DoorClosed = true
	})
	f.mustState(t, model.StateAwaitingCollection)
	f.tick(func(s *model.TelemetrySnapshot) { s.DoorClosed = true })
	f.mustState(t, model.StateEmpty)

	if len(hook.released) != 1 {
		t.Fatalf("release hooks %v", hook.released)
	}
}
