package session

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/battswap/boothd/core/model"
)

// fakeSlots implements SlotService with scripted behavior.
type fakeSlots struct {
	mu        sync.Mutex
	allocated int
	allocErr  error
	states    map[model.SlotRef]model.SlotState
	confirmed []model.SlotRef
	cancelled []model.SlotRef
	reissued  []model.SlotRef
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{states: make(map[model.SlotRef]model.SlotState)}
}

func (f *fakeSlots) AllocateSlot(_ context.Context, boothID string) (model.SlotRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allocErr != nil {
		return model.SlotRef{}, f.allocErr
	}
	f.allocated++
	ref := model.SlotRef{BoothID: boothID, SlotID: string(rune('a' + f.allocated))}
	f.states[ref] = model.StateAllocated
	return ref, nil
}

func (f *fakeSlots) RequestWithdrawal(_ context.Context, ref model.SlotRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[ref] = model.StateAwaitingPayment
	return nil
}

func (f *fakeSlots) ConfirmPayment(_ context.Context, ref model.SlotRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, ref)
	f.states[ref] = model.StateUnlockingForCollection
	return nil
}

func (f *fakeSlots) CancelSlot(_ context.Context, ref model.SlotRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, ref)
	f.states[ref] = model.StateEmpty
	return nil
}

func (f *fakeSlots) ReissueUnlock(_ context.Context, ref model.SlotRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reissued = append(f.reissued, ref)
	return nil
}

func (f *fakeSlots) SlotState(ref model.SlotRef) (model.SlotState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[ref], nil
}

func (f *fakeSlots) setState(ref model.SlotRef, st model.SlotState) {
	f.mu.Lock()
	f.states[ref] = st
	f.mu.Unlock()
}

func newTestOrchestrator(t *testing.T, slots SlotService) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(slots, nil, nil)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestStartDeposit(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)

	sess, err := o.StartDeposit(context.Background(), "u1", "b1")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if sess.Status != model.SessionInProgress || sess.Type != model.SessionDeposit {
		t.Fatalf("session %#v", sess)
	}

	// a second session while one is in flight is refused
	if _, err := o.StartDeposit(context.Background(), "u1", "b1"); !errors.Is(err, model.ErrUserHasActiveSession) {
		t.Fatalf("expected active session error, got %v", err)
	}
}

func TestConcurrentDepositSingleSuccess(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.StartDeposit(context.Background(), "u1", "b1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, model.ErrUserHasActiveSession) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d deposits succeeded", ok)
	}
	if slots.allocated != 1 {
		t.Fatalf("%d slots allocated", slots.allocated)
	}
}

func TestDepositFailureReleasesUser(t *testing.T) {
	slots := newFakeSlots()
	slots.allocErr = model.ErrNoAvailableSlot
	o := newTestOrchestrator(t, slots)

	if _, err := o.StartDeposit(context.Background(), "u1", "b1"); !errors.Is(err, model.ErrNoAvailableSlot) {
		t.Fatalf("expected no slot, got %v", err)
	}
	// the failed attempt must not block the user
	slots.allocErr = nil
	if _, err := o.StartDeposit(context.Background(), "u1", "b1"); err != nil {
		t.Fatalf("second deposit: %v", err)
	}
}

func TestDepositCompletionViaHook(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)

	sess, err := o.StartDeposit(context.Background(), "u1", "b1")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	owner, ok := o.SlotActivated(sess.Slot)
	if !ok || owner != "u1" {
		t.Fatalf("activated %q %v", owner, ok)
	}
	got, err := o.Session(sess.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if got.Status != model.SessionCompleted {
		t.Fatalf("status %s", got.Status)
	}

	// the user is free again and can withdraw their battery
	w, err := o.StartWithdrawal(context.Background(), "u1")
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}
	if w.Slot != sess.Slot {
		t.Fatalf("withdrawal slot %s, deposit slot %s", w.Slot, sess.Slot)
	}
}

func TestWithdrawalRequiresDeposit(t *testing.T) {
	o := newTestOrchestrator(t, newFakeSlots())
	if _, err := o.StartWithdrawal(context.Background(), "u1"); !errors.Is(err, model.ErrNoActiveDeposit) {
		t.Fatalf("expected no deposit, got %v", err)
	}
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)

	dep, _ := o.StartDeposit(context.Background(), "u1", "b1")
	o.SlotActivated(dep.Slot)
	w, err := o.StartWithdrawal(context.Background(), "u1")
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}

	if err := o.ConfirmPayment(context.Background(), w.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(slots.confirmed) != 1 {
		t.Fatalf("%d confirmations reached the slot", len(slots.confirmed))
	}

	// replay while the unlock is in flight: accepted, no second unlock
	if err := o.ConfirmPayment(context.Background(), w.ID); err != nil {
		t.Fatalf("replay during unlock: %v", err)
	}
	slots.setState(w.Slot, model.StateAwaitingCollection)
	if err := o.ConfirmPayment(context.Background(), w.ID); err != nil {
		t.Fatalf("replay during collection: %v", err)
	}
	if len(slots.confirmed) != 1 {
		t.Fatalf("replay reached the slot")
	}

	// replay after completion
	o.SlotReleased(w.Slot)
	if err := o.ConfirmPayment(context.Background(), w.ID); err != nil {
		t.Fatalf("replay after completion: %v", err)
	}
	got, _ := o.Session(w.ID)
	if got.Status != model.SessionCompleted {
		t.Fatalf("status %s", got.Status)
	}
}

func TestConfirmPaymentRejectsDeposit(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)
	dep, _ := o.StartDeposit(context.Background(), "u1", "b1")
	if err := o.ConfirmPayment(context.Background(), dep.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestCancelDeposit(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)
	dep, _ := o.StartDeposit(context.Background(), "u1", "b1")

	if err := o.CancelSession(context.Background(), dep.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := o.Session(dep.ID)
	if got.Status != model.SessionCancelled {
		t.Fatalf("status %s", got.Status)
	}
	if len(slots.cancelled) != 1 {
		t.Fatalf("slot not released")
	}
	// user can start over
	if _, err := o.StartDeposit(context.Background(), "u1", "b1"); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestCancelWithdrawalRejected(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)
	dep, _ := o.StartDeposit(context.Background(), "u1", "b1")
	o.SlotActivated(dep.Slot)
	w, _ := o.StartWithdrawal(context.Background(), "u1")

	if err := o.CancelSession(context.Background(), w.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSlotInterruptedFailsSessionAndOrphansDeposit(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)
	dep, _ := o.StartDeposit(context.Background(), "u1", "b1")
	o.SlotActivated(dep.Slot)

	o.SlotInterrupted(dep.Slot, errors.New("slot reset by operator"))

	// the stored battery is gone with the slot
	if _, err := o.StartWithdrawal(context.Background(), "u1"); !errors.Is(err, model.ErrNoActiveDeposit) {
		t.Fatalf("expected orphaned deposit, got %v", err)
	}
}

func TestOpenForCollection(t *testing.T) {
	slots := newFakeSlots()
	o := newTestOrchestrator(t, slots)
	dep, _ := o.StartDeposit(context.Background(), "u1", "b1")
	o.SlotActivated(dep.Slot)
	w, _ := o.StartWithdrawal(context.Background(), "u1")

	if err := o.OpenForCollection(context.Background(), w.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(slots.reissued) != 1 {
		t.Fatalf("unlock not reissued")
	}

	if err := o.OpenForCollection(context.Background(), "missing"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
