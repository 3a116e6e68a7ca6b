package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/battswap/boothd/core/audit"
	"github.com/battswap/boothd/core/events"
	"github.com/battswap/boothd/core/logger"
	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/internal/eventbus"
)

// SlotService is the slot surface the orchestrator drives. booth.Manager
// implements it.
type SlotService interface {
	AllocateSlot(ctx context.Context, boothID string) (model.SlotRef, error)
	RequestWithdrawal(ctx context.Context, ref model.SlotRef) error
	ConfirmPayment(ctx context.Context, ref model.SlotRef) error
	CancelSlot(ctx context.Context, ref model.SlotRef) error
	ReissueUnlock(ctx context.Context, ref model.SlotRef) error
	SlotState(ref model.SlotRef) (model.SlotState, error)
}

// Orchestrator coordinates deposit and withdrawal sessions on top of the
// slot layer. It enforces one active session per user and tracks which slot
// holds each user's battery between sessions.
type Orchestrator struct {
	slots SlotService
	log   logger.Logger
	bus   eventbus.EventBus

	mu           sync.Mutex
	sessions     map[string]*model.Session
	activeByUser map[string]string
	activeBySlot map[model.SlotRef]string
	deposits     map[string]model.SlotRef
	auditlog     audit.Store

	now   func() time.Time
	newID func() string
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(slots SlotService, log logger.Logger, bus eventbus.EventBus) (*Orchestrator, error) {
	if slots == nil {
		return nil, errors.New("session: nil SlotService")
	}
	return &Orchestrator{
		slots:        slots,
		log:          log,
		bus:          bus,
		sessions:     make(map[string]*model.Session),
		activeByUser: make(map[string]string),
		activeBySlot: make(map[model.SlotRef]string),
		deposits:     make(map[string]model.SlotRef),
		now:          time.Now,
		newID:        uuid.NewString,
	}, nil
}

// SetAuditStore configures the store used to persist session decisions.
func (o *Orchestrator) SetAuditStore(store audit.Store) {
	o.mu.Lock()
	o.auditlog = store
	o.mu.Unlock()
}

// StartDeposit opens a deposit session and reserves a slot. The user slot is
// reserved before the hardware call, so for concurrent requests by the same
// user exactly one succeeds.
func (o *Orchestrator) StartDeposit(ctx context.Context, userID, boothID string) (model.Session, error) {
	o.mu.Lock()
	if _, active := o.activeByUser[userID]; active {
		o.mu.Unlock()
		return model.Session{}, errors.Wrapf(model.ErrUserHasActiveSession, "user %s", userID)
	}
	sess := &model.Session{
		ID: o.newID(), UserID: userID,
		Type: model.SessionDeposit, Status: model.SessionPending,
		CreatedAt: o.now(),
	}
	o.sessions[sess.ID] = sess
	o.activeByUser[userID] = sess.ID
	o.mu.Unlock()

	ref, err := o.slots.AllocateSlot(ctx, boothID)

	o.mu.Lock()
	if err != nil {
		sess.Status = model.SessionFailed
		delete(o.activeByUser, userID)
		out := *sess
		o.mu.Unlock()
		o.record(out, audit.OutcomeRejected, err.Error())
		return model.Session{}, err
	}
	sess.Slot = ref
	sess.Status = model.SessionInProgress
	o.activeBySlot[ref] = sess.ID
	out := *sess
	o.mu.Unlock()

	o.publish(out)
	o.record(out, audit.OutcomeAccepted, "")
	return out, nil
}

// StartWithdrawal opens a withdrawal session for the slot holding the user's
// battery and requests collection.
func (o *Orchestrator) StartWithdrawal(ctx context.Context, userID string) (model.Session, error) {
	o.mu.Lock()
	if _, active := o.activeByUser[userID]; active {
		o.mu.Unlock()
		return model.Session{}, errors.Wrapf(model.ErrUserHasActiveSession, "user %s", userID)
	}
	ref, ok := o.deposits[userID]
	if !ok {
		o.mu.Unlock()
		return model.Session{}, errors.Wrapf(model.ErrNoActiveDeposit, "user %s", userID)
	}
	sess := &model.Session{
		ID: o.newID(), UserID: userID, Slot: ref,
		Type: model.SessionWithdrawal, Status: model.SessionPending,
		CreatedAt: o.now(),
	}
	o.sessions[sess.ID] = sess
	o.activeByUser[userID] = sess.ID
	o.mu.Unlock()

	err := o.slots.RequestWithdrawal(ctx, ref)

	o.mu.Lock()
	if err != nil {
		sess.Status = model.SessionFailed
		delete(o.activeByUser, userID)
		out := *sess
		o.mu.Unlock()
		o.record(out, audit.OutcomeRejected, err.Error())
		return model.Session{}, err
	}
	sess.Status = model.SessionInProgress
	o.activeBySlot[ref] = sess.ID
	out := *sess
	o.mu.Unlock()

	o.publish(out)
	o.record(out, audit.OutcomeAccepted, "")
	return out, nil
}

// ConfirmPayment acknowledges payment for a withdrawal session and triggers
// the collection unlock. It is idempotent: replays after the unlock was
// already issued, or after the session completed, succeed without effect.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	sess, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return errors.Wrapf(model.ErrSessionNotFound, "session %s", sessionID)
	}
	if sess.Type != model.SessionWithdrawal {
		o.mu.Unlock()
		return errors.Wrapf(model.ErrInvalidTransition, "payment on %s session", sess.Type)
	}
	if sess.Status == model.SessionCompleted {
		o.mu.Unlock()
		return nil
	}
	if sess.Status != model.SessionInProgress {
		o.mu.Unlock()
		return errors.Wrapf(model.ErrInvalidTransition, "payment on %s session", sess.Status)
	}
	ref := sess.Slot
	o.mu.Unlock()

	st, err := o.slots.SlotState(ref)
	if err != nil {
		return err
	}
	switch st {
	case model.StateUnlockingForCollection, model.StateAwaitingCollection:
		return nil // already unlocked, replayed confirmation
	case model.StateAwaitingPayment:
		return o.slots.ConfirmPayment(ctx, ref)
	default:
		return errors.Wrapf(model.ErrInvalidTransition, "payment while slot %s is %s", ref, st)
	}
}

// OpenForCollection re-issues the collection unlock after a hardware
// confirmation timed out.
func (o *Orchestrator) OpenForCollection(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	sess, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return errors.Wrapf(model.ErrSessionNotFound, "session %s", sessionID)
	}
	ref := sess.Slot
	status := sess.Status
	o.mu.Unlock()
	if status != model.SessionInProgress {
		return errors.Wrapf(model.ErrInvalidTransition, "reissue on %s session", status)
	}
	return o.slots.ReissueUnlock(ctx, ref)
}

// CancelSession aborts a deposit before a battery was committed. Withdrawal
// sessions cannot be cancelled once the charge stop was requested.
func (o *Orchestrator) CancelSession(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	sess, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return errors.Wrapf(model.ErrSessionNotFound, "session %s", sessionID)
	}
	if sess.Type != model.SessionDeposit || sess.Status.Terminal() {
		o.mu.Unlock()
		return errors.Wrapf(model.ErrInvalidTransition, "cancel %s session in %s", sess.Type, sess.Status)
	}
	ref := sess.Slot
	o.mu.Unlock()

	if err := o.slots.CancelSlot(ctx, ref); err != nil {
		return err
	}

	o.mu.Lock()
	sess.Status = model.SessionCancelled
	delete(o.activeByUser, sess.UserID)
	delete(o.activeBySlot, ref)
	out := *sess
	o.mu.Unlock()

	o.publish(out)
	o.record(out, audit.OutcomeAccepted, "cancelled")
	return nil
}

// Session returns a session by id.
func (o *Orchestrator) Session(id string) (model.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[id]
	if !ok {
		return model.Session{}, errors.Wrapf(model.ErrSessionNotFound, "session %s", id)
	}
	return *sess, nil
}

// SlotActivated completes a deposit once the battery started charging and
// returns the owning user for battery stamping.
func (o *Orchestrator) SlotActivated(ref model.SlotRef) (string, bool) {
	o.mu.Lock()
	sid, ok := o.activeBySlot[ref]
	if !ok {
		o.mu.Unlock()
		return "", false
	}
	sess := o.sessions[sid]
	if sess.Type != model.SessionDeposit || sess.Status != model.SessionInProgress {
		o.mu.Unlock()
		return "", false
	}
	sess.Status = model.SessionCompleted
	o.deposits[sess.UserID] = ref
	delete(o.activeByUser, sess.UserID)
	delete(o.activeBySlot, ref)
	out := *sess
	o.mu.Unlock()

	o.publish(out)
	o.record(out, audit.OutcomeAccepted, "battery charging")
	return out.UserID, true
}

// SlotReleased completes a withdrawal once the battery was collected and the
// door closed again.
func (o *Orchestrator) SlotReleased(ref model.SlotRef) {
	o.mu.Lock()
	sid, ok := o.activeBySlot[ref]
	if !ok {
		o.mu.Unlock()
		return
	}
	sess := o.sessions[sid]
	sess.Status = model.SessionCompleted
	delete(o.deposits, sess.UserID)
	delete(o.activeByUser, sess.UserID)
	delete(o.activeBySlot, ref)
	out := *sess
	o.mu.Unlock()

	o.publish(out)
	o.record(out, audit.OutcomeAccepted, "battery collected")
}

// SlotInterrupted fails any session attached to a faulted or reset slot and
// orphans deposits held there.
func (o *Orchestrator) SlotInterrupted(ref model.SlotRef, cause error) {
	o.mu.Lock()
	var out *model.Session
	if sid, ok := o.activeBySlot[ref]; ok {
		sess := o.sessions[sid]
		sess.Status = model.SessionFailed
		delete(o.activeByUser, sess.UserID)
		delete(o.activeBySlot, ref)
		c := *sess
		out = &c
	}
	for user, dep := range o.deposits {
		if dep == ref {
			delete(o.deposits, user)
		}
	}
	o.mu.Unlock()

	if out != nil {
		if o.log != nil {
			o.log.Warnf("session %s failed: %v", out.ID, cause)
		}
		o.publish(*out)
		o.record(*out, audit.OutcomeRejected, cause.Error())
	}
}

func (o *Orchestrator) publish(s model.Session) {
	if o.bus != nil {
		o.bus.Publish(events.SessionEvent{Session: s})
	}
}

func (o *Orchestrator) record(s model.Session, outcome, detail string) {
	o.mu.Lock()
	store := o.auditlog
	o.mu.Unlock()
	if store == nil {
		return
	}
	rec := audit.Record{
		Timestamp: o.now(), Kind: audit.KindSession,
		BoothID: s.Slot.BoothID, SlotID: s.Slot.SlotID,
		SessionID: s.ID, UserID: s.UserID,
		Outcome: outcome, Detail: detail,
	}
	if err := store.Append(context.Background(), rec); err != nil && o.log != nil {
		o.log.Errorf("audit append: %v", err)
	}
}
