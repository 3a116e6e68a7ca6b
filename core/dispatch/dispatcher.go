package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/battswap/boothd/core/events"
	"github.com/battswap/boothd/core/logger"
	coremetrics "github.com/battswap/boothd/core/metrics"
	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/internal/eventbus"
)

// Transport performs the hardware call for a command. Implementations must
// not retry on their own: retrying a physical lock or unlock without human
// confirmation is unsafe.
type Transport interface {
	SendCommand(ctx context.Context, ref model.SlotRef, cmd model.Command) error
}

// Dispatcher sends commands to slot hardware and tracks at most one pending
// command per slot. It never marks completion itself: completion is inferred
// from telemetry by Observe, or the pending entry expires after the
// configured timeout.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	log       logger.Logger
	bus       eventbus.EventBus
	sink      coremetrics.MetricsSink
	now       func() time.Time

	mu      sync.Mutex
	pending map[model.SlotRef]*pendingEntry
}

type pendingEntry struct {
	cmd   model.PendingCommand
	timer *time.Timer
}

// New creates a Dispatcher. If timeout is zero, a default of five seconds is
// used.
func New(transport Transport, timeout time.Duration, log logger.Logger, bus eventbus.EventBus) (*Dispatcher, error) {
	if transport == nil {
		return nil, errors.New("dispatch: nil transport provided to New")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		transport: transport,
		timeout:   timeout,
		log:       log,
		bus:       bus,
		now:       time.Now,
		pending:   make(map[model.SlotRef]*pendingEntry),
	}, nil
}

// SetMetricsSink configures the sink used to persist command outcomes.
func (d *Dispatcher) SetMetricsSink(sink coremetrics.MetricsSink) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

// Send dispatches a command for the given slot. It rejects with SlotBusy
// while another command is pending, and with SlotDisabled or SlotFaulty for
// every command except enableSlot and reset. A transport failure clears the
// pending state immediately and is returned to the caller as a retryable
// error.
func (d *Dispatcher) Send(ctx context.Context, slot model.Slot, name model.CommandName, params map[string]any) error {
	ref := slot.Ref
	switch slot.State {
	case model.StateDisabled:
		if name != model.CommandEnableSlot && name != model.CommandReset {
			return errors.Wrapf(model.ErrSlotDisabled, "%s rejected for %s", name, ref)
		}
	case model.StateFaulty:
		if name != model.CommandEnableSlot && name != model.CommandReset {
			return errors.Wrapf(model.ErrSlotFaulty, "%s rejected for %s", name, ref)
		}
	}

	cmd := model.Command{ID: uuid.NewString(), Name: name, Params: params}

	d.mu.Lock()
	if e, ok := d.pending[ref]; ok {
		d.mu.Unlock()
		return errors.Wrapf(model.ErrSlotBusy, "%s pending for %s", e.cmd.Name, ref)
	}
	// Reserve the slot before the hardware call so a concurrent Send for the
	// same slot observes the single-writer invariant.
	entry := &pendingEntry{cmd: model.PendingCommand{Slot: ref, Name: name, ID: cmd.ID, IssuedAt: d.now()}}
	d.pending[ref] = entry
	d.mu.Unlock()

	if err := d.transport.SendCommand(ctx, ref, cmd); err != nil {
		transportFailure.Inc()
		d.mu.Lock()
		delete(d.pending, ref)
		d.mu.Unlock()
		if d.bus != nil {
			d.bus.Publish(events.CommandEvent{Slot: ref, Command: name, CommandID: cmd.ID, Err: err, Time: d.now()})
		}
		d.record(coremetrics.CommandResult{Slot: ref, Command: name, CommandID: cmd.ID, Time: d.now()})
		return errors.Mark(errors.Wrapf(err, "send %s to %s", name, ref), model.ErrTransport)
	}
	transportSuccess.Inc()
	commandsAccepted.WithLabelValues(string(name)).Inc()

	d.mu.Lock()
	// Arm the timeout only if the entry survived the hardware call.
	if cur, ok := d.pending[ref]; ok && cur == entry {
		entry.timer = time.AfterFunc(d.timeout, func() { d.expire(ref, cmd.ID) })
	}
	d.mu.Unlock()

	if d.bus != nil {
		d.bus.Publish(events.CommandEvent{Slot: ref, Command: name, CommandID: cmd.ID, Accepted: true, Time: d.now()})
	}
	d.record(coremetrics.CommandResult{Slot: ref, Command: name, CommandID: cmd.ID, Accepted: true, Time: d.now()})
	if d.log != nil {
		d.log.Infof("dispatched %s to %s", name, ref)
	}
	return nil
}

// Observe evaluates the snapshot against the slot's pending command, if any.
// Every snapshot received after the command was issued is checked, not just
// the next one, to tolerate out-of-order delivery of unrelated fields. The
// ordering check uses the arrival clock, not the device timestamp. It
// returns the confirmed command name when the predicate matches.
func (d *Dispatcher) Observe(snap model.TelemetrySnapshot) (model.CommandName, bool) {
	d.mu.Lock()
	entry, ok := d.pending[snap.Slot]
	if !ok || !entry.cmd.Confirms(snap, d.now()) {
		d.mu.Unlock()
		return "", false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(d.pending, snap.Slot)
	d.mu.Unlock()

	latency := d.now().Sub(entry.cmd.IssuedAt)
	commandLatency.WithLabelValues(string(entry.cmd.Name)).Observe(latency.Seconds())
	if d.bus != nil {
		d.bus.Publish(events.CommandConfirmedEvent{Slot: snap.Slot, Command: entry.cmd.Name, Latency: latency})
	}
	d.record(coremetrics.CommandResult{
		Slot: snap.Slot, Command: entry.cmd.Name, CommandID: entry.cmd.ID,
		Accepted: true, Confirmed: true, Latency: latency, Time: d.now(),
	})
	return entry.cmd.Name, true
}

// Pending returns the in-flight command for the slot, if any.
func (d *Dispatcher) Pending(ref model.SlotRef) (model.PendingCommand, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[ref]; ok {
		return e.cmd, true
	}
	return model.PendingCommand{}, false
}

// Cancel drops the pending command for the slot, if any. Callers use it when
// the operation that issued the command is rolled back; no timeout or
// confirmation fires for a cancelled command.
func (d *Dispatcher) Cancel(ref model.SlotRef) {
	d.mu.Lock()
	if e, ok := d.pending[ref]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(d.pending, ref)
	}
	d.mu.Unlock()
}

// expire clears a pending command that never confirmed. The slot's logical
// state is left untouched: stale states require operator intervention, since
// silently discarding physical uncertainty is unsafe.
func (d *Dispatcher) expire(ref model.SlotRef, cmdID string) {
	d.mu.Lock()
	entry, ok := d.pending[ref]
	if !ok || entry.cmd.ID != cmdID {
		d.mu.Unlock()
		return
	}
	delete(d.pending, ref)
	d.mu.Unlock()

	commandTimeouts.WithLabelValues(string(entry.cmd.Name)).Inc()
	if d.log != nil {
		d.log.Warnf("command %s for %s expired without confirmation", entry.cmd.Name, ref)
	}
	if d.bus != nil {
		d.bus.Publish(events.CommandTimeoutEvent{Slot: ref, Command: entry.cmd.Name, IssuedAt: entry.cmd.IssuedAt})
	}
	d.record(coremetrics.CommandResult{
		Slot: ref, Command: entry.cmd.Name, CommandID: entry.cmd.ID,
		Accepted: true, TimedOut: true, Time: d.now(),
	})
}

func (d *Dispatcher) record(res coremetrics.CommandResult) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.RecordCommandResult([]coremetrics.CommandResult{res}); err != nil && d.log != nil {
		d.log.Errorf("metrics error: %v", err)
	}
}
