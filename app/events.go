package app

import (
	"github.com/cockroachdb/errors"

	"github.com/battswap/boothd/core/events"
	"github.com/battswap/boothd/core/logger"
	"github.com/battswap/boothd/core/model"
	coremon "github.com/battswap/boothd/core/monitoring"
	"github.com/battswap/boothd/internal/eventbus"
)

// watchEvents drains one bus subscription and surfaces lifecycle events in
// the service log. Command timeouts are the one condition reported to
// monitoring: an unconfirmed hardware command means physical uncertainty an
// operator has to look at. Returns when the bus closes.
func watchEvents(ch <-chan eventbus.Event, log logger.Logger) {
	for e := range ch {
		switch ev := e.(type) {
		case events.CommandTimeoutEvent:
			err := errors.Wrapf(model.ErrCommandTimeout, "%s for %s issued at %s",
				ev.Command, ev.Slot, ev.IssuedAt.Format("15:04:05"))
			log.Warnf("%v", err)
			coremon.CaptureException(err, map[string]string{
				"booth_id": ev.Slot.BoothID,
				"slot_id":  ev.Slot.SlotID,
				"command":  string(ev.Command),
			})
		case events.CommandEvent:
			if ev.Err != nil {
				log.Warnf("command %s for %s failed: %v", ev.Command, ev.Slot, ev.Err)
			}
		case events.CommandConfirmedEvent:
			log.Debugf("command %s for %s confirmed after %s", ev.Command, ev.Slot, ev.Latency)
		case events.SlotStateEvent:
			log.Debugf("slot %s moved %s -> %s", ev.Slot, ev.From, ev.To)
		case events.SessionEvent:
			log.Infof("session %s (%s) is %s", ev.Session.ID, ev.Session.Type, ev.Session.Status)
		}
	}
}
