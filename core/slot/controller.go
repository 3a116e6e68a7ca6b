package slot

import (
	"sync"

	"github.com/battswap/boothd/core/model"
)

// Controller owns the record for one slot and serializes every event applied
// to it. Commands and telemetry for the same slot never run concurrently;
// different slots proceed fully in parallel.
type Controller struct {
	mu      sync.Mutex
	machine Machine
	slot    model.Slot
}

// NewController creates a controller for a fresh slot in EMPTY state.
func NewController(ref model.SlotRef, machine Machine) *Controller {
	return &Controller{
		machine: machine,
		slot:    model.Slot{Ref: ref, State: model.StateEmpty, PriorState: model.StateEmpty},
	}
}

// Do runs fn with exclusive access to the slot record.
func (c *Controller) Do(fn func(s *model.Slot, m Machine) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(&c.slot, c.machine)
}

// Snapshot returns a copy of the slot record. The battery, if any, is copied
// so callers cannot alias the live reference.
func (c *Controller) Snapshot() model.Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.slot
	if c.slot.Battery != nil {
		b := *c.slot.Battery
		out.Battery = &b
	}
	return out
}

// State returns the current machine state.
func (c *Controller) State() model.SlotState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.State
}
