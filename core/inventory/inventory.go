package inventory

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/core/slot"
)

// Booth is a station housing multiple slots.
type Booth struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Location string  `json:"location,omitempty"`
	// ChargeCutoff is the station-defined SoC percentage that completes
	// charging. Zero means charge to 100.
	ChargeCutoff float64 `json:"charge_cutoff,omitempty"`
}

// BoothSummary is a booth with its slot count.
type BoothSummary struct {
	Booth
	SlotCount int `json:"slot_count"`
}

// Inventory is the CRUD boundary for booth and slot existence. Slots are
// created explicitly and never silently disappear; deletion fails loudly on
// occupied or mid-transition slots.
type Inventory struct {
	mu     sync.RWMutex
	booths map[string]Booth
	slots  map[model.SlotRef]*slot.Controller
}

func New() *Inventory {
	return &Inventory{
		booths: map[string]Booth{},
		slots:  map[model.SlotRef]*slot.Controller{},
	}
}

// AddBooth registers a booth.
func (inv *Inventory) AddBooth(b Booth) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.booths[b.ID]; ok {
		return errors.Wrapf(model.ErrInventoryConflict, "booth %s exists", b.ID)
	}
	inv.booths[b.ID] = b
	return nil
}

// Booth returns the booth metadata.
func (inv *Inventory) Booth(id string) (Booth, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	b, ok := inv.booths[id]
	if !ok {
		return Booth{}, errors.Wrapf(model.ErrBoothNotFound, "%s", id)
	}
	return b, nil
}

// Booths lists all booths with their slot counts.
func (inv *Inventory) Booths() []BoothSummary {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	res := make([]BoothSummary, 0, len(inv.booths))
	for id, b := range inv.booths {
		s := BoothSummary{Booth: b}
		for ref := range inv.slots {
			if ref.BoothID == id {
				s.SlotCount++
			}
		}
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// AddSlot provisions a new slot in EMPTY state.
func (inv *Inventory) AddSlot(ref model.SlotRef) (*slot.Controller, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	b, ok := inv.booths[ref.BoothID]
	if !ok {
		return nil, errors.Wrapf(model.ErrBoothNotFound, "%s", ref.BoothID)
	}
	if _, ok := inv.slots[ref]; ok {
		return nil, errors.Wrapf(model.ErrInventoryConflict, "slot %s exists", ref)
	}
	ctrl := slot.NewController(ref, slot.Machine{ChargeCutoff: b.ChargeCutoff})
	inv.slots[ref] = ctrl
	return ctrl, nil
}

// DeleteSlot removes a slot. Deleting an occupied or mid-transition slot is
// a programming error, not a normal operation, and fails with
// InventoryConflict.
func (inv *Inventory) DeleteSlot(ref model.SlotRef) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	ctrl, ok := inv.slots[ref]
	if !ok {
		return errors.Wrapf(model.ErrSlotNotFound, "%s", ref)
	}
	if st := ctrl.State(); !st.Deletable() {
		return errors.Wrapf(model.ErrInventoryConflict, "delete %s in %s", ref, st)
	}
	delete(inv.slots, ref)
	return nil
}

// Slot returns the controller for a slot.
func (inv *Inventory) Slot(ref model.SlotRef) (*slot.Controller, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	ctrl, ok := inv.slots[ref]
	if !ok {
		return nil, errors.Wrapf(model.ErrSlotNotFound, "%s", ref)
	}
	return ctrl, nil
}

// Slots returns the booth's controllers ordered by slot identifier.
func (inv *Inventory) Slots(boothID string) ([]*slot.Controller, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if _, ok := inv.booths[boothID]; !ok {
		return nil, errors.Wrapf(model.ErrBoothNotFound, "%s", boothID)
	}
	type entry struct {
		id   string
		ctrl *slot.Controller
	}
	var list []entry
	for ref, ctrl := range inv.slots {
		if ref.BoothID == boothID {
			list = append(list, entry{ref.SlotID, ctrl})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	res := make([]*slot.Controller, len(list))
	for i, e := range list {
		res[i] = e.ctrl
	}
	return res, nil
}
