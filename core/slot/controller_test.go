package slot

import (
	"sync"
	"testing"

	"github.com/battswap/boothd/core/model"
)

func TestControllerSerializesAccess(t *testing.T) {
	ctrl := NewController(model.SlotRef{BoothID: "b1", SlotID: "s1"}, Machine{})

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctrl.Do(func(s *model.Slot, _ Machine) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 32 {
		t.Fatalf("counter %d", counter)
	}
}

func TestSnapshotCopiesBattery(t *testing.T) {
	ctrl := NewController(model.SlotRef{BoothID: "b1", SlotID: "s1"}, Machine{})
	_ = ctrl.Do(func(s *model.Slot, _ Machine) error {
		s.Battery = &model.Battery{UID: "pack-1", ChargeLevel: 50}
		return nil
	})

	snap := ctrl.Snapshot()
	snap.Battery.ChargeLevel = 99

	if got := ctrl.Snapshot().Battery.ChargeLevel; got != 50 {
		t.Fatalf("live battery mutated through snapshot: soc %v", got)
	}
}
