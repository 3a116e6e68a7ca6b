package health

import (
	"testing"

	"github.com/battswap/boothd/core/model"
)

func TestScoreFreshBattery(t *testing.T) {
	if got := Score(0, nil, nil); got != 100 {
		t.Fatalf("score %v", got)
	}
}

func TestScoreCycleFade(t *testing.T) {
	low := Score(100, nil, nil)
	high := Score(1500, nil, nil)
	if low <= high {
		t.Fatalf("fade not monotonic: %v vs %v", low, high)
	}
	if high != 80 {
		t.Fatalf("1500 cycles scored %v", high)
	}
	// fade caps at 40 points
	if got := Score(100000, nil, nil); got != 60 {
		t.Fatalf("capped fade scored %v", got)
	}
}

func TestScoreHotPackPenalized(t *testing.T) {
	cool := Score(0, []float64{25, 25, 25}, nil)
	hot := Score(0, []float64{45, 45, 45}, nil)
	if hot >= cool {
		t.Fatalf("hot %v, cool %v", hot, cool)
	}
}

func TestScoreVoltageSag(t *testing.T) {
	healthy := Score(0, nil, []float64{48, 48})
	sagging := Score(0, nil, []float64{42, 42})
	if sagging >= healthy {
		t.Fatalf("sagging %v, healthy %v", sagging, healthy)
	}
}

func TestScoreFloorsAtZero(t *testing.T) {
	if got := Score(100000, []float64{90, 10, 90, 10}, []float64{20}); got < 0 {
		t.Fatalf("score %v", got)
	}
}

func TestDetectorFlagsSpike(t *testing.T) {
	d := NewDetector(30)
	ref := model.SlotRef{BoothID: "b1", SlotID: "s1"}

	temps := []float64{25, 25.2, 24.8, 25.1, 24.9, 25.3, 24.7, 25.0, 25.1, 24.9, 25.2}
	for _, v := range temps {
		if d.Observe(ref, v) {
			t.Fatalf("baseline reading %v flagged", v)
		}
	}
	if !d.Observe(ref, 60) {
		t.Fatalf("spike not flagged")
	}
}

func TestDetectorNeedsHistory(t *testing.T) {
	d := NewDetector(30)
	ref := model.SlotRef{BoothID: "b1", SlotID: "s1"}
	// far-out readings are tolerated until the window fills
	for i := 0; i < minSamples-1; i++ {
		d.Observe(ref, 25)
	}
	if d.Observe(ref, 90) {
		t.Fatalf("flagged before the window held enough samples")
	}
}

func TestDetectorForget(t *testing.T) {
	d := NewDetector(30)
	ref := model.SlotRef{BoothID: "b1", SlotID: "s1"}
	for i := 0; i < 12; i++ {
		d.Observe(ref, 25)
	}
	d.Forget(ref)
	if d.Observe(ref, 90) {
		t.Fatalf("history survived Forget")
	}
}
