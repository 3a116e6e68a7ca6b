package health

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/battswap/boothd/core/model"
)

// Nominal pack voltage used as the reference for sag penalties.
const nominalVoltage = 48.0

// Score estimates battery health as a percentage from cycle wear and
// electrical samples collected while the pack occupied a slot. With no
// samples only the cycle fade applies.
func Score(cycles int, temps, volts []float64) float64 {
	score := 100.0

	// Linear capacity fade: 20 points over 1500 cycles, capped at 40.
	fade := float64(cycles) / 1500 * 20
	if fade > 40 {
		fade = 40
	}
	score -= fade

	if len(temps) > 0 {
		mean, std := stat.MeanStdDev(temps, nil)
		if math.IsNaN(std) {
			std = 0
		}
		if mean > 35 {
			score -= (mean - 35) * 1.5
		}
		// Thermal cycling stress.
		score -= std * 0.5
	}
	if len(volts) > 0 {
		mean := stat.Mean(volts, nil)
		if sag := (nominalVoltage - mean) / nominalVoltage; sag > 0.05 {
			score -= (sag - 0.05) * 200
		}
	}

	if score < 0 {
		return 0
	}
	return score
}

// Detector flags abnormal temperature readings per slot using a rolling
// window z-score. A reading is anomalous once the window holds enough
// samples and the reading sits more than three standard deviations from the
// window mean.
type Detector struct {
	mu      sync.Mutex
	window  int
	samples map[model.SlotRef][]float64
}

const minSamples = 10

// NewDetector creates a Detector keeping up to window samples per slot.
func NewDetector(window int) *Detector {
	if window < minSamples {
		window = 30
	}
	return &Detector{window: window, samples: map[model.SlotRef][]float64{}}
}

// Observe records a temperature reading and reports whether it is anomalous
// relative to the slot's recent history.
func (d *Detector) Observe(ref model.SlotRef, tempC float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.samples[ref]
	anomalous := false
	if len(prev) >= minSamples {
		mean, std := stat.MeanStdDev(prev, nil)
		if std > 0 && math.Abs(tempC-mean)/std > 3 {
			anomalous = true
		}
	}

	next := append(prev, tempC)
	if len(next) > d.window {
		next = next[len(next)-d.window:]
	}
	d.samples[ref] = next
	return anomalous
}

// Forget drops the history for a slot, typically after a reset or battery
// swap.
func (d *Detector) Forget(ref model.SlotRef) {
	d.mu.Lock()
	delete(d.samples, ref)
	d.mu.Unlock()
}
