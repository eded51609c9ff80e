// ABOUTME: Loudness normalizer driven by a sliding window of block energies
// ABOUTME: Gain targets -18dBFS from the mean square energy of the last 128 blocks
package pcm

import "math"

const (
	// normBlockSamples is the size of one energy accounting block.
	normBlockSamples = 4096

	// normWindow is the number of block energies kept.
	normWindow = 128

	// minNormalize is the gain floor in per-mille.
	minNormalize = 100
)

// Normalizer accumulates per-block mean-square energy and, once the
// window is full, pulls a smoothed gain factor toward the level that
// would bring the average energy to the reference.
type Normalizer struct {
	window  [normWindow]uint32
	index   int
	ready   int
	counter int
	factor  int
	max     int
}

// NewNormalizer returns a normalizer limited to maxFactor per-mille.
func NewNormalizer(maxFactor int) *Normalizer {
	n := &Normalizer{max: maxFactor}
	n.Reset()
	return n
}

// SetMax updates the gain ceiling.
func (n *Normalizer) SetMax(maxFactor int) {
	n.max = maxFactor
}

// Reset clears the history and restores unit gain. Called on every
// format change.
func (n *Normalizer) Reset() {
	n.counter = 0
	n.ready = 0
	n.index = 0
	for i := range n.window {
		n.window[i] = 0
	}
	n.factor = 1000
}

// Factor returns the current smoothed gain in per-mille.
func (n *Normalizer) Factor() int {
	return n.factor
}

// Process accounts the block's energy and applies the current factor
// in place.
func (n *Normalizer) Process(samples []int16) {
	data := samples
	for len(data) > 0 {
		span := len(data)
		if n.counter+span > normBlockSamples {
			span = normBlockSamples - n.counter
		}
		avg := n.window[n.index]
		for _, s := range data[:span] {
			t := int32(s)
			avg += uint32(t*t) / normBlockSamples
		}
		n.window[n.index] = avg
		n.counter += span
		if n.counter >= normBlockSamples {
			n.update()
			n.index = (n.index + 1) % normWindow
			n.counter = 0
			n.window[n.index] = 0
		}
		data = data[span:]
	}

	for i, s := range samples {
		samples[i] = clamp16(int(s) * n.factor / 1000)
	}
}

// update recomputes the smoothed factor once another block completes.
// Until the window is full only the history advances.
func (n *Normalizer) update() {
	if n.ready < normWindow {
		n.ready++
		return
	}
	var avg uint32
	for _, e := range n.window {
		avg += e / normWindow
	}
	if avg == 0 {
		return
	}
	target := int((math.MaxInt16 / 8 * 1000) / uint32(math.Sqrt(float64(avg))))
	n.factor = (n.factor*500 + target*500) / 1000
	if n.factor < minNormalize {
		n.factor = minNormalize
	}
	if n.factor > n.max {
		n.factor = n.max
	}
}
