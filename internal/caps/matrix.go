// ABOUTME: Startup capability probe of the hardware sink
// ABOUTME: Maps requested channel counts to the nearest supported hardware layout
package caps

import (
	"log"

	"github.com/Playout-Project/playout-go/internal/sink"
)

// ProbeRates is the candidate sample rate set, sorted ascending.
var ProbeRates = []uint{44100, 48000, 192000}

const maxChannels = 8

// channelFallback lists, per requested channel count, the layouts to
// try when the count itself is unsupported: first the next larger
// layouts, then collapse through 6, 2, 1.
var channelFallback = [maxChannels + 1][]uint{
	1: {2},
	2: {4, 5, 6, 7, 8, 1},
	3: {4, 5, 6, 7, 8, 2, 1},
	4: {5, 6, 7, 8, 2, 1},
	5: {6, 7, 8, 2, 1},
	6: {7, 8, 2, 1},
	7: {8, 6, 2, 1},
	8: {6, 2, 1},
}

// Matrix records which rate and channel combinations the device
// accepted and the per-rate fallback mapping built from them.
type Matrix struct {
	rates        []uint
	rateOK       []bool
	channelsInHw [maxChannels + 1]bool
	mapping      [][maxChannels + 1]uint
}

// Probe tries every candidate rate with channel counts 1..8 against
// the device and builds the fallback table. Combinations that fail at
// the lowest rate are not retried at higher rates.
func Probe(dev sink.Sink) *Matrix {
	m := &Matrix{
		rates:   ProbeRates,
		rateOK:  make([]bool, len(ProbeRates)),
		mapping: make([][maxChannels + 1]uint, len(ProbeRates)),
	}

	for ri, rate := range m.rates {
		for ch := uint(1); ch <= maxChannels; ch++ {
			if ri > 0 && !m.channelsInHw[ch] {
				continue
			}
			if _, err := dev.Setup(rate, ch); err != nil {
				if ri == 0 {
					m.channelsInHw[ch] = false
				}
				continue
			}
			m.channelsInHw[ch] = true
			m.rateOK[ri] = true
		}
	}

	for ri := range m.rates {
		if !m.rateOK[ri] {
			continue
		}
		for ch := uint(1); ch <= maxChannels; ch++ {
			m.mapping[ri][ch] = m.resolve(ch)
		}
	}

	for ri, rate := range m.rates {
		log.Printf("caps: %6dHz maps channels to %v", rate, m.mapping[ri][1:])
	}
	return m
}

// resolve picks the hardware layout for a requested channel count.
func (m *Matrix) resolve(ch uint) uint {
	if m.channelsInHw[ch] {
		return ch
	}
	for _, alt := range channelFallback[ch] {
		if m.channelsInHw[alt] {
			return alt
		}
	}
	return 0
}

// Lookup returns the hardware channel count for the requested format.
// The rate must be one of the probed candidates and the mapping must
// have an entry for the channel count.
func (m *Matrix) Lookup(rate, channels uint) (hwChannels uint, ok bool) {
	if channels < 1 || channels > maxChannels {
		return 0, false
	}
	for ri, r := range m.rates {
		if r == rate {
			hw := m.mapping[ri][channels]
			return hw, hw != 0
		}
		if r > rate {
			break
		}
	}
	return 0, false
}
