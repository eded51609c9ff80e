// ABOUTME: Dynamic range compressor for 16-bit PCM blocks
// ABOUTME: Smooths a per-block peak gain so quiet passages come up without clipping
package pcm

import "math"

// Compressor tracks a smoothed gain factor in per-mille. The factor is
// pulled toward the gain that would bring the block peak to full scale,
// with 5% weight per block, and never exceeds that instantaneous gain.
type Compressor struct {
	factor int
	max    int
}

// NewCompressor returns a compressor limited to maxFactor per-mille.
func NewCompressor(maxFactor int) *Compressor {
	c := &Compressor{max: maxFactor}
	c.Reset()
	return c
}

// SetMax updates the gain ceiling, keeping the current factor legal.
func (c *Compressor) SetMax(maxFactor int) {
	c.max = maxFactor
	if c.factor == 0 {
		c.factor = 1000
	}
	if c.factor > c.max {
		c.factor = c.max
	}
}

// Reset restores the startup gain. Called on every format change.
func (c *Compressor) Reset() {
	c.factor = 2000
	if c.factor > c.max {
		c.factor = c.max
	}
}

// Factor returns the current smoothed gain in per-mille.
func (c *Compressor) Factor() int {
	return c.factor
}

// Process applies the compressor to the block in place. A silent block
// leaves the factor untouched.
func (c *Compressor) Process(samples []int16) {
	peak := 0
	for _, s := range samples {
		t := int(s)
		if t < 0 {
			t = -t
		}
		if t > peak {
			peak = t
		}
	}
	if peak == 0 {
		return
	}

	instant := (math.MaxInt16 * 1000) / peak
	c.factor = (c.factor*950 + instant*50) / 1000
	if c.factor > instant {
		c.factor = instant
	}
	if c.factor > c.max {
		c.factor = c.max
	}

	for i, s := range samples {
		samples[i] = clamp16(int(s) * c.factor / 1000)
	}
}

func clamp16(t int) int16 {
	if t < math.MinInt16 {
		return math.MinInt16
	}
	if t > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(t)
}
