// ABOUTME: Tests for the loudness normalizer
// ABOUTME: Checks window-fill gating, convergence, and the gain floor
package pcm

import (
	"math"
	"testing"
)

// feedBlocks pushes n blocks of constant amplitude through the
// normalizer.
func feedBlocks(norm *Normalizer, amplitude int16, n int) {
	for i := 0; i < n; i++ {
		block := make([]int16, normBlockSamples)
		for j := range block {
			block[j] = amplitude
		}
		norm.Process(block)
	}
}

func TestNormalizerWaitsForFullWindow(t *testing.T) {
	norm := NewNormalizer(2500)

	feedBlocks(norm, 1000, normWindow)
	if norm.Factor() != 1000 {
		t.Errorf("factor %d before the window is full, want 1000", norm.Factor())
	}
}

func TestNormalizerConvergence(t *testing.T) {
	norm := NewNormalizer(10000)

	// Constant amplitude A gives block energy A^2, so the target
	// factor is (32767/8*1000)/A.
	const amp = 8000
	target := (math.MaxInt16 / 8 * 1000) / amp

	feedBlocks(norm, amp, normWindow+64)

	// 50/50 smoothing halves the distance per update; after 64
	// updates the factor is as good as converged.
	got := norm.Factor()
	if got < target-10 || got > target+10 {
		t.Errorf("factor %d, want about %d", got, target)
	}
}

func TestNormalizerZeroEnergyKeepsFactor(t *testing.T) {
	norm := NewNormalizer(2500)

	feedBlocks(norm, 0, normWindow+32)
	if norm.Factor() != 1000 {
		t.Errorf("zero energy moved factor to %d", norm.Factor())
	}
}

func TestNormalizerFloorAndCeiling(t *testing.T) {
	// Full scale content pulls the factor down toward the -18dB
	// reference but never below the floor.
	norm := NewNormalizer(10000)
	feedBlocks(norm, math.MaxInt16, normWindow+200)
	target := (math.MaxInt16 / 8 * 1000) / math.MaxInt16
	if norm.Factor() < minNormalize {
		t.Errorf("factor %d fell below floor %d", norm.Factor(), minNormalize)
	}
	if got := norm.Factor(); got < target-10 || got > target+10 {
		t.Errorf("factor %d, want about %d", got, target)
	}

	// Very quiet content is clamped at the configured maximum.
	norm = NewNormalizer(1400)
	feedBlocks(norm, 100, normWindow+200)
	if norm.Factor() > 1400 {
		t.Errorf("factor %d exceeds max", norm.Factor())
	}
}

func TestNormalizerAppliesGainWithClamp(t *testing.T) {
	norm := NewNormalizer(10000)
	// Force a known factor by filling the window with quiet audio.
	feedBlocks(norm, 400, normWindow+200)
	if norm.Factor() <= 1000 {
		t.Fatalf("expected boost factor, got %d", norm.Factor())
	}

	block := make([]int16, normBlockSamples)
	for i := range block {
		block[i] = math.MaxInt16
	}
	norm.Process(block)
	for _, s := range block[:16] {
		if int(s) > math.MaxInt16 {
			t.Fatalf("sample %d out of range", s)
		}
	}
}
