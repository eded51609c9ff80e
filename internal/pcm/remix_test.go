// ABOUTME: Tests for channel remixing
// ABOUTME: Checks mono/stereo identities and the surround down-mix weights
package pcm

import (
	"errors"
	"testing"
)

func TestRemixMonoToStereo(t *testing.T) {
	in := []int16{100, -200, 300}
	out := make([]int16, 6)

	if err := Remix(in, 1, out, 2); err != nil {
		t.Fatal(err)
	}
	want := []int16{100, 100, -200, -200, 300, 300}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d]=%d, want %d", i, out[i], want[i])
		}
	}
}

func TestRemixStereoToMono(t *testing.T) {
	in := []int16{100, 200, -100, -201}
	out := make([]int16, 2)

	if err := Remix(in, 2, out, 1); err != nil {
		t.Fatal(err)
	}
	// Arithmetic mean with integer truncation.
	if out[0] != 150 {
		t.Errorf("out[0]=%d, want 150", out[0])
	}
	if out[1] != -150 {
		t.Errorf("out[1]=%d, want -150", out[1])
	}
}

func TestRemixSurroundToStereoWeights(t *testing.T) {
	// One 5.1 frame: L R Ls Rs C LFE.
	in := []int16{1000, 2000, 3000, 4000, 5000, 6000}
	out := make([]int16, 2)

	if err := Remix(in, 6, out, 2); err != nil {
		t.Fatal(err)
	}
	// L*400 + Ls*200 + C*300 + LFE*100, all /1000.
	wantL := int16((1000*400 + 3000*200 + 5000*300 + 6000*100) / 1000)
	wantR := int16((2000*400 + 4000*200 + 5000*300 + 6000*100) / 1000)
	if out[0] != wantL || out[1] != wantR {
		t.Errorf("got %d/%d, want %d/%d", out[0], out[1], wantL, wantR)
	}
}

func TestRemixCopyAndUpmix(t *testing.T) {
	in := []int16{1, 2, 3, 4}
	out := make([]int16, 4)
	if err := Remix(in, 2, out, 2); err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("copy mismatch at %d", i)
		}
	}

	// 5.1 to 7.1 pads the two missing channels with silence.
	frame := []int16{1, 2, 3, 4, 5, 6}
	up := make([]int16, 8)
	if err := Remix(frame, 6, up, 8); err != nil {
		t.Fatal(err)
	}
	want := []int16{1, 2, 3, 4, 5, 6, 0, 0}
	for i := range want {
		if up[i] != want[i] {
			t.Fatalf("up[%d]=%d, want %d", i, up[i], want[i])
		}
	}
}

func TestRemixUnsupportedProducesSilence(t *testing.T) {
	in := []int16{1, 2, 3, 4, 5, 6, 7, 8}
	out := []int16{9, 9, 9, 9, 9, 9}

	err := Remix(in, 4, out, 3)
	if !errors.Is(err, ErrRemix) {
		t.Fatalf("expected ErrRemix, got %v", err)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("out[%d]=%d, want silence", i, s)
		}
	}
}
