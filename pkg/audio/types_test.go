// ABOUTME: Tests for audio format and timestamp math
// ABOUTME: Covers byte/tick conversion and PTS validity
package audio

import "testing"

func TestBytesToTicks(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 2}

	// One second of stereo 16-bit at 48kHz is 192000 bytes = 90000 ticks.
	if got := f.BytesToTicks(192000); got != 90000 {
		t.Errorf("expected 90000 ticks, got %d", got)
	}

	// Invalid format converts to zero.
	if got := (Format{}).BytesToTicks(192000); got != 0 {
		t.Errorf("expected 0 ticks for invalid format, got %d", got)
	}
}

func TestTicksToBytesFrameAligned(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 6}

	for _, ticks := range []int64{90, 900, 9000, 12345} {
		n := f.TicksToBytes(ticks)
		if n%f.FrameBytes() != 0 {
			t.Errorf("ticks %d: %d bytes not frame aligned", ticks, n)
		}
	}
}

func TestPTSValidity(t *testing.T) {
	var p PTS
	if p.Valid {
		t.Error("zero PTS should be invalid")
	}
	if p.Add(90).Valid {
		t.Error("adding to an invalid PTS should stay invalid")
	}

	p = NewPTS(90 * 1000)
	if !p.Valid {
		t.Error("NewPTS should be valid")
	}
	if got := p.Add(90).Millis(); got != 1001 {
		t.Errorf("expected 1001ms, got %d", got)
	}
}
