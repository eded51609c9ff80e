// ABOUTME: Tests for the slot pool
// ABOUTME: Covers the filled invariant, flush slots, and consumer advance
package ring

import (
	"testing"

	"github.com/Playout-Project/playout-go/pkg/audio"
)

func stereo48() (audio.Format, audio.Format) {
	f := audio.Format{SampleRate: 48000, Channels: 2}
	return f, f
}

func TestPoolFilledNeverExceedsMax(t *testing.T) {
	p := NewPool()
	in, hw := stereo48()

	for i := 0; i < NumSlots; i++ {
		if err := p.Add(in, hw); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if p.Filled() != NumSlots {
		t.Fatalf("expected filled=%d, got %d", NumSlots, p.Filled())
	}

	// Exactly the next allocation must fail.
	if err := p.Add(in, hw); err != ErrPoolFull {
		t.Errorf("expected ErrPoolFull, got %v", err)
	}
	if err := p.AddFlush(); err != ErrPoolFull {
		t.Errorf("expected ErrPoolFull from AddFlush, got %v", err)
	}
	if p.Filled() != NumSlots {
		t.Errorf("failed add changed filled to %d", p.Filled())
	}
}

func TestPoolAddInitializesSlot(t *testing.T) {
	p := NewPool()
	in := audio.Format{SampleRate: 44100, Channels: 6}
	hw := audio.Format{SampleRate: 44100, Channels: 2}

	if err := p.Add(in, hw); err != nil {
		t.Fatal(err)
	}
	s := p.WriteSlot()
	if s.In != in || s.Hw != hw {
		t.Errorf("slot formats in=%v hw=%v", s.In, s.Hw)
	}
	if s.PTS.Valid {
		t.Error("fresh slot must have no pts")
	}
	if s.Buffer.Used() != 0 {
		t.Error("fresh slot buffer not empty")
	}
}

func TestPoolFlushInheritsFormat(t *testing.T) {
	p := NewPool()
	in := audio.Format{SampleRate: 48000, Channels: 6}
	hw := audio.Format{SampleRate: 48000, Channels: 2}

	if err := p.Add(in, hw); err != nil {
		t.Fatal(err)
	}
	p.WriteSlot().Buffer.Write(make([]byte, 4096))
	p.WriteSlot().PTS = audio.NewPTS(90000)

	if err := p.AddFlush(); err != nil {
		t.Fatal(err)
	}
	s := p.WriteSlot()
	if !s.Flush {
		t.Error("flush flag not set")
	}
	if s.In != in || s.Hw != hw {
		t.Error("flush slot did not inherit formats")
	}
	if s.PTS.Valid {
		t.Error("flush slot pts must be unknown")
	}
	if s.Buffer.Used() != 0 {
		t.Error("flush slot buffer not empty")
	}
}

func TestPoolScanFlushDropsEarlierSlots(t *testing.T) {
	p := NewPool()
	in, hw := stereo48()

	p.Add(in, hw)
	p.WriteSlot().Buffer.Write(make([]byte, 100))
	p.Add(in, hw)
	p.WriteSlot().Buffer.Write(make([]byte, 200))
	p.AddFlush()

	if got := p.ScanFlush(); got != 3 {
		t.Fatalf("expected 3 slots consumed, got %d", got)
	}
	if p.Filled() != 0 {
		t.Errorf("expected filled=0 after flush scan, got %d", p.Filled())
	}
	if p.ReadSlot().Flush {
		t.Error("flush flag not cleared")
	}
	if p.ReadSlot().Buffer.Used() != 0 {
		t.Error("read slot after flush should be the empty flush slot")
	}

	// Drained notification fired when filled hit zero.
	select {
	case <-p.Drained():
	default:
		t.Error("expected drained notification")
	}
}

func TestPoolAdvance(t *testing.T) {
	p := NewPool()
	in, hw := stereo48()

	if _, ok := p.Advance(); ok {
		t.Fatal("advance on empty pool should fail")
	}

	p.Add(in, hw)
	p.WriteSlot().Buffer.Write(make([]byte, 64))

	s, ok := p.Advance()
	if !ok {
		t.Fatal("advance failed with one pending slot")
	}
	if s.Buffer.Used() != 64 {
		t.Errorf("advanced into wrong slot, used=%d", s.Buffer.Used())
	}
	if p.Filled() != 0 {
		t.Errorf("filled=%d after advance", p.Filled())
	}
}
