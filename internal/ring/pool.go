// ABOUTME: Fixed ring of playback slots shared by producer and consumer
// ABOUTME: The atomic filled counter is the publish point between the two roles
package ring

import (
	"errors"
	"sync/atomic"

	"github.com/Playout-Project/playout-go/pkg/audio"
)

const (
	// NumSlots is the number of slots in the pool.
	NumSlots = 8

	// SlotBufferSize holds ~2s of 8 channel 16-bit audio per slot.
	SlotBufferSize = 3 * 5 * 7 * 8 * 2 * 1000
)

// ErrPoolFull is returned when all slots are pending.
var ErrPoolFull = errors.New("ring: out of slots")

// Slot holds one contiguous playback segment and its format metadata.
// All fields except the buffer's used counter are written by the
// producer before the slot is published via the filled counter.
type Slot struct {
	Flush       bool
	Passthrough bool
	PacketSize  int
	In          audio.Format
	Hw          audio.Format
	PTS         audio.PTS
	Buffer      *Buffer
}

// Invalidate clears the negotiated format so the consumer skips the
// slot after a fatal hardware error.
func (s *Slot) Invalidate() {
	s.Hw = audio.Format{}
	s.In = audio.Format{}
}

// Pool is the ordered ring of slots. The write index is advanced by
// the producer on allocation, the read index by the consumer on
// Advance; filled counts allocated slots the consumer has not yet
// taken over.
type Pool struct {
	slots   [NumSlots]*Slot
	write   int
	read    int
	filled  atomic.Int32
	drained chan struct{}
}

// NewPool allocates the pool with all slot buffers preallocated; the
// storage is reused for the lifetime of the pool.
func NewPool() *Pool {
	p := &Pool{drained: make(chan struct{}, 1)}
	for i := range p.slots {
		p.slots[i] = &Slot{Buffer: NewBuffer(SlotBufferSize)}
	}
	return p
}

// Filled returns the number of published slots not yet taken over by
// the consumer.
func (p *Pool) Filled() int {
	return int(p.filled.Load())
}

// WriteSlot returns the most recently allocated slot.
func (p *Pool) WriteSlot() *Slot {
	return p.slots[p.write]
}

// ReadSlot returns the slot currently being drained.
func (p *Pool) ReadSlot() *Slot {
	return p.slots[p.read]
}

// Add allocates the next slot for a new stream format. The slot's
// buffer is reset and its pts cleared; filled is incremented last so
// the consumer observes a fully initialized slot.
func (p *Pool) Add(in, hw audio.Format) error {
	if p.filled.Load() == NumSlots {
		return ErrPoolFull
	}
	p.write = (p.write + 1) % NumSlots
	s := p.slots[p.write]
	s.Flush = false
	s.Passthrough = in.Passthrough
	s.PacketSize = 0
	s.In = in
	s.Hw = hw
	s.PTS = audio.PTS{}
	s.Buffer.Reset()
	p.filled.Add(1)
	return nil
}

// AddFlush allocates a slot inheriting the previous slot's format with
// the flush flag raised. The caller is responsible for waking the
// consumer and waiting for the drain.
func (p *Pool) AddFlush() error {
	if p.filled.Load() == NumSlots {
		return ErrPoolFull
	}
	prev := p.slots[p.write]
	p.write = (p.write + 1) % NumSlots
	s := p.slots[p.write]
	s.Flush = true
	s.Passthrough = prev.Passthrough
	s.PacketSize = prev.PacketSize
	s.In = prev.In
	s.Hw = prev.Hw
	s.PTS = audio.PTS{}
	s.Buffer.Reset()
	p.filled.Add(1)
	return nil
}

// Advance moves the read index to the next published slot. It returns
// false when nothing is pending. Consumer only.
func (p *Pool) Advance() (*Slot, bool) {
	if p.filled.Load() == 0 {
		return nil, false
	}
	p.read = (p.read + 1) % NumSlots
	p.release(1)
	return p.slots[p.read], true
}

// ScanFlush walks the pending slots for flush requests. When one or
// more are found the read index jumps to the latest flagged slot,
// earlier pending slots are dropped, and the number of consumed slots
// is returned. Consumer only.
func (p *Pool) ScanFlush() int {
	filled := int(p.filled.Load())
	read := p.read
	consumed := 0
	for i := 0; i < filled; i++ {
		read = (read + 1) % NumSlots
		if p.slots[read].Flush {
			p.slots[read].Flush = false
			p.read = read
			consumed = i + 1
		}
	}
	if consumed > 0 {
		p.release(int32(consumed))
	}
	return consumed
}

// Drained signals each time filled returns to zero. Receivers must
// re-check Filled; the channel carries no payload.
func (p *Pool) Drained() <-chan struct{} {
	return p.drained
}

func (p *Pool) release(n int32) {
	if p.filled.Add(-n) == 0 {
		select {
		case p.drained <- struct{}{}:
		default:
		}
	}
}
