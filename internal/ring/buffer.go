// ABOUTME: Fixed-capacity byte ring buffer for one playback segment
// ABOUTME: Single producer writes, single consumer reads contiguous spans
package ring

import "sync/atomic"

// Buffer is a byte ring with fixed capacity. One goroutine writes, one
// goroutine reads; the used counter is the only shared word.
type Buffer struct {
	data  []byte
	write int
	read  int
	used  atomic.Int64
}

// NewBuffer allocates a ring buffer of the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the total capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Used returns the number of readable bytes.
func (b *Buffer) Used() int {
	return int(b.used.Load())
}

// Free returns the number of writable bytes.
func (b *Buffer) Free() int {
	return len(b.data) - int(b.used.Load())
}

// Write copies as much of p as fits and returns the number of bytes
// stored. It never blocks.
func (b *Buffer) Write(p []byte) int {
	n := len(p)
	if free := b.Free(); n > free {
		n = free
	}
	if n == 0 {
		return 0
	}
	first := len(b.data) - b.write
	if first > n {
		first = n
	}
	copy(b.data[b.write:], p[:first])
	copy(b.data, p[first:n])
	b.write = (b.write + n) % len(b.data)
	b.used.Add(int64(n))
	return n
}

// ReadSlice returns the longest contiguous readable span. It may be
// shorter than Used when the data wraps; call again after Advance to
// see the remainder.
func (b *Buffer) ReadSlice() []byte {
	used := int(b.used.Load())
	if used == 0 {
		return nil
	}
	n := len(b.data) - b.read
	if n > used {
		n = used
	}
	return b.data[b.read : b.read+n]
}

// Advance releases n read bytes. n must not exceed Used.
func (b *Buffer) Advance(n int) {
	if n <= 0 {
		return
	}
	if used := int(b.used.Load()); n > used {
		n = used
	}
	b.read = (b.read + n) % len(b.data)
	b.used.Add(int64(-n))
}

// Reset discards all content. Only valid while the reader is not
// draining this buffer.
func (b *Buffer) Reset() {
	b.read = 0
	b.write = 0
	b.used.Store(0)
}
