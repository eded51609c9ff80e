// ABOUTME: Narrow hardware playback contract consumed by the playout engine
// ABOUTME: Defines the sink interface and the shared error taxonomy
package sink

import (
	"errors"
	"time"
)

// Sink is the hardware playback device. All data is interleaved
// signed 16-bit little-endian PCM. Implementations are used by one
// consumer goroutine at a time; Setup may also be called from the
// probing path before the consumer starts.
type Sink interface {
	// Open prepares the device, selecting the pass-through path when
	// requested.
	Open(passthrough bool) error

	// Setup negotiates rate and channels and returns the period size
	// in bytes. ErrUnsupported means the combination was rejected;
	// other errors are fatal for the current slot.
	Setup(rate, channels uint) (periodBytes int, err error)

	// Write queues bytes for playback and returns how many were
	// accepted. ErrUnderrun reports a recoverable underrun.
	Write(p []byte) (int, error)

	// Avail returns the free space in the device buffer in bytes.
	Avail() (int, error)

	// Wait blocks until the device can take more data or the timeout
	// elapses; it returns false on timeout.
	Wait(timeout time.Duration) (bool, error)

	// Drop discards everything queued in the device.
	Drop() error

	// Recover attempts to resume after an underrun.
	Recover() error

	// DelayFrames reports the frames buffered in the device.
	DelayFrames() (int, error)

	// SetVolume sets the device mixer volume in per-mille.
	// ErrUnsupported means the device has no mixer and the caller
	// should fall back to software volume.
	SetVolume(permille int) error

	Close() error
}

var (
	// ErrUnsupported reports a rate/channel combination or operation
	// the device cannot do.
	ErrUnsupported = errors.New("sink: unsupported")

	// ErrUnderrun reports that the device ran dry; Recover may resume.
	ErrUnderrun = errors.New("sink: underrun")

	// ErrWouldBlock reports that no space was available for a
	// non-blocking write.
	ErrWouldBlock = errors.New("sink: would block")

	// ErrNotOpen reports use of a sink before Open or after Close.
	ErrNotOpen = errors.New("sink: not open")
)
