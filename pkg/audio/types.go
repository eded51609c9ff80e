// ABOUTME: Shared audio format and timestamp types
// ABOUTME: PTS values are 90kHz ticks with an explicit validity flag
package audio

import "fmt"

const (
	// BytesPerSample is the sample width; the engine works on signed
	// 16-bit little-endian PCM throughout.
	BytesPerSample = 2

	// TicksPerMs is the resolution of the presentation clock (90kHz).
	TicksPerMs = 90
)

// Format describes a PCM stream as sample rate and channel count.
type Format struct {
	SampleRate  uint
	Channels    uint
	Passthrough bool
}

// Valid reports whether the format has been negotiated.
func (f Format) Valid() bool {
	return f.SampleRate != 0 && f.Channels != 0
}

// FrameBytes returns the size of one interleaved frame in bytes.
func (f Format) FrameBytes() int {
	return int(f.Channels) * BytesPerSample
}

// BytesPerSecond returns the data rate of the format.
func (f Format) BytesPerSecond() int {
	return int(f.SampleRate*f.Channels) * BytesPerSample
}

// BytesToTicks converts a byte count of this format into 90kHz ticks.
func (f Format) BytesToTicks(n int) int64 {
	if !f.Valid() {
		return 0
	}
	return (int64(n) * TicksPerMs * 1000) / int64(f.BytesPerSecond())
}

// TicksToBytes converts 90kHz ticks into a byte count, rounded down to
// a whole frame.
func (f Format) TicksToBytes(ticks int64) int {
	if !f.Valid() {
		return 0
	}
	frames := ticks * int64(f.SampleRate) / (1000 * TicksPerMs)
	return int(frames) * f.FrameBytes()
}

func (f Format) String() string {
	s := fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	if f.Passthrough {
		s += " pass-through"
	}
	return s
}

// PTS is a presentation timestamp in 90kHz ticks. The zero value means
// "no timestamp known".
type PTS struct {
	Ticks int64
	Valid bool
}

// NewPTS returns a valid timestamp.
func NewPTS(ticks int64) PTS {
	return PTS{Ticks: ticks, Valid: true}
}

// Add returns the timestamp shifted by ticks. An invalid timestamp
// stays invalid.
func (p PTS) Add(ticks int64) PTS {
	if !p.Valid {
		return p
	}
	return PTS{Ticks: p.Ticks + ticks, Valid: true}
}

// Millis returns the timestamp in milliseconds, for logging.
func (p PTS) Millis() int64 {
	return p.Ticks / TicksPerMs
}

func (p PTS) String() string {
	if !p.Valid {
		return "none"
	}
	return fmt.Sprintf("%d.%03ds", p.Ticks/(TicksPerMs*1000), p.Millis()%1000)
}
